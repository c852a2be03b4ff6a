package cli

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/HsiangNianian/framelink/internal/config"
	"github.com/HsiangNianian/framelink/internal/protocol"
	"github.com/HsiangNianian/framelink/internal/ws"
)

// NewServeCommand creates the serve command.
func NewServeCommand(rootOpts *RootOptions) *cobra.Command {
	var listen string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the websocket host",
		Long: `Run the websocket host apps connect to.

Endpoints:
  <app_path>   websocket endpoint for apps (default /ws/app)
  /broadcast   POST {"func": "...", "args": [...]} pushes an event to subscribed apps
  /healthz     liveness`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, logger, err := rootOpts.load(cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			if listen != "" {
				cfg.Server.ListenAddr = listen
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return serve(ctx, cfg, logger)
		},
	}

	cmd.Flags().StringVar(&listen, "listen", "", "listen address, overrides server.listen_addr")

	return cmd
}

func serve(ctx context.Context, cfg config.Config, logger *slog.Logger) error {
	st, closeStore := openStore(cfg.Store, logger)
	defer closeStore()

	hub := ws.NewHub(ws.HubOptions{
		Store:     st,
		AuthToken: cfg.Server.AuthToken,
		Initialize: ws.InitializeReply{
			FrameContext:              protocol.FrameContext(cfg.Host.FrameContext),
			ClientType:                protocol.HostClientType(cfg.Host.ClientType),
			RuntimeConfig:             cfg.Host.RuntimeConfig,
			ClientSupportedSDKVersion: cfg.Host.ClientSupportedSDKVersion,
		},
		ProcessedTTL: cfg.Server.ProcessedTTL(),
		Logger:       logger,
	})
	registerBuiltinHandlers(hub)
	defer hub.Close()

	mux := http.NewServeMux()
	mux.HandleFunc(cfg.Server.AppPath, hub.HandleApp)
	mux.HandleFunc("/broadcast", broadcastHandler(hub, cfg.Server.AuthToken, logger))
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	srv := &http.Server{
		Addr:              cfg.Server.ListenAddr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errc := make(chan error, 1)
	go func() {
		logger.Info("host listening", "addr", cfg.Server.ListenAddr, "app_path", cfg.Server.AppPath)
		errc <- srv.ListenAndServe()
	}()

	select {
	case err := <-errc:
		return fmt.Errorf("host server failed: %w", err)
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}

// registerBuiltinHandlers installs the actions every host answers.
func registerBuiltinHandlers(hub *ws.Hub) {
	hub.HandleFunc("ping", func(context.Context, *ws.Call) ([]any, error) {
		return []any{"pong"}, nil
	})
	hub.HandleFunc("echo", func(_ context.Context, call *ws.Call) ([]any, error) {
		return call.Args, nil
	})
}

type broadcastRequest struct {
	Func string `json:"func"`
	Args []any  `json:"args"`
}

func broadcastHandler(hub *ws.Hub, authToken string, logger *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		if authToken != "" && r.Header.Get("Authorization") != "Bearer "+authToken {
			logger.Warn("broadcast unauthorized", "remote", r.RemoteAddr)
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
		var req broadcastRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Func == "" {
			http.Error(w, "body must be {\"func\": ..., \"args\": [...]}", http.StatusBadRequest)
			return
		}
		sent := hub.Broadcast(req.Func, req.Args...)
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]int{"delivered": sent})
	}
}
