package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/HsiangNianian/framelink/internal/codec"
	"github.com/HsiangNianian/framelink/internal/comm"
	"github.com/HsiangNianian/framelink/internal/config"
	"github.com/HsiangNianian/framelink/internal/frame"
	"github.com/HsiangNianian/framelink/internal/native"
	"github.com/HsiangNianian/framelink/internal/origin"
	"github.com/HsiangNianian/framelink/internal/store"
	"github.com/HsiangNianian/framelink/internal/ws"
)

// ProbeOptions holds flags for the probe command.
type ProbeOptions struct {
	*RootOptions
	URL    string
	Codec  string
	Action string
	Args   string
	Stdio  bool
}

// NewProbeCommand creates the probe command.
func NewProbeCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ProbeOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "probe",
		Short: "Connect to a host as an app and send an action",
		Long: `Connect to a host as an app, run the initialize handshake and print the
host's answer. With --action the given action is sent afterwards and the
response args are printed as JSON.

With --stdio the host is reached through a native bridge on stdin and stdout,
one JSON envelope per line; results are printed to stderr.

Example:
  framelink probe --url ws://127.0.0.1:8080/ws/app --action echo --args '["hi"]'`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			out := cmd.OutOrStdout()
			if opts.Stdio {
				out = cmd.ErrOrStderr()
			}
			cfg, logger, err := opts.load(cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			if opts.URL != "" {
				cfg.Client.URL = opts.URL
			}
			if opts.Codec != "" {
				cfg.Client.Codec = opts.Codec
			}
			return probe(cmd.Context(), opts, cfg, logger, out)
		},
	}

	cmd.Flags().StringVar(&opts.URL, "url", "", "host websocket url, overrides client.url")
	cmd.Flags().StringVar(&opts.Codec, "codec", "", "wire codec (json|cbor), overrides client.codec")
	cmd.Flags().StringVar(&opts.Action, "action", "", "action to send after the handshake")
	cmd.Flags().StringVar(&opts.Args, "args", "[]", "action arguments as a JSON array")
	cmd.Flags().BoolVar(&opts.Stdio, "stdio", false, "reach the host through a native bridge on stdin/stdout")

	return cmd
}

func probe(ctx context.Context, opts *ProbeOptions, cfg config.Config, logger *slog.Logger, out io.Writer) error {
	var args []any
	if err := json.Unmarshal([]byte(opts.Args), &args); err != nil {
		return fmt.Errorf("invalid --args JSON array: %w", err)
	}
	wire, err := codec.ByName(cfg.Client.Codec)
	if err != nil {
		return err
	}

	st, closeStore := openStore(cfg.Store, logger)
	defer closeStore()
	validator := newValidator(cfg.Origins, st, logger)

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var (
		f            comm.Frame
		validOrigins = append([]string{}, cfg.Origins.Additional...)
	)
	if opts.Stdio {
		bridge := native.NewBridge(os.Stdin, os.Stdout, logger)
		defer bridge.Close()
		appOrigin := cfg.Client.Origin
		if appOrigin == "" {
			appOrigin = ws.DefaultAppOrigin
		}
		w := frame.New(appOrigin)
		defer w.Close()
		w.SetNativeInterface(bridge)
		go func() {
			if err := bridge.Run(ctx); err != nil && ctx.Err() == nil {
				logger.Warn("native bridge stopped", "err", err)
			}
		}()
		f = w
	} else {
		wf, err := ws.Dial(ctx, cfg.Client.URL, ws.DialOptions{
			Codec:     wire,
			AuthToken: cfg.Client.AuthToken,
			Origin:    cfg.Client.Origin,
			Logger:    logger,
		})
		if err != nil {
			return err
		}
		defer wf.Close()
		validOrigins = append(validOrigins, wf.HostOrigin())
		f = wf
	}

	c := comm.New(f, comm.Options{
		Codec:             wire,
		Validator:         validator,
		Logger:            logger,
		HandshakeTimeout:  cfg.Client.HandshakeTimeout(),
		QueuePollInterval: cfg.Client.QueuePollInterval(),
	})
	defer c.Uninitialize()

	resp, err := c.Initialize(ctx, validOrigins)
	if err != nil {
		return fmt.Errorf("initialize: %w", err)
	}
	if err := printJSON(out, map[string]any{
		"frameContext":              resp.Context,
		"hostClientType":            resp.ClientType,
		"runtimeConfig":             resp.RuntimeConfig,
		"clientSupportedSDKVersion": resp.ClientSupportedSDKVersion,
	}); err != nil {
		return err
	}

	if opts.Action == "" {
		return nil
	}
	result, err := c.SendAsync(ctx, "", opts.Action, args...)
	if err != nil {
		return fmt.Errorf("send %s: %w", opts.Action, err)
	}
	return printJSON(out, result)
}

func newValidator(cfg config.OriginsConfig, st store.Store, logger *slog.Logger) *origin.Validator {
	var remote origin.ListSource
	if cfg.RemoteURL != "" {
		remote = &origin.RemoteList{
			URL:      cfg.RemoteURL,
			Fallback: cfg.Fallback,
			Timeout:  cfg.RemoteTimeout(),
			TTL:      cfg.CacheTTL(),
			Store:    st,
			Log:      logger,
		}
	}
	return origin.NewValidator(cfg.Builtin, remote, logger)
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
