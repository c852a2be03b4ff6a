// Package cli wires the framelink commands.
package cli

import (
	"io"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/HsiangNianian/framelink/internal/config"
	"github.com/HsiangNianian/framelink/internal/store"
)

// RootOptions holds global flags for all commands.
type RootOptions struct {
	ConfigPath string
	Verbose    bool
}

// NewRootCommand creates the root command.
func NewRootCommand() *cobra.Command {
	opts := &RootOptions{}

	cmd := &cobra.Command{
		Use:   "framelink",
		Short: "Host and app ends of the frame messaging protocol",
		Long: `framelink runs a websocket host that embedded apps connect to, and a
probe that connects to a host as an app, runs the initialize handshake and
sends actions.`,
		SilenceUsage: true,
	}

	cmd.PersistentFlags().StringVarP(&opts.ConfigPath, "config", "c", "", "config file (.json, .hujson, .yaml)")
	cmd.PersistentFlags().BoolVarP(&opts.Verbose, "verbose", "v", false, "debug logging")

	cmd.AddCommand(NewServeCommand(opts))
	cmd.AddCommand(NewProbeCommand(opts))

	return cmd
}

// load reads the config and builds the logger every command uses.
func (o *RootOptions) load(logOut io.Writer) (config.Config, *slog.Logger, error) {
	cfg, err := config.Load(o.ConfigPath)
	if err != nil {
		return config.Config{}, nil, err
	}
	logger, err := cfg.Log.NewLogger(logOut, o.Verbose)
	if err != nil {
		return config.Config{}, nil, err
	}
	return cfg, logger, nil
}

func openStore(cfg config.StoreConfig, logger *slog.Logger) (store.Store, func()) {
	if cfg.RedisAddr != "" {
		st := store.NewRedisStore(cfg.RedisAddr)
		logger.Info("use redis store", "addr", cfg.RedisAddr)
		return st, func() { _ = st.Close() }
	}
	logger.Info("use memory store")
	return store.NewMemoryStore(), func() {}
}
