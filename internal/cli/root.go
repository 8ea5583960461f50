// Package cli wires the synckit command line tool: a thin operational
// surface over the sync engine for pushing updates, draining the offline
// queue and inspecting client state.
package cli

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"github.com/Dancode-188/synckit/sdk/go/internal/config"
	"github.com/Dancode-188/synckit/sdk/go/internal/engine"
	"github.com/Dancode-188/synckit/sdk/go/internal/store"
)

// RootOptions holds global flags for all commands.
type RootOptions struct {
	ConfigPath string
	Verbose    bool
}

// NewRootCommand creates the root command for the synckit CLI.
func NewRootCommand() *cobra.Command {
	opts := &RootOptions{}

	cmd := &cobra.Command{
		Use:           "synckit",
		Short:         "SyncKit sync client",
		Long:          "Client for SyncKit servers: push document updates, drain the offline queue and inspect sync state.",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.PersistentFlags().StringVar(&opts.ConfigPath, "config", "", "path to YAML config (default: environment only)")
	cmd.PersistentFlags().BoolVarP(&opts.Verbose, "verbose", "v", false, "verbose output")

	cmd.AddCommand(NewPushCommand(opts))
	cmd.AddCommand(NewSyncCommand(opts))
	cmd.AddCommand(NewStatusCommand(opts))
	cmd.AddCommand(NewTokenCommand(opts))

	return cmd
}

func loadConfig(opts *RootOptions) (*config.Config, error) {
	if opts.ConfigPath != "" {
		return config.LoadFile(opts.ConfigPath)
	}
	return config.Load(), nil
}

func newLogger(opts *RootOptions, cfg *config.Config) *slog.Logger {
	level := slog.LevelWarn
	if opts.Verbose {
		level = slog.LevelDebug
	} else if cfg.LogLevel == "debug" {
		level = slog.LevelDebug
	} else if cfg.LogLevel == "info" {
		level = slog.LevelInfo
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
}

// newEngine opens the local store and builds an engine from config. The
// caller owns both and must close the engine before the store.
func newEngine(cfg *config.Config, logger *slog.Logger) (*engine.Engine, *store.Store, error) {
	if err := os.MkdirAll(filepath.Dir(cfg.StatePath), 0o755); err != nil {
		return nil, nil, fmt.Errorf("create state dir: %w", err)
	}

	st, err := store.Open(cfg.StatePath, logger)
	if err != nil {
		return nil, nil, err
	}

	eng, err := engine.New(engine.Options{
		ServerURL:     cfg.ServerURL,
		WorkspaceID:   cfg.WorkspaceID,
		SpaceType:     cfg.SpaceType,
		Token:         cfg.Token,
		ClientVersion: cfg.ClientVersion,
		Store:         st,
		Logger:        logger,
	})
	if err != nil {
		st.Close()
		return nil, nil, err
	}
	return eng, st, nil
}

// waitSettled blocks until the engine leaves the detecting state or the
// timeout passes, and returns the mode it settled in.
func waitSettled(eng *engine.Engine, timeout time.Duration) engine.Mode {
	modes := eng.Watch()
	deadline := time.After(timeout)
	mode := eng.Mode()
	for {
		if mode != engine.ModeDetecting {
			return mode
		}
		select {
		case mode = <-modes:
		case <-deadline:
			return eng.Mode()
		}
	}
}
