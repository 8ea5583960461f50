package cli

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/Dancode-188/synckit/sdk/go/internal/engine"
)

// SyncOptions holds flags for the sync command.
type SyncOptions struct {
	*RootOptions
	Timeout time.Duration
}

// NewSyncCommand creates the sync command.
func NewSyncCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &SyncOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "sync",
		Short: "Drain the offline queue",
		Long: `Connect to the server and replay every queued offline mutation for the
configured workspace, in original order.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSync(cmd, opts)
		},
	}

	cmd.Flags().DurationVar(&opts.Timeout, "timeout", 30*time.Second, "how long to wait for the connection and replay")

	return cmd
}

func runSync(cmd *cobra.Command, opts *SyncOptions) error {
	cfg, err := loadConfig(opts.RootOptions)
	if err != nil {
		return err
	}
	logger := newLogger(opts.RootOptions, cfg)

	eng, st, err := newEngine(cfg, logger)
	if err != nil {
		return err
	}
	defer st.Close()
	defer eng.Close()

	backlog := eng.OfflineOperations()
	if backlog == 0 {
		fmt.Fprintln(cmd.OutOrStdout(), "offline queue is empty")
		return nil
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	ctx, cancel := context.WithTimeout(ctx, opts.Timeout)
	defer cancel()

	if err := eng.Connect(); err != nil {
		return err
	}
	if mode := waitSettled(eng, opts.Timeout); mode != engine.ModeCloud {
		return fmt.Errorf("could not reach server (mode %s), %d operations still queued", mode, backlog)
	}

	// The join already triggered a sweep; run one more so this command
	// returns only after the queue it saw is accounted for.
	if err := eng.SyncOfflineOperations(ctx); err != nil {
		return err
	}

	fmt.Fprintf(cmd.OutOrStdout(), "synced %d offline operations\n", backlog-eng.OfflineOperations())
	return nil
}
