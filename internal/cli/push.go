package cli

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
)

// PushOptions holds flags for the push command.
type PushOptions struct {
	*RootOptions
	Timeout time.Duration
}

// NewPushCommand creates the push command.
func NewPushCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &PushOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "push <doc-id> <update-file>",
		Short: "Push a document update",
		Long: `Push one encoded document update to the server with acknowledgment.

When the server is unreachable the update is queued durably and delivered
by a later sync.

Example:
  synckit push doc-123 ./update.bin
  synckit push doc-123 ./update.bin --timeout 10s`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runPush(cmd, opts, args[0], args[1])
		},
	}

	cmd.Flags().DurationVar(&opts.Timeout, "timeout", 30*time.Second, "how long to wait for delivery confirmation")

	return cmd
}

func runPush(cmd *cobra.Command, opts *PushOptions, docID, file string) error {
	update, err := os.ReadFile(file)
	if err != nil {
		return fmt.Errorf("read update file: %w", err)
	}

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

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	ctx, cancel := context.WithTimeout(ctx, opts.Timeout)
	defer cancel()

	if err := eng.Connect(); err != nil {
		return err
	}

	ts, err := eng.PushDocUpdate(ctx, docID, update)
	if err != nil {
		// The deadline fired but the mutation is already durable: report
		// that instead of failing outright.
		if errors.Is(err, context.DeadlineExceeded) && eng.OfflineOperations() > 0 {
			fmt.Fprintf(cmd.OutOrStdout(), "queued offline (%d pending); run 'synckit sync' when the server is reachable\n",
				eng.OfflineOperations())
			return nil
		}
		return err
	}

	fmt.Fprintf(cmd.OutOrStdout(), "synced %s at %s\n", docID, time.UnixMilli(ts).Format(time.RFC3339))
	return nil
}
