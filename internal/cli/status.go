package cli

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"
)

// StatusOptions holds flags for the status command.
type StatusOptions struct {
	*RootOptions
	Timeout time.Duration
	Offline bool
}

// NewStatusCommand creates the status command.
func NewStatusCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &StatusOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show sync state",
		Long: `Show the current storage mode, workspace, offline backlog and active
sessions. By default a connection attempt is made first so the reported
mode reflects actual server reachability; --offline skips it.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runStatus(cmd, opts)
		},
	}

	cmd.Flags().DurationVar(&opts.Timeout, "timeout", 10*time.Second, "how long to probe the server")
	cmd.Flags().BoolVar(&opts.Offline, "offline", false, "report local state without contacting the server")

	return cmd
}

func runStatus(cmd *cobra.Command, opts *StatusOptions) error {
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

	if !opts.Offline && cfg.WorkspaceID != "" {
		if err := eng.Connect(); err != nil {
			return err
		}
		waitSettled(eng, opts.Timeout)
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "mode:      %s\n", eng.Mode())
	fmt.Fprintf(out, "workspace: %s\n", orNone(eng.WorkspaceID()))
	fmt.Fprintf(out, "client:    %s\n", orNone(eng.ClientID()))
	fmt.Fprintf(out, "queued:    %d offline operations\n", eng.OfflineOperations())

	if last := eng.LastSync(); !last.IsZero() {
		fmt.Fprintf(out, "last sync: %s\n", last.Format(time.RFC3339))
	}

	sessions := eng.Sessions()
	if len(sessions) > 0 {
		fmt.Fprintln(out, "sessions:")
		for _, p := range sessions {
			marker := " "
			if p.IsLocal {
				marker = "*"
			}
			fmt.Fprintf(out, "  %s %s (%s)\n", marker, p.Label, p.SessionID)
		}
	}
	return nil
}

func orNone(s string) string {
	if s == "" {
		return "(none)"
	}
	return s
}
