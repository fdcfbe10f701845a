package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/driftsync/driftsync/internal/store"
)

// OutboxOptions holds flags for the outbox command.
type OutboxOptions struct {
	*RootOptions
	Limit    int
	Dispatch bool
}

// NewOutboxCommand creates the outbox command.
func NewOutboxCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &OutboxOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "outbox",
		Short: "List pending mirror commands",
		Long: `List mirror commands awaiting dispatch.

With --dispatch, each listed entry is marked dispatched after printing -
useful when an external transport consumes the printed batch.`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			st, err := store.Open(opts.Database)
			if err != nil {
				return WrapExitError(ExitCommandError, "failed to open database", err)
			}
			defer st.Close()

			entries, err := st.Pending(cmd.Context(), opts.Limit)
			if err != nil {
				return WrapExitError(ExitFailure, "failed to read outbox", err)
			}

			if opts.Format == "json" {
				if err := writeJSON(cmd.OutOrStdout(), entries); err != nil {
					return err
				}
			} else {
				for _, e := range entries {
					fmt.Fprintf(cmd.OutOrStdout(), "%d\t%s\t%s\t%s\tstatus=%s\n",
						e.ID, e.Command.TargetSystem, e.Command.Action, e.Command.Payload.TargetKey, e.Command.Payload.Status)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%d pending\n", len(entries))
			}

			if opts.Dispatch {
				for _, e := range entries {
					if err := st.MarkDispatched(cmd.Context(), e.ID); err != nil {
						return WrapExitError(ExitFailure, "failed to mark dispatched", err)
					}
				}
			}
			return nil
		},
	}

	cmd.Flags().IntVar(&opts.Limit, "limit", 0, "max entries to list (0: all)")
	cmd.Flags().BoolVar(&opts.Dispatch, "dispatch", false, "mark listed entries as dispatched")

	return cmd
}
