package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/driftsync/driftsync/internal/engine"
	"github.com/driftsync/driftsync/internal/identity"
	"github.com/driftsync/driftsync/internal/store"
)

// BindOptions holds flags for the bind command.
type BindOptions struct {
	*RootOptions
	TargetKey string
}

// NewBindCommand creates the bind command.
func NewBindCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &BindOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "bind <origin-system> <vendor-key> <target-system>",
		Short: "Create or update a mirroring binding",
		Long: `Create a directed mirroring binding from one system's incident to a
target system. Until the target's own vendor key is known (--target-key),
mirror commands fall back to the origin's vendor key.

Example:
  driftsync bind glpi:v11 123 glpi:sf
  driftsync bind glpi:v11 123 glpi:sf --target-key SF-0042`,
		Args:          cobra.ExactArgs(3),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			st, err := store.Open(opts.Database)
			if err != nil {
				return WrapExitError(ExitCommandError, "failed to open database", err)
			}
			defer st.Close()

			b := engine.Binding{
				ID: identity.BindingID{
					Origin: identity.IncidentKey{
						System:    identity.SystemID(args[0]),
						VendorKey: args[1],
					},
					TargetSystem: identity.SystemID(args[2]),
				},
				TargetKey: opts.TargetKey,
			}
			if err := st.PutBinding(cmd.Context(), b); err != nil {
				return WrapExitError(ExitFailure, "failed to write binding", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "bound %s\n", b.ID)
			return nil
		},
	}

	cmd.Flags().StringVar(&opts.TargetKey, "target-key", "", "vendor key on the target system, once known")

	return cmd
}
