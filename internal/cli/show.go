package cli

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/driftsync/driftsync/internal/snapshot"
	"github.com/driftsync/driftsync/internal/store"
)

// NewShowCommand creates the show command.
func NewShowCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "show <incident-key>",
		Short: "Show the reconciled snapshot for an incident",
		Long: `Show the current snapshot and fingerprint for an incident key.

The incident key is the composite "{system}:{vendor_key}" string, e.g.
"glpi:v11:123".`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			st, err := store.Open(rootOpts.Database)
			if err != nil {
				return WrapExitError(ExitCommandError, "failed to open database", err)
			}
			defer st.Close()

			snap, fp, err := st.Get(cmd.Context(), args[0])
			if err != nil {
				return WrapExitError(ExitFailure, "failed to load snapshot", err)
			}
			return printSnapshot(cmd, rootOpts.Format, args[0], snap, fp)
		},
	}
	return cmd
}

// snapshotView is the JSON rendering of a snapshot for CLI output.
type snapshotView struct {
	Key         string  `json:"key"`
	Title       *string `json:"title"`
	Description *string `json:"description"`
	Status      string  `json:"status"`
	UpdatedAt   string  `json:"updated_at"`
	Fingerprint string  `json:"fingerprint"`
}

func printSnapshot(cmd *cobra.Command, format, key string, snap *snapshot.Incident, fp string) error {
	out := cmd.OutOrStdout()
	if snap == nil {
		if format == "json" {
			return writeJSON(out, map[string]any{"key": key, "snapshot": nil})
		}
		fmt.Fprintf(out, "no snapshot for %s\n", key)
		return nil
	}

	if format == "json" {
		return writeJSON(out, snapshotView{
			Key:         snap.Key,
			Title:       snap.Title,
			Description: snap.Description,
			Status:      snap.Status.String(),
			UpdatedAt:   snap.UpdatedAt.UTC().Format(time.RFC3339Nano),
			Fingerprint: fp,
		})
	}

	fmt.Fprintf(out, "key:         %s\n", snap.Key)
	fmt.Fprintf(out, "title:       %s\n", strOrDash(snap.Title))
	fmt.Fprintf(out, "description: %s\n", strOrDash(snap.Description))
	fmt.Fprintf(out, "status:      %s\n", snap.Status)
	fmt.Fprintf(out, "updated_at:  %s\n", snap.UpdatedAt.UTC().Format(time.RFC3339Nano))
	fmt.Fprintf(out, "fingerprint: %s\n", fp)
	return nil
}

func strOrDash(s *string) string {
	if s == nil {
		return "-"
	}
	return *s
}
