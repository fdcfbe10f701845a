package cli

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/driftsync/driftsync/internal/engine"
	"github.com/driftsync/driftsync/internal/identity"
	"github.com/driftsync/driftsync/internal/logging"
	"github.com/driftsync/driftsync/internal/store"
)

// ApplyOptions holds flags for the apply command.
type ApplyOptions struct {
	*RootOptions
	EventFile      string
	IdempotencyKey string
	Kind           string
	Title          string
	Description    string
	Status         string
	titleSet       bool
	descriptionSet bool
}

// eventFile is the JSON wire form accepted by --event.
type eventFile struct {
	IdempotencyKey string     `json:"idempotency_key"`
	Source         string     `json:"source"`
	VendorKey      string     `json:"vendor_key"`
	Kind           string     `json:"kind"`
	Title          *string    `json:"title"`
	Description    *string    `json:"description"`
	Status         *string    `json:"status"`
	OccurredAt     *time.Time `json:"occurred_at"`
}

// NewApplyCommand creates the apply command.
func NewApplyCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ApplyOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "apply <source-system> <vendor-key>",
		Short: "Apply one inbound event to the reconciler",
		Long: `Apply a single inbound event synchronously and print the resulting
snapshot and fingerprint.

Field flags build the event; alternatively --event reads the whole event
from a JSON file (then positional args are not used).

Example:
  driftsync apply glpi:v11 123 --title "Disk full" --status NEW
  driftsync apply --event ./event.json`,
		Args:          cobra.RangeArgs(0, 2),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			opts.titleSet = cmd.Flags().Changed("title")
			opts.descriptionSet = cmd.Flags().Changed("description")
			return applyEvent(opts, args, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.EventFile, "event", "", "read the event from a JSON file")
	cmd.Flags().StringVar(&opts.IdempotencyKey, "idempotency-key", "", "event idempotency key (default: generated)")
	cmd.Flags().StringVar(&opts.Kind, "kind", "incident.observed", "event kind")
	cmd.Flags().StringVar(&opts.Title, "title", "", "incident title")
	cmd.Flags().StringVar(&opts.Description, "description", "", "incident description")
	cmd.Flags().StringVar(&opts.Status, "status", "", "incident status (NEW|ASSIGNED|WAITING|READY_FOR_VALIDATION|RESOLVED|CLOSED)")

	return cmd
}

func applyEvent(opts *ApplyOptions, args []string, cmd *cobra.Command) error {
	ev, err := buildEvent(opts, args)
	if err != nil {
		return WrapExitError(ExitCommandError, "invalid event", err)
	}

	log := logging.Init(opts.Verbose, "")

	st, err := store.Open(opts.Database)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to open database", err)
	}
	defer st.Close()

	rec := engine.New(st, st, st, st, engine.WithLogger(log))
	if err := rec.Handle(cmd.Context(), ev); err != nil {
		return WrapExitError(ExitFailure, "reconcile failed", err)
	}

	snap, fp, err := st.Get(cmd.Context(), ev.IncidentKey.String())
	if err != nil {
		return WrapExitError(ExitFailure, "failed to read back snapshot", err)
	}
	return printSnapshot(cmd, opts.Format, ev.IncidentKey.String(), snap, fp)
}

// buildEvent assembles the inbound event from --event or from flags.
func buildEvent(opts *ApplyOptions, args []string) (engine.InboundEvent, error) {
	if opts.EventFile != "" {
		data, err := os.ReadFile(opts.EventFile)
		if err != nil {
			return engine.InboundEvent{}, err
		}
		var ef eventFile
		if err := json.Unmarshal(data, &ef); err != nil {
			return engine.InboundEvent{}, fmt.Errorf("decode event file: %w", err)
		}
		return eventFromWire(ef)
	}

	if len(args) != 2 {
		return engine.InboundEvent{}, fmt.Errorf("expected <source-system> <vendor-key> arguments (or --event)")
	}
	ef := eventFile{
		IdempotencyKey: opts.IdempotencyKey,
		Source:         args[0],
		VendorKey:      args[1],
		Kind:           opts.Kind,
	}
	if opts.titleSet {
		ef.Title = &opts.Title
	}
	if opts.descriptionSet {
		ef.Description = &opts.Description
	}
	if opts.Status != "" {
		ef.Status = &opts.Status
	}
	return eventFromWire(ef)
}

func eventFromWire(ef eventFile) (engine.InboundEvent, error) {
	if ef.Source == "" || ef.VendorKey == "" {
		return engine.InboundEvent{}, fmt.Errorf("source and vendor_key are required")
	}

	ev := engine.InboundEvent{
		IdempotencyKey: ef.IdempotencyKey,
		Source:         identity.SystemID(ef.Source),
		Kind:           ef.Kind,
		IncidentKey: identity.IncidentKey{
			System:    identity.SystemID(ef.Source),
			VendorKey: ef.VendorKey,
		},
		Title:       ef.Title,
		Description: ef.Description,
		OccurredAt:  time.Now(),
	}
	if ef.OccurredAt != nil {
		ev.OccurredAt = *ef.OccurredAt
	}
	if ev.IdempotencyKey == "" {
		ev.IdempotencyKey = uuid.Must(uuid.NewV7()).String()
	}
	if ev.Kind == "" {
		ev.Kind = "incident.observed"
	}
	if ef.Status != nil {
		status, err := identity.ParseStatus(*ef.Status)
		if err != nil {
			return engine.InboundEvent{}, err
		}
		ev.Status = &status
	}
	return ev, nil
}
