// Package engine contains the reconciliation core: the inbound event and
// mirror command types, the ports the core consumes, and the Reconciler that
// turns one inbound event into at most one snapshot write and one batch of
// mirror commands.
package engine

import (
	"time"

	"github.com/driftsync/driftsync/internal/identity"
)

// InboundEvent is one observed change to an incident on a source system,
// produced by an ingestion collaborator (poller or webhook receiver).
//
// Optional fields are pointers: nil means the source did not report the
// field, a pointer to an empty string is a deliberate clear.
type InboundEvent struct {
	IdempotencyKey string
	Source         identity.SystemID
	Kind           string // "incident.created" | "status.changed" | ...
	IncidentKey    identity.IncidentKey
	Status         *identity.Status
	Title          *string
	Description    *string
	OccurredAt     time.Time
}

// Action is the operation a mirror command asks the target system to perform.
type Action string

const (
	// ActionUpsertIncident creates or updates the incident on the target.
	ActionUpsertIncident Action = "upsert_incident"
)

// Payload carries the mirrored incident fields for one command.
// Typed rather than an open map so the wire shape is statically checked.
type Payload struct {
	TargetKey   string  `json:"target_key"`
	Title       *string `json:"title"`
	Description *string `json:"description"`
	Status      string  `json:"status"`
}

// MirrorCommand instructs a target system to replicate the current snapshot.
//
// IdempotencyKey is the NEW snapshot's fingerprint, not the inbound event's
// key: two different inbound events converging to the same resulting state
// produce a command the downstream system can itself deduplicate.
type MirrorCommand struct {
	BindingID      string  `json:"binding_id"`
	TargetSystem   string  `json:"target_system"`
	Action         Action  `json:"action"`
	Payload        Payload `json:"payload"`
	IdempotencyKey string  `json:"idempotency_key"`
}
