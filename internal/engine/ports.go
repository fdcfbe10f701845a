package engine

import (
	"context"
	"time"

	"github.com/driftsync/driftsync/internal/identity"
	"github.com/driftsync/driftsync/internal/snapshot"
)

// Binding is a directed mirroring relationship from one system's view of an
// incident to another system.
//
// Bindings are owned and persisted by the binding collaborator; the core only
// reads them. TargetKey is the vendor key of the incident on the target
// system once known - empty before the first successful mirror, in which case
// the origin's vendor key is reused as a fallback.
type Binding struct {
	ID            identity.BindingID
	TargetKey     string
	Version       int
	LastSuccessAt *time.Time
}

// SnapshotRepository stores the (snapshot, fingerprint) pair per incident key.
type SnapshotRepository interface {
	// Get loads the current snapshot and fingerprint for key.
	// Returns (nil, "", nil) when the incident has never been seen.
	Get(ctx context.Context, key string) (*snapshot.Incident, string, error)

	// Upsert writes the pair atomically, replacing any prior state.
	Upsert(ctx context.Context, snap snapshot.Incident, fingerprint string) error
}

// IdempotencyStore deduplicates inbound events by idempotency key.
//
// After Mark(k), all subsequent Seen(k) calls return true for the lifetime
// of the store. Mark is idempotent: marking twice is a no-op, not an error.
type IdempotencyStore interface {
	Seen(ctx context.Context, key string) (bool, error)
	Mark(ctx context.Context, key string) error
}

// BindingDirectory resolves which systems mirror an incident.
type BindingDirectory interface {
	// TargetsFor returns all bindings whose origin is key, in a
	// deterministic order. An unbound incident yields an empty slice.
	TargetsFor(ctx context.Context, key identity.IncidentKey) ([]Binding, error)
}

// Outbox receives mirror command batches for asynchronous delivery.
// The core never calls Enqueue with an empty batch.
type Outbox interface {
	Enqueue(ctx context.Context, cmds []MirrorCommand) error
}
