package engine

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/driftsync/driftsync/internal/snapshot"
)

// Reconciler is the reconciliation transaction: it turns one inbound event
// into at most one snapshot write and one batch of mirror commands.
//
// Handle is safe for concurrent invocation. Events for different incident
// keys proceed in parallel; events for the same key serialize on a per-key
// lock held across the load -> merge -> persist -> enqueue sequence.
//
// INVARIANTS:
//   - idempotency mark precedes any state mutation
//   - persistence precedes outbox enqueue; a crash in between risks only a
//     missed mirror, never a mirrored-but-unpersisted state
//   - an unchanged fingerprint short-circuits with no write and no commands
//   - the originating system never receives a mirror of its own event
type Reconciler struct {
	snapshots SnapshotRepository
	idem      IdempotencyStore
	bindings  BindingDirectory
	outbox    Outbox

	now   func() time.Time
	locks *keyLock
	log   zerolog.Logger
}

// Option configures a Reconciler.
type Option func(*Reconciler)

// WithClock overrides the merge timestamp source. Used by tests to pin
// UpdatedAt; production uses time.Now.
func WithClock(now func() time.Time) Option {
	return func(r *Reconciler) {
		r.now = now
	}
}

// WithLogger attaches a logger. The default discards everything.
func WithLogger(log zerolog.Logger) Option {
	return func(r *Reconciler) {
		r.log = log
	}
}

// New creates a Reconciler over the four ports.
func New(snapshots SnapshotRepository, idem IdempotencyStore, bindings BindingDirectory, outbox Outbox, opts ...Option) *Reconciler {
	r := &Reconciler{
		snapshots: snapshots,
		idem:      idem,
		bindings:  bindings,
		outbox:    outbox,
		now:       time.Now,
		locks:     newKeyLock(),
		log:       zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Handle processes one inbound event to completion.
//
// A duplicate idempotency key or an unchanged fingerprint returns nil with no
// side effects. Port failures surface as *ReconcileError; Handle never
// retries internally.
func (r *Reconciler) Handle(ctx context.Context, ev InboundEvent) error {
	seen, err := r.idem.Seen(ctx, ev.IdempotencyKey)
	if err != nil {
		return repositoryError("idempotency.seen", "", err)
	}
	if seen {
		r.log.Debug().Str("idempotency_key", ev.IdempotencyKey).Msg("duplicate event dropped")
		return nil
	}
	// Mark before mutating state: a crash mid-handling drops the event on
	// redelivery instead of repeating side effects already committed.
	if err := r.idem.Mark(ctx, ev.IdempotencyKey); err != nil {
		return repositoryError("idempotency.mark", "", err)
	}

	key := ev.IncidentKey.String()
	r.locks.Lock(key)
	defer r.locks.Unlock(key)

	prior, priorFP, err := r.snapshots.Get(ctx, key)
	if err != nil {
		return repositoryError("snapshots.get", key, err)
	}

	next := snapshot.Reduce(prior, key, snapshot.Update{
		Title:       ev.Title,
		Description: ev.Description,
		Status:      ev.Status,
	}, r.now())

	fp, err := snapshot.Fingerprint(next)
	if err != nil {
		return repositoryError("snapshots.fingerprint", key, err)
	}
	if fp == priorFP {
		// Redundant update: same canonical content, nothing to persist or
		// mirror. This is what makes replays convergent.
		r.log.Debug().Str("incident", key).Str("fingerprint", fp).Msg("no content change")
		return nil
	}

	if err := r.snapshots.Upsert(ctx, next, fp); err != nil {
		return repositoryError("snapshots.upsert", key, err)
	}
	r.log.Info().
		Str("incident", key).
		Str("status", next.Status.String()).
		Str("fingerprint", fp).
		Msg("snapshot advanced")

	targets, err := r.bindings.TargetsFor(ctx, ev.IncidentKey)
	if err != nil {
		return repositoryError("bindings.targets_for", key, err)
	}

	var cmds []MirrorCommand
	for _, b := range targets {
		if b.ID.TargetSystem == ev.Source {
			// Loop prevention: never mirror an event back to its origin.
			continue
		}
		targetKey := b.TargetKey
		if targetKey == "" {
			targetKey = ev.IncidentKey.VendorKey
		}
		cmds = append(cmds, MirrorCommand{
			BindingID:    b.ID.String(),
			TargetSystem: b.ID.TargetSystem.String(),
			Action:       ActionUpsertIncident,
			Payload: Payload{
				TargetKey:   targetKey,
				Title:       next.Title,
				Description: next.Description,
				Status:      next.Status.String(),
			},
			IdempotencyKey: fp,
		})
	}
	if len(cmds) == 0 {
		return nil
	}

	if err := r.outbox.Enqueue(ctx, cmds); err != nil {
		return outboxError("outbox.enqueue", key, err)
	}
	r.log.Info().Str("incident", key).Int("commands", len(cmds)).Msg("mirror commands enqueued")
	return nil
}
