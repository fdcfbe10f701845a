package engine_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/driftsync/driftsync/internal/engine"
	"github.com/driftsync/driftsync/internal/identity"
	"github.com/driftsync/driftsync/internal/snapshot"
	"github.com/driftsync/driftsync/internal/testutil"
)

var fixedNow = time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

type fixture struct {
	snaps    *testutil.MemorySnapshots
	idem     *testutil.MemoryIdem
	bindings *testutil.MemoryBindings
	outbox   *testutil.MemoryOutbox
	rec      *engine.Reconciler
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		snaps:    testutil.NewMemorySnapshots(),
		idem:     testutil.NewMemoryIdem(),
		bindings: testutil.NewMemoryBindings(),
		outbox:   testutil.NewMemoryOutbox(),
	}
	f.rec = engine.New(f.snaps, f.idem, f.bindings, f.outbox,
		engine.WithClock(testutil.FixedClock(fixedNow)))
	return f
}

func ptr(s string) *string { return &s }

func statusPtr(s identity.Status) *identity.Status { return &s }

var originKey = identity.IncidentKey{System: "glpi:v11", VendorKey: "123"}

func bindingTo(target identity.SystemID) engine.Binding {
	return engine.Binding{
		ID: identity.BindingID{Origin: originKey, TargetSystem: target},
	}
}

func event(idemKey string, mutate func(*engine.InboundEvent)) engine.InboundEvent {
	ev := engine.InboundEvent{
		IdempotencyKey: idemKey,
		Source:         "glpi:v11",
		Kind:           "incident.observed",
		IncidentKey:    originKey,
		OccurredAt:     fixedNow,
	}
	if mutate != nil {
		mutate(&ev)
	}
	return ev
}

func TestHandle_FirstEventPersistsAndMirrors(t *testing.T) {
	f := newFixture(t)
	f.bindings.Add(bindingTo("glpi:sf"))

	ev := event("k1", func(ev *engine.InboundEvent) {
		ev.Title = ptr("Disk full")
		ev.Status = statusPtr(identity.StatusNew)
	})
	require.NoError(t, f.rec.Handle(context.Background(), ev))

	snap, fp, err := f.snaps.Get(context.Background(), "glpi:v11:123")
	require.NoError(t, err)
	require.NotNil(t, snap)
	assert.Equal(t, "glpi:v11:123", snap.Key)
	assert.Equal(t, "Disk full", *snap.Title)
	assert.Equal(t, identity.StatusNew, snap.Status)
	assert.NotEmpty(t, fp)

	cmds := f.outbox.Commands()
	require.Len(t, cmds, 1)
	assert.Equal(t, "glpi:sf", cmds[0].TargetSystem)
	assert.Equal(t, engine.ActionUpsertIncident, cmds[0].Action)
	assert.Equal(t, "NEW", cmds[0].Payload.Status)
	assert.Equal(t, "123", cmds[0].Payload.TargetKey, "origin vendor key reused before first successful mirror")
	assert.Equal(t, fp, cmds[0].IdempotencyKey, "command dedup key is the new fingerprint")
}

func TestHandle_DuplicateIdempotencyKeyIsDropped(t *testing.T) {
	f := newFixture(t)
	f.bindings.Add(bindingTo("glpi:sf"))

	ev := event("k1", func(ev *engine.InboundEvent) {
		ev.Title = ptr("Disk full")
		ev.Status = statusPtr(identity.StatusNew)
	})
	require.NoError(t, f.rec.Handle(context.Background(), ev))

	upserts := f.snaps.UpsertCalls
	batches := len(f.outbox.Batches())

	// Redelivery of the same event: no persistence, no outbox call.
	require.NoError(t, f.rec.Handle(context.Background(), ev))
	assert.Equal(t, upserts, f.snaps.UpsertCalls)
	assert.Len(t, f.outbox.Batches(), batches)
}

func TestHandle_Idempotence(t *testing.T) {
	f := newFixture(t)
	f.bindings.Add(bindingTo("glpi:sf"))

	ev := event("k1", func(ev *engine.InboundEvent) {
		ev.Title = ptr("Disk full")
	})
	require.NoError(t, f.rec.Handle(context.Background(), ev))
	_, fpOnce, err := f.snaps.Get(context.Background(), "glpi:v11:123")
	require.NoError(t, err)

	require.NoError(t, f.rec.Handle(context.Background(), ev))
	_, fpTwice, err := f.snaps.Get(context.Background(), "glpi:v11:123")
	require.NoError(t, err)

	assert.Equal(t, fpOnce, fpTwice)
	assert.Len(t, f.outbox.Batches(), 1, "second call enqueues nothing")
}

func TestHandle_StatusAdvancesAndMirrors(t *testing.T) {
	f := newFixture(t)
	f.bindings.Add(bindingTo("glpi:sf"))

	require.NoError(t, f.rec.Handle(context.Background(), event("k1", func(ev *engine.InboundEvent) {
		ev.Title = ptr("Disk full")
		ev.Status = statusPtr(identity.StatusNew)
	})))
	require.NoError(t, f.rec.Handle(context.Background(), event("k2", func(ev *engine.InboundEvent) {
		ev.Status = statusPtr(identity.StatusAssigned)
	})))

	snap, _, err := f.snaps.Get(context.Background(), "glpi:v11:123")
	require.NoError(t, err)
	assert.Equal(t, identity.StatusAssigned, snap.Status)

	cmds := f.outbox.Commands()
	require.Len(t, cmds, 2)
	assert.Equal(t, "ASSIGNED", cmds[1].Payload.Status)
	assert.NotEqual(t, cmds[0].IdempotencyKey, cmds[1].IdempotencyKey)
}

func TestHandle_StatusRegressionIsNoOp(t *testing.T) {
	f := newFixture(t)
	f.bindings.Add(bindingTo("glpi:sf"))

	require.NoError(t, f.rec.Handle(context.Background(), event("k1", func(ev *engine.InboundEvent) {
		ev.Title = ptr("Disk full")
		ev.Status = statusPtr(identity.StatusNew)
	})))
	require.NoError(t, f.rec.Handle(context.Background(), event("k2", func(ev *engine.InboundEvent) {
		ev.Status = statusPtr(identity.StatusAssigned)
	})))

	upserts := f.snaps.UpsertCalls
	_, fpBefore, err := f.snaps.Get(context.Background(), "glpi:v11:123")
	require.NoError(t, err)

	// Regression attempt with no other field changes: same canonical
	// content, so no write and no mirror command.
	require.NoError(t, f.rec.Handle(context.Background(), event("k3", func(ev *engine.InboundEvent) {
		ev.Status = statusPtr(identity.StatusNew)
	})))

	snap, fpAfter, err := f.snaps.Get(context.Background(), "glpi:v11:123")
	require.NoError(t, err)
	assert.Equal(t, identity.StatusAssigned, snap.Status)
	assert.Equal(t, fpBefore, fpAfter)
	assert.Equal(t, upserts, f.snaps.UpsertCalls)
	assert.Len(t, f.outbox.Batches(), 2)
}

func TestHandle_NoSelfMirroring(t *testing.T) {
	f := newFixture(t)
	// The only binding points back at the event's source.
	f.bindings.Add(bindingTo("glpi:v11"))

	require.NoError(t, f.rec.Handle(context.Background(), event("k1", func(ev *engine.InboundEvent) {
		ev.Title = ptr("Disk full")
	})))

	assert.Empty(t, f.outbox.Batches(), "no outbox call for an empty command batch")
}

func TestHandle_SelfBindingExcludedOthersMirrored(t *testing.T) {
	f := newFixture(t)
	f.bindings.Add(bindingTo("glpi:sf"))
	f.bindings.Add(bindingTo("glpi:other"))

	// Event sourced from glpi:sf itself: the glpi:sf binding is excluded,
	// the other binding still receives a command.
	ev := event("k1", func(ev *engine.InboundEvent) {
		ev.Source = "glpi:sf"
		ev.Title = ptr("Disk full")
	})
	require.NoError(t, f.rec.Handle(context.Background(), ev))

	cmds := f.outbox.Commands()
	require.Len(t, cmds, 1)
	assert.Equal(t, "glpi:other", cmds[0].TargetSystem)
}

func TestHandle_BindingTargetKeyPreferred(t *testing.T) {
	f := newFixture(t)
	b := bindingTo("glpi:sf")
	b.TargetKey = "SF-0042"
	f.bindings.Add(b)

	require.NoError(t, f.rec.Handle(context.Background(), event("k1", func(ev *engine.InboundEvent) {
		ev.Title = ptr("Disk full")
	})))

	cmds := f.outbox.Commands()
	require.Len(t, cmds, 1)
	assert.Equal(t, "SF-0042", cmds[0].Payload.TargetKey)
}

func TestHandle_Convergence(t *testing.T) {
	// Two events applied in sequence converge to the same fingerprint as a
	// single event carrying the union of the second's fields over the first's.
	sequenced := newFixture(t)
	require.NoError(t, sequenced.rec.Handle(context.Background(), event("k1", func(ev *engine.InboundEvent) {
		ev.Title = ptr("Disk full")
		ev.Status = statusPtr(identity.StatusNew)
	})))
	require.NoError(t, sequenced.rec.Handle(context.Background(), event("k2", func(ev *engine.InboundEvent) {
		ev.Description = ptr("Root volume at 98%")
		ev.Status = statusPtr(identity.StatusAssigned)
	})))

	merged := newFixture(t)
	require.NoError(t, merged.rec.Handle(context.Background(), event("k3", func(ev *engine.InboundEvent) {
		ev.Title = ptr("Disk full")
		ev.Description = ptr("Root volume at 98%")
		ev.Status = statusPtr(identity.StatusAssigned)
	})))

	_, fpSequenced, err := sequenced.snaps.Get(context.Background(), "glpi:v11:123")
	require.NoError(t, err)
	_, fpMerged, err := merged.snaps.Get(context.Background(), "glpi:v11:123")
	require.NoError(t, err)
	assert.Equal(t, fpMerged, fpSequenced)
}

func TestHandle_RepositoryFailureSurfaces(t *testing.T) {
	f := newFixture(t)
	f.snaps.FailUpsert = errors.New("disk is sad")

	err := f.rec.Handle(context.Background(), event("k1", func(ev *engine.InboundEvent) {
		ev.Title = ptr("Disk full")
	}))
	require.Error(t, err)
	assert.True(t, engine.IsRepositoryError(err))
	assert.False(t, engine.IsOutboxError(err))

	var re *engine.ReconcileError
	require.ErrorAs(t, err, &re)
	assert.Equal(t, "snapshots.upsert", re.Op)
}

func TestHandle_OutboxFailureSurfaces(t *testing.T) {
	f := newFixture(t)
	f.bindings.Add(bindingTo("glpi:sf"))
	f.outbox.FailEnqueue = errors.New("broker down")

	err := f.rec.Handle(context.Background(), event("k1", func(ev *engine.InboundEvent) {
		ev.Title = ptr("Disk full")
	}))
	require.Error(t, err)
	assert.True(t, engine.IsOutboxError(err))

	// Persistence happened before the outbox failure: the snapshot is
	// committed even though the mirror was lost (at-most-once).
	snap, _, getErr := f.snaps.Get(context.Background(), "glpi:v11:123")
	require.NoError(t, getErr)
	assert.NotNil(t, snap)
}

func TestHandle_ConcurrentSameKeyLosesNoUpdate(t *testing.T) {
	f := newFixture(t)

	// Field-disjoint events for the same incident from many goroutines.
	// With per-key serialization every field must survive into the final
	// snapshot regardless of interleaving.
	events := []engine.InboundEvent{
		event("c1", func(ev *engine.InboundEvent) { ev.Title = ptr("T") }),
		event("c2", func(ev *engine.InboundEvent) { ev.Description = ptr("D") }),
		event("c3", func(ev *engine.InboundEvent) { ev.Status = statusPtr(identity.StatusAssigned) }),
	}

	var wg sync.WaitGroup
	for _, ev := range events {
		wg.Add(1)
		go func(ev engine.InboundEvent) {
			defer wg.Done()
			_ = f.rec.Handle(context.Background(), ev)
		}(ev)
	}
	wg.Wait()

	snap, _, err := f.snaps.Get(context.Background(), "glpi:v11:123")
	require.NoError(t, err)
	require.NotNil(t, snap)
	assert.Equal(t, "T", *snap.Title)
	assert.Equal(t, "D", *snap.Description)
	assert.Equal(t, identity.StatusAssigned, snap.Status)
}

func TestHandle_UpdatedAtComesFromClock(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.rec.Handle(context.Background(), event("k1", func(ev *engine.InboundEvent) {
		ev.Title = ptr("x")
	})))

	snap, _, err := f.snaps.Get(context.Background(), "glpi:v11:123")
	require.NoError(t, err)
	assert.Equal(t, fixedNow, snap.UpdatedAt)
}

// Reduce + Fingerprint compose deterministically regardless of how many
// times the pipeline runs over the same inputs.
func TestReduceFingerprint_Deterministic(t *testing.T) {
	update := snapshot.Update{Title: ptr("a"), Status: statusPtr(identity.StatusWaiting)}
	first := ""
	for i := 0; i < 5; i++ {
		snap := snapshot.Reduce(nil, "k", update, fixedNow)
		fp, err := snapshot.Fingerprint(snap)
		require.NoError(t, err)
		if i == 0 {
			first = fp
			continue
		}
		assert.Equal(t, first, fp)
	}
}
