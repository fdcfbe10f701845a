package store

import (
	"context"
	"testing"

	"github.com/driftsync/driftsync/internal/engine"
	"github.com/driftsync/driftsync/internal/identity"
)

// End-to-end over the real SQLite adapters: one store implementing all four
// ports, driven by the reconciler exactly as the service wires it.
func TestReconcileEndToEnd(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	if err := s.PutBinding(ctx, testBinding("glpi:sf")); err != nil {
		t.Fatalf("PutBinding() failed: %v", err)
	}

	rec := engine.New(s, s, s, s)

	status := identity.StatusNew
	ev := engine.InboundEvent{
		IdempotencyKey: "k1",
		Source:         "glpi:v11",
		Kind:           "incident.created",
		IncidentKey:    origin,
		Title:          ptr("Disk full"),
		Status:         &status,
	}
	if err := rec.Handle(ctx, ev); err != nil {
		t.Fatalf("Handle() failed: %v", err)
	}

	snap, fp, err := s.Get(ctx, "glpi:v11:123")
	if err != nil {
		t.Fatalf("Get() failed: %v", err)
	}
	if snap == nil || *snap.Title != "Disk full" || snap.Status != identity.StatusNew {
		t.Fatalf("snapshot not persisted: %+v", snap)
	}

	pending, err := s.Pending(ctx, 0)
	if err != nil {
		t.Fatalf("Pending() failed: %v", err)
	}
	if len(pending) != 1 {
		t.Fatalf("want 1 outbox entry, got %d", len(pending))
	}
	if pending[0].Command.IdempotencyKey != fp {
		t.Errorf("command idempotency key = %q, want fingerprint %q",
			pending[0].Command.IdempotencyKey, fp)
	}

	// Redelivery: nothing new anywhere.
	if err := rec.Handle(ctx, ev); err != nil {
		t.Fatalf("redelivered Handle() failed: %v", err)
	}
	pending, err = s.Pending(ctx, 0)
	if err != nil {
		t.Fatalf("Pending() failed: %v", err)
	}
	if len(pending) != 1 {
		t.Errorf("redelivery enqueued again: %d entries", len(pending))
	}

	// Status advance under a fresh idempotency key: new fingerprint, new command.
	assigned := identity.StatusAssigned
	ev2 := ev
	ev2.IdempotencyKey = "k2"
	ev2.Status = &assigned
	if err := rec.Handle(ctx, ev2); err != nil {
		t.Fatalf("Handle() failed: %v", err)
	}

	snap, fp2, err := s.Get(ctx, "glpi:v11:123")
	if err != nil {
		t.Fatalf("Get() failed: %v", err)
	}
	if snap.Status != identity.StatusAssigned {
		t.Errorf("status = %s, want ASSIGNED", snap.Status)
	}
	if fp2 == fp {
		t.Error("fingerprint did not advance with the status")
	}
	pending, err = s.Pending(ctx, 0)
	if err != nil {
		t.Fatalf("Pending() failed: %v", err)
	}
	if len(pending) != 2 {
		t.Errorf("want 2 outbox entries, got %d", len(pending))
	}
}
