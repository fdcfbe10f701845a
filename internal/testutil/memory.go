// Package testutil provides in-memory implementations of the engine ports
// and deterministic clocks for tests. All fakes are safe for concurrent use.
package testutil

import (
	"context"
	"sync"

	"github.com/driftsync/driftsync/internal/engine"
	"github.com/driftsync/driftsync/internal/identity"
	"github.com/driftsync/driftsync/internal/snapshot"
)

// MemorySnapshots is an in-memory engine.SnapshotRepository.
type MemorySnapshots struct {
	mu           sync.Mutex
	snaps        map[string]snapshot.Incident
	fingerprints map[string]string

	// UpsertCalls counts writes, for asserting that no-op events persist nothing.
	UpsertCalls int

	// FailUpsert, when set, is returned by Upsert to simulate a store outage.
	FailUpsert error
}

// NewMemorySnapshots creates an empty repository.
func NewMemorySnapshots() *MemorySnapshots {
	return &MemorySnapshots{
		snaps:        make(map[string]snapshot.Incident),
		fingerprints: make(map[string]string),
	}
}

func (m *MemorySnapshots) Get(_ context.Context, key string) (*snapshot.Incident, string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	snap, ok := m.snaps[key]
	if !ok {
		return nil, "", nil
	}
	cp := snap
	return &cp, m.fingerprints[key], nil
}

func (m *MemorySnapshots) Upsert(_ context.Context, snap snapshot.Incident, fingerprint string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.UpsertCalls++
	if m.FailUpsert != nil {
		return m.FailUpsert
	}
	m.snaps[snap.Key] = snap
	m.fingerprints[snap.Key] = fingerprint
	return nil
}

// MemoryIdem is an in-memory engine.IdempotencyStore.
type MemoryIdem struct {
	mu   sync.Mutex
	keys map[string]struct{}
}

// NewMemoryIdem creates an empty idempotency store.
func NewMemoryIdem() *MemoryIdem {
	return &MemoryIdem{keys: make(map[string]struct{})}
}

func (m *MemoryIdem) Seen(_ context.Context, key string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.keys[key]
	return ok, nil
}

func (m *MemoryIdem) Mark(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.keys[key] = struct{}{}
	return nil
}

// MemoryBindings is an in-memory engine.BindingDirectory.
type MemoryBindings struct {
	mu      sync.Mutex
	targets map[string][]engine.Binding
}

// NewMemoryBindings creates an empty directory.
func NewMemoryBindings() *MemoryBindings {
	return &MemoryBindings{targets: make(map[string][]engine.Binding)}
}

// Add registers a binding under its origin key.
func (m *MemoryBindings) Add(b engine.Binding) {
	m.mu.Lock()
	defer m.mu.Unlock()
	origin := b.ID.Origin.String()
	m.targets[origin] = append(m.targets[origin], b)
}

func (m *MemoryBindings) TargetsFor(_ context.Context, key identity.IncidentKey) ([]engine.Binding, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	bs := m.targets[key.String()]
	out := make([]engine.Binding, len(bs))
	copy(out, bs)
	return out, nil
}

// MemoryOutbox is an in-memory engine.Outbox recording every batch.
type MemoryOutbox struct {
	mu      sync.Mutex
	batches [][]engine.MirrorCommand

	// FailEnqueue, when set, is returned by Enqueue.
	FailEnqueue error
}

// NewMemoryOutbox creates an empty outbox.
func NewMemoryOutbox() *MemoryOutbox {
	return &MemoryOutbox{}
}

func (m *MemoryOutbox) Enqueue(_ context.Context, cmds []engine.MirrorCommand) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.FailEnqueue != nil {
		return m.FailEnqueue
	}
	batch := make([]engine.MirrorCommand, len(cmds))
	copy(batch, cmds)
	m.batches = append(m.batches, batch)
	return nil
}

// Batches returns every enqueued batch in order.
func (m *MemoryOutbox) Batches() [][]engine.MirrorCommand {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([][]engine.MirrorCommand, len(m.batches))
	copy(out, m.batches)
	return out
}

// Commands returns all enqueued commands flattened in order.
func (m *MemoryOutbox) Commands() []engine.MirrorCommand {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []engine.MirrorCommand
	for _, b := range m.batches {
		out = append(out, b...)
	}
	return out
}
