// Package scheduler drives ingestion: timer-driven polling per configured
// host, normalization of raw observations into inbound events, and handoff
// into the engine's queue. It is a collaborator of the reconciliation core,
// not part of it.
package scheduler

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/driftsync/driftsync/internal/config"
)

// Observation is one raw incident change as reported by a source system,
// before status normalization and validation.
type Observation struct {
	// IdempotencyKey identifies the observation for dedup. Empty when the
	// source cannot supply one; the scheduler synthesizes a token then.
	IdempotencyKey string `json:"idempotency_key"`

	VendorKey   string    `json:"vendor_key"`
	Kind        string    `json:"kind"`
	Title       *string   `json:"title"`
	Description *string   `json:"description"`
	Status      *string   `json:"status"`
	OccurredAt  time.Time `json:"occurred_at"`
}

// EventSource fetches pending observations for one host. Implementations
// wrap a vendor API client, a webhook buffer, or (for local operation and
// tests) a spool directory.
type EventSource interface {
	Fetch(ctx context.Context, host config.Host, limit int) ([]Observation, error)
}

// SpoolSource reads observations from each host's spool directory: one JSON
// file per observation, consumed (removed) once read. Files are taken in
// name order so producers can sequence with sortable names.
type SpoolSource struct{}

// Fetch reads up to limit observation files from the host's spool.
// A host without a spool directory yields nothing.
func (SpoolSource) Fetch(ctx context.Context, host config.Host, limit int) ([]Observation, error) {
	if host.Spool == "" {
		return nil, nil
	}
	names, err := filepath.Glob(filepath.Join(host.Spool, "*.json"))
	if err != nil {
		return nil, fmt.Errorf("scan spool: %w", err)
	}
	sort.Strings(names)
	if limit > 0 && len(names) > limit {
		names = names[:limit]
	}

	var observations []Observation
	for _, name := range names {
		if err := ctx.Err(); err != nil {
			return observations, err
		}
		data, err := os.ReadFile(name)
		if err != nil {
			return observations, fmt.Errorf("read spool file %s: %w", name, err)
		}
		var obs Observation
		if err := json.Unmarshal(data, &obs); err != nil {
			return observations, fmt.Errorf("decode spool file %s: %w", name, err)
		}
		if err := os.Remove(name); err != nil {
			return observations, fmt.Errorf("consume spool file %s: %w", name, err)
		}
		observations = append(observations, obs)
	}
	return observations, nil
}
