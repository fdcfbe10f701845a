// Package snapshot models the canonical reconciled state of an incident and
// the operations that make reconciliation convergent: a deterministic
// canonical encoding, a content-hash fingerprint over it, and the pure merge
// reducer that folds a partial update into a prior snapshot.
package snapshot

import (
	"time"

	"github.com/driftsync/driftsync/internal/identity"
)

// Incident is the canonical reconciled state of one incident.
//
// Incident is an immutable value: Reduce produces a new instance on every
// merge and never mutates its input. Title and Description are pointers so
// that "not set" is distinguishable from "set to empty string" - an explicit
// empty string from an update overwrites, a nil leaves the prior value.
type Incident struct {
	Key         string
	Title       *string
	Description *string
	Status      identity.Status
	UpdatedAt   time.Time
}

// Canonical returns the business content of the snapshot as a key-ordered
// field list, excluding the volatile UpdatedAt. This is the exact input to
// the fingerprint: two snapshots with identical business content produce
// identical canonical forms regardless of construction order.
func (s Incident) Canonical() []Field {
	// Keys are fixed and listed in sorted order; MarshalCanonical relies on
	// this ordering being stable across processes.
	return []Field{
		{Name: "description", Value: s.Description},
		{Name: "key", Value: &s.Key},
		{Name: "status", Value: strPtr(string(s.Status))},
		{Name: "title", Value: s.Title},
	}
}

// Field is one canonical-form entry. A nil Value renders as JSON null.
type Field struct {
	Name  string
	Value *string
}

func strPtr(s string) *string { return &s }
