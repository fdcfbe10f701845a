package snapshot

import (
	"time"

	"github.com/driftsync/driftsync/internal/identity"
)

// Update is a partial update extracted from an inbound event.
// Nil fields mean "not provided" and leave the prior value untouched;
// a non-nil pointer to an empty string is a deliberate overwrite.
type Update struct {
	Title       *string
	Description *string
	Status      *identity.Status
}

// Reduce combines a prior snapshot with a partial update into a new snapshot.
//
// Pure and total: no failure path, prior is never mutated.
//
// With no prior, a fresh snapshot is synthesized under key with unset fields
// nil and status defaulting to NEW. With a prior, title and description are
// last-writer-wins, and the status advances only when the update's status
// ranks >= the prior status (the monotonic-status invariant); a regressing
// status is dropped while the rest of the update still applies.
//
// UpdatedAt is always refreshed to now, and is excluded from the canonical
// form - a merge that changes nothing else yields an identical fingerprint.
func Reduce(prior *Incident, key string, u Update, now time.Time) Incident {
	if prior == nil {
		status := identity.StatusNew
		if u.Status != nil {
			status = *u.Status
		}
		return Incident{
			Key:         key,
			Title:       u.Title,
			Description: u.Description,
			Status:      status,
			UpdatedAt:   now,
		}
	}

	next := Incident{
		Key:         prior.Key,
		Title:       prior.Title,
		Description: prior.Description,
		Status:      prior.Status,
		UpdatedAt:   now,
	}
	if u.Title != nil {
		next.Title = u.Title
	}
	if u.Description != nil {
		next.Description = u.Description
	}
	if u.Status != nil && u.Status.Rank() >= prior.Status.Rank() {
		next.Status = *u.Status
	}
	return next
}
