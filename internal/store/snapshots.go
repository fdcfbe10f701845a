package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/driftsync/driftsync/internal/identity"
	"github.com/driftsync/driftsync/internal/snapshot"
)

// Get loads the current (snapshot, fingerprint) pair for an incident key.
// Returns (nil, "", nil) when the incident has never been seen.
func (s *Store) Get(ctx context.Context, key string) (*snapshot.Incident, string, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT key, title, description, status, updated_at, fingerprint
		FROM snapshots
		WHERE key = ?
	`, key)

	var (
		snap        snapshot.Incident
		title       sql.NullString
		description sql.NullString
		status      string
		updatedAt   string
		fingerprint string
	)
	err := row.Scan(&snap.Key, &title, &description, &status, &updatedAt, &fingerprint)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, "", nil
	}
	if err != nil {
		return nil, "", fmt.Errorf("get snapshot: %w", err)
	}

	if title.Valid {
		snap.Title = &title.String
	}
	if description.Valid {
		snap.Description = &description.String
	}
	// Stored statuses were validated on the way in; re-validate on the way
	// out so a hand-edited database fails loudly instead of corrupting merges.
	st, err := identity.ParseStatus(status)
	if err != nil {
		return nil, "", fmt.Errorf("get snapshot: %w", err)
	}
	snap.Status = st

	ts, err := parseTime(updatedAt)
	if err != nil {
		return nil, "", fmt.Errorf("get snapshot: %w", err)
	}
	snap.UpdatedAt = ts

	return &snap, fingerprint, nil
}

// Upsert writes the (snapshot, fingerprint) pair atomically, replacing any
// prior state for the key. A single INSERT .. ON CONFLICT keeps the pair
// consistent without an explicit transaction.
func (s *Store) Upsert(ctx context.Context, snap snapshot.Incident, fingerprint string) error {
	var title, description any
	if snap.Title != nil {
		title = *snap.Title
	}
	if snap.Description != nil {
		description = *snap.Description
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO snapshots (key, title, description, status, updated_at, fingerprint)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET
			title       = excluded.title,
			description = excluded.description,
			status      = excluded.status,
			updated_at  = excluded.updated_at,
			fingerprint = excluded.fingerprint
	`,
		snap.Key,
		title,
		description,
		snap.Status.String(),
		formatTime(snap.UpdatedAt),
		fingerprint,
	)
	if err != nil {
		return fmt.Errorf("upsert snapshot: %w", err)
	}
	return nil
}
