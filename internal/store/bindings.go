package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/driftsync/driftsync/internal/engine"
	"github.com/driftsync/driftsync/internal/identity"
)

// TargetsFor returns all bindings whose origin is the given incident key.
// Results are ordered by target system for deterministic command batches.
// An unbound incident yields an empty slice, not nil.
func (s *Store) TargetsFor(ctx context.Context, key identity.IncidentKey) ([]engine.Binding, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT target_system, target_key, version, last_success_at
		FROM bindings
		WHERE origin_system = ? AND origin_vendor_key = ?
		ORDER BY target_system ASC
	`, key.System.String(), key.VendorKey)
	if err != nil {
		return nil, fmt.Errorf("query bindings: %w", err)
	}
	defer rows.Close()

	bindings := []engine.Binding{}
	for rows.Next() {
		var (
			targetSystem  string
			targetKey     string
			version       int
			lastSuccessAt sql.NullString
		)
		if err := rows.Scan(&targetSystem, &targetKey, &version, &lastSuccessAt); err != nil {
			return nil, fmt.Errorf("scan binding: %w", err)
		}

		b := engine.Binding{
			ID: identity.BindingID{
				Origin:       key,
				TargetSystem: identity.SystemID(targetSystem),
			},
			TargetKey: targetKey,
			Version:   version,
		}
		if lastSuccessAt.Valid {
			ts, err := parseTime(lastSuccessAt.String)
			if err != nil {
				return nil, fmt.Errorf("scan binding: %w", err)
			}
			b.LastSuccessAt = &ts
		}
		bindings = append(bindings, b)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate bindings: %w", err)
	}
	return bindings, nil
}

// PutBinding creates or updates a binding. The core never calls this - it is
// for the binding collaborator and the `driftsync bind` seeding command.
func (s *Store) PutBinding(ctx context.Context, b engine.Binding) error {
	var lastSuccessAt any
	if b.LastSuccessAt != nil {
		lastSuccessAt = formatTime(*b.LastSuccessAt)
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO bindings (origin_system, origin_vendor_key, target_system, target_key, version, last_success_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(origin_system, origin_vendor_key, target_system) DO UPDATE SET
			target_key      = excluded.target_key,
			version         = excluded.version,
			last_success_at = excluded.last_success_at
	`,
		b.ID.Origin.System.String(),
		b.ID.Origin.VendorKey,
		b.ID.TargetSystem.String(),
		b.TargetKey,
		b.Version,
		lastSuccessAt,
	)
	if err != nil {
		return fmt.Errorf("put binding: %w", err)
	}
	return nil
}
