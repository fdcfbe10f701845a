package store

import (
	"context"
	"fmt"
	"time"
)

// Seen reports whether an idempotency key has been marked.
func (s *Store) Seen(ctx context.Context, key string) (bool, error) {
	var exists bool
	err := s.db.QueryRowContext(ctx, `
		SELECT EXISTS (SELECT 1 FROM idempotency_keys WHERE key = ?)
	`, key).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("idempotency seen: %w", err)
	}
	return exists, nil
}

// Mark records an idempotency key.
// Uses ON CONFLICT(key) DO NOTHING - marking twice is a no-op, not an error.
func (s *Store) Mark(ctx context.Context, key string) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO idempotency_keys (key, marked_at)
		VALUES (?, ?)
		ON CONFLICT(key) DO NOTHING
	`, key, formatTime(time.Now()))
	if err != nil {
		return fmt.Errorf("idempotency mark: %w", err)
	}
	return nil
}
