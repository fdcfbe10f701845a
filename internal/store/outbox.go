package store

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/driftsync/driftsync/internal/engine"
)

// OutboxEntry is one durable mirror command awaiting dispatch.
type OutboxEntry struct {
	ID           int64
	Command      engine.MirrorCommand
	EnqueuedAt   time.Time
	DispatchedAt *time.Time
}

// Enqueue writes a batch of mirror commands in one transaction (all or
// nothing). ON CONFLICT DO NOTHING on (binding_id, idempotency_key) makes a
// replayed batch a silent no-op instead of a duplicate command.
func (s *Store) Enqueue(ctx context.Context, cmds []engine.MirrorCommand) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("enqueue outbox: begin tx: %w", err)
	}
	defer tx.Rollback() // No-op if committed

	now := formatTime(time.Now())
	for _, cmd := range cmds {
		payload, err := marshalPayload(cmd.Payload)
		if err != nil {
			return fmt.Errorf("enqueue outbox: %w", err)
		}
		_, err = tx.ExecContext(ctx, `
			INSERT INTO outbox (binding_id, target_system, action, payload, idempotency_key, enqueued_at)
			VALUES (?, ?, ?, ?, ?, ?)
			ON CONFLICT(binding_id, idempotency_key) DO NOTHING
		`,
			cmd.BindingID,
			cmd.TargetSystem,
			string(cmd.Action),
			payload,
			cmd.IdempotencyKey,
			now,
		)
		if err != nil {
			return fmt.Errorf("enqueue outbox: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("enqueue outbox: commit: %w", err)
	}
	return nil
}

// Pending returns undispatched entries in enqueue order, up to limit.
// limit <= 0 means no limit.
func (s *Store) Pending(ctx context.Context, limit int) ([]OutboxEntry, error) {
	query := `
		SELECT id, binding_id, target_system, action, payload, idempotency_key, enqueued_at
		FROM outbox
		WHERE dispatched_at IS NULL
		ORDER BY id ASC
	`
	args := []any{}
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query outbox: %w", err)
	}
	defer rows.Close()

	entries := []OutboxEntry{}
	for rows.Next() {
		var (
			e          OutboxEntry
			action     string
			payload    string
			enqueuedAt string
		)
		if err := rows.Scan(&e.ID, &e.Command.BindingID, &e.Command.TargetSystem, &action, &payload, &e.Command.IdempotencyKey, &enqueuedAt); err != nil {
			return nil, fmt.Errorf("scan outbox: %w", err)
		}
		e.Command.Action = engine.Action(action)
		if err := json.Unmarshal([]byte(payload), &e.Command.Payload); err != nil {
			return nil, fmt.Errorf("scan outbox payload: %w", err)
		}
		ts, err := parseTime(enqueuedAt)
		if err != nil {
			return nil, fmt.Errorf("scan outbox: %w", err)
		}
		e.EnqueuedAt = ts
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate outbox: %w", err)
	}
	return entries, nil
}

// MarkDispatched stamps an entry as delivered by the transport collaborator.
func (s *Store) MarkDispatched(ctx context.Context, id int64) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE outbox SET dispatched_at = ? WHERE id = ? AND dispatched_at IS NULL
	`, formatTime(time.Now()), id)
	if err != nil {
		return fmt.Errorf("mark dispatched: %w", err)
	}
	return nil
}

// marshalPayload converts a command payload to JSON TEXT for storage.
// HTML escaping is disabled so the stored text matches the wire contract
// byte for byte.
func marshalPayload(p engine.Payload) (string, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(p); err != nil {
		return "", fmt.Errorf("marshal payload: %w", err)
	}
	return strings.TrimSpace(buf.String()), nil
}
