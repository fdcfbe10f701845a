package engine

import (
	"errors"
	"fmt"
)

// ReconcileErrorCode categorizes reconciliation failures.
type ReconcileErrorCode string

const (
	// ErrCodeRepository indicates the snapshot or idempotency store failed.
	ErrCodeRepository ReconcileErrorCode = "REPOSITORY_FAILURE"

	// ErrCodeOutbox indicates the mirror command batch could not be enqueued.
	ErrCodeOutbox ReconcileErrorCode = "OUTBOX_FAILURE"
)

// ReconcileError is a failure surfaced by Reconciler.Handle.
//
// The reconciler never retries internally; the ingestion loop owns
// logging and alerting on these. Because the idempotency mark precedes
// persistence, a failure after marking leaves the event permanently treated
// as handled - an at-most-once guarantee for mirror commands.
type ReconcileError struct {
	Code        ReconcileErrorCode
	Op          string // the port call that failed, e.g. "snapshots.upsert"
	IncidentKey string
	Err         error
}

// Error implements the error interface.
func (e *ReconcileError) Error() string {
	if e.IncidentKey != "" {
		return fmt.Sprintf("%s: %s (incident=%s): %v", e.Code, e.Op, e.IncidentKey, e.Err)
	}
	return fmt.Sprintf("%s: %s: %v", e.Code, e.Op, e.Err)
}

func (e *ReconcileError) Unwrap() error {
	return e.Err
}

// IsRepositoryError reports whether err is a store failure.
// Uses errors.As to handle wrapped errors.
func IsRepositoryError(err error) bool {
	var re *ReconcileError
	return errors.As(err, &re) && re.Code == ErrCodeRepository
}

// IsOutboxError reports whether err is an outbox enqueue failure.
func IsOutboxError(err error) bool {
	var re *ReconcileError
	return errors.As(err, &re) && re.Code == ErrCodeOutbox
}

func repositoryError(op, incidentKey string, err error) *ReconcileError {
	return &ReconcileError{Code: ErrCodeRepository, Op: op, IncidentKey: incidentKey, Err: err}
}

func outboxError(op, incidentKey string, err error) *ReconcileError {
	return &ReconcileError{Code: ErrCodeOutbox, Op: op, IncidentKey: incidentKey, Err: err}
}
