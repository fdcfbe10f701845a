package engine

import (
	"context"

	"github.com/rs/zerolog"
)

// Runner drains the event queue into the reconciler.
//
// Failed events are logged and dropped, not retried: the idempotency mark has
// already been taken by the time a port failure surfaces, so redelivery would
// be a silent no-op anyway. Alerting on the logged failures is the operator's
// signal to reconcile by hand.
type Runner struct {
	queue *Queue
	rec   *Reconciler
	log   zerolog.Logger
}

// NewRunner creates a Runner over queue and rec.
func NewRunner(queue *Queue, rec *Reconciler, log zerolog.Logger) *Runner {
	return &Runner{queue: queue, rec: rec, log: log}
}

// Run processes events until ctx is cancelled or the queue is closed and
// drained. Returns ctx.Err() on cancellation, nil on a clean drain.
func (r *Runner) Run(ctx context.Context) error {
	for {
		ev, ok := r.queue.TryDequeue()
		if !ok {
			if r.queue.Closed() {
				return nil
			}
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-r.queue.Wait():
				continue
			}
		}

		if err := r.rec.Handle(ctx, ev); err != nil {
			r.log.Error().
				Err(err).
				Str("idempotency_key", ev.IdempotencyKey).
				Str("incident", ev.IncidentKey.String()).
				Msg("event handling failed")
		}
	}
}
