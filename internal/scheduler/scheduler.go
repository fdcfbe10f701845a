package scheduler

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/driftsync/driftsync/internal/config"
	"github.com/driftsync/driftsync/internal/engine"
	"github.com/driftsync/driftsync/internal/identity"
)

// Scheduler runs one timer loop per polling-enabled host, fetches
// observations from the event source on each tick, normalizes them into
// inbound events, and enqueues them for the engine runner.
//
// Each host gets its own goroutine keyed by host id with its own interval;
// cancellation of ctx stops all of them. The scheduler never blocks on the
// reconciler - the engine queue is the handoff.
type Scheduler struct {
	hosts  []config.Host
	source EventSource
	queue  *engine.Queue
	tokens TokenGenerator
	log    zerolog.Logger
}

// New creates a Scheduler for the polling-enabled subset of hosts.
func New(hosts []config.Host, source EventSource, queue *engine.Queue, tokens TokenGenerator, log zerolog.Logger) *Scheduler {
	return &Scheduler{
		hosts:  hosts,
		source: source,
		queue:  queue,
		tokens: tokens,
		log:    log,
	}
}

// Run starts all host loops and blocks until ctx is cancelled.
func (s *Scheduler) Run(ctx context.Context) {
	var wg sync.WaitGroup
	for _, host := range s.hosts {
		if !host.Polling.Enabled {
			s.log.Debug().Str("host", host.ID).Msg("polling disabled")
			continue
		}
		wg.Add(1)
		go func(host config.Host) {
			defer wg.Done()
			s.pollHost(ctx, host)
		}(host)
		s.log.Info().
			Str("host", host.ID).
			Int("interval_seconds", host.Polling.IntervalSeconds).
			Msg("polling started")
	}
	wg.Wait()
}

// pollHost ticks at the host's interval until cancelled. One failed fetch
// logs and waits for the next tick; there is no backoff beyond the interval.
func (s *Scheduler) pollHost(ctx context.Context, host config.Host) {
	interval := time.Duration(host.Polling.IntervalSeconds) * time.Second
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.pollOnce(ctx, host)
		}
	}
}

// pollOnce fetches and enqueues one batch of observations for host.
func (s *Scheduler) pollOnce(ctx context.Context, host config.Host) {
	observations, err := s.source.Fetch(ctx, host, host.Polling.Limit)
	if err != nil {
		s.log.Error().Err(err).Str("host", host.ID).Msg("fetch failed")
		return
	}
	for _, obs := range observations {
		ev, err := s.Normalize(host, obs)
		if err != nil {
			// Malformed statuses are rejected at this boundary; the core
			// only ever sees validated values.
			s.log.Warn().Err(err).Str("host", host.ID).Str("vendor_key", obs.VendorKey).Msg("observation dropped")
			continue
		}
		if !s.queue.Enqueue(ev) {
			s.log.Warn().Str("host", host.ID).Msg("queue closed, observation dropped")
			return
		}
	}
}

// Normalize converts a raw observation into a validated inbound event:
// status aliases from the host's status_map are applied, the result is
// validated against the canonical status set, and a missing idempotency
// key is replaced with a generated token.
func (s *Scheduler) Normalize(host config.Host, obs Observation) (engine.InboundEvent, error) {
	ev := engine.InboundEvent{
		IdempotencyKey: obs.IdempotencyKey,
		Source:         identity.SystemID(host.ID),
		Kind:           obs.Kind,
		IncidentKey: identity.IncidentKey{
			System:    identity.SystemID(host.ID),
			VendorKey: obs.VendorKey,
		},
		Title:       obs.Title,
		Description: obs.Description,
		OccurredAt:  obs.OccurredAt,
	}
	if ev.IdempotencyKey == "" {
		ev.IdempotencyKey = s.tokens.Generate()
	}
	if ev.Kind == "" {
		ev.Kind = "incident.observed"
	}
	if ev.OccurredAt.IsZero() {
		ev.OccurredAt = time.Now()
	}

	if obs.Status != nil {
		raw := *obs.Status
		if alias, ok := host.StatusMap[raw]; ok {
			raw = alias
		}
		status, err := identity.ParseStatus(raw)
		if err != nil {
			return engine.InboundEvent{}, err
		}
		ev.Status = &status
	}
	return ev, nil
}
