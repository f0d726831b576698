// Package service implements the sequential, rate-limited polling engine.
package service

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"

	"mutuals/internal/poller/anomaly"
	"mutuals/internal/poller/metrics"
	"mutuals/internal/poller/models"
	"mutuals/internal/poller/names"
	"mutuals/internal/poller/ports"
	"mutuals/pkg/domain"
	dErrors "mutuals/pkg/domain-errors"
	"mutuals/pkg/runcontext"
)

const (
	DefaultAttemptDelay  = 2 * time.Second
	DefaultProgressEvery = 5
)

// Type aliases for shared interfaces.
type (
	ProfileClient   = ports.ProfileClient
	Sleeper         = ports.Sleeper
	NameStore       = ports.NameStore
	AnomalyRecorder = ports.AnomalyRecorder
)

// Service polls identifiers one at a time. A Service is not safe for
// concurrent Run calls; the remote rate limit is per credential.
type Service struct {
	client           ProfileClient
	sleeper          Sleeper
	anomalies        AnomalyRecorder
	metrics          *metrics.Metrics
	logger           *slog.Logger
	tracer           trace.Tracer
	now              func() time.Time
	attemptDelay     time.Duration
	fetchGroups      bool
	fetchConnections bool
	progressEvery    int
}

type Option func(*Service)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithSleeper replaces the timer-based sleeper. Tests inject a recording fake.
func WithSleeper(sleeper Sleeper) Option {
	return func(s *Service) {
		if sleeper != nil {
			s.sleeper = sleeper
		}
	}
}

func WithAnomalyRecorder(recorder AnomalyRecorder) Option {
	return func(s *Service) {
		s.anomalies = recorder
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) {
		s.metrics = m
	}
}

func WithTracer(tracer trace.Tracer) Option {
	return func(s *Service) {
		if tracer != nil {
			s.tracer = tracer
		}
	}
}

// WithClock overrides the time source used for record and anomaly timestamps.
// Without it the time comes from runcontext.Now.
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		if now != nil {
			s.now = now
		}
	}
}

// WithAttemptDelay sets the fixed pause observed before every attempt.
func WithAttemptDelay(d time.Duration) Option {
	return func(s *Service) {
		if d >= 0 {
			s.attemptDelay = d
		}
	}
}

func WithFetchGroups(enabled bool) Option {
	return func(s *Service) {
		s.fetchGroups = enabled
	}
}

func WithFetchConnections(enabled bool) Option {
	return func(s *Service) {
		s.fetchConnections = enabled
	}
}

// WithProgressEvery sets how many finished identifiers pass between progress
// lines. Non-positive values are ignored.
func WithProgressEvery(n int) Option {
	return func(s *Service) {
		if n > 0 {
			s.progressEvery = n
		}
	}
}

func New(client ProfileClient, opts ...Option) (*Service, error) {
	if client == nil {
		return nil, fmt.Errorf("profile client is required")
	}

	svc := &Service{
		client:           client,
		sleeper:          ports.RealSleeper,
		logger:           slog.New(slog.DiscardHandler),
		tracer:           otel.Tracer("mutuals.poller"),
		attemptDelay:     DefaultAttemptDelay,
		fetchGroups:      true,
		fetchConnections: true,
		progressEvery:    DefaultProgressEvery,
	}

	for _, opt := range opts {
		opt(svc)
	}

	if !svc.fetchGroups && !svc.fetchConnections {
		return nil, dErrors.New(dErrors.CodeValidation, "at least one of group or connection lookups must be enabled")
	}

	return svc, nil
}

// RunResult is everything a run produced. It is returned even when the run
// was cancelled, holding whatever finished before the abort.
type RunResult struct {
	Records   []models.ResolvedRecord
	Anomalies []models.Anomaly
	Names     NameStore
	Stats     models.RunStats
}

// Run polls each identifier to a terminal state in ascending numeric order.
// Duplicates are dropped. When names is nil a fresh store is used. The only
// error Run returns carries dErrors.CodeCancelled.
func (s *Service) Run(ctx context.Context, ids []domain.UserID, nameStore NameStore) (*RunResult, error) {
	if nameStore == nil {
		nameStore = names.New()
	}
	ordered := domain.SortedUnique(ids)

	result := &RunResult{
		Records: make([]models.ResolvedRecord, 0, len(ordered)),
		Names:   nameStore,
		Stats:   models.RunStats{Total: len(ordered)},
	}

	s.logger.InfoContext(ctx, "polling started",
		"identifiers", len(ordered),
		"fetch_groups", s.fetchGroups,
		"fetch_connections", s.fetchConnections,
		"eta_seconds", s.eta(len(ordered)).Seconds(),
	)
	s.setRemaining(len(ordered))

	for i, id := range ordered {
		outcome := s.pollIdentifier(ctx, id, nameStore, &result.Stats)

		switch outcome.state {
		case stateDone:
			result.Records = append(result.Records, outcome.record)
			result.Stats.Resolved++
			if s.metrics != nil {
				s.metrics.IncrementResolved()
			}
		case stateAbandoned:
			result.Stats.Abandoned++
			if s.metrics != nil {
				s.metrics.IncrementAbandoned()
			}
			if outcome.anomaly != nil {
				result.Anomalies = append(result.Anomalies, *outcome.anomaly)
				anomaly.Log(ctx, s.logger, s.anomalies, *outcome.anomaly)
			}
		}

		if outcome.err != nil {
			result.Stats.Cancelled = true
			s.logger.WarnContext(ctx, "polling cancelled",
				"identifier", id.String(),
				"processed", i,
				"total", len(ordered),
			)
			return result, dErrors.Wrap(outcome.err, dErrors.CodeCancelled, "polling cancelled")
		}

		s.reportProgress(ctx, i+1, len(ordered))
	}

	s.logger.InfoContext(ctx, "polling finished",
		"resolved", result.Stats.Resolved,
		"abandoned", result.Stats.Abandoned,
		"rate_limit_events", result.Stats.RateLimitEvents,
		"total_backoff", result.Stats.TotalBackoff,
	)
	return result, nil
}

func (s *Service) reportProgress(ctx context.Context, processed, total int) {
	remaining := total - processed
	s.setRemaining(remaining)
	if processed%s.progressEvery != 0 && remaining != 0 {
		return
	}
	s.logger.InfoContext(ctx, "progress",
		"processed", processed,
		"total", total,
		"percent", percent(processed, total),
		"eta_seconds", s.eta(remaining).Seconds(),
	)
}

// eta is advisory: remaining identifiers times the fixed attempt delay.
func (s *Service) eta(remaining int) time.Duration {
	return time.Duration(remaining) * s.attemptDelay
}

func (s *Service) setRemaining(n int) {
	if s.metrics != nil {
		s.metrics.SetRemaining(n)
	}
}

func percent(processed, total int) float64 {
	if total == 0 {
		return 100
	}
	return float64(processed) * 100 / float64(total)
}

func (s *Service) timestamp(ctx context.Context) time.Time {
	if s.now != nil {
		return s.now()
	}
	return runcontext.Now(ctx)
}

// lookups returns the enabled lookups in issue order.
func (s *Service) lookups() []models.LookupKind {
	kinds := make([]models.LookupKind, 0, 2)
	if s.fetchGroups {
		kinds = append(kinds, models.LookupGroups)
	}
	if s.fetchConnections {
		kinds = append(kinds, models.LookupConnections)
	}
	return kinds
}
