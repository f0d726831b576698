package service

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"mutuals/internal/poller/classifier"
	"mutuals/internal/poller/models"
	"mutuals/pkg/domain"
)

// identifierState is the per-identifier polling state.
type identifierState int

const (
	stateStart identifierState = iota
	stateWaiting
	stateDone
	stateAbandoned
)

func (s identifierState) String() string {
	switch s {
	case stateStart:
		return "start"
	case stateWaiting:
		return "waiting"
	case stateDone:
		return "done"
	case stateAbandoned:
		return "abandoned"
	default:
		return "unknown"
	}
}

func (s identifierState) terminal() bool {
	return s == stateDone || s == stateAbandoned
}

// identifierOutcome is the terminal result for one identifier. err is set only
// when the run context was cancelled.
type identifierOutcome struct {
	state   identifierState
	record  models.ResolvedRecord
	anomaly *models.Anomaly
	err     error
}

// attemptResult is the transition chosen by one pass over the enabled lookups.
type attemptResult struct {
	next    identifierState
	kind    models.LookupKind
	outcome models.Outcome
	groups  []domain.GroupID
	conns   []models.Connection
	name    string
	err     error
}

// pollIdentifier runs the state machine for id until it reaches Done or
// Abandoned. Rate limits restart both lookups from scratch after the
// requested wait; nothing from a rate-limited attempt is kept.
func (s *Service) pollIdentifier(ctx context.Context, id domain.UserID, nameStore NameStore, stats *models.RunStats) identifierOutcome {
	ctx, span := s.tracer.Start(ctx, "poller.Identifier",
		trace.WithAttributes(attribute.String("identifier", id.String())),
	)
	defer span.End()

	state := stateStart
	attempts := 0
	var last attemptResult

	for !state.terminal() {
		switch state {
		case stateStart:
			if err := s.pause(ctx); err != nil {
				return s.cancelled(span, err)
			}
			attempts++
			last = s.attempt(ctx, id)
			if last.err != nil {
				return s.cancelled(span, last.err)
			}
			state = last.next

		case stateWaiting:
			wait, _ := last.outcome.RetryAfter()
			stats.RateLimitEvents++
			stats.TotalBackoff += wait
			if s.metrics != nil {
				s.metrics.AddBackoff(wait)
			}
			s.logger.InfoContext(ctx, "rate limited",
				"identifier", id.String(),
				"lookup", last.kind.String(),
				"retry_after", wait,
				"attempt", attempts,
			)
			span.AddEvent("rate_limited", trace.WithAttributes(
				attribute.String("lookup", last.kind.String()),
				attribute.Int64("retry_after_ms", wait.Milliseconds()),
			))
			if err := ctx.Err(); err != nil {
				return s.cancelled(span, err)
			}
			if err := s.sleeper.Sleep(ctx, wait); err != nil {
				return s.cancelled(span, err)
			}
			state = stateStart
		}
	}

	span.SetAttributes(
		attribute.String("state", state.String()),
		attribute.Int("attempts", attempts),
	)

	if state == stateAbandoned {
		span.SetStatus(codes.Error, last.outcome.Reason())
		return identifierOutcome{
			state: stateAbandoned,
			anomaly: &models.Anomaly{
				Identifier: id,
				Kind:       last.kind,
				Reason:     last.outcome.Reason(),
				OccurredAt: s.timestamp(ctx),
			},
		}
	}

	span.SetStatus(codes.Ok, "")
	return identifierOutcome{
		state:  stateDone,
		record: s.buildRecord(ctx, id, last, nameStore),
	}
}

// pause observes the fixed delay before an attempt.
func (s *Service) pause(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return s.sleeper.Sleep(ctx, s.attemptDelay)
}

// attempt issues every enabled lookup in order and stops at the first
// outcome that is not Resolved or Denied.
func (s *Service) attempt(ctx context.Context, id domain.UserID) attemptResult {
	res := attemptResult{next: stateDone}

	for _, kind := range s.lookups() {
		if err := ctx.Err(); err != nil {
			return attemptResult{err: err}
		}

		raw := s.client.Lookup(ctx, kind, id)
		// A lookup cut short by the run being aborted is a cancellation,
		// not a malformed response.
		if err := ctx.Err(); err != nil && raw.Err != nil {
			return attemptResult{err: err}
		}

		outcome := classifier.Classify(raw)
		if s.metrics != nil {
			s.metrics.ObserveLookup(kind, outcome.Kind())
		}

		switch outcome.Kind() {
		case models.OutcomeRateLimited:
			return attemptResult{next: stateWaiting, kind: kind, outcome: outcome}
		case models.OutcomeMalformed:
			return attemptResult{next: stateAbandoned, kind: kind, outcome: outcome}
		case models.OutcomeDenied:
			s.logger.DebugContext(ctx, "no overlap", "identifier", id.String(), "lookup", kind.String())
		case models.OutcomeResolved:
			data, _ := outcome.Data()
			if data.Name != "" {
				res.name = data.Name
			}
			switch kind {
			case models.LookupGroups:
				res.groups = data.Groups
			case models.LookupConnections:
				res.conns = data.Connections
			}
		default:
			return attemptResult{next: stateAbandoned, kind: kind, outcome: models.Malformed("unclassified outcome")}
		}
	}

	return res
}

// buildRecord creates the record for a finished identifier and merges every
// name it revealed into the name store.
func (s *Service) buildRecord(ctx context.Context, id domain.UserID, res attemptResult, nameStore NameStore) models.ResolvedRecord {
	nameStore.Put(id, res.name)
	for _, c := range res.conns {
		nameStore.Put(c.ID, c.Name)
	}

	name := res.name
	if name == "" {
		if known, ok := nameStore.Lookup(id); ok {
			name = known
		}
	}

	return models.ResolvedRecord{
		Identifier:      id,
		Name:            name,
		GroupCount:      len(res.groups),
		Groups:          res.groups,
		ConnectionCount: len(res.conns),
		Connections:     res.conns,
		ResolvedAt:      s.timestamp(ctx),
	}
}

func (s *Service) cancelled(span trace.Span, err error) identifierOutcome {
	span.RecordError(err)
	span.SetStatus(codes.Error, "context canceled")
	return identifierOutcome{state: stateAbandoned, err: err}
}
