// Package anomaly keeps the per-run log of abandoned identifiers.
package anomaly

import (
	"context"
	"log/slog"
	"slices"
	"sync"

	"mutuals/internal/poller/models"
	"mutuals/internal/poller/ports"
)

var _ ports.AnomalyRecorder = (*InMemoryStore)(nil)

// InMemoryStore is an append-only anomaly log.
type InMemoryStore struct {
	mu     sync.RWMutex
	events []models.Anomaly
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{}
}

func (s *InMemoryStore) Append(_ context.Context, a models.Anomaly) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, a)
	return nil
}

// ListAll returns anomalies in the order they were recorded.
func (s *InMemoryStore) ListAll(_ context.Context) ([]models.Anomaly, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return slices.Clone(s.events), nil
}

func (s *InMemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.events)
}

// Log writes the anomaly to the structured logger and, when set, the recorder.
// A failing recorder is logged but never stops the run.
func Log(ctx context.Context, logger *slog.Logger, recorder ports.AnomalyRecorder, a models.Anomaly) {
	if logger != nil {
		logger.WarnContext(ctx, "unknown error on identifier "+a.Identifier.String(),
			"identifier", a.Identifier.String(),
			"lookup", a.Kind.String(),
			"reason", a.Reason,
			"event", "identifier_abandoned",
			"log_type", "anomaly",
		)
	}
	if recorder == nil {
		return
	}
	if err := recorder.Append(ctx, a); err != nil && logger != nil {
		logger.WarnContext(ctx, "failed to record anomaly", "identifier", a.Identifier.String(), "error", err)
	}
}
