// Package ports defines the collaborators the polling engine depends on.
package ports

//go:generate mockgen -source=ports.go -destination=../mocks/mocks.go -package=mocks -exclude_interfaces=Sleeper,NameStore,AnomalyRecorder

import (
	"context"
	"time"

	"mutuals/internal/poller/models"
	"mutuals/pkg/domain"
)

// ProfileClient performs one remote lookup. Transport failures are reported
// through RawLookupResult.Err rather than a Go error so every call yields
// something the classifier can act on.
type ProfileClient interface {
	Lookup(ctx context.Context, kind models.LookupKind, id domain.UserID) models.RawLookupResult
}

// Sleeper blocks for d or until ctx is done, returning ctx.Err() in the latter case.
type Sleeper interface {
	Sleep(ctx context.Context, d time.Duration) error
}

// NameStore is the run's identifier-to-name table.
type NameStore interface {
	Put(id domain.UserID, name string)
	Lookup(id domain.UserID) (string, bool)
	DisplayName(id domain.UserID) string
}

// AnomalyRecorder keeps abandoned identifiers.
type AnomalyRecorder interface {
	Append(ctx context.Context, a models.Anomaly) error
}

// SleeperFunc adapts a function to Sleeper.
type SleeperFunc func(ctx context.Context, d time.Duration) error

func (f SleeperFunc) Sleep(ctx context.Context, d time.Duration) error {
	return f(ctx, d)
}

// RealSleeper waits on a timer and honours cancellation.
var RealSleeper Sleeper = SleeperFunc(func(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
})
