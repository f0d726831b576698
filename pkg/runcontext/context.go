// Package runcontext provides context accessors for run-scoped values.
//
// Usage (set once at startup):
//
//	ctx = runcontext.WithRunID(ctx, uuid.NewString())
//
// Usage in tests (inject values):
//
//	ctx = runcontext.WithTime(ctx, fixedTime)
package runcontext

import (
	"context"
	"time"
)

type (
	runIDKey   struct{}
	runTimeKey struct{}
)

// RunID retrieves the run correlation id, or "" if not set.
func RunID(ctx context.Context) string {
	if runID, ok := ctx.Value(runIDKey{}).(string); ok {
		return runID
	}
	return ""
}

func WithRunID(ctx context.Context, runID string) context.Context {
	return context.WithValue(ctx, runIDKey{}, runID)
}

// Now returns the time injected with WithTime, or time.Now().
func Now(ctx context.Context) time.Time {
	if t, ok := ctx.Value(runTimeKey{}).(time.Time); ok {
		return t
	}
	return time.Now()
}

// WithTime pins Now for the context, for deterministic timestamps in tests.
func WithTime(ctx context.Context, t time.Time) context.Context {
	return context.WithValue(ctx, runTimeKey{}, t)
}
