package logger

import (
	"context"
	"io"
	"log/slog"
	"strings"

	"mutuals/pkg/runcontext"
)

// New builds the process logger. Unknown levels fall back to info and unknown
// formats to text; config validation rejects both before we get here.
// Records logged with a context carrying a run id get a run_id attribute.
func New(w io.Writer, level, format string) *slog.Logger {
	opts := &slog.HandlerOptions{Level: parseLevel(level)}
	var h slog.Handler
	if strings.EqualFold(format, "json") {
		h = slog.NewJSONHandler(w, opts)
	} else {
		h = slog.NewTextHandler(w, opts)
	}
	return slog.New(runHandler{h})
}

func parseLevel(s string) slog.Level {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// runHandler copies the run id from the context onto each record.
type runHandler struct {
	slog.Handler
}

func (h runHandler) Handle(ctx context.Context, r slog.Record) error {
	if id := runcontext.RunID(ctx); id != "" {
		r.AddAttrs(slog.String("run_id", id))
	}
	return h.Handler.Handle(ctx, r)
}

func (h runHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return runHandler{h.Handler.WithAttrs(attrs)}
}

func (h runHandler) WithGroup(name string) slog.Handler {
	return runHandler{h.Handler.WithGroup(name)}
}
