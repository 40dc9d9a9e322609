package notebus

import (
	"context"
	"log/slog"
	"slices"

	"github.com/casualjim/notebus/note"
	"github.com/casualjim/notebus/pkg/jsonx"
	"github.com/casualjim/notebus/pkg/slogx"
)

// Hook observes the life cycle of emissions. Every method must be implemented,
// and implementations must be safe for concurrent use since emissions may run
// in parallel.
type Hook interface {
	// OnEmit is called once the note type is resolved, before any handler runs.
	OnEmit(context.Context, note.Note, *note.Type)
	// OnResponse is called for each response of a successful emission, in
	// emission order, once every handler has returned. An emission that fails
	// reports no responses.
	OnResponse(context.Context, Response)
	// OnError is called with the error Emit is about to return.
	OnError(context.Context, error)
	OnComplete(context.Context, *Emission)
}

// LoggingHook logs every event through the given logger, or slog.Default when nil.
func LoggingHook(logger *slog.Logger) Hook {
	if logger == nil {
		logger = slog.Default()
	}
	return &loggingHook{logger: logger}
}

type loggingHook struct {
	logger *slog.Logger
}

func (l *loggingHook) OnEmit(ctx context.Context, n note.Note, t *note.Type) {
	l.logger.InfoContext(ctx, "emit", slogx.NoteType(t), slogx.Note(n, func(v any) string { return t.Format(v) }))
}

func (l *loggingHook) OnResponse(ctx context.Context, r Response) {
	l.logger.DebugContext(ctx, "response",
		slogx.Handler(r.Handler.Name()),
		slogx.NoteType(r.Type),
		slog.String("mode", r.Mode.String()),
		slog.String("result", jsonx.MustString(r.Result)),
		slogx.Duration(r.Duration),
	)
}

func (l *loggingHook) OnError(ctx context.Context, err error) {
	l.logger.ErrorContext(ctx, "emit failed", slogx.Error(err))
}

func (l *loggingHook) OnComplete(ctx context.Context, e *Emission) {
	l.logger.InfoContext(ctx, "emission complete", slogx.EmissionID(e.ID), slog.Int("responses", e.Len()))
}

func NewCompositeHook(hooks ...Hook) Hook {
	return CompositeHook(hooks)
}

// CompositeHook fans every event out to its hooks, in order.
type CompositeHook []Hook

func (c CompositeHook) OnEmit(ctx context.Context, n note.Note, t *note.Type) {
	for h := range slices.Values(c) {
		h.OnEmit(ctx, n, t)
	}
}

func (c CompositeHook) OnResponse(ctx context.Context, r Response) {
	for h := range slices.Values(c) {
		h.OnResponse(ctx, r)
	}
}

func (c CompositeHook) OnError(ctx context.Context, err error) {
	for h := range slices.Values(c) {
		h.OnError(ctx, err)
	}
}

func (c CompositeHook) OnComplete(ctx context.Context, e *Emission) {
	for h := range slices.Values(c) {
		h.OnComplete(ctx, e)
	}
}

type noopHook struct{}

func (noopHook) OnEmit(context.Context, note.Note, *note.Type) {}
func (noopHook) OnResponse(context.Context, Response)          {}
func (noopHook) OnError(context.Context, error)                {}
func (noopHook) OnComplete(context.Context, *Emission)         {}
