// Package ctxlogger lets request-scoped slog attributes travel through
// context so every record emitted downstream carries them.
package ctxlogger

import (
	"context"
	"log/slog"
)

type ctxKey struct{}

// AppendCtx returns a context carrying the given attribute in addition to
// any already present.
func AppendCtx(parent context.Context, attr slog.Attr) context.Context {
	attrs, _ := parent.Value(ctxKey{}).([]slog.Attr)
	merged := make([]slog.Attr, 0, len(attrs)+1)
	merged = append(merged, attrs...)
	merged = append(merged, attr)

	return context.WithValue(parent, ctxKey{}, merged)
}

// ContextHandler enriches records with attributes stored in the context.
type ContextHandler struct {
	slog.Handler
}

func (h ContextHandler) Handle(ctx context.Context, r slog.Record) error {
	if attrs, ok := ctx.Value(ctxKey{}).([]slog.Attr); ok {
		r.AddAttrs(attrs...)
	}

	return h.Handler.Handle(ctx, r)
}

func (h ContextHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return ContextHandler{Handler: h.Handler.WithAttrs(attrs)}
}

func (h ContextHandler) WithGroup(name string) slog.Handler {
	return ContextHandler{Handler: h.Handler.WithGroup(name)}
}
