package logger

import (
	"context"
	"log/slog"
	"maps"
	"sync"
)

type ctxAttrsKey struct{}

type ctxAttrs struct {
	mu    sync.RWMutex
	attrs map[string]any
}

// WithAttrs returns a context that can collect log attributes. Attributes
// added later with AddAttr are written by every record logged with that
// context, so a flow run ID set deep in the call stack reaches the request log.
func WithAttrs(ctx context.Context) context.Context {
	if _, ok := ctx.Value(ctxAttrsKey{}).(*ctxAttrs); ok {
		return ctx
	}
	return context.WithValue(ctx, ctxAttrsKey{}, &ctxAttrs{attrs: make(map[string]any)})
}

// AddAttr records key=value on the context. No-op without WithAttrs.
func AddAttr(ctx context.Context, key string, value any) {
	c, ok := ctx.Value(ctxAttrsKey{}).(*ctxAttrs)
	if !ok {
		return
	}
	c.mu.Lock()
	c.attrs[key] = value
	c.mu.Unlock()
}

// Attrs returns a copy of the attributes recorded on ctx.
func Attrs(ctx context.Context) map[string]any {
	c, ok := ctx.Value(ctxAttrsKey{}).(*ctxAttrs)
	if !ok {
		return nil
	}
	c.mu.RLock()
	defer c.mu.RUnlock()
	return maps.Clone(c.attrs)
}

type contextHandler struct {
	handler slog.Handler
}

func (h *contextHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return h.handler.Enabled(ctx, level)
}

func (h *contextHandler) Handle(ctx context.Context, record slog.Record) error {
	for k, v := range Attrs(ctx) {
		record.AddAttrs(slog.Any(k, v))
	}
	return h.handler.Handle(ctx, record)
}

func (h *contextHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &contextHandler{handler: h.handler.WithAttrs(attrs)}
}

func (h *contextHandler) WithGroup(name string) slog.Handler {
	return &contextHandler{handler: h.handler.WithGroup(name)}
}
