package logging

import (
	"context"
	"log/slog"
	"os"
	"strings"

	"github.com/google/uuid"
)

type ctxKey int

const (
	renderIDKey ctxKey = iota
	templateKey
)

// WithRenderID returns a context with the render ID set.
func WithRenderID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, renderIDKey, id)
}

// WithTemplate returns a context with the template source identity set.
func WithTemplate(ctx context.Context, source string) context.Context {
	return context.WithValue(ctx, templateKey, source)
}

// EnsureRenderID returns ctx unchanged when it already carries a render ID,
// otherwise a child context with a fresh one.
func EnsureRenderID(ctx context.Context) context.Context {
	if RenderID(ctx) != "" {
		return ctx
	}
	return WithRenderID(ctx, uuid.NewString())
}

// RenderID extracts the render ID from the context, or "" if absent.
func RenderID(ctx context.Context) string {
	v, _ := ctx.Value(renderIDKey).(string)
	return v
}

// Template extracts the template source identity from the context, or "" if absent.
func Template(ctx context.Context) string {
	v, _ := ctx.Value(templateKey).(string)
	return v
}

// correlation returns the render_id and template attributes set on ctx.
func correlation(ctx context.Context) []slog.Attr {
	var attrs []slog.Attr
	if id := RenderID(ctx); id != "" {
		attrs = append(attrs, slog.String("render_id", id))
	}
	if tpl := Template(ctx); tpl != "" {
		attrs = append(attrs, slog.String("template", tpl))
	}
	return attrs
}

// LogWith binds the correlation attributes of ctx to logger. Useful where
// the call site logs without a context.
func LogWith(ctx context.Context, logger *slog.Logger) *slog.Logger {
	attrs := correlation(ctx)
	if len(attrs) == 0 {
		return logger
	}
	args := make([]any, len(attrs))
	for i, a := range attrs {
		args[i] = a
	}
	return logger.With(args...)
}

// CorrelationHandler adds render_id and template from the record's context,
// so logger.InfoContext(ctx, ...) carries them without LogWith.
type CorrelationHandler struct {
	inner slog.Handler
}

func NewCorrelationHandler(inner slog.Handler) *CorrelationHandler {
	return &CorrelationHandler{inner: inner}
}

func (h *CorrelationHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return h.inner.Enabled(ctx, level)
}

func (h *CorrelationHandler) Handle(ctx context.Context, r slog.Record) error {
	r.AddAttrs(correlation(ctx)...)
	return h.inner.Handle(ctx, r)
}

func (h *CorrelationHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return NewCorrelationHandler(h.inner.WithAttrs(attrs))
}

func (h *CorrelationHandler) WithGroup(name string) slog.Handler {
	return NewCorrelationHandler(h.inner.WithGroup(name))
}

// ParseLevel maps a config string to a slog level. Unknown values are info.
func ParseLevel(s string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// NewLogger builds the process logger: a text handler on stderr wrapped in
// a CorrelationHandler.
func NewLogger(level string) *slog.Logger {
	inner := slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: ParseLevel(level)})
	return slog.New(NewCorrelationHandler(inner))
}

// OrDefault returns logger, or a stderr info logger when it is nil.
func OrDefault(logger *slog.Logger) *slog.Logger {
	if logger != nil {
		return logger
	}
	return NewLogger("info")
}
