package observability

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	"go.opentelemetry.io/otel/trace"
)

const (
	attrTraceID     = "trace_id"
	attrSpanID      = "span_id"
	attrService     = "service"
	attrEnv         = "env"
	attrMode        = "mode"
	attrRunID       = "run_id"
	attrDashboardID = "dashboard_id"
	attrLoadKind    = "kind"
)

// Load identifies the dashboard load a log record belongs to.
type Load struct {
	RunID       string
	DashboardID string
	Kind        string
}

type loadKey struct{}

// WithLoad returns a copy of ctx carrying load. Empty fields keep the value
// of a load already on ctx, so a runner can set the dashboard and the loader
// add its run id later.
func WithLoad(ctx context.Context, load Load) context.Context {
	prev, _ := LoadFromContext(ctx)

	if load.RunID == "" {
		load.RunID = prev.RunID
	}

	if load.DashboardID == "" {
		load.DashboardID = prev.DashboardID
	}

	if load.Kind == "" {
		load.Kind = prev.Kind
	}

	return context.WithValue(ctx, loadKey{}, load)
}

// LoadFromContext returns the load stored by WithLoad.
func LoadFromContext(ctx context.Context) (Load, bool) {
	load, ok := ctx.Value(loadKey{}).(Load)

	return load, ok
}

func (l Load) attrs() []slog.Attr {
	attrs := make([]slog.Attr, 0, 3)

	if l.RunID != "" {
		attrs = append(attrs, slog.String(attrRunID, l.RunID))
	}

	if l.DashboardID != "" {
		attrs = append(attrs, slog.String(attrDashboardID, l.DashboardID))
	}

	if l.Kind != "" {
		attrs = append(attrs, slog.String(attrLoadKind, l.Kind))
	}

	return attrs
}

// ContextHandler is an [slog.Handler] that adds the active span ids and the
// current Load to every record, and masks URL credentials in string and
// error values. Service metadata is attached once at construction so it
// stays at the top level under groups.
type ContextHandler struct {
	inner slog.Handler
}

// NewContextHandler wraps inner with span, load and service metadata.
func NewContextHandler(inner slog.Handler, service, env string, appMode AppMode) *ContextHandler {
	attrs := []slog.Attr{
		slog.String(attrService, service),
		slog.String(attrMode, string(appMode)),
	}

	if env != "" {
		attrs = append(attrs, slog.String(attrEnv, env))
	}

	return &ContextHandler{inner: inner.WithAttrs(attrs)}
}

// Enabled delegates to the inner handler.
func (h *ContextHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return h.inner.Enabled(ctx, level)
}

// Handle rebuilds the record with context attributes and redacted values.
func (h *ContextHandler) Handle(ctx context.Context, record slog.Record) error {
	out := slog.NewRecord(record.Time, record.Level, record.Message, record.PC)

	sc := trace.SpanContextFromContext(ctx)
	if sc.IsValid() {
		out.AddAttrs(
			slog.String(attrTraceID, sc.TraceID().String()),
			slog.String(attrSpanID, sc.SpanID().String()),
		)
	}

	if load, ok := LoadFromContext(ctx); ok {
		out.AddAttrs(load.attrs()...)
	}

	record.Attrs(func(attr slog.Attr) bool {
		out.AddAttrs(redactAttr(attr))

		return true
	})

	err := h.inner.Handle(ctx, out)
	if err != nil {
		return fmt.Errorf("context handler: %w", err)
	}

	return nil
}

// WithAttrs redacts attrs and adds them to the inner handler.
func (h *ContextHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	redacted := make([]slog.Attr, len(attrs))
	for i, attr := range attrs {
		redacted[i] = redactAttr(attr)
	}

	return &ContextHandler{inner: h.inner.WithAttrs(redacted)}
}

// WithGroup returns a handler with a group prefix on the inner handler.
func (h *ContextHandler) WithGroup(name string) slog.Handler {
	return &ContextHandler{inner: h.inner.WithGroup(name)}
}

// NewLogger builds the text or JSON logger wrapped in a ContextHandler.
func NewLogger(cfg Config, out io.Writer) *slog.Logger {
	opts := &slog.HandlerOptions{Level: cfg.LogLevel}

	var inner slog.Handler
	if cfg.LogJSON {
		inner = slog.NewJSONHandler(out, opts)
	} else {
		inner = slog.NewTextHandler(out, opts)
	}

	return slog.New(NewContextHandler(inner, cfg.ServiceName, cfg.Environment, cfg.Mode))
}

// OrDiscard returns logger, or a logger that drops every record when nil.
func OrDiscard(logger *slog.Logger) *slog.Logger {
	if logger == nil {
		return slog.New(slog.DiscardHandler)
	}

	return logger
}
