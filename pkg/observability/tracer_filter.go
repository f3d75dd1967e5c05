package observability

import (
	"context"

	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/embedded"
	nooptrace "go.opentelemetry.io/otel/trace/noop"
)

// Span names used by the load pipeline.
const (
	SpanLoad   = "miraload.load"
	SpanVerify = "miraload.verify"
	SpanChunk  = "miraload.chunk"
	SpanBatch  = "miraload.batch"
)

// HotPathSpans are started once per chunk or batch. They are only exported
// with verbose tracing.
var HotPathSpans = []string{SpanChunk, SpanBatch}

type quietTracerProvider struct {
	embedded.TracerProvider

	delegate trace.TracerProvider
	noop     trace.TracerProvider
	quiet    map[string]bool
}

// NewFilteringTracerProvider wraps delegate so that spans named in quiet
// become no-op spans. The no-op span keeps the parent span context, so logs
// written under it still carry the load's trace id.
func NewFilteringTracerProvider(delegate trace.TracerProvider, quiet ...string) trace.TracerProvider {
	names := make(map[string]bool, len(quiet))
	for _, name := range quiet {
		names[name] = true
	}

	return &quietTracerProvider{
		delegate: delegate,
		noop:     nooptrace.NewTracerProvider(),
		quiet:    names,
	}
}

func (p *quietTracerProvider) Tracer(name string, opts ...trace.TracerOption) trace.Tracer {
	return &quietTracer{
		delegate: p.delegate.Tracer(name, opts...),
		noop:     p.noop.Tracer(name, opts...),
		quiet:    p.quiet,
	}
}

type quietTracer struct {
	embedded.Tracer

	delegate trace.Tracer
	noop     trace.Tracer
	quiet    map[string]bool
}

func (t *quietTracer) Start(ctx context.Context, name string, opts ...trace.SpanStartOption) (context.Context, trace.Span) {
	if t.quiet[name] {
		return t.noop.Start(ctx, name, opts...)
	}

	return t.delegate.Start(ctx, name, opts...)
}
