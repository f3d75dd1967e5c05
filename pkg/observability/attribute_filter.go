package observability

import (
	"context"
	"fmt"
	"strings"

	"go.opentelemetry.io/otel/attribute"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
)

// exportedPrefixes are the span attribute key prefixes that reach the
// exporter. Exception attributes come from span.RecordError.
var exportedPrefixes = []string{
	"miraload.",
	"dashboard.",
	"chunk.",
	"batch.",
	"sink.",
	"exception.",
	"error",
}

// secretKeys never reach the exporter.
var secretKeys = map[string]bool{
	"sink.password": true,
	"sink.auth":     true,
	"sink.api_key":  true,
}

// spanFilter is a SpanProcessor that drops span attributes outside the
// exported prefixes and masks URL credentials in the remaining string
// values, event attributes and status description.
type spanFilter struct {
	next sdktrace.SpanProcessor
}

// NewAttributeFilter wraps next with the span filter.
func NewAttributeFilter(next sdktrace.SpanProcessor) sdktrace.SpanProcessor {
	return &spanFilter{next: next}
}

func (f *spanFilter) OnStart(parent context.Context, s sdktrace.ReadWriteSpan) {
	f.next.OnStart(parent, s)
}

func (f *spanFilter) OnEnd(s sdktrace.ReadOnlySpan) {
	f.next.OnEnd(&filteredSpan{ReadOnlySpan: s})
}

func (f *spanFilter) Shutdown(ctx context.Context) error {
	err := f.next.Shutdown(ctx)
	if err != nil {
		return fmt.Errorf("span filter shutdown: %w", err)
	}

	return nil
}

func (f *spanFilter) ForceFlush(ctx context.Context) error {
	err := f.next.ForceFlush(ctx)
	if err != nil {
		return fmt.Errorf("span filter flush: %w", err)
	}

	return nil
}

// AllowedAttribute reports whether a span attribute key is exported.
func AllowedAttribute(key string) bool {
	if secretKeys[key] {
		return false
	}

	for _, prefix := range exportedPrefixes {
		if strings.HasPrefix(key, prefix) {
			return true
		}
	}

	return false
}

func filterAttributes(attrs []attribute.KeyValue) []attribute.KeyValue {
	kept := make([]attribute.KeyValue, 0, len(attrs))

	for _, kv := range attrs {
		if !AllowedAttribute(string(kv.Key)) {
			continue
		}

		if kv.Value.Type() == attribute.STRING {
			kv = kv.Key.String(RedactCredentials(kv.Value.AsString()))
		}

		kept = append(kept, kv)
	}

	return kept
}

type filteredSpan struct {
	sdktrace.ReadOnlySpan
}

func (s *filteredSpan) Attributes() []attribute.KeyValue {
	return filterAttributes(s.ReadOnlySpan.Attributes())
}

func (s *filteredSpan) Events() []sdktrace.Event {
	events := s.ReadOnlySpan.Events()
	out := make([]sdktrace.Event, len(events))

	for i, event := range events {
		event.Attributes = filterAttributes(event.Attributes)
		out[i] = event
	}

	return out
}

func (s *filteredSpan) Status() sdktrace.Status {
	status := s.ReadOnlySpan.Status()
	status.Description = RedactCredentials(status.Description)

	return status
}
