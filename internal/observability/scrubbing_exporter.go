package observability

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

// scrubbingExporter redacts credentials from spans before they are exported.
// Exception messages recorded on the exception.handled event often quote a
// storage DSN, so event attributes are scrubbed along with span attributes.
type scrubbingExporter struct {
	next sdktrace.SpanExporter
}

func newScrubbingExporter(next sdktrace.SpanExporter) sdktrace.SpanExporter {
	return &scrubbingExporter{next: next}
}

func (e *scrubbingExporter) ExportSpans(ctx context.Context, spans []sdktrace.ReadOnlySpan) error {
	out := make([]sdktrace.ReadOnlySpan, 0, len(spans))
	for _, span := range spans {
		out = append(out, scrubSpan(span))
	}
	return e.next.ExportSpans(ctx, out)
}

func (e *scrubbingExporter) Shutdown(ctx context.Context) error {
	return e.next.Shutdown(ctx)
}

// scrubSpan returns span itself when nothing needs redacting.
func scrubSpan(span sdktrace.ReadOnlySpan) sdktrace.ReadOnlySpan {
	attrs, attrsChanged := scrubKeyValues(span.Attributes())

	events := span.Events()
	var scrubbedEvents []sdktrace.Event
	for i, event := range events {
		eventAttrs, changed := scrubKeyValues(event.Attributes)
		if !changed {
			continue
		}
		if scrubbedEvents == nil {
			scrubbedEvents = append([]sdktrace.Event(nil), events...)
		}
		scrubbedEvents[i].Attributes = eventAttrs
	}

	description := span.Status().Description
	descriptionChanged := ContainsCredential(description)

	if !attrsChanged && scrubbedEvents == nil && !descriptionChanged {
		return span
	}

	stub := tracetest.SpanStubFromReadOnlySpan(span)
	if attrsChanged {
		stub.Attributes = attrs
	}
	if scrubbedEvents != nil {
		stub.Events = scrubbedEvents
	}
	if descriptionChanged {
		stub.Status.Description = ScrubCredentials(description)
	}
	return stub.Snapshot()
}

// scrubKeyValues reports whether any string value held a credential. The
// returned slice is a copy only in that case.
func scrubKeyValues(attrs []attribute.KeyValue) ([]attribute.KeyValue, bool) {
	var out []attribute.KeyValue
	for i, kv := range attrs {
		if kv.Value.Type() != attribute.STRING || !ContainsCredential(kv.Value.AsString()) {
			continue
		}
		if out == nil {
			out = append([]attribute.KeyValue(nil), attrs...)
		}
		out[i] = kv.Key.String(ScrubCredentials(kv.Value.AsString()))
	}
	if out == nil {
		return attrs, false
	}
	return out, true
}
