package collectors

import (
	"context"
	"sync"

	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"

	"github.com/ongoingai/debugkit/internal/debug"
)

const spanClass = "collectors.SpanCollector"

var spanContents = newContentsTemplate("span", `{{if .Spans}}<table>
<thead><tr><th>#</th><th>Span</th><th>Kind</th><th>Trace</th><th>Status</th><th>Time</th></tr></thead>
<tbody>{{range $i, $s := .Spans}}
<tr><td>{{inc $i}}</td><td>{{$s.Name}}</td><td>{{$s.Kind}}</td><td><code>{{$s.TraceID}}</code></td><td>{{$s.Status}}</td><td>{{ms $s.Seconds}} ms</td></tr>{{end}}
</tbody>
</table>{{else}}<p>No spans have ended.</p>{{end}}`)

// SpanRecord summarizes an ended span.
type SpanRecord struct {
	Name    string  `json:"name"`
	Kind    string  `json:"kind"`
	TraceID string  `json:"trace_id"`
	SpanID  string  `json:"span_id"`
	Status  string  `json:"status"`
	Start   float64 `json:"start"`
	End     float64 `json:"end"`
}

func (s SpanRecord) Seconds() float64 {
	return s.End - s.Start
}

// SpanCollector is an sdktrace.SpanProcessor that turns ended spans into
// activities. Register it with sdktrace.WithSpanProcessor.
type SpanCollector struct {
	*debug.BaseCollector

	mu    sync.Mutex
	spans []SpanRecord
}

var _ sdktrace.SpanProcessor = (*SpanCollector)(nil)

func NewSpanCollector(name string) *SpanCollector {
	return &SpanCollector{
		BaseCollector: debug.NewBaseCollector(nameOr(name, "Spans"), spanClass),
	}
}

func (c *SpanCollector) OnStart(context.Context, sdktrace.ReadWriteSpan) {}

func (c *SpanCollector) OnEnd(span sdktrace.ReadOnlySpan) {
	status := span.Status().Code.String()
	if span.Status().Code == codes.Error && span.Status().Description != "" {
		status += ": " + span.Status().Description
	}
	record := SpanRecord{
		Name:    span.Name(),
		Kind:    span.SpanKind().String(),
		TraceID: span.SpanContext().TraceID().String(),
		SpanID:  span.SpanContext().SpanID().String(),
		Status:  status,
		Start:   unixSeconds(span.StartTime()),
		End:     unixSeconds(span.EndTime()),
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.spans = append(c.spans, record)
	c.AddActivity(debug.Activity{
		Description: record.Name,
		Start:       record.Start,
		End:         record.End,
	})
}

func (c *SpanCollector) Shutdown(context.Context) error {
	return nil
}

func (c *SpanCollector) ForceFlush(context.Context) error {
	return nil
}

func (c *SpanCollector) Spans() []SpanRecord {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]SpanRecord, len(c.spans))
	copy(out, c.spans)
	return out
}

func (c *SpanCollector) Activities() []debug.Activity {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.BaseCollector.Activities()
}

func (c *SpanCollector) Contents() (string, error) {
	return renderContents(spanContents, struct{ Spans []SpanRecord }{Spans: c.Spans()})
}
