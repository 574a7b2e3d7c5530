package collectors

import (
	"context"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/ongoingai/debugkit/internal/debug"
)

const logClass = "collectors.LogCollector"

var logContents = newContentsTemplate("log", `{{if .Entries}}<table>
<thead><tr><th>#</th><th>Time</th><th>Level</th><th>Message</th><th>Attributes</th></tr></thead>
<tbody>{{range $i, $e := .Entries}}
<tr class="level-{{$e.Level}}"><td>{{inc $i}}</td><td>{{$e.Time.Format "15:04:05.000"}}</td><td>{{$e.Level}}</td><td>{{$e.Message}}</td><td>{{range $k, $v := $e.Attributes}}<code>{{$k}}={{$v}}</code> {{end}}</td></tr>{{end}}
</tbody>
</table>{{else}}<p>No log records were captured.</p>{{end}}`)

// LogEntry is one captured slog record.
type LogEntry struct {
	Time       time.Time      `json:"time"`
	Level      string         `json:"level"`
	Message    string         `json:"message"`
	Attributes map[string]any `json:"attributes,omitempty"`
}

// LogCollector captures records passed through the handler returned by
// Handler. Each record also becomes a zero-length activity.
type LogCollector struct {
	*debug.BaseCollector

	mu      sync.Mutex
	entries []LogEntry
}

func NewLogCollector(name string) *LogCollector {
	return &LogCollector{
		BaseCollector: debug.NewBaseCollector(nameOr(name, "Logs"), logClass),
	}
}

// Handler wraps underlying so every record is captured before it is passed
// on. A nil underlying handler only captures.
func (c *LogCollector) Handler(underlying slog.Handler) slog.Handler {
	return &captureHandler{underlying: underlying, collector: c}
}

func (c *LogCollector) Entries() []LogEntry {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]LogEntry, len(c.entries))
	copy(out, c.entries)
	return out
}

func (c *LogCollector) Activities() []debug.Activity {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.BaseCollector.Activities()
}

func (c *LogCollector) Contents() (string, error) {
	return renderContents(logContents, struct{ Entries []LogEntry }{Entries: c.Entries()})
}

func (c *LogCollector) add(entry LogEntry) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = append(c.entries, entry)
	at := unixSeconds(entry.Time)
	c.AddActivity(debug.Activity{
		Description: entry.Level + " " + entry.Message,
		Start:       at,
		End:         at,
	})
}

type capturedAttr struct {
	key   string
	value any
}

type captureHandler struct {
	underlying slog.Handler
	collector  *LogCollector
	attrs      []capturedAttr
	groups     []string
}

// Enabled reports true so records below the underlying handler's level are
// still captured.
func (h *captureHandler) Enabled(context.Context, slog.Level) bool {
	return true
}

func (h *captureHandler) Handle(ctx context.Context, record slog.Record) error {
	entry := LogEntry{
		Time:       record.Time,
		Level:      record.Level.String(),
		Message:    record.Message,
		Attributes: make(map[string]any, len(h.attrs)+record.NumAttrs()),
	}
	if entry.Time.IsZero() {
		entry.Time = time.Now()
	}
	for _, attr := range h.attrs {
		entry.Attributes[attr.key] = attr.value
	}
	prefix := h.prefix()
	record.Attrs(func(attr slog.Attr) bool {
		entry.Attributes[prefix+attr.Key] = resolveValue(attr.Value)
		return true
	})
	if len(entry.Attributes) == 0 {
		entry.Attributes = nil
	}
	h.collector.add(entry)

	if h.underlying == nil || !h.underlying.Enabled(ctx, record.Level) {
		return nil
	}
	return h.underlying.Handle(ctx, record)
}

func (h *captureHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	prefix := h.prefix()
	next := make([]capturedAttr, len(h.attrs), len(h.attrs)+len(attrs))
	copy(next, h.attrs)
	for _, attr := range attrs {
		next = append(next, capturedAttr{key: prefix + attr.Key, value: resolveValue(attr.Value)})
	}

	clone := *h
	clone.attrs = next
	if h.underlying != nil {
		clone.underlying = h.underlying.WithAttrs(attrs)
	}
	return &clone
}

func (h *captureHandler) WithGroup(name string) slog.Handler {
	if name == "" {
		return h
	}
	groups := make([]string, len(h.groups)+1)
	copy(groups, h.groups)
	groups[len(h.groups)] = name

	clone := *h
	clone.groups = groups
	if h.underlying != nil {
		clone.underlying = h.underlying.WithGroup(name)
	}
	return &clone
}

func (h *captureHandler) prefix() string {
	if len(h.groups) == 0 {
		return ""
	}
	return strings.Join(h.groups, ".") + "."
}

func resolveValue(v slog.Value) any {
	v = v.Resolve()
	switch v.Kind() {
	case slog.KindString:
		return v.String()
	case slog.KindInt64:
		return v.Int64()
	case slog.KindUint64:
		return v.Uint64()
	case slog.KindFloat64:
		return v.Float64()
	case slog.KindBool:
		return v.Bool()
	case slog.KindDuration:
		return v.Duration().String()
	case slog.KindTime:
		return v.Time()
	case slog.KindGroup:
		attrs := v.Group()
		group := make(map[string]any, len(attrs))
		for _, attr := range attrs {
			group[attr.Key] = resolveValue(attr.Value)
		}
		return group
	default:
		if err, ok := v.Any().(error); ok {
			return err.Error()
		}
		return v.Any()
	}
}
