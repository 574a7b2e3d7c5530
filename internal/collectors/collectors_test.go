package collectors

import (
	"bytes"
	"context"
	"database/sql"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	oteltrace "go.opentelemetry.io/otel/trace"
	_ "modernc.org/sqlite"

	"github.com/ongoingai/debugkit/internal/debug"
	"github.com/ongoingai/debugkit/internal/timer"
)

func TestDefaultRegistryBuildsEveryCollector(t *testing.T) {
	t.Parallel()

	registry := DefaultRegistry()
	want := []string{KeyHTTP, KeyLog, KeySpan, KeySQL, KeyTimer}
	if got := strings.Join(registry.Keys(), ","); got != strings.Join(want, ",") {
		t.Fatalf("Keys()=%q, want %q", got, strings.Join(want, ","))
	}

	defaults := map[string]string{
		KeyTimer: "Timer",
		KeyLog:   "Logs",
		KeyHTTP:  "HTTP Client",
		KeySQL:   "SQL",
		KeySpan:  "Spans",
	}
	for key, name := range defaults {
		collector, err := registry.New(key, "")
		if err != nil {
			t.Fatalf("New(%q) error: %v", key, err)
		}
		if collector.Name() != name {
			t.Fatalf("New(%q).Name()=%q, want %q", key, collector.Name(), name)
		}
		if _, err := collector.Contents(); err != nil {
			t.Fatalf("New(%q).Contents() error: %v", key, err)
		}
	}

	named, err := registry.New(KeySQL, "Primary DB")
	if err != nil {
		t.Fatalf("New(sql, Primary DB) error: %v", err)
	}
	if named.SafeName() != "primary-db" {
		t.Fatalf("SafeName()=%q, want primary-db", named.SafeName())
	}
}

func TestTimerCollectorActivitiesFollowMarks(t *testing.T) {
	t.Parallel()

	tm := timer.New()
	tm.SetMark(timer.StartMark, 1024, 100)
	tm.SetMark("boot", 2048, 100.25)
	tm.SetMark("routes", 4096, 100.5)

	collector := NewTimerCollector("", tm)
	activities := collector.Activities()
	if len(activities) != 2 {
		t.Fatalf("len(Activities())=%d, want 2", len(activities))
	}
	if activities[0].Description != "boot" || activities[0].Start != 100 || activities[0].End != 100.25 {
		t.Fatalf("activities[0]=%+v, want boot 100..100.25", activities[0])
	}
	if activities[1].Collector != "Timer" || activities[1].Class != timerClass {
		t.Fatalf("activities[1]=%+v, want collector Timer and class %s", activities[1], timerClass)
	}

	contents, err := collector.Contents()
	if err != nil {
		t.Fatalf("Contents() error: %v", err)
	}
	for _, want := range []string{"<td>routes</td>", "<td>0.500 s</td>"} {
		if !strings.Contains(contents, want) {
			t.Fatalf("Contents() missing %q: %s", want, contents)
		}
	}
}

func TestTimerCollectorWithSingleMarkHasNoActivities(t *testing.T) {
	t.Parallel()

	if got := NewTimerCollector("t", timer.New()).Activities(); got != nil {
		t.Fatalf("Activities()=%v, want nil", got)
	}
}

func TestLogCollectorCapturesAndPassesThrough(t *testing.T) {
	t.Parallel()

	var out bytes.Buffer
	collector := NewLogCollector("")
	base := slog.NewJSONHandler(&out, &slog.HandlerOptions{Level: slog.LevelWarn})
	logger := slog.New(collector.Handler(base)).With("service", "api").WithGroup("req")

	logger.Debug("cache miss", "key", "user:1")
	logger.Warn("slow query", "elapsed", 1500*time.Millisecond, "err", errors.New("timeout"))

	entries := collector.Entries()
	if len(entries) != 2 {
		t.Fatalf("len(Entries())=%d, want 2 (debug records are captured too)", len(entries))
	}
	if entries[0].Level != "DEBUG" || entries[0].Attributes["req.key"] != "user:1" {
		t.Fatalf("entries[0]=%+v, want DEBUG with req.key", entries[0])
	}
	if entries[1].Attributes["service"] != "api" || entries[1].Attributes["req.elapsed"] != "1.5s" || entries[1].Attributes["req.err"] != "timeout" {
		t.Fatalf("entries[1].Attributes=%v", entries[1].Attributes)
	}

	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	if len(lines) != 1 || !strings.Contains(lines[0], "slow query") {
		t.Fatalf("underlying output=%q, want only the warning", out.String())
	}

	if got := len(collector.Activities()); got != 2 {
		t.Fatalf("len(Activities())=%d, want 2", got)
	}
	contents, err := collector.Contents()
	if err != nil {
		t.Fatalf("Contents() error: %v", err)
	}
	if !strings.Contains(contents, `class="level-WARN"`) {
		t.Fatalf("Contents() missing warn row: %s", contents)
	}
}

func TestLogCollectorWithoutUnderlyingHandler(t *testing.T) {
	t.Parallel()

	collector := NewLogCollector("audit")
	slog.New(collector.Handler(nil)).Info("<b>hi</b>")

	contents, err := collector.Contents()
	if err != nil {
		t.Fatalf("Contents() error: %v", err)
	}
	if !strings.Contains(contents, "&lt;b&gt;hi&lt;/b&gt;") {
		t.Fatalf("Contents() did not escape message: %s", contents)
	}
}

func TestHTTPClientCollectorRecordsCalls(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	}))
	defer server.Close()

	collector := NewHTTPClientCollector("", nil)
	resp, err := collector.Client().Get(server.URL + "/brew?token=sk-abcdefghijklmnopqrstuvwxyz123456")
	if err != nil {
		t.Fatalf("Get() error: %v", err)
	}
	_ = resp.Body.Close()

	calls := collector.Calls()
	if len(calls) != 1 {
		t.Fatalf("len(Calls())=%d, want 1", len(calls))
	}
	if calls[0].Status != http.StatusTeapot || calls[0].Method != http.MethodGet {
		t.Fatalf("calls[0]=%+v, want GET 418", calls[0])
	}
	if strings.Contains(calls[0].URL, "sk-abcdefghijklmnopqrstuvwxyz123456") {
		t.Fatalf("calls[0].URL=%q leaked a credential", calls[0].URL)
	}
	activities := collector.Activities()
	if len(activities) != 1 || !strings.HasPrefix(activities[0].Description, "GET ") || activities[0].End < activities[0].Start {
		t.Fatalf("Activities()=%+v, want one GET activity", activities)
	}
}

type failingTransport struct{}

func (failingTransport) RoundTrip(*http.Request) (*http.Response, error) {
	return nil, errors.New("dial refused")
}

func TestHTTPClientCollectorRecordsTransportErrors(t *testing.T) {
	t.Parallel()

	collector := NewHTTPClientCollector("upstream", failingTransport{})
	req := httptest.NewRequest(http.MethodPost, "http://example.invalid/x", nil)
	req.RequestURI = ""
	if _, err := collector.RoundTrip(req); err == nil {
		t.Fatal("RoundTrip() error=nil, want transport error")
	}
	contents, err := collector.Contents()
	if err != nil {
		t.Fatalf("Contents() error: %v", err)
	}
	if !strings.Contains(contents, "dial refused") {
		t.Fatalf("Contents() missing error: %s", contents)
	}
}

func TestSQLCollectorRecordsStatements(t *testing.T) {
	t.Parallel()

	raw, err := sql.Open("sqlite", "file:"+filepath.Join(t.TempDir(), "collector.db"))
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	defer raw.Close()

	collector := NewSQLCollector("")
	db := collector.Wrap(raw)
	ctx := context.Background()

	if _, err := db.ExecContext(ctx, `CREATE TABLE users (id INTEGER PRIMARY KEY, name TEXT)`); err != nil {
		t.Fatalf("create table: %v", err)
	}
	if _, err := db.ExecContext(ctx, `INSERT INTO users (name) VALUES (?), (?)`, "ana", "bo"); err != nil {
		t.Fatalf("insert: %v", err)
	}
	var count int
	if err := db.QueryRowContext(ctx, `SELECT COUNT(*) FROM users`).Scan(&count); err != nil || count != 2 {
		t.Fatalf("count=%d err=%v, want 2", count, err)
	}
	rows, err := db.QueryContext(ctx, `SELECT name FROM missing_table`)
	if err == nil {
		_ = rows.Close()
		t.Fatal("query on missing table error=nil, want error")
	}

	statements := collector.Statements()
	if len(statements) != 4 {
		t.Fatalf("len(Statements())=%d, want 4", len(statements))
	}
	if statements[1].RowsAffected != 2 {
		t.Fatalf("insert RowsAffected=%d, want 2", statements[1].RowsAffected)
	}
	if statements[3].Error == "" {
		t.Fatal("missing table statement has no error")
	}
	if got := len(collector.Activities()); got != 4 {
		t.Fatalf("len(Activities())=%d, want 4", got)
	}
}

func TestSpanCollectorTurnsEndedSpansIntoActivities(t *testing.T) {
	t.Parallel()

	collector := NewSpanCollector("")
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(collector))
	defer func() { _ = tp.Shutdown(context.Background()) }()

	start := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	tracer := tp.Tracer("test")
	_, span := tracer.Start(context.Background(), "load user")
	span.SetStatus(codes.Error, "not found")
	span.End()
	_, timed := tracer.Start(context.Background(), "render", oteltrace.WithTimestamp(start))
	timed.End(oteltrace.WithTimestamp(start.Add(250 * time.Millisecond)))

	spans := collector.Spans()
	if len(spans) != 2 {
		t.Fatalf("len(Spans())=%d, want 2", len(spans))
	}
	if spans[0].Status != "Error: not found" {
		t.Fatalf("spans[0].Status=%q, want Error: not found", spans[0].Status)
	}

	activities := collector.Activities()
	if activities[1].Description != "render" || activities[1].End-activities[1].Start < 0.249 {
		t.Fatalf("activities[1]=%+v, want render lasting 250ms", activities[1])
	}

	debugger := debug.NewDebugger()
	debugger.AddCollector(collector, "Telemetry")
	report := debugger.Activities()
	if len(report.Collected) != 2 || report.Collected[0].Collection != "Telemetry" {
		t.Fatalf("report=%+v, want 2 activities in Telemetry", report)
	}
}
