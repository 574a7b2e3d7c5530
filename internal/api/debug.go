package api

import (
	"bytes"
	"context"
	"fmt"
	"html/template"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/ongoingai/debugkit/internal/collectors"
	"github.com/ongoingai/debugkit/internal/correlation"
	"github.com/ongoingai/debugkit/internal/debug"
	"github.com/ongoingai/debugkit/internal/timer"
	"github.com/ongoingai/debugkit/internal/version"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	oteltrace "go.opentelemetry.io/otel/trace"
)

// Collection names shown on the debug bar.
const (
	collectionTimers   = "Timers"
	collectionLogs     = "Logs"
	collectionDatabase = "Database"
	collectionHTTP     = "HTTP"
	collectionTraces   = "Traces"
)

const (
	probeTimeout   = 2 * time.Second
	countLogsQuery = "SELECT COUNT(*) FROM critical_logs"
)

// requestDebug holds the debugger and the instrumented clients for a single
// request.
type requestDebug struct {
	debugger *debug.Debugger
	timer    *timer.Timer
	logger   *slog.Logger
	client   *http.Client
	db       *collectors.DB
	tracer   oteltrace.Tracer
	provider *sdktrace.TracerProvider
}

func newCollector[T debug.Collector](registry *debug.Registry, key, name string) (T, error) {
	var zero T
	collector, err := registry.New(key, name)
	if err != nil {
		return zero, err
	}
	typed, ok := collector.(T)
	if !ok {
		return zero, fmt.Errorf("collector %q has unexpected type %T", key, collector)
	}
	return typed, nil
}

func newRequestDebug(options RouterOptions) (*requestDebug, error) {
	registry := options.registry()

	timers, err := newCollector[*collectors.TimerCollector](registry, collectors.KeyTimer, "Request")
	if err != nil {
		return nil, err
	}
	logs, err := newCollector[*collectors.LogCollector](registry, collectors.KeyLog, "Request log")
	if err != nil {
		return nil, err
	}
	queries, err := newCollector[*collectors.SQLCollector](registry, collectors.KeySQL, "Log store")
	if err != nil {
		return nil, err
	}
	spans, err := newCollector[*collectors.SpanCollector](registry, collectors.KeySpan, "Spans")
	if err != nil {
		return nil, err
	}
	outbound := collectors.NewHTTPClientCollector("Outbound", options.Runtime.WrapHTTPTransport(options.Transport))

	debugger := debug.NewDebugger()
	if err := debugger.SetOptions(options.DebugbarOptions); err != nil {
		return nil, err
	}
	if !options.DebugbarEnabled {
		debugger.DisableDebugbar()
	}
	debugger.
		AddCollector(timers, collectionTimers).
		AddCollector(logs, collectionLogs).
		AddCollector(queries, collectionDatabase).
		AddCollector(outbound, collectionHTTP).
		AddCollector(spans, collectionTraces)

	provider := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(spans))
	rd := &requestDebug{
		debugger: debugger,
		timer:    timers.Timer(),
		logger:   slog.New(logs.Handler(options.logger().Handler())),
		client:   outbound.Client(),
		tracer:   provider.Tracer("github.com/ongoingai/debugkit/internal/api"),
		provider: provider,
	}
	if options.DB != nil {
		rd.db = queries.Wrap(options.DB)
	}
	return rd, nil
}

func (rd *requestDebug) close(ctx context.Context) {
	_ = rd.provider.Shutdown(ctx)
}

// run performs the sample work whose activities fill the debug bar.
func (rd *requestDebug) run(ctx context.Context, probeURL string) {
	ctx, span := rd.tracer.Start(ctx, "debugkit.demo")
	defer span.End()

	rd.timer.AddMark("request[received]")
	correlationID, _ := correlation.FromContext(ctx)
	rd.logger.InfoContext(ctx, "collecting request activities", "correlation_id", correlationID)

	if rd.db != nil {
		_, querySpan := rd.tracer.Start(ctx, "logstore.count")
		var count int64
		if err := rd.db.QueryRowContext(ctx, countLogsQuery).Scan(&count); err != nil {
			rd.logger.WarnContext(ctx, "failed to count critical logs", "error", err)
		} else {
			rd.logger.InfoContext(ctx, "counted critical logs", "count", count)
		}
		querySpan.End()
		rd.timer.AddMark("database[queried]")
	}

	if strings.TrimSpace(probeURL) != "" {
		probeCtx, cancel := context.WithTimeout(ctx, probeTimeout)
		defer cancel()
		probeCtx, probeSpan := rd.tracer.Start(probeCtx, "http.probe")
		if err := rd.probe(probeCtx, probeURL); err != nil {
			rd.logger.WarnContext(ctx, "outbound probe failed", "url", probeURL, "error", err)
		}
		probeSpan.End()
		rd.timer.AddMark("http[probed]")
	}

	rd.timer.AddMark("request[done]")
}

func (rd *requestDebug) probe(ctx context.Context, url string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return err
	}
	req.Header.Set("User-Agent", version.UserAgent())
	if id, ok := correlation.FromContext(ctx); ok {
		req.Header.Set(correlation.HeaderName, id)
	}
	resp, err := rd.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)
	if resp.StatusCode >= http.StatusBadRequest {
		return fmt.Errorf("unexpected status %d", resp.StatusCode)
	}
	return nil
}

// ActivitiesHandler runs the sample work and returns the aggregated
// activity timeline as JSON.
func ActivitiesHandler(options RouterOptions) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !requireMethod(w, r, http.MethodGet) {
			return
		}
		rd, err := newRequestDebug(options)
		if err != nil {
			writeError(w, http.StatusInternalServerError, "failed to initialize debugger")
			return
		}
		defer rd.close(r.Context())

		rd.run(r.Context(), options.ProbeURL)
		writeJSON(w, http.StatusOK, rd.debugger.Activities())
	})
}

var indexTemplate = template.Must(template.New("index").Parse(`<!doctype html>
<html lang="en">
<head>
<meta charset="utf-8">
<title>debugkit</title>
</head>
<body>
<h1>debugkit {{.Version}}</h1>
<p>Environment: {{.Environment}}</p>
<p>Correlation id: <code>{{.CorrelationID}}</code></p>
<ul>
<li><a href="/api/debug/activities">Activities</a></li>
<li><a href="/api/logs">Critical logs</a></li>
<li><a href="/boom">Trigger an exception</a></li>
</ul>
</body>
</html>
`))

type indexView struct {
	Version       string
	Environment   string
	CorrelationID string
}

// IndexHandler serves a small HTML page with the debug bar injected before
// its closing body tag.
func IndexHandler(options RouterOptions) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/" {
			http.NotFound(w, r)
			return
		}
		if !requireMethod(w, r, http.MethodGet) {
			return
		}
		rd, err := newRequestDebug(options)
		if err != nil {
			writeError(w, http.StatusInternalServerError, "failed to initialize debugger")
			return
		}
		defer rd.close(r.Context())

		rd.run(r.Context(), options.ProbeURL)

		correlationID, _ := correlation.FromContext(r.Context())
		var page bytes.Buffer
		if err := indexTemplate.Execute(&page, indexView{
			Version:       options.AppVersion,
			Environment:   options.Environment,
			CorrelationID: correlationID,
		}); err != nil {
			writeError(w, http.StatusInternalServerError, "failed to render page")
			return
		}

		bar, err := rd.debugger.RenderDebugbar()
		if err != nil {
			options.logger().ErrorContext(r.Context(), "failed to render debugbar", "error", err)
			bar = ""
		}

		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		w.WriteHeader(http.StatusOK)
		_, _ = io.WriteString(w, injectBeforeBodyEnd(page.String(), bar))
	})
}

// injectBeforeBodyEnd inserts fragment before the last </body>, or appends
// it when the document has none.
func injectBeforeBodyEnd(document, fragment string) string {
	if fragment == "" {
		return document
	}
	idx := strings.LastIndex(strings.ToLower(document), "</body>")
	if idx < 0 {
		return document + fragment
	}
	return document[:idx] + fragment + document[idx:]
}
