// Package collectors provides ready-made debug bar collectors for timer
// marks, slog records, outbound HTTP calls, SQL statements and
// OpenTelemetry spans.
package collectors

import (
	"bytes"
	"fmt"
	"html/template"
	"time"

	"github.com/ongoingai/debugkit/internal/debug"
	"github.com/ongoingai/debugkit/internal/timer"
)

const (
	KeyTimer = "timer"
	KeyLog   = "log"
	KeyHTTP  = "http"
	KeySQL   = "sql"
	KeySpan  = "span"
)

// DefaultRegistry returns a registry holding every collector in this package.
func DefaultRegistry() *debug.Registry {
	registry := debug.NewRegistry()
	mustRegister(registry, KeyTimer, func(name string) debug.Collector {
		return NewTimerCollector(name, timer.New())
	})
	mustRegister(registry, KeyLog, func(name string) debug.Collector {
		return NewLogCollector(name)
	})
	mustRegister(registry, KeyHTTP, func(name string) debug.Collector {
		return NewHTTPClientCollector(name, nil)
	})
	mustRegister(registry, KeySQL, func(name string) debug.Collector {
		return NewSQLCollector(name)
	})
	mustRegister(registry, KeySpan, func(name string) debug.Collector {
		return NewSpanCollector(name)
	})
	return registry
}

func mustRegister(registry *debug.Registry, key string, factory debug.CollectorFactory) {
	if err := registry.Register(key, factory); err != nil {
		panic(fmt.Sprintf("register %s collector: %v", key, err))
	}
}

func nameOr(name, fallback string) string {
	if name == "" {
		return fallback
	}
	return name
}

func unixSeconds(t time.Time) float64 {
	return float64(t.UnixNano()) / float64(time.Second)
}

var templateFuncs = template.FuncMap{
	"ms": func(seconds float64) string {
		return fmt.Sprintf("%.3f", debug.RoundSecondsToMilliseconds(seconds, 3))
	},
	"inc": func(i int) int {
		return i + 1
	},
}

func newContentsTemplate(name, text string) *template.Template {
	return template.Must(template.New(name).Funcs(templateFuncs).Parse(text))
}

func renderContents(tmpl *template.Template, data any) (string, error) {
	var out bytes.Buffer
	if err := tmpl.Execute(&out, data); err != nil {
		return "", fmt.Errorf("render %s contents: %w", tmpl.Name(), err)
	}
	return out.String(), nil
}
