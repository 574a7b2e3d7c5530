package api

import (
	"bytes"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/ongoingai/debugkit/internal/collectors"
	"github.com/ongoingai/debugkit/internal/correlation"
	"github.com/ongoingai/debugkit/internal/debug"
	"github.com/ongoingai/debugkit/internal/exceptions"
	"github.com/ongoingai/debugkit/internal/logstore"
	"github.com/ongoingai/debugkit/internal/observability"
)

type RouterOptions struct {
	AppVersion    string
	Environment   string
	StorageDriver string
	StoragePath   string
	// LogStore backs the /api/logs endpoints.
	LogStore logstore.Store
	// DB, when set, is queried by the demo work so SQL shows on the debug bar.
	DB         *sql.DB
	Logger     *slog.Logger
	Exceptions *exceptions.Handler
	Runtime    *observability.Runtime
	// Transport is the base for outbound demo calls.
	Transport http.RoundTripper
	// ProbeURL is fetched by the demo work when set.
	ProbeURL        string
	Registry        *debug.Registry
	DebugbarEnabled bool
	DebugbarOptions map[string]any
}

func (o RouterOptions) logger() *slog.Logger {
	if o.Logger == nil {
		return slog.Default()
	}
	return o.Logger
}

func (o RouterOptions) registry() *debug.Registry {
	if o.Registry == nil {
		return collectors.DefaultRegistry()
	}
	return o.Registry
}

func NewRouter(options RouterOptions) http.Handler {
	startedAt := time.Now().UTC()
	mux := http.NewServeMux()

	mux.Handle("/api/health", HealthHandler(HealthOptions{
		Version:       options.AppVersion,
		Environment:   options.Environment,
		StartedAt:     startedAt,
		StorageDriver: options.StorageDriver,
		StoragePath:   options.StoragePath,
	}))
	mux.Handle("/api/debug/activities", ActivitiesHandler(options))
	mux.Handle("/api/logs", LogsHandler(options.LogStore))
	mux.Handle("/api/logs/", LogDetailHandler(options.LogStore))
	mux.Handle("/boom", BoomHandler(options.logger()))
	mux.Handle("/", IndexHandler(options))

	handler := options.Exceptions
	if handler == nil {
		handler, _ = exceptions.New(string(exceptions.Production), nil, nil)
	}
	return withCORS(WithCorrelation(handler.Middleware(mux)))
}

// WithCorrelation makes sure every request carries a correlation id and
// echoes it in the response headers.
func WithCorrelation(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		r, id := correlation.EnsureRequest(r)
		correlation.SetResponseHeader(w, id)
		next.ServeHTTP(w, r)
	})
}

// BoomHandler writes some output and then panics, so the exception page can
// be seen replacing a partial response.
func BoomHandler(logger *slog.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !requireMethod(w, r, http.MethodGet) {
			return
		}
		logger.WarnContext(r.Context(), "boom requested", "remote_addr", r.RemoteAddr)
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		_, _ = w.Write([]byte("this line never reaches the client\n"))
		panic(errBoom)
	})
}

var errBoom = errors.New("boom: requested failure")

func writeJSON(w http.ResponseWriter, status int, payload any) {
	var body bytes.Buffer
	if err := json.NewEncoder(&body).Encode(payload); err != nil {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte("{\"error\":\"internal server error\"}\n"))
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(body.Bytes())
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{
		"error": message,
	})
}

func requireMethod(w http.ResponseWriter, r *http.Request, method string) bool {
	if r.Method == method {
		return true
	}
	w.Header().Set("Allow", method+", OPTIONS")
	writeError(w, http.StatusMethodNotAllowed, "method not allowed")
	return false
}

func parseIntQuery(raw, name string, min, max int) (int, error) {
	value := strings.TrimSpace(raw)
	if value == "" {
		return 0, nil
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return 0, fmt.Errorf("%s must be an integer", name)
	}
	if parsed < min {
		return 0, fmt.Errorf("%s must be >= %d", name, min)
	}
	if max != 0 && parsed > max {
		return 0, fmt.Errorf("%s must be <= %d", name, max)
	}
	return parsed, nil
}

func withCORS(next http.Handler) http.Handler {
	allowedHeaders := strings.Join([]string{"Content-Type", "Accept-Language", correlation.HeaderName}, ", ")
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", allowedHeaders)
		w.Header().Set("Access-Control-Expose-Headers", correlation.HeaderName)

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}

		next.ServeHTTP(w, r)
	})
}
