// Package correlation carries a per-request identifier through contexts and
// headers so logs, collected activities and error pages can be tied together.
package correlation

import (
	"context"
	"net/http"
	"strings"

	"github.com/google/uuid"
)

const (
	HeaderName = "X-Debugkit-Correlation-ID"
	maxIDLen   = 128
)

type contextKey struct{}

var correlationContextKey contextKey

var fallbackHeaders = []string{
	HeaderName,
	"X-Request-ID",
	"X-Correlation-ID",
	"Traceparent-Request-ID",
}

// EnsureRequest returns req carrying a correlation id in both its context and
// its headers, reusing a valid incoming id when one is present.
func EnsureRequest(req *http.Request) (*http.Request, string) {
	if req == nil {
		return nil, ""
	}
	if req.Header == nil {
		req.Header = make(http.Header)
	}
	if id, ok := FromContext(req.Context()); ok {
		req.Header.Set(HeaderName, id)
		return req, id
	}

	id := FromHeaders(req.Header)
	if id == "" {
		id = NewID()
	}
	req = req.WithContext(WithContext(req.Context(), id))
	req.Header.Set(HeaderName, id)
	return req, id
}

func WithContext(ctx context.Context, id string) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	normalized := normalizeID(id)
	if normalized == "" {
		return ctx
	}
	return context.WithValue(ctx, correlationContextKey, normalized)
}

func FromContext(ctx context.Context) (string, bool) {
	if ctx == nil {
		return "", false
	}
	value, ok := ctx.Value(correlationContextKey).(string)
	if !ok {
		return "", false
	}
	normalized := normalizeID(value)
	return normalized, normalized != ""
}

// FromHeaders returns the first valid id among the known headers.
func FromHeaders(headers http.Header) string {
	if headers == nil {
		return ""
	}
	for _, header := range fallbackHeaders {
		if id := normalizeID(headers.Get(header)); id != "" {
			return id
		}
	}
	return ""
}

// SetResponseHeader echoes id back to the client.
func SetResponseHeader(w http.ResponseWriter, id string) {
	if w == nil {
		return
	}
	if normalized := normalizeID(id); normalized != "" {
		w.Header().Set(HeaderName, normalized)
	}
}

func NewID() string {
	return "corr-" + strings.ReplaceAll(uuid.NewString(), "-", "")
}

func normalizeID(raw string) string {
	value := strings.TrimSpace(raw)
	if value == "" {
		return ""
	}
	if len(value) > maxIDLen {
		value = value[:maxIDLen]
	}
	for _, r := range value {
		switch {
		case r >= 'a' && r <= 'z':
		case r >= 'A' && r <= 'Z':
		case r >= '0' && r <= '9':
		case r == '-', r == '_', r == '.', r == ':':
		default:
			return ""
		}
	}
	return value
}
