package api

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/ongoingai/debugkit/internal/logstore"
)

func TestJSONResponseHelpers(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name       string
		write      func(http.ResponseWriter)
		wantStatus int
		wantBody   string
	}{
		{
			name: "log records",
			write: func(w http.ResponseWriter) {
				writeJSON(w, http.StatusOK, logsResponse{Items: []logstore.Record{{
					ID:      "log-1",
					Time:    time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
					Level:   "CRITICAL",
					Message: "boom",
				}}})
			},
			wantStatus: http.StatusOK,
			wantBody:   `{"items":[{"id":"log-1",`,
		},
		{
			name:       "error message",
			write:      func(w http.ResponseWriter) { writeError(w, http.StatusNotFound, "log not found") },
			wantStatus: http.StatusNotFound,
			wantBody:   `{"error":"log not found"}`,
		},
		{
			name: "unencodable payload",
			write: func(w http.ResponseWriter) {
				writeJSON(w, http.StatusOK, map[string]any{"options": map[string]any{"icon": func() {}}})
			},
			wantStatus: http.StatusInternalServerError,
			wantBody:   `{"error":"internal server error"}`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			rec := httptest.NewRecorder()
			tt.write(rec)

			if rec.Code != tt.wantStatus {
				t.Fatalf("status=%d, want %d", rec.Code, tt.wantStatus)
			}
			if got := rec.Header().Get("Content-Type"); got != "application/json" {
				t.Fatalf("content-type=%q, want application/json", got)
			}
			if got := strings.TrimSpace(rec.Body.String()); !strings.HasPrefix(got, tt.wantBody) {
				t.Fatalf("body=%q, want prefix %q", got, tt.wantBody)
			}
		})
	}
}

func TestRequireMethod(t *testing.T) {
	t.Parallel()

	rec := httptest.NewRecorder()
	if !requireMethod(rec, httptest.NewRequest(http.MethodGet, "/api/logs", nil), http.MethodGet) {
		t.Fatal("requireMethod(GET)=false, want true")
	}
	if rec.Body.Len() != 0 {
		t.Fatalf("body=%q, want nothing written", rec.Body.String())
	}

	rec = httptest.NewRecorder()
	if requireMethod(rec, httptest.NewRequest(http.MethodDelete, "/api/logs/log-1", nil), http.MethodGet) {
		t.Fatal("requireMethod(DELETE)=true, want false")
	}
	if rec.Code != http.StatusMethodNotAllowed || rec.Header().Get("Allow") != "GET, OPTIONS" {
		t.Fatalf("status=%d allow=%q, want 405 with GET, OPTIONS", rec.Code, rec.Header().Get("Allow"))
	}
}
