package api

import (
	"errors"
	"net/http"
	"strings"

	"github.com/ongoingai/debugkit/internal/logstore"
)

const maxLogsLimit = 200

type logsResponse struct {
	Items []logstore.Record `json:"items"`
}

// LogsHandler lists recent critical log records, newest first. The optional
// correlation_id query parameter narrows the list to one request.
func LogsHandler(store logstore.Store) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !requireMethod(w, r, http.MethodGet) {
			return
		}
		if store == nil {
			writeError(w, http.StatusServiceUnavailable, "log store is not configured")
			return
		}

		query := r.URL.Query()
		limit, err := parseIntQuery(query.Get("limit"), "limit", 0, maxLogsLimit)
		if err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		records, err := store.ListRecords(r.Context(), strings.TrimSpace(query.Get("correlation_id")), limit)
		if err != nil {
			writeError(w, http.StatusInternalServerError, "failed to list logs")
			return
		}
		writeJSON(w, http.StatusOK, logsResponse{Items: nonNilRecords(records)})
	})
}

// LogDetailHandler serves /api/logs/{id}. The id may be a log id, as shown on
// the error page, or a correlation id; records matching either are returned.
func LogDetailHandler(store logstore.Store) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !requireMethod(w, r, http.MethodGet) {
			return
		}
		if store == nil {
			writeError(w, http.StatusServiceUnavailable, "log store is not configured")
			return
		}

		id := strings.Trim(strings.TrimPrefix(r.URL.Path, "/api/logs/"), "/")
		if id == "" || strings.Contains(id, "/") {
			http.NotFound(w, r)
			return
		}

		var items []logstore.Record
		record, err := store.GetRecord(r.Context(), id)
		switch {
		case err == nil:
			items = append(items, *record)
		case !errors.Is(err, logstore.ErrNotFound):
			writeError(w, http.StatusInternalServerError, "failed to load log")
			return
		}

		related, err := store.ListRecords(r.Context(), id, maxLogsLimit)
		if err != nil {
			writeError(w, http.StatusInternalServerError, "failed to list logs")
			return
		}
		for _, candidate := range related {
			if record != nil && candidate.ID == record.ID {
				continue
			}
			items = append(items, candidate)
		}

		if len(items) == 0 {
			writeError(w, http.StatusNotFound, "log not found")
			return
		}
		writeJSON(w, http.StatusOK, logsResponse{Items: items})
	})
}

func nonNilRecords(records []logstore.Record) []logstore.Record {
	if records == nil {
		return []logstore.Record{}
	}
	return records
}
