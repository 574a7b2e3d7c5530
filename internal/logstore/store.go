// Package logstore persists critical-severity log records so a log id shown
// on an error page can be looked up later.
package logstore

import (
	"context"
	"errors"
	"sort"
	"strings"
	"sync"
	"time"
)

var (
	ErrNotFound    = errors.New("log record not found")
	ErrDuplicateID = errors.New("log record id already exists")
)

// Record is one persisted log entry.
type Record struct {
	ID            string    `json:"id"`
	Time          time.Time `json:"time"`
	Level         string    `json:"level"`
	Message       string    `json:"message"`
	CorrelationID string    `json:"correlation_id,omitempty"`
}

type Store interface {
	WriteRecord(ctx context.Context, record *Record) error
	GetRecord(ctx context.Context, id string) (*Record, error)
	// ListRecords returns the newest records first. A non-empty
	// correlationID restricts results to that request.
	ListRecords(ctx context.Context, correlationID string, limit int) ([]Record, error)
	Close() error
}

const defaultListLimit = 50

func normalizeLimit(limit int) int {
	if limit <= 0 {
		return defaultListLimit
	}
	return limit
}

// MemoryStore keeps records in process memory.
type MemoryStore struct {
	mu      sync.RWMutex
	records map[string]Record
	order   []string
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{records: make(map[string]Record)}
}

func (s *MemoryStore) WriteRecord(_ context.Context, record *Record) error {
	if record == nil {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.records[record.ID]; exists {
		return ErrDuplicateID
	}
	s.records[record.ID] = *record
	s.order = append(s.order, record.ID)
	return nil
}

func (s *MemoryStore) GetRecord(_ context.Context, id string) (*Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	record, ok := s.records[strings.TrimSpace(id)]
	if !ok {
		return nil, ErrNotFound
	}
	return &record, nil
}

func (s *MemoryStore) ListRecords(_ context.Context, correlationID string, limit int) ([]Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	limit = normalizeLimit(limit)
	out := make([]Record, 0, limit)
	for i := len(s.order) - 1; i >= 0; i-- {
		record := s.records[s.order[i]]
		if correlationID != "" && record.CorrelationID != correlationID {
			continue
		}
		out = append(out, record)
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Time.After(out[j].Time)
	})
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *MemoryStore) Close() error {
	return nil
}
