package logstore

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/ongoingai/debugkit/internal/correlation"
)

// LevelCritical sits above slog.LevelError.
const LevelCritical = slog.Level(12)

const (
	levelCriticalName       = "CRITICAL"
	maxTrackedCorrelationID = 256
)

// ReplaceLevelName renders LevelCritical as "CRITICAL" in slog output. Use it
// as slog.HandlerOptions.ReplaceAttr.
func ReplaceLevelName(_ []string, attr slog.Attr) slog.Attr {
	if attr.Key != slog.LevelKey {
		return attr
	}
	if level, ok := attr.Value.Any().(slog.Level); ok && level == LevelCritical {
		attr.Value = slog.StringValue(levelCriticalName)
	}
	return attr
}

// Logger writes critical records to a Store and remembers the most recent
// one so it can be referenced from an error page.
type Logger struct {
	store  Store
	logger *slog.Logger
	now    func() time.Time
	newID  func() string

	mu            sync.Mutex
	last          *Record
	byCorrelation map[string]Record
	correlationQ  []string
}

type LoggerOptions struct {
	// Logger mirrors each critical record to slog when set.
	Logger *slog.Logger
	Now    func() time.Time
	NewID  func() string
}

func NewLogger(store Store, opts LoggerOptions) (*Logger, error) {
	if store == nil {
		return nil, errors.New("log store is required")
	}
	l := &Logger{
		store:         store,
		logger:        opts.Logger,
		now:           opts.Now,
		newID:         opts.NewID,
		byCorrelation: make(map[string]Record),
	}
	if l.now == nil {
		l.now = time.Now
	}
	if l.newID == nil {
		l.newID = uuid.NewString
	}
	return l, nil
}

// LogCritical persists message at critical severity.
func (l *Logger) LogCritical(ctx context.Context, message string) error {
	if ctx == nil {
		ctx = context.Background()
	}
	record := Record{
		ID:      l.newID(),
		Time:    l.now().UTC(),
		Level:   levelCriticalName,
		Message: message,
	}
	if id, ok := correlation.FromContext(ctx); ok {
		record.CorrelationID = id
	}

	if err := l.store.WriteRecord(ctx, &record); err != nil {
		return fmt.Errorf("log critical: %w", err)
	}
	if l.logger != nil {
		l.logger.LogAttrs(ctx, LevelCritical, firstLine(message),
			slog.String("log_id", record.ID),
			slog.String("correlation_id", record.CorrelationID),
		)
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	l.last = &record
	if record.CorrelationID != "" {
		if _, seen := l.byCorrelation[record.CorrelationID]; !seen {
			l.correlationQ = append(l.correlationQ, record.CorrelationID)
			if len(l.correlationQ) > maxTrackedCorrelationID {
				delete(l.byCorrelation, l.correlationQ[0])
				l.correlationQ = l.correlationQ[1:]
			}
		}
		l.byCorrelation[record.CorrelationID] = record
	}
	return nil
}

// LastLog returns the latest record written for the request in ctx, or the
// latest record overall when ctx carries no correlation id.
func (l *Logger) LastLog(ctx context.Context) (Record, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if id, ok := correlation.FromContext(ctx); ok {
		record, found := l.byCorrelation[id]
		return record, found
	}
	if l.last == nil {
		return Record{}, false
	}
	return *l.last, true
}

func (l *Logger) LastLogID(ctx context.Context) (string, bool) {
	record, ok := l.LastLog(ctx)
	if !ok {
		return "", false
	}
	return record.ID, true
}

func (l *Logger) Store() Store {
	return l.store
}

func firstLine(message string) string {
	if idx := strings.IndexByte(message, '\n'); idx >= 0 {
		return message[:idx]
	}
	return message
}
