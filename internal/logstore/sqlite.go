package logstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/ongoingai/debugkit/migrations"

	_ "modernc.org/sqlite"
)

type SQLiteStore struct {
	Path string
	db   *sql.DB
	// SQLite allows one writer at a time.
	writeMu sync.Mutex
}

func NewSQLiteStore(path string) (*SQLiteStore, error) {
	if path == "" {
		return nil, fmt.Errorf("sqlite path cannot be empty")
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create sqlite directory %q: %w", dir, err)
		}
	}

	db, err := sql.Open("sqlite", "file:"+path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite database %q: %w", path, err)
	}
	store := &SQLiteStore{Path: path, db: db}

	for _, pragma := range []string{
		`PRAGMA journal_mode = WAL;`,
		`PRAGMA synchronous = NORMAL;`,
		`PRAGMA busy_timeout = 5000;`,
	} {
		if _, err := db.Exec(pragma); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("configure sqlite (%s): %w", strings.TrimSuffix(pragma, ";"), err)
		}
	}
	if err := migrations.Apply(context.Background(), db, migrations.DriverSQLite); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ensure sqlite schema: %w", err)
	}
	return store, nil
}

func (s *SQLiteStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// DB exposes the underlying handle for read-only instrumentation.
func (s *SQLiteStore) DB() *sql.DB {
	return s.db
}

func (s *SQLiteStore) WriteRecord(ctx context.Context, record *Record) error {
	if record == nil {
		return nil
	}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	err := retrySQLiteBusy(ctx, func() error {
		_, err := s.db.ExecContext(ctx, `
INSERT INTO critical_logs (id, logged_at, level, message, correlation_id)
VALUES (?, ?, ?, ?, ?)`,
			record.ID,
			record.Time.UTC().Format(sqliteTimeLayout),
			record.Level,
			record.Message,
			record.CorrelationID,
		)
		return err
	})
	if err != nil {
		if isSQLiteConstraintError(err) {
			return fmt.Errorf("write log %q: %w", record.ID, ErrDuplicateID)
		}
		return fmt.Errorf("write log %q: %w", record.ID, err)
	}
	return nil
}

func (s *SQLiteStore) GetRecord(ctx context.Context, id string) (*Record, error) {
	row := s.db.QueryRowContext(ctx, `
SELECT id, logged_at, level, message, correlation_id
FROM critical_logs
WHERE id = ?`, strings.TrimSpace(id))

	record, err := scanSQLiteRecord(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get log %q: %w", id, err)
	}
	return record, nil
}

func (s *SQLiteStore) ListRecords(ctx context.Context, correlationID string, limit int) ([]Record, error) {
	query := `
SELECT id, logged_at, level, message, correlation_id
FROM critical_logs`
	args := []any{}
	if correlationID != "" {
		query += ` WHERE correlation_id = ?`
		args = append(args, correlationID)
	}
	query += ` ORDER BY logged_at DESC, rowid DESC LIMIT ?`
	args = append(args, normalizeLimit(limit))

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list logs: %w", err)
	}
	defer rows.Close()

	var out []Record
	for rows.Next() {
		record, err := scanSQLiteRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("scan log: %w", err)
		}
		out = append(out, *record)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate logs: %w", err)
	}
	return out, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSQLiteRecord(row rowScanner) (*Record, error) {
	var (
		record   Record
		loggedAt string
	)
	if err := row.Scan(&record.ID, &loggedAt, &record.Level, &record.Message, &record.CorrelationID); err != nil {
		return nil, err
	}
	parsed, err := time.Parse(time.RFC3339Nano, loggedAt)
	if err != nil {
		return nil, fmt.Errorf("parse logged_at %q: %w", loggedAt, err)
	}
	record.Time = parsed
	return &record, nil
}

// Fixed width so logged_at sorts lexically.
const sqliteTimeLayout = "2006-01-02T15:04:05.000000000Z07:00"

const (
	sqliteBusyMaxRetries     = 12
	sqliteBusyInitialBackoff = 5 * time.Millisecond
	sqliteBusyMaxBackoff     = 250 * time.Millisecond
)

func retrySQLiteBusy(ctx context.Context, fn func() error) error {
	if ctx == nil {
		ctx = context.Background()
	}

	for retries := 0; ; retries++ {
		err := fn()
		if err == nil {
			return nil
		}
		if !isSQLiteBusyError(err) || retries >= sqliteBusyMaxRetries {
			return err
		}

		wait := sqliteBusyInitialBackoff << retries
		if wait > sqliteBusyMaxBackoff {
			wait = sqliteBusyMaxBackoff
		}
		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
}

func isSQLiteBusyError(err error) bool {
	value := strings.ToLower(err.Error())
	return strings.Contains(value, "sqlite_busy") || strings.Contains(value, "database is locked")
}

func isSQLiteConstraintError(err error) bool {
	value := strings.ToLower(err.Error())
	return strings.Contains(value, "unique constraint") || strings.Contains(value, "constraint failed")
}
