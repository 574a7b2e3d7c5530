package logstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/ongoingai/debugkit/migrations"
)

const pgUniqueViolation = "23505"

type PostgresStore struct {
	DSN string
	db  *sql.DB
}

func NewPostgresStore(dsn string) (*PostgresStore, error) {
	if strings.TrimSpace(dsn) == "" {
		return nil, fmt.Errorf("postgres dsn cannot be empty")
	}

	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("open postgres database: %w", err)
	}
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(30 * time.Minute)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	if err := migrations.Apply(ctx, db, migrations.DriverPostgres); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ensure postgres schema: %w", err)
	}
	return &PostgresStore{DSN: dsn, db: db}, nil
}

func (s *PostgresStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// DB exposes the underlying handle for read-only instrumentation.
func (s *PostgresStore) DB() *sql.DB {
	return s.db
}

func (s *PostgresStore) WriteRecord(ctx context.Context, record *Record) error {
	if record == nil {
		return nil
	}
	_, err := s.db.ExecContext(ctx, `
INSERT INTO critical_logs (id, logged_at, level, message, correlation_id)
VALUES ($1, $2, $3, $4, $5)`,
		record.ID,
		record.Time.UTC(),
		record.Level,
		record.Message,
		record.CorrelationID,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation {
			return fmt.Errorf("write log %q: %w", record.ID, ErrDuplicateID)
		}
		return fmt.Errorf("write log %q: %w", record.ID, err)
	}
	return nil
}

func (s *PostgresStore) GetRecord(ctx context.Context, id string) (*Record, error) {
	var record Record
	err := s.db.QueryRowContext(ctx, `
SELECT id, logged_at, level, message, correlation_id
FROM critical_logs
WHERE id = $1`, strings.TrimSpace(id)).Scan(
		&record.ID, &record.Time, &record.Level, &record.Message, &record.CorrelationID,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get log %q: %w", id, err)
	}
	record.Time = record.Time.UTC()
	return &record, nil
}

func (s *PostgresStore) ListRecords(ctx context.Context, correlationID string, limit int) ([]Record, error) {
	rows, err := s.db.QueryContext(ctx, `
SELECT id, logged_at, level, message, correlation_id
FROM critical_logs
WHERE $1 = '' OR correlation_id = $1
ORDER BY logged_at DESC, created_at DESC
LIMIT $2`, correlationID, normalizeLimit(limit))
	if err != nil {
		return nil, fmt.Errorf("list logs: %w", err)
	}
	defer rows.Close()

	var out []Record
	for rows.Next() {
		var record Record
		if err := rows.Scan(&record.ID, &record.Time, &record.Level, &record.Message, &record.CorrelationID); err != nil {
			return nil, fmt.Errorf("scan log: %w", err)
		}
		record.Time = record.Time.UTC()
		out = append(out, record)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate logs: %w", err)
	}
	return out, nil
}
