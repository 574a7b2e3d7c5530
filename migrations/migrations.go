// Package migrations embeds the log store schema for every supported driver.
package migrations

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"io/fs"
	"path"
	"sort"
	"strings"
)

const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

//go:embed sqlite/*.sql postgres/*.sql
var embedded embed.FS

type dialect struct {
	trackingDDL string
	claimSQL    string
}

var dialects = map[string]dialect{
	DriverSQLite: {
		trackingDDL: `
CREATE TABLE IF NOT EXISTS schema_migrations (
    name TEXT PRIMARY KEY,
    applied_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);
`,
		claimSQL: `INSERT OR IGNORE INTO schema_migrations (name) VALUES (?)`,
	},
	DriverPostgres: {
		trackingDDL: `
CREATE TABLE IF NOT EXISTS schema_migrations (
    name TEXT PRIMARY KEY,
    applied_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);
`,
		claimSQL: `INSERT INTO schema_migrations (name) VALUES ($1) ON CONFLICT (name) DO NOTHING`,
	},
}

// Names lists the embedded migrations for driver in apply order.
func Names(driver string) ([]string, error) {
	driver = strings.ToLower(strings.TrimSpace(driver))
	if _, ok := dialects[driver]; !ok {
		return nil, fmt.Errorf("unsupported migration driver %q", driver)
	}
	entries, err := fs.ReadDir(embedded, driver)
	if err != nil {
		return nil, fmt.Errorf("read embedded %s migrations: %w", driver, err)
	}
	names := make([]string, 0, len(entries))
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(strings.ToLower(entry.Name()), ".sql") {
			continue
		}
		names = append(names, path.Join(driver, entry.Name()))
	}
	sort.Strings(names)
	return names, nil
}

// Apply runs each embedded migration for driver once, recording it in
// schema_migrations.
func Apply(ctx context.Context, db *sql.DB, driver string) error {
	if db == nil {
		return fmt.Errorf("database is required")
	}
	if ctx == nil {
		ctx = context.Background()
	}

	names, err := Names(driver)
	if err != nil {
		return err
	}
	d := dialects[strings.ToLower(strings.TrimSpace(driver))]
	if _, err := db.ExecContext(ctx, d.trackingDDL); err != nil {
		return fmt.Errorf("ensure schema_migrations table: %w", err)
	}

	for _, name := range names {
		body, err := embedded.ReadFile(name)
		if err != nil {
			return fmt.Errorf("read migration %s: %w", name, err)
		}
		if err := d.apply(ctx, db, name, string(body)); err != nil {
			return fmt.Errorf("apply migration %s: %w", name, err)
		}
	}
	return nil
}

func (d dialect) apply(ctx context.Context, db *sql.DB, name, statement string) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	res, err := tx.ExecContext(ctx, d.claimSQL, name)
	if err != nil {
		return fmt.Errorf("insert schema_migrations row: %w", err)
	}
	claimed, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("read insert row count: %w", err)
	}
	if claimed == 0 {
		return nil
	}

	if _, err := tx.ExecContext(ctx, statement); err != nil {
		return fmt.Errorf("execute migration sql: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}
