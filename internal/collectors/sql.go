package collectors

import (
	"context"
	"database/sql"
	"strings"
	"sync"
	"time"

	"github.com/ongoingai/debugkit/internal/debug"
)

const sqlClass = "collectors.SQLCollector"

var sqlContents = newContentsTemplate("sql", `{{if .Statements}}<table>
<thead><tr><th>#</th><th>Statement</th><th>Rows</th><th>Time</th></tr></thead>
<tbody>{{range $i, $s := .Statements}}
<tr><td>{{inc $i}}</td><td><pre>{{$s.Query}}</pre>{{if $s.Error}}<p class="error">{{$s.Error}}</p>{{end}}</td><td>{{if ge $s.RowsAffected 0}}{{$s.RowsAffected}}{{end}}</td><td>{{ms $s.Seconds}} ms</td></tr>{{end}}
</tbody>
</table>{{else}}<p>No statements were executed.</p>{{end}}`)

// Statement is one SQL call recorded by a SQLCollector.
type Statement struct {
	Query string `json:"query"`
	// RowsAffected is -1 when unknown, as for queries.
	RowsAffected int64   `json:"rows_affected"`
	Error        string  `json:"error,omitempty"`
	Start        float64 `json:"start"`
	End          float64 `json:"end"`
}

func (s Statement) Seconds() float64 {
	return s.End - s.Start
}

// SQLCollector records statements run through the DB returned by Wrap.
type SQLCollector struct {
	*debug.BaseCollector
	now func() time.Time

	mu         sync.Mutex
	statements []Statement
}

func NewSQLCollector(name string) *SQLCollector {
	return &SQLCollector{
		BaseCollector: debug.NewBaseCollector(nameOr(name, "SQL"), sqlClass),
		now:           time.Now,
	}
}

// Wrap returns db instrumented with this collector.
func (c *SQLCollector) Wrap(db *sql.DB) *DB {
	return &DB{DB: db, collector: c}
}

func (c *SQLCollector) Statements() []Statement {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]Statement, len(c.statements))
	copy(out, c.statements)
	return out
}

func (c *SQLCollector) Activities() []debug.Activity {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.BaseCollector.Activities()
}

func (c *SQLCollector) Contents() (string, error) {
	return renderContents(sqlContents, struct{ Statements []Statement }{Statements: c.Statements()})
}

func (c *SQLCollector) record(query string, start, end time.Time, rowsAffected int64, err error) {
	statement := Statement{
		Query:        strings.TrimSpace(query),
		RowsAffected: rowsAffected,
		Start:        unixSeconds(start),
		End:          unixSeconds(end),
	}
	if err != nil {
		statement.Error = err.Error()
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.statements = append(c.statements, statement)
	c.AddActivity(debug.Activity{
		Description: firstSQLLine(statement.Query),
		Start:       statement.Start,
		End:         statement.End,
	})
}

func firstSQLLine(query string) string {
	if idx := strings.IndexByte(query, '\n'); idx >= 0 {
		return strings.TrimSpace(query[:idx]) + " ..."
	}
	return query
}

// DB is a *sql.DB whose context-aware calls are recorded. Methods not
// overridden here pass through unrecorded.
type DB struct {
	*sql.DB
	collector *SQLCollector
}

func (db *DB) ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error) {
	start := db.collector.now()
	result, err := db.DB.ExecContext(ctx, query, args...)
	affected := int64(-1)
	if err == nil {
		if n, rowsErr := result.RowsAffected(); rowsErr == nil {
			affected = n
		}
	}
	db.collector.record(query, start, db.collector.now(), affected, err)
	return result, err
}

func (db *DB) QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error) {
	start := db.collector.now()
	rows, err := db.DB.QueryContext(ctx, query, args...)
	db.collector.record(query, start, db.collector.now(), -1, err)
	return rows, err
}

func (db *DB) QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row {
	start := db.collector.now()
	row := db.DB.QueryRowContext(ctx, query, args...)
	db.collector.record(query, start, db.collector.now(), -1, row.Err())
	return row
}
