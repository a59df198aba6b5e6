package warehouse

import (
	"context"
	"database/sql"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	_ "modernc.org/sqlite"

	"github.com/sells-group/datagenie/internal/model"
)

// SQLiteEngine executes statements against a local SQLite warehouse, used
// for offline analysis of an extract.
type SQLiteEngine struct {
	db   *sql.DB
	opts Options
}

// OpenSQLite opens path with query_only set so the connection cannot write.
func OpenSQLite(path string, opts Options) (*SQLiteEngine, error) {
	conn, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, eris.Wrap(err, "warehouse: open sqlite")
	}
	conn.SetMaxOpenConns(1)
	for _, pragma := range []string{
		"PRAGMA busy_timeout=5000",
		"PRAGMA query_only=1",
	} {
		if _, err := conn.Exec(pragma); err != nil {
			conn.Close()
			return nil, eris.Wrapf(err, "warehouse: exec %s", pragma)
		}
	}
	return NewSQLiteEngine(conn, opts), nil
}

// NewSQLiteEngine wraps an open database.
func NewSQLiteEngine(conn *sql.DB, opts Options) *SQLiteEngine {
	return &SQLiteEngine{db: conn, opts: opts}
}

// Execute implements Engine.
func (e *SQLiteEngine) Execute(ctx context.Context, statement string) (*model.Table, error) {
	stmt, err := Guard(statement)
	if err != nil {
		return nil, err
	}

	ctx, cancel := withTimeout(ctx, e.opts.Timeout)
	defer cancel()

	rows, err := e.db.QueryContext(ctx, stmt)
	if err != nil {
		return nil, eris.Wrap(err, "warehouse: query")
	}
	defer rows.Close()

	cols, err := rows.Columns()
	if err != nil {
		return nil, eris.Wrap(err, "warehouse: columns")
	}
	table := &model.Table{Columns: cols, Rows: [][]any{}}

	for rows.Next() {
		if e.opts.MaxRows > 0 && len(table.Rows) >= e.opts.MaxRows {
			zap.L().Warn("warehouse: result truncated", zap.Int("max_rows", e.opts.MaxRows))
			break
		}
		vals := make([]any, len(cols))
		ptrs := make([]any, len(cols))
		for i := range vals {
			ptrs[i] = &vals[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, eris.Wrap(err, "warehouse: scan row")
		}
		for i, v := range vals {
			if b, ok := v.([]byte); ok {
				vals[i] = string(b)
			}
		}
		table.Rows = append(table.Rows, vals)
	}
	if err := rows.Err(); err != nil {
		return nil, eris.Wrap(err, "warehouse: iterate rows")
	}
	return table, nil
}

// Close closes the database.
func (e *SQLiteEngine) Close() error {
	return e.db.Close()
}
