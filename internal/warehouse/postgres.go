package warehouse

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/datagenie/internal/db"
	"github.com/sells-group/datagenie/internal/model"
)

// PostgresEngine executes statements inside a read-only transaction.
type PostgresEngine struct {
	pool db.Pool
	opts Options
}

// NewPostgresEngine creates a PostgresEngine over pool.
func NewPostgresEngine(pool db.Pool, opts Options) *PostgresEngine {
	return &PostgresEngine{pool: pool, opts: opts}
}

// Execute implements Engine.
func (e *PostgresEngine) Execute(ctx context.Context, statement string) (*model.Table, error) {
	stmt, err := Guard(statement)
	if err != nil {
		return nil, err
	}

	ctx, cancel := withTimeout(ctx, e.opts.Timeout)
	defer cancel()

	tx, err := e.pool.BeginTx(ctx, pgx.TxOptions{AccessMode: pgx.ReadOnly})
	if err != nil {
		return nil, eris.Wrap(err, "warehouse: begin read-only tx")
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	rows, err := tx.Query(ctx, stmt)
	if err != nil {
		return nil, eris.Wrap(err, "warehouse: query")
	}
	defer rows.Close()

	fields := rows.FieldDescriptions()
	table := &model.Table{Columns: make([]string, len(fields)), Rows: [][]any{}}
	for i, f := range fields {
		table.Columns[i] = f.Name
	}

	for rows.Next() {
		if e.opts.MaxRows > 0 && len(table.Rows) >= e.opts.MaxRows {
			zap.L().Warn("warehouse: result truncated", zap.Int("max_rows", e.opts.MaxRows))
			break
		}
		vals, err := rows.Values()
		if err != nil {
			return nil, eris.Wrap(err, "warehouse: scan row")
		}
		for i, v := range vals {
			vals[i] = normalizePG(v)
		}
		table.Rows = append(table.Rows, vals)
	}
	if err := rows.Err(); err != nil {
		return nil, eris.Wrap(err, "warehouse: iterate rows")
	}
	return table, nil
}

// Close releases the pool.
func (e *PostgresEngine) Close() error {
	e.pool.Close()
	return nil
}

// normalizePG converts pgx driver values into JSON- and chart-friendly Go
// values.
func normalizePG(v any) any {
	switch x := v.(type) {
	case pgtype.Numeric:
		if !x.Valid {
			return nil
		}
		f, err := x.Float64Value()
		if err != nil || !f.Valid {
			return nil
		}
		return f.Float64
	case [16]byte:
		return uuid.UUID(x).String()
	case []byte:
		return string(x)
	default:
		return v
	}
}
