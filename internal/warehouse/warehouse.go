// Package warehouse executes read-only analytical SQL against the data
// warehouse and returns ordered tabular results.
package warehouse

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/rotisserie/eris"

	"github.com/sells-group/datagenie/internal/config"
	"github.com/sells-group/datagenie/internal/db"
	"github.com/sells-group/datagenie/internal/model"
)

// Engine runs one read-only statement. A statement that executes but matches
// nothing returns an empty table, not an error.
type Engine interface {
	Execute(ctx context.Context, statement string) (*model.Table, error)
	Close() error
}

// Options bounds each execution.
type Options struct {
	Timeout time.Duration
	MaxRows int
}

// New opens the configured warehouse engine.
func New(ctx context.Context, cfg config.WarehouseConfig) (Engine, error) {
	opts := Options{Timeout: cfg.Timeout(), MaxRows: cfg.MaxRows}
	switch cfg.Driver {
	case "postgres":
		pool, err := db.Connect(ctx, cfg.DatabaseURL, db.PoolConfig{
			MaxConns: cfg.MaxConns,
			MinConns: cfg.MinConns,
		})
		if err != nil {
			return nil, eris.Wrap(err, "warehouse: connect")
		}
		return NewPostgresEngine(pool, opts), nil
	case "sqlite":
		return OpenSQLite(cfg.DatabaseURL, opts)
	default:
		return nil, eris.Errorf("warehouse: unsupported driver %q", cfg.Driver)
	}
}

// Detail renders an execution error as the human-readable message handed to
// the repair step: the engine's own message, without wrapping context.
func Detail(err error) string {
	if err == nil {
		return ""
	}
	if eris.Is(err, ErrNotReadOnly) {
		return ErrNotReadOnly.Error()
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return "query timed out"
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		msg := pgErr.Message
		if pgErr.Detail != "" {
			msg += ": " + pgErr.Detail
		}
		if pgErr.Hint != "" {
			msg += fmt.Sprintf(" (hint: %s)", pgErr.Hint)
		}
		return msg
	}
	if cause := eris.Cause(err); cause != nil {
		return cause.Error()
	}
	return err.Error()
}

func withTimeout(ctx context.Context, d time.Duration) (context.Context, context.CancelFunc) {
	if d <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, d)
}
