package main

import (
	"context"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/datagenie/internal/catalog"
	"github.com/sells-group/datagenie/internal/db"
	"github.com/sells-group/datagenie/internal/oracle"
	"github.com/sells-group/datagenie/internal/pipeline"
	"github.com/sells-group/datagenie/internal/render"
	"github.com/sells-group/datagenie/internal/resilience"
	"github.com/sells-group/datagenie/internal/store"
	"github.com/sells-group/datagenie/internal/warehouse"
)

// pipelineEnv holds the store, warehouse engine, oracle breakers and pipeline
// used by the ask/batch/serve commands.
type pipelineEnv struct {
	Store     store.Store
	Warehouse warehouse.Engine
	Breakers  *resilience.Breakers
	Pipeline  *pipeline.Pipeline
}

// Close releases resources held by the pipeline environment.
func (pe *pipelineEnv) Close() {
	if pe.Warehouse != nil {
		_ = pe.Warehouse.Close()
	}
	if pe.Store != nil {
		_ = pe.Store.Close()
	}
}

// initPipeline validates config for mode, opens the store and warehouse,
// loads the catalog and builds the Pipeline. Callers should defer env.Close().
func initPipeline(ctx context.Context, mode string) (*pipelineEnv, error) {
	if err := cfg.Validate(mode); err != nil {
		return nil, err
	}

	cat, err := catalog.Load(cfg.Catalog.Path)
	if err != nil {
		return nil, err
	}
	zap.L().Info("catalog loaded",
		zap.String("path", cfg.Catalog.Path),
		zap.Strings("tables", cat.Tables()),
	)

	breakers := oracle.NewBreakers(cfg.Oracle)
	orc, err := oracle.New(cfg.Oracle, breakers)
	if err != nil {
		return nil, err
	}

	st, err := openStore(ctx)
	if err != nil {
		return nil, err
	}

	eng, err := warehouse.New(ctx, cfg.Warehouse)
	if err != nil {
		_ = st.Close()
		return nil, err
	}

	p := pipeline.New(cfg, st, orc, eng, render.NewECharts(cfg.Render.OutputDir), cat)

	return &pipelineEnv{Store: st, Warehouse: eng, Breakers: breakers, Pipeline: p}, nil
}

// openStore opens and migrates the configured run/results store.
func openStore(ctx context.Context) (store.Store, error) {
	st, err := initStore(ctx)
	if err != nil {
		return nil, err
	}
	if err := st.Migrate(ctx); err != nil {
		_ = st.Close()
		return nil, eris.Wrap(err, "migrate store")
	}
	return st, nil
}

func initStore(ctx context.Context) (store.Store, error) {
	switch cfg.Store.Driver {
	case "sqlite", "":
		dsn := cfg.Store.DatabaseURL
		if dsn == "" {
			dsn = "datagenie.db"
		}
		return store.NewSQLite(dsn)
	case "postgres":
		return store.NewPostgres(ctx, cfg.Store.DatabaseURL, db.PoolConfig{})
	default:
		return nil, eris.Errorf("unsupported store driver: %s", cfg.Store.Driver)
	}
}
