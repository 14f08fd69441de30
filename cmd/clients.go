package main

import (
	"context"

	"github.com/rotisserie/eris"

	"github.com/estimap/recreation/internal/engine"
	"github.com/estimap/recreation/internal/resilience"
	"github.com/estimap/recreation/internal/store"
)

// initStore opens and migrates the run ledger.
func initStore(ctx context.Context) (store.Store, error) {
	switch cfg.Store.Driver {
	case "sqlite", "":
		dsn := cfg.Store.DatabaseURL
		if dsn == "" {
			dsn = "estimap.db"
		}
		st, err := store.NewSQLite(dsn)
		if err != nil {
			return nil, err
		}
		if err := st.Migrate(ctx); err != nil {
			_ = st.Close()
			return nil, eris.Wrap(err, "migrate store")
		}
		return st, nil
	default:
		return nil, eris.Errorf("unsupported store driver: %s", cfg.Store.Driver)
	}
}

// newEngine returns a GRASS engine that retries commands refused by a
// locked mapset.
func newEngine() *engine.Engine {
	policy := resilience.FromConfig(cfg.Retry.MaxAttempts, cfg.Retry.InitialBackoffMs, cfg.Retry.MaxBackoffMs)
	return engine.New(engine.NewRetryRunner(engine.NewGRASS(cfg.Grass), policy))
}
