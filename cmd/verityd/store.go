package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/xraph/grove"
	"github.com/xraph/grove/drivers/mongodriver"
	"github.com/xraph/grove/drivers/pgdriver"

	"github.com/xraph/verity/config"
	"github.com/xraph/verity/store"
	"github.com/xraph/verity/store/memory"
	"github.com/xraph/verity/store/mongo"
	"github.com/xraph/verity/store/postgres"
	"github.com/xraph/verity/store/sqlite"
)

// openStore connects the configured backend.
func openStore(ctx context.Context, cfg config.StoreConfig) (store.Store, error) {
	switch cfg.Driver {
	case "memory":
		return memory.New(), nil

	case "sqlite":
		if dir := filepath.Dir(cfg.DSN); cfg.DSN != ":memory:" && dir != "." {
			if err := os.MkdirAll(dir, 0o750); err != nil {
				return nil, fmt.Errorf("create sqlite dir: %w", err)
			}
		}
		return sqlite.Open(cfg.DSN)

	case "postgres":
		pdb := pgdriver.New()
		if err := pdb.Open(ctx, cfg.DSN); err != nil {
			return nil, fmt.Errorf("open postgres: %w", err)
		}
		db, err := grove.Open(pdb)
		if err != nil {
			return nil, fmt.Errorf("grove: %w", err)
		}
		return postgres.New(db), nil

	case "mongo":
		var opts []mongodriver.MongoOption
		if cfg.Database != "" {
			opts = append(opts, mongodriver.WithDatabase(cfg.Database))
		}
		mdb := mongodriver.New()
		if err := mdb.Open(ctx, cfg.DSN, opts...); err != nil {
			return nil, fmt.Errorf("open mongo: %w", err)
		}
		db, err := grove.Open(mdb)
		if err != nil {
			return nil, fmt.Errorf("grove: %w", err)
		}
		return mongo.New(db), nil

	default:
		return nil, fmt.Errorf("unknown store driver %q", cfg.Driver)
	}
}
