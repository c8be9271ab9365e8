package main

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"loreweave/internal/config"
	"loreweave/internal/schema"
	"loreweave/internal/store"
	"loreweave/internal/store/postgres"
	"loreweave/internal/store/remote"
	"loreweave/internal/store/sqlite"
)

func openStore(ctx context.Context, cfg *config.ProjectConfig, registry *schema.Registry, log *zap.Logger) (store.Store, error) {
	switch cfg.Database.Driver {
	case "sqlite":
		return sqlite.New(ctx, cfg.Database.DSN, registry)
	case "postgres":
		return postgres.New(ctx, cfg.Database.DSN, registry)
	case "remote":
		return remote.New(ctx, cfg.Database.DSN, log)
	default:
		return nil, fmt.Errorf("unsupported database driver: %s", cfg.Database.Driver)
	}
}
