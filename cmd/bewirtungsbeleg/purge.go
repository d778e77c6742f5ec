package main

import (
	"context"
	"fmt"
	"os"

	"github.com/urfave/cli/v3"

	"github.com/tendant/bewirtungsbeleg/internal/config"
	"github.com/tendant/bewirtungsbeleg/internal/repository"
)

// purgeTokens removes expired rows. Redis and memory stores expire entries
// on their own.
func purgeTokens(ctx context.Context, _ *cli.Command) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}
	logger := newLogger(os.Stderr, cfg.LogLevel, cfg.LogFormat)

	if cfg.TokenStore != config.StorePostgres {
		logger.Info("nothing to purge", "backend", cfg.TokenStore)
		return nil
	}

	db, err := openDB(cfg)
	if err != nil {
		return err
	}
	defer db.Close()

	n, err := repository.NewPostgresTokenStore(db).PurgeExpired(ctx)
	if err != nil {
		return fmt.Errorf("failed to purge tokens: %w", err)
	}
	logger.Info("expired tokens purged", "count", n)
	return nil
}
