package main

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"cloud.google.com/go/datastore"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/sethvargo/go-retry"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	ar "github.com/panyam/authrepo"
	"github.com/panyam/authrepo/internal/config"
	"github.com/panyam/authrepo/stores/fs"
	gaestore "github.com/panyam/authrepo/stores/gae"
	gormstore "github.com/panyam/authrepo/stores/gorm"
	"github.com/panyam/authrepo/stores/pg"
	redisstore "github.com/panyam/authrepo/stores/redis"
)

// connect retries fn with exponential backoff until it succeeds or timeout
// runs out.
func connect(ctx context.Context, backend string, timeout time.Duration, fn func(ctx context.Context) error) error {
	backoff := retry.NewExponential(250 * time.Millisecond)
	backoff = retry.WithCappedDuration(5*time.Second, backoff)
	backoff = retry.WithMaxDuration(timeout, backoff)

	attempt := 0
	return retry.Do(ctx, backoff, func(ctx context.Context) error {
		attempt++
		if err := fn(ctx); err != nil {
			slog.Warn("store not reachable", "backend", backend, "attempt", attempt, "err", err)
			return retry.RetryableError(err)
		}
		return nil
	})
}

// openStore connects to the configured backend.  The returned func releases
// its connections.
func openStore(ctx context.Context, cfg config.StoreConfig) (ar.IdentityStore, func(), error) {
	noop := func() {}
	switch cfg.Backend {
	case config.BackendFS:
		return fs.NewFSIdentityStore(cfg.FS.Path), noop, nil

	case config.BackendGorm:
		var db *gorm.DB
		err := connect(ctx, cfg.Backend, cfg.ConnectTimeout, func(ctx context.Context) error {
			opened, err := gorm.Open(postgres.Open(cfg.Gorm.DSN), &gorm.Config{
				Logger: gormlogger.Default.LogMode(gormlogger.Silent),
			})
			if err != nil {
				return err
			}
			sqlDB, err := opened.DB()
			if err != nil {
				return err
			}
			if err := sqlDB.PingContext(ctx); err != nil {
				sqlDB.Close()
				return err
			}
			db = opened
			return nil
		})
		if err != nil {
			return nil, nil, fmt.Errorf("connecting to gorm backend: %w", err)
		}
		closeDB := func() {
			if sqlDB, err := db.DB(); err == nil {
				sqlDB.Close()
			}
		}
		return gormstore.NewIdentityStore(db), closeDB, nil

	case config.BackendPostgres:
		var pool *pgxpool.Pool
		err := connect(ctx, cfg.Backend, cfg.ConnectTimeout, func(ctx context.Context) error {
			opened, err := pgxpool.New(ctx, cfg.Postgres.URL)
			if err != nil {
				return err
			}
			if err := opened.Ping(ctx); err != nil {
				opened.Close()
				return err
			}
			pool = opened
			return nil
		})
		if err != nil {
			return nil, nil, fmt.Errorf("connecting to postgres backend: %w", err)
		}
		store := pg.NewIdentityStoreWithPool(ctx, pool, cfg.Postgres.URL)
		return store, store.Close, nil

	case config.BackendRedis:
		var store *redisstore.IdentityStore
		var closeClient func()
		err := connect(ctx, cfg.Backend, cfg.ConnectTimeout, func(ctx context.Context) error {
			client, err := redisstore.NewUniversalClient(ctx, cfg.Redis.ClientConfig)
			if err != nil {
				return err
			}
			store = redisstore.NewIdentityStore(client, cfg.Redis.Prefix).WithContext(ctx)
			closeClient = func() { client.Close() }
			return nil
		})
		if err != nil {
			return nil, nil, fmt.Errorf("connecting to redis backend: %w", err)
		}
		return store, closeClient, nil

	case config.BackendDatastore:
		client, err := datastore.NewClient(ctx, cfg.Datastore.ProjectID)
		if err != nil {
			return nil, nil, fmt.Errorf("creating datastore client: %w", err)
		}
		store := gaestore.NewIdentityStore(client, cfg.Datastore.Namespace).WithContext(ctx)
		return store, func() { client.Close() }, nil
	}
	return nil, nil, fmt.Errorf("unknown store backend %q", cfg.Backend)
}
