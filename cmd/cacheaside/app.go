package main

import (
	"context"
	"errors"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/unkn0wn-root/cacheaside"
	"github.com/unkn0wn-root/cacheaside/codec"
	"github.com/unkn0wn-root/cacheaside/internal/config"
	"github.com/unkn0wn-root/cacheaside/internal/sqlsource"
	zaplog "github.com/unkn0wn-root/cacheaside/log/zap"
	rp "github.com/unkn0wn-root/cacheaside/provider/redis"
)

const maxRecordBytes = 1 << 20

// app is the wiring shared by every subcommand.
type app struct {
	cfg    *config.Config
	log    *zap.Logger
	source *sqlsource.Source
	client cacheaside.Client[string, sqlsource.Record]
	locker *cacheaside.Locker
}

func newLogger(cfg config.LogConfig) (*zap.Logger, error) {
	lvl, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return nil, fmt.Errorf("LOG_LEVEL: %w", err)
	}
	zc := zap.NewProductionConfig()
	if cfg.Debug {
		zc = zap.NewDevelopmentConfig()
	}
	zc.Level = zap.NewAtomicLevelAt(lvl)
	return zc.Build()
}

// newApp connects to Redis and the SQL source. withSource=false skips the
// SQL connection for commands that only touch the cache.
func newApp(ctx context.Context, cfg *config.Config, withSource bool) (*app, error) {
	logger, err := newLogger(cfg.Log)
	if err != nil {
		return nil, err
	}

	rdb := goredis.NewClient(&goredis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("failed to reach redis at %s: %w", cfg.Redis.Addr, err)
	}

	provider, err := rp.New(rp.Config{Client: rdb, CloseClient: true})
	if err != nil {
		return nil, err
	}

	l := zaplog.New(logger.Named("cacheaside"))
	locker, err := cacheaside.NewLocker(cacheaside.LockerOptions{
		Provider:   provider,
		Prefix:     cfg.Cache.LockPrefix,
		DefaultTTL: cfg.Cache.LockTTL,
		Logger:     l,
	})
	if err != nil {
		_ = provider.Close(ctx)
		return nil, err
	}

	client, err := cacheaside.New[string, sqlsource.Record](cacheaside.Options[sqlsource.Record]{
		Provider:       provider,
		Codec:          codec.Limit[sqlsource.Record]{Inner: codec.JSON[sqlsource.Record]{}, MaxDecode: maxRecordBytes},
		Logger:         l,
		DefaultTTL:     cfg.Cache.TTL,
		NullTTL:        cfg.Cache.NullTTL,
		RebuildLockTTL: cfg.Cache.LockTTL,
		Locker:         locker,
		Workers:        cfg.Cache.RebuildWorkers,
	})
	if err != nil {
		_ = provider.Close(ctx)
		return nil, err
	}

	a := &app{cfg: cfg, log: logger, client: client, locker: locker}
	if withSource {
		src, err := sqlsource.Open(ctx, cfg.Source.Driver, cfg.Source.DSN, cfg.Source.Table, cfg.Source.IDColumn)
		if err != nil {
			_ = client.Close(ctx)
			return nil, err
		}
		a.source = src
	}
	return a, nil
}

// Close waits for background rebuilds, then releases connections.
func (a *app) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	errs := []error{a.client.Close(ctx)}
	if a.source != nil {
		errs = append(errs, a.source.Close())
	}
	_ = a.log.Sync()
	return errors.Join(errs...)
}

func (a *app) key(id string) string { return a.cfg.Cache.Prefix + id }
