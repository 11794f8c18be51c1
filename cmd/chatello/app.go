package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"chatello/gateway/pkg/cache"
	"chatello/gateway/pkg/catalog"
	"chatello/gateway/pkg/cli"
	"chatello/gateway/pkg/config"
	"chatello/gateway/pkg/licensing"
	"chatello/gateway/pkg/storage"
	"chatello/gateway/pkg/storage/mongo"
	"chatello/gateway/pkg/telemetry/metrics"
)

// app holds the persistence components shared by every command.
type app struct {
	cfg      *config.Config
	logger   *slog.Logger
	metrics  *metrics.Collector
	store    storage.Store
	cache    cache.Cache
	registry *licensing.Registry
	syncer   *catalog.Syncer
}

// openApp connects the configured storage and cache backends. collector may
// be nil.
func openApp(ctx context.Context, cfg *config.Config, logger *slog.Logger, collector *metrics.Collector) (*app, error) {
	store, err := openStore(ctx, cfg.Storage)
	if err != nil {
		return nil, err
	}

	c, err := openCache(ctx, cfg.Cache)
	if err != nil {
		_ = store.Close()
		return nil, err
	}

	registry := licensing.NewRegistry(store, c, cfg.Cache.TTL, logger)
	return &app{
		cfg:      cfg,
		logger:   logger,
		metrics:  collector,
		store:    store,
		cache:    c,
		registry: registry,
		syncer:   catalog.NewSyncer(store, registry, logger),
	}, nil
}

func openStore(ctx context.Context, cfg config.StorageConfig) (storage.Store, error) {
	switch cfg.Backend {
	case "memory":
		return storage.NewMemoryStore(), nil
	case "sqlite":
		s, err := storage.NewSQLiteStore(cfg.SQLite)
		if err != nil {
			return nil, fmt.Errorf("failed to open sqlite store: %w", err)
		}
		return s, nil
	case "mongo":
		s, err := mongo.New(ctx, cfg.Mongo)
		if err != nil {
			return nil, fmt.Errorf("failed to open mongo store: %w", err)
		}
		return s, nil
	}
	return nil, cli.NewConfigError("storage.backend", fmt.Sprintf("unsupported backend %q", cfg.Backend))
}

func openCache(ctx context.Context, cfg config.CacheConfig) (cache.Cache, error) {
	switch cfg.Backend {
	case "memory":
		return cache.NewMemoryCache(), nil
	case "redis":
		c, err := cache.NewRedisCache(ctx, cfg.Redis)
		if err != nil {
			return nil, fmt.Errorf("failed to connect plan cache: %w", err)
		}
		return c, nil
	}
	return nil, cli.NewConfigError("cache.backend", fmt.Sprintf("unsupported backend %q", cfg.Backend))
}

// syncCatalog seeds the built-in plans into an empty store and applies the
// catalog file when one is configured.
func (a *app) syncCatalog(ctx context.Context) error {
	if a.cfg.Catalog.SeedDefaultPlans() {
		if _, err := a.syncer.SeedDefaults(ctx); err != nil {
			return err
		}
	}
	if a.cfg.Catalog.File != "" {
		if _, err := a.syncer.SyncFile(ctx, a.cfg.Catalog.File); err != nil {
			return err
		}
	}
	return nil
}

// allocator returns a license allocator over the app's store.
func (a *app) allocator() *licensing.Allocator {
	return licensing.NewAllocator(a.store, a.registry, a.store, a.cfg.Gate.KeyPrefix, a.logger, a.metrics)
}

// Close releases the cache and the store.
func (a *app) Close() error {
	return errors.Join(a.cache.Close(), a.store.Close())
}
