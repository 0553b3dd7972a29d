package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/rendis/breeze/internal/cache"
	"github.com/rendis/breeze/internal/config"
	"github.com/rendis/breeze/internal/engine"
	"github.com/rendis/breeze/internal/logging"
	"github.com/rendis/breeze/internal/store"
)

// app is the wired process: the engine plus the stores behind it.
type app struct {
	engine  *engine.Engine
	sql     *store.SQLStore
	breaker *store.BreakerStore
}

// newLogger builds the process logger around a LevelVar so a reload can
// change the level in place.
func newLogger(level *slog.LevelVar) *slog.Logger {
	inner := slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})
	return slog.New(logging.NewCorrelationHandler(inner))
}

func loadConfig() (config.Config, *slog.LevelVar, *slog.Logger) {
	cfg, err := config.Load()
	if err != nil {
		fatal("load config: %v", err)
	}
	level := new(slog.LevelVar)
	level.Set(logging.ParseLevel(cfg.LogLevel))
	return cfg, level, newLogger(level)
}

func cacheConfig(cfg config.Config) cache.Config {
	return cache.Config{MaxItems: cfg.CacheMaxItems, TTL: cfg.TTL()}
}

// openArtifactStore picks the durable tier: a SQL database when db_path is
// set, a directory when disk_cache_dir is set, otherwise none. Either is
// wrapped in a circuit breaker.
func openArtifactStore(ctx context.Context, cfg config.Config, logger *slog.Logger) (*store.SQLStore, store.ArtifactStore, error) {
	switch {
	case cfg.DBPath != "":
		if err := os.MkdirAll(filepath.Dir(cfg.DBPath), 0o755); err != nil {
			return nil, nil, fmt.Errorf("create db dir: %w", err)
		}
		db, err := initDB(cfg.DBPath)
		if err != nil {
			return nil, nil, fmt.Errorf("open %s: %w", cfg.DBPath, err)
		}
		s, err := store.NewSQLStore(db)
		if err != nil {
			db.Close()
			return nil, nil, err
		}
		if err := s.Migrate(ctx); err != nil {
			s.Close()
			return nil, nil, err
		}
		logger.Info("artifact store ready", slog.String("kind", "sql"), slog.String("path", cfg.DBPath))
		return s, s, nil

	case cfg.DiskCacheDir != "":
		s, err := store.NewDirStore(cfg.DiskCacheDir)
		if err != nil {
			return nil, nil, err
		}
		logger.Info("artifact store ready", slog.String("kind", "dir"), slog.String("path", cfg.DiskCacheDir))
		return nil, s, nil
	}
	return nil, nil, nil
}

func newApp(ctx context.Context, cfg config.Config, logger *slog.Logger) (*app, error) {
	a := &app{}
	opts := []engine.Option{engine.WithLogger(logger)}

	sqlStore, artifacts, err := openArtifactStore(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}
	if artifacts != nil {
		a.sql = sqlStore
		a.breaker = store.NewBreakerStore(artifacts, store.DefaultBreakerConfig(), logger)
		opts = append(opts, engine.WithStore(a.breaker))
	}

	e, err := engine.New(engine.Config{
		ViewsPath:     cfg.ViewsPath,
		Cache:         cacheConfig(cfg),
		NativeEnabled: cfg.NativeEnabled,
		WarmPoolSize:  cfg.WarmPoolSize,
	}, opts...)
	if err != nil {
		if a.breaker != nil {
			a.breaker.Close()
		}
		return nil, err
	}
	a.engine = e
	return a, nil
}

// Close releases the engine and its store.
func (a *app) Close() error {
	return a.engine.Close()
}
