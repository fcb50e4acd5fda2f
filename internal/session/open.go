package session

import (
	"context"
	"fmt"
	"path/filepath"
)

// StoreConfig selects a session persistence backend.
type StoreConfig struct {
	Kind  string // "", "none", "file", "sqlite", "mysql", "redis"
	Path  string // directory for "file", database file for "sqlite"
	DSN   string // "mysql"
	Redis RedisStoreConfig
}

// OpenStore opens the configured store. It returns (nil, nil) when
// persistence is disabled.
func OpenStore(ctx context.Context, cfg StoreConfig) (Store, error) {
	switch cfg.Kind {
	case "", "none":
		return nil, nil
	case "file":
		return NewFileStore(cfg.Path), nil
	case "sqlite":
		path := cfg.Path
		if filepath.Ext(path) == "" {
			path = filepath.Join(path, "sessions.db")
		}
		return NewSQLiteStore(ctx, path)
	case "mysql":
		return NewMySQLStore(ctx, cfg.DSN)
	case "redis":
		return NewRedisStore(ctx, cfg.Redis)
	default:
		return nil, fmt.Errorf("unknown session store: %s (supported: none, file, sqlite, mysql, redis)", cfg.Kind)
	}
}
