// Package storage selects and opens the configured vendor/meal store backend.
package storage

import (
	"context"
	"fmt"

	"github.com/JakeFAU/vendor-menu-cache/internal/menu"
	"github.com/JakeFAU/vendor-menu-cache/internal/storage/memory"
	"github.com/JakeFAU/vendor-menu-cache/internal/storage/postgres"
	"github.com/JakeFAU/vendor-menu-cache/internal/storage/sqlite"
)

// Supported backends.
const (
	BackendPostgres = "postgres"
	BackendSQLite   = "sqlite"
	BackendMemory   = "memory"
)

// Config selects a backend and carries its settings.
type Config struct {
	Backend    string
	Postgres   postgres.Config
	SQLitePath string
}

// Open returns the store for cfg.Backend. An empty backend means memory.
func Open(ctx context.Context, cfg Config) (menu.Store, error) {
	switch cfg.Backend {
	case BackendPostgres:
		s, err := postgres.New(ctx, cfg.Postgres)
		if err != nil {
			return nil, fmt.Errorf("open postgres store: %w", err)
		}
		return s, nil
	case BackendSQLite:
		s, err := sqlite.Open(ctx, cfg.SQLitePath)
		if err != nil {
			return nil, fmt.Errorf("open sqlite store: %w", err)
		}
		return s, nil
	case BackendMemory, "":
		return memory.New(), nil
	default:
		return nil, fmt.Errorf("unknown database backend %q", cfg.Backend)
	}
}
