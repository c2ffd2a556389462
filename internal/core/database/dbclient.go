package db

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/markdave123-py/prescodata/internal/config"
	"github.com/markdave123-py/prescodata/internal/core"
)

// Open picks the DbClient implementation from the DATABASE_URL scheme.
func Open(ctx context.Context, cfg *config.Config, logger *slog.Logger) (core.DbClient, error) {
	if cfg == nil {
		return nil, fmt.Errorf("database client configuration is nil")
	}
	scheme, _, ok := strings.Cut(cfg.DatabaseURL, "://")
	if !ok {
		return nil, fmt.Errorf("DATABASE_URL has no scheme")
	}

	log := logger.With("component", "store", "driver", scheme)
	switch strings.ToLower(scheme) {
	case "mongodb", "mongodb+srv":
		c, err := NewMongoClient(ctx, cfg)
		if err != nil {
			return nil, err
		}
		log.Info("connected to document store", "database", cfg.DatabaseName)
		return c, nil
	case "postgres", "postgresql":
		c, err := NewDatabaseClient(ctx, cfg, log)
		if err != nil {
			return nil, err
		}
		log.Info("connected to document store")
		return c, nil
	case "memory":
		log.Warn("using in-memory document store; data is lost on restart")
		return NewMemoryClient(), nil
	default:
		return nil, fmt.Errorf("unsupported DATABASE_URL scheme %q", scheme)
	}
}
