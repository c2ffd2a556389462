package db

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"log/slog"
	"time"
)

// initdb.sql is idempotent and records its own version in presco_meta.
//
//go:embed scripts/initdb.sql
var initScript string

const (
	schemaVersion = 1
	// bootstrapLock serialises schema setup across instances starting together.
	bootstrapLock int64 = 0x70726573636f
)

// EnsureBootstrapped applies the document schema inside one transaction and
// logs whether this call recorded the schema version.
func EnsureBootstrapped(ctx context.Context, db *sql.DB, logger *slog.Logger) error {
	ctx, cancel := context.WithTimeout(ctx, 3*time.Minute)
	defer cancel()

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin bootstrap: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `SELECT pg_advisory_xact_lock($1)`, bootstrapLock); err != nil {
		return fmt.Errorf("bootstrap lock: %w", err)
	}
	if _, err := tx.ExecContext(ctx, initScript); err != nil {
		return fmt.Errorf("apply schema: %w", err)
	}

	// now() is the transaction start, so a matching applied_at means the row is ours.
	var fresh bool
	err = tx.QueryRowContext(ctx, `SELECT applied_at = now() FROM presco_meta WHERE version = $1`, schemaVersion).Scan(&fresh)
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("schema script does not record version %d", schemaVersion)
	}
	if err != nil {
		return fmt.Errorf("read schema version: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit bootstrap: %w", err)
	}

	if fresh {
		logger.Info("document schema applied", "version", schemaVersion)
	} else {
		logger.Debug("document schema up to date", "version", schemaVersion)
	}
	return nil
}
