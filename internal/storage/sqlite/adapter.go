// Package sqlite stores connection records in an embedded SQLite database.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"

	_ "github.com/mattn/go-sqlite3"

	"extsys/internal/common/logging"
	"extsys/internal/events"
	"extsys/internal/storage/sqlstore"
)

// NewAdapter opens the database at config.DatabasePath and migrates it.
func NewAdapter(ctx context.Context, config *Config, bus events.Bus, logger logging.Logger) (*sqlstore.Store, error) {
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid SQLite config: %w", err)
	}

	db, err := sql.Open("sqlite3", config.GetConnectionString())
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// one writer; also keeps ":memory:" databases on a single connection
	db.SetMaxOpenConns(1)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	store, err := sqlstore.New(ctx, db, sqlstore.SQLite, bus, logger)
	if err != nil {
		db.Close()
		return nil, err
	}
	return store, nil
}
