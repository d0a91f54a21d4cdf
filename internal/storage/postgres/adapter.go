// Package postgres stores connection records in PostgreSQL through the pgx driver.
package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"

	"extsys/internal/common/logging"
	"extsys/internal/events"
	"extsys/internal/storage/sqlstore"
)

const connectTimeout = 10 * time.Second

func NewAdapter(ctx context.Context, config *Config, bus events.Bus, logger logging.Logger) (*sqlstore.Store, error) {
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid PostgreSQL config: %w", err)
	}

	db, err := sql.Open("pgx", config.GetConnectionString())
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(30 * time.Minute)

	pingCtx, cancel := context.WithTimeout(ctx, connectTimeout)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	store, err := sqlstore.New(ctx, db, sqlstore.Postgres, bus, logger)
	if err != nil {
		db.Close()
		return nil, err
	}
	return store, nil
}
