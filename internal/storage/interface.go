// Package storage persists external system connection records.
//
// Every mutation is validated first and publishes an events.ChangeEvent once
// committed, so cached clients of the changed record are invalidated.
// Implementations live in subpackages and register themselves by type:
//
//	import _ "extsys/internal/storage/sqlite"
//
//	store, err := storage.Create("sqlite", storage.Settings{SQLitePath: "extsys.db"}, bus, logger)
package storage

import (
	"context"

	"extsys/internal/models"
)

// Store is the persistence contract for connection records.
type Store interface {
	// GetExternalSystem returns the record with id and its HTTP configurations.
	// A missing record is a not_found error.
	GetExternalSystem(ctx context.Context, id string) (*models.ExternalSystem, error)

	// FindExternalSystem looks ref up as an id first, then as a search key.
	FindExternalSystem(ctx context.Context, ref string) (*models.ExternalSystem, error)

	// ListExternalSystems returns every record ordered by name.
	ListExternalSystems(ctx context.Context) ([]*models.ExternalSystem, error)

	// SaveExternalSystem creates or replaces the record and the HTTP
	// configurations it carries. Missing ids and timestamps are filled in.
	SaveExternalSystem(ctx context.Context, system *models.ExternalSystem) error

	// DeleteExternalSystem removes the record and its HTTP configurations.
	DeleteExternalSystem(ctx context.Context, id string) error

	// SaveHTTPConfig creates or replaces one HTTP configuration of an existing record.
	SaveHTTPConfig(ctx context.Context, config *models.HTTPConfig) error

	DeleteHTTPConfig(ctx context.Context, id string) error

	Health(ctx context.Context) error
	Close() error
}
