package postgres

import (
	"context"

	"extsys/internal/common/logging"
	"extsys/internal/events"
	"extsys/internal/storage"
)

type Factory struct{}

func (f *Factory) Create(settings storage.Settings, bus events.Bus, logger logging.Logger) (storage.Store, error) {
	pg := settings.Postgres
	config := FromSettings(pg.Host, pg.Port, pg.Database, pg.Username, pg.Password, pg.SSLMode)
	return NewAdapter(context.Background(), config, bus, logger)
}

func (f *Factory) GetType() string {
	return "postgres"
}

func init() {
	storage.Register("postgres", &Factory{})
}
