package sqlite

import (
	"context"

	"extsys/internal/common/logging"
	"extsys/internal/events"
	"extsys/internal/storage"
)

type Factory struct{}

func (f *Factory) Create(settings storage.Settings, bus events.Bus, logger logging.Logger) (storage.Store, error) {
	config := &Config{DatabasePath: settings.SQLitePath}
	return NewAdapter(context.Background(), config, bus, logger)
}

func (f *Factory) GetType() string {
	return "sqlite"
}

func init() {
	storage.Register("sqlite", &Factory{})
}
