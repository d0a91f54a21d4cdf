package memory

import (
	"extsys/internal/common/logging"
	"extsys/internal/events"
	"extsys/internal/storage"
)

type Factory struct{}

func (f *Factory) Create(_ storage.Settings, bus events.Bus, logger logging.Logger) (storage.Store, error) {
	return New(bus, logger), nil
}

func (f *Factory) GetType() string {
	return "memory"
}

func init() {
	storage.Register("memory", &Factory{})
}
