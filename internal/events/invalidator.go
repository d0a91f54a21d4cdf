package events

import (
	"extsys/internal/common/logging"
)

// Invalidatable drops whatever it holds for a configuration id
type Invalidatable interface {
	Invalidate(id string)
}

// Invalidator invalidates the owning external system of every change event.
type Invalidator struct {
	unsubscribe func()
}

func NewInvalidator(bus Bus, target Invalidatable, logger logging.Logger) *Invalidator {
	if logger == nil {
		logger = logging.GetGlobalLogger()
	}
	unsubscribe := bus.Subscribe(func(event ChangeEvent) {
		id := event.ExternalSystemID
		if id == "" && event.Entity == EntityExternalSystem {
			id = event.ID
		}
		if id == "" {
			return
		}
		logger.Debug("Configuration changed",
			logging.String("entity", string(event.Entity)),
			logging.String("action", string(event.Action)),
			logging.String("external_system_id", id),
		)
		target.Invalidate(id)
	})
	return &Invalidator{unsubscribe: unsubscribe}
}

// Stop ends invalidation
func (i *Invalidator) Stop() {
	i.unsubscribe()
}
