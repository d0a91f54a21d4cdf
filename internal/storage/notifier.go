package storage

import (
	"context"
	"time"

	"extsys/internal/common/logging"
	"extsys/internal/events"
)

// Notifier publishes the change events of committed mutations. Publish
// failures are logged; the mutation itself has already succeeded.
type Notifier struct {
	bus    events.Bus
	logger logging.Logger
}

// NewNotifier returns a notifier publishing on bus. A nil bus publishes nothing.
func NewNotifier(bus events.Bus, logger logging.Logger) *Notifier {
	if logger == nil {
		logger = logging.GetGlobalLogger()
	}
	return &Notifier{bus: bus, logger: logger}
}

func (n *Notifier) SystemChanged(ctx context.Context, action events.Action, id string) {
	n.publish(ctx, events.ChangeEvent{
		Entity:           events.EntityExternalSystem,
		Action:           action,
		ID:               id,
		ExternalSystemID: id,
	})
}

func (n *Notifier) HTTPConfigChanged(ctx context.Context, action events.Action, id, systemID string) {
	n.publish(ctx, events.ChangeEvent{
		Entity:           events.EntityHTTPConfig,
		Action:           action,
		ID:               id,
		ExternalSystemID: systemID,
	})
}

func (n *Notifier) publish(ctx context.Context, event events.ChangeEvent) {
	if n.bus == nil {
		return
	}
	event.OccurredAt = time.Now()
	if err := n.bus.Publish(ctx, event); err != nil {
		n.logger.Error("Failed to publish change event", err,
			logging.String("entity", string(event.Entity)),
			logging.String("id", event.ID),
		)
	}
}
