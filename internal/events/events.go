// Package events carries change notifications for connection records so that
// cached clients are invalidated whenever their configuration changes.
package events

import (
	"context"
	"sync"
	"time"
)

// Entity names the kind of record that changed
type Entity string

const (
	EntityExternalSystem Entity = "external_system"
	EntityHTTPConfig     Entity = "http_config"
)

// Action names what happened to the record
type Action string

const (
	ActionCreate Action = "create"
	ActionUpdate Action = "update"
	ActionDelete Action = "delete"
)

// ChangeEvent reports one mutation of a connection record.
type ChangeEvent struct {
	Entity Entity `json:"entity"`
	Action Action `json:"action"`
	ID     string `json:"id"`
	// ExternalSystemID is the owning system, equal to ID for system events
	ExternalSystemID string    `json:"external_system_id"`
	OccurredAt       time.Time `json:"occurred_at"`
}

// Handler receives events
type Handler func(ChangeEvent)

// Bus delivers change events to subscribers.
type Bus interface {
	Publish(ctx context.Context, event ChangeEvent) error
	// Subscribe registers handler and returns a function removing it
	Subscribe(handler Handler) (unsubscribe func())
	Close() error
}

// LocalBus delivers events in process, synchronously and in publish order.
type LocalBus struct {
	mu       sync.RWMutex
	handlers map[int]Handler
	nextID   int
}

func NewLocalBus() *LocalBus {
	return &LocalBus{handlers: make(map[int]Handler)}
}

func (b *LocalBus) Publish(_ context.Context, event ChangeEvent) error {
	if event.OccurredAt.IsZero() {
		event.OccurredAt = time.Now()
	}
	b.dispatch(event)
	return nil
}

func (b *LocalBus) dispatch(event ChangeEvent) {
	b.mu.RLock()
	handlers := make([]Handler, 0, len(b.handlers))
	for _, h := range b.handlers {
		handlers = append(handlers, h)
	}
	b.mu.RUnlock()

	for _, h := range handlers {
		h(event)
	}
}

func (b *LocalBus) Subscribe(handler Handler) func() {
	b.mu.Lock()
	defer b.mu.Unlock()
	id := b.nextID
	b.nextID++
	b.handlers[id] = handler

	var once sync.Once
	return func() {
		once.Do(func() {
			b.mu.Lock()
			delete(b.handlers, id)
			b.mu.Unlock()
		})
	}
}

func (b *LocalBus) Close() error {
	b.mu.Lock()
	b.handlers = make(map[int]Handler)
	b.mu.Unlock()
	return nil
}
