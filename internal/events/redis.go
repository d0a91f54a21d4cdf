package events

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"extsys/internal/common/logging"
	"extsys/internal/redis"
)

// DefaultChannel is the Pub/Sub channel used when none is configured
const DefaultChannel = "extsys:config-changes"

// RedisBus shares change events between processes over Redis Pub/Sub. Every
// process, the publisher included, delivers an event once it comes back from
// the channel.
type RedisBus struct {
	client  *redis.Client
	channel string
	local   *LocalBus
	logger  logging.Logger

	cancel context.CancelFunc
	done   chan struct{}
	once   sync.Once
}

// NewRedisBus subscribes to channel and starts delivering events.
func NewRedisBus(ctx context.Context, client *redis.Client, channel string, logger logging.Logger) (*RedisBus, error) {
	if channel == "" {
		channel = DefaultChannel
	}
	if logger == nil {
		logger = logging.GetGlobalLogger()
	}

	pubsub := client.Subscribe(ctx, channel)
	// Wait for confirmation that subscription is created
	if _, err := pubsub.Receive(ctx); err != nil {
		pubsub.Close()
		return nil, fmt.Errorf("failed to subscribe to %s: %w", channel, err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	b := &RedisBus{
		client:  client,
		channel: channel,
		local:   NewLocalBus(),
		logger:  logger.WithFields(logging.String("channel", channel)),
		cancel:  cancel,
		done:    make(chan struct{}),
	}

	go func() {
		defer close(b.done)
		defer pubsub.Close()
		messages := pubsub.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-messages:
				if !ok {
					return
				}
				var event ChangeEvent
				if err := json.Unmarshal([]byte(msg.Payload), &event); err != nil {
					b.logger.Warn("Discarding malformed change event", logging.Err(err))
					continue
				}
				b.local.dispatch(event)
			}
		}
	}()
	return b, nil
}

func (b *RedisBus) Publish(ctx context.Context, event ChangeEvent) error {
	if event.OccurredAt.IsZero() {
		event.OccurredAt = time.Now()
	}
	if err := b.client.Publish(ctx, b.channel, event); err != nil {
		return fmt.Errorf("failed to publish change event: %w", err)
	}
	return nil
}

func (b *RedisBus) Subscribe(handler Handler) func() {
	return b.local.Subscribe(handler)
}

// Close stops delivery. The Redis client is left open.
func (b *RedisBus) Close() error {
	b.once.Do(func() {
		b.cancel()
		<-b.done
		b.local.Close()
	})
	return nil
}
