// Package redis wraps the go-redis client shared by the Redis stream
// transport and the Redis event bus.
package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
)

// Nil is returned by commands that found nothing.
const Nil = redis.Nil

type Client struct {
	rdb    *redis.Client
	config *Config
}

type Config struct {
	Address  string `json:"address"`
	Password string `json:"password"`
	DB       int    `json:"db"`
	PoolSize int    `json:"pool_size"`
}

// Open configures a client without contacting the server. Connections are
// made on first use.
func Open(config *Config) (*Client, error) {
	if config == nil {
		return nil, fmt.Errorf("redis config is required")
	}
	copied := *config
	config = &copied

	if config.Address == "" {
		config.Address = "localhost:6379"
	}
	if config.PoolSize == 0 {
		config.PoolSize = 10
	}

	rdb := redis.NewClient(&redis.Options{
		Addr:     config.Address,
		Password: config.Password,
		DB:       config.DB,
		PoolSize: config.PoolSize,
	})

	return &Client{
		rdb:    rdb,
		config: config,
	}, nil
}

// NewClient connects and pings the server.
func NewClient(config *Config) (*Client, error) {
	c, err := Open(config)
	if err != nil {
		return nil, err
	}

	if err := c.Health(context.Background()); err != nil {
		c.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}
	return c, nil
}

func (c *Client) Close() error {
	return c.rdb.Close()
}

func (c *Client) Health(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	return c.rdb.Ping(ctx).Err()
}

// Address returns the server address the client is connected to
func (c *Client) Address() string {
	return c.config.Address
}

// StreamEntry is one entry read from a stream
type StreamEntry struct {
	ID     string                 `json:"id"`
	Values map[string]interface{} `json:"values"`
}

// Append adds an entry to stream and returns its id.
func (c *Client) Append(ctx context.Context, stream string, values map[string]interface{}) (string, error) {
	id, err := c.rdb.XAdd(ctx, &redis.XAddArgs{
		Stream: stream,
		Values: values,
	}).Result()
	if err != nil {
		return "", fmt.Errorf("failed to append to stream %s: %w", stream, err)
	}
	return id, nil
}

// Latest returns up to count entries, newest first.
func (c *Client) Latest(ctx context.Context, stream string, count int64) ([]StreamEntry, error) {
	messages, err := c.rdb.XRevRangeN(ctx, stream, "+", "-", count).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read stream %s: %w", stream, err)
	}
	entries := make([]StreamEntry, 0, len(messages))
	for _, m := range messages {
		entries = append(entries, StreamEntry{ID: m.ID, Values: m.Values})
	}
	return entries, nil
}

// Entry returns the entry with the given id, or Nil.
func (c *Client) Entry(ctx context.Context, stream, id string) (*StreamEntry, error) {
	messages, err := c.rdb.XRange(ctx, stream, id, id).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read stream %s: %w", stream, err)
	}
	if len(messages) == 0 {
		return nil, Nil
	}
	return &StreamEntry{ID: messages[0].ID, Values: messages[0].Values}, nil
}

// Remove deletes ids from stream and reports how many existed.
func (c *Client) Remove(ctx context.Context, stream string, ids ...string) (int64, error) {
	n, err := c.rdb.XDel(ctx, stream, ids...).Result()
	if err != nil {
		return 0, fmt.Errorf("failed to delete from stream %s: %w", stream, err)
	}
	return n, nil
}

// Publish sends message on channel. Values other than strings and bytes are JSON encoded.
func (c *Client) Publish(ctx context.Context, channel string, message interface{}) error {
	var data []byte
	var err error

	switch v := message.(type) {
	case string:
		data = []byte(v)
	case []byte:
		data = v
	default:
		data, err = json.Marshal(v)
		if err != nil {
			return fmt.Errorf("failed to marshal message: %w", err)
		}
	}

	return c.rdb.Publish(ctx, channel, data).Err()
}

func (c *Client) Subscribe(ctx context.Context, channels ...string) *redis.PubSub {
	return c.rdb.Subscribe(ctx, channels...)
}
