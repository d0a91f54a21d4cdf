package redis

import (
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupTestRedis(t *testing.T) (*Client, *miniredis.Miniredis) {
	mr := miniredis.RunT(t)

	client, err := NewClient(&Config{Address: mr.Addr()})
	require.NoError(t, err)
	t.Cleanup(func() { client.Close() })

	return client, mr
}

func TestNewClient(t *testing.T) {
	t.Run("nil config", func(t *testing.T) {
		_, err := NewClient(nil)
		assert.EqualError(t, err, "redis config is required")
	})

	t.Run("unreachable server", func(t *testing.T) {
		mr := miniredis.RunT(t)
		addr := mr.Addr()
		mr.Close()

		_, err := NewClient(&Config{Address: addr})
		assert.ErrorContains(t, err, "failed to connect to Redis")
	})

	t.Run("defaults", func(t *testing.T) {
		client, mr := setupTestRedis(t)
		assert.Equal(t, mr.Addr(), client.Address())
		assert.Equal(t, 10, client.config.PoolSize)
		assert.NoError(t, client.Health(context.Background()))
	})
}

func TestClient_Streams(t *testing.T) {
	client, _ := setupTestRedis(t)
	ctx := context.Background()

	first, err := client.Append(ctx, "orders", map[string]interface{}{"payload": "a"})
	require.NoError(t, err)
	second, err := client.Append(ctx, "orders", map[string]interface{}{"payload": "b"})
	require.NoError(t, err)

	entries, err := client.Latest(ctx, "orders", 10)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, second, entries[0].ID)
	assert.Equal(t, "a", entries[1].Values["payload"])

	entry, err := client.Entry(ctx, "orders", first)
	require.NoError(t, err)
	assert.Equal(t, "a", entry.Values["payload"])

	n, err := client.Remove(ctx, "orders", first)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	_, err = client.Entry(ctx, "orders", first)
	assert.ErrorIs(t, err, Nil)
}

func TestClient_PubSub(t *testing.T) {
	client, _ := setupTestRedis(t)
	ctx := context.Background()

	pubsub := client.Subscribe(ctx, "changes")
	defer pubsub.Close()

	_, err := pubsub.Receive(ctx)
	require.NoError(t, err)

	require.NoError(t, client.Publish(ctx, "changes", map[string]string{"id": "ES1"}))

	msg, err := pubsub.ReceiveMessage(ctx)
	require.NoError(t, err)
	assert.Equal(t, "changes", msg.Channel)
	assert.JSONEq(t, `{"id":"ES1"}`, msg.Payload)
}
