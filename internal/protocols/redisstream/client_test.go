package redisstream

import (
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"extsys/internal/common/errors"
	"extsys/internal/common/logging"
	"extsys/internal/models"
	"extsys/internal/protocols"
	"extsys/internal/redis"
	"extsys/internal/testutil"
)

func streamSystem() *models.ExternalSystem {
	return testutil.NewExternalSystemBuilder().
		WithProtocol(models.ProtocolRedisStream).
		WithSearchKey("orders").
		WithoutHTTP().
		Build()
}

func newStreamClient(t *testing.T, addr string) *Client {
	t.Helper()
	client := NewClient(Dependencies{
		Executor: protocols.NewExecutor(4),
		Redis:    &redis.Config{Address: addr},
		Logger:   logging.NopLogger{},
	})
	require.NoError(t, client.Configure(streamSystem()))
	t.Cleanup(func() { client.Close() })
	return client
}

func TestClient_Configure(t *testing.T) {
	t.Run("stream name required", func(t *testing.T) {
		system := streamSystem()
		system.SearchKey = ""
		err := NewClient(Dependencies{Redis: &redis.Config{}}).Configure(system)
		assert.True(t, errors.IsType(err, errors.ErrTypeConfig))
	})

	t.Run("redis connection required", func(t *testing.T) {
		err := NewClient(Dependencies{}).Configure(streamSystem())
		require.Error(t, err)
		assert.Equal(t, "No Redis connection configured for protocol REDIS_STREAM", errors.Message(err))
	})
}

func TestClient_Operations(t *testing.T) {
	mr := miniredis.RunT(t)
	client := newStreamClient(t, mr.Addr())
	ctx := context.Background()
	assert.Equal(t, "orders", client.Stream())

	created, err := protocols.Push(ctx, client, protocols.StringPayload(`{"order":1}`)).Get()
	require.NoError(t, err)
	require.True(t, created.IsSuccess())
	assert.Equal(t, 200, created.StatusCode)
	firstID := created.Data.(map[string]interface{})["id"].(string)

	_, err = protocols.SendOperation(ctx, client, protocols.OperationUpdate, protocols.StringPayload(`{"order":2}`), "").Get()
	require.NoError(t, err)

	latest, err := protocols.Read(ctx, client, "", nil).Get()
	require.NoError(t, err)
	entries := latest.Data.([]interface{})
	require.Len(t, entries, 2)
	newest := entries[0].(map[string]interface{})
	assert.Equal(t, "UPDATE", newest["operation"])
	assert.Equal(t, map[string]interface{}{"order": float64(2)}, newest["payload"])

	limited, err := client.Send(ctx, protocols.SendRequest{
		Operation: protocols.OperationRead,
		Config:    map[string]interface{}{ConfigCount: 1},
	}).Get()
	require.NoError(t, err)
	assert.Len(t, limited.Data.([]interface{}), 1)

	one, err := protocols.Read(ctx, client, firstID, nil).Get()
	require.NoError(t, err)
	assert.Equal(t, "CREATE", one.Data.(map[string]interface{})["operation"])

	deleted, err := protocols.SendOperation(ctx, client, protocols.OperationDelete, nil, firstID).Get()
	require.NoError(t, err)
	assert.True(t, deleted.IsSuccess())

	missing, err := protocols.SendOperation(ctx, client, protocols.OperationDelete, nil, firstID).Get()
	require.NoError(t, err)
	assert.Equal(t, 404, missing.StatusCode)
	assert.Equal(t, "Entry "+firstID+" not found", missing.Error)
}

func TestClient_Failures(t *testing.T) {
	t.Run("usage errors", func(t *testing.T) {
		mr := miniredis.RunT(t)
		client := newStreamClient(t, mr.Addr())

		_, err := protocols.SendOperation(context.Background(), client, protocols.OperationDelete, protocols.StringPayload("x"), "1-0").Get()
		assert.True(t, errors.IsType(err, errors.ErrTypeUsage))

		_, err = protocols.SendOperation(context.Background(), client, protocols.OperationCreate, nil, "").Get()
		assert.True(t, errors.IsType(err, errors.ErrTypeUsage))
	})

	t.Run("connection failure", func(t *testing.T) {
		mr := miniredis.RunT(t)
		client := newStreamClient(t, mr.Addr())
		mr.Close()

		resp, err := protocols.Push(context.Background(), client, protocols.StringPayload("{}")).Get()
		require.NoError(t, err)
		assert.False(t, resp.IsSuccess())
		assert.Zero(t, resp.StatusCode)
		assert.NotEmpty(t, resp.ErrorMessage())
		assert.True(t, errors.IsType(resp.ErrorCause, errors.ErrTypeConnection))
	})
}

func TestClient_SharedConnection(t *testing.T) {
	mr := miniredis.RunT(t)
	conn, err := redis.NewClient(&redis.Config{Address: mr.Addr()})
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		client := NewClient(Dependencies{Executor: protocols.NewExecutor(1), Conn: conn, Logger: logging.NopLogger{}})
		require.NoError(t, client.Configure(streamSystem()))

		resp, err := protocols.Push(ctx, client, protocols.StringPayload(`{}`)).Get()
		require.NoError(t, err)
		assert.True(t, resp.IsSuccess())
		require.NoError(t, client.Close())
	}

	assert.NoError(t, conn.Health(ctx))
	entries, err := conn.Latest(ctx, "orders", 10)
	require.NoError(t, err)
	assert.Len(t, entries, 2)
}

func TestFactory(t *testing.T) {
	factory := NewFactory(Dependencies{})
	assert.Equal(t, models.ProtocolRedisStream, factory.GetType())
	assert.False(t, factory.Cacheable())
	assert.IsType(t, &Client{}, factory.Create())
}
