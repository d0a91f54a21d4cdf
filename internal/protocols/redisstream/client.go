// Package redisstream provides a transport that appends operations to a
// Redis stream named after the external system's search key.
package redisstream

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"extsys/internal/common/errors"
	"extsys/internal/common/logging"
	"extsys/internal/models"
	"extsys/internal/protocols"
	"extsys/internal/redis"
)

const (
	// DefaultReadCount is the number of entries returned by READ without a count
	DefaultReadCount = 10

	// ConfigCount is the per-call key for the READ entry count
	ConfigCount = "count"

	// Timeout bounds each call
	Timeout = 10 * time.Second
)

// Dependencies are the shared services a Client is built with.
type Dependencies struct {
	Executor *protocols.Executor
	// Conn is a shared connection owned by the caller. Clients built with it
	// leave it open on Close.
	Conn *redis.Client
	// Redis opens a connection per client when Conn is nil
	Redis  *redis.Config
	Logger logging.Logger
}

// Client writes to and reads from one stream. A client is not cached: it is
// built for a single use and closed by its caller.
type Client struct {
	protocols.Base

	deps   Dependencies
	conn   *redis.Client
	owned  bool
	stream string
	logger logging.Logger
}

func NewClient(deps Dependencies) *Client {
	if deps.Executor == nil {
		deps.Executor = protocols.DefaultExecutor()
	}
	if deps.Logger == nil {
		deps.Logger = logging.GetGlobalLogger()
	}
	return &Client{deps: deps, logger: deps.Logger}
}

func (c *Client) Configure(system *models.ExternalSystem) error {
	if system.SearchKey == "" {
		return errors.ConfigErrorf("No stream name configured for external system with ID %s", system.ID)
	}
	conn, owned := c.deps.Conn, false
	if conn == nil {
		if c.deps.Redis == nil {
			return errors.ConfigErrorf("No Redis connection configured for protocol %s", models.ProtocolRedisStream)
		}
		var err error
		if conn, err = redis.Open(c.deps.Redis); err != nil {
			return errors.ConfigError(err.Error())
		}
		owned = true
	}

	if err := c.Base.Configure(system); err != nil {
		if owned {
			conn.Close()
		}
		return err
	}
	c.conn = conn
	c.owned = owned
	c.stream = system.SearchKey
	c.logger = c.deps.Logger.WithFields(
		logging.String("external_system_id", system.ID),
		logging.String("stream", c.stream),
	)
	return nil
}

// Stream returns the name of the stream written to
func (c *Client) Stream() string {
	return c.stream
}

func (c *Client) Send(ctx context.Context, req protocols.SendRequest) *protocols.Future {
	if c.conn == nil {
		return protocols.FailedFuture(errors.UsageError("Redis stream client is not configured"))
	}
	if req.Operation == "" {
		req.Operation = c.DefaultOperation()
	}
	if err := checkPayload(req); err != nil {
		return protocols.FailedFuture(err)
	}

	ctx, cancel := context.WithTimeout(ctx, Timeout)
	return c.deps.Executor.Submit(ctx, func(ctx context.Context) (protocols.Response, error) {
		defer cancel()
		return c.execute(ctx, req)
	})
}

func checkPayload(req protocols.SendRequest) error {
	switch req.Operation {
	case protocols.OperationDelete, protocols.OperationRead:
		if req.Payload != nil {
			return errors.UsageError(string(req.Operation) + " operations do not accept a payload")
		}
	case protocols.OperationCreate, protocols.OperationUpdate:
		if req.Payload == nil {
			return errors.UsageError(string(req.Operation) + " operations require a payload")
		}
	default:
		return errors.UsageError("Unsupported operation " + string(req.Operation))
	}
	return nil
}

func (c *Client) execute(ctx context.Context, req protocols.SendRequest) (protocols.Response, error) {
	switch req.Operation {
	case protocols.OperationRead:
		if req.Path != "" {
			return c.readOne(ctx, req.Path), nil
		}
		return c.readLatest(ctx, readCount(req.Config)), nil
	case protocols.OperationDelete:
		return c.remove(ctx, req.Path), nil
	default:
		return c.appendEntry(ctx, req)
	}
}

func (c *Client) appendEntry(ctx context.Context, req protocols.SendRequest) (protocols.Response, error) {
	r, err := req.Payload()
	if err != nil {
		return protocols.Response{}, errors.InternalError("Could not read request payload", err)
	}
	payload, err := io.ReadAll(r)
	if err != nil {
		return protocols.Response{}, errors.InternalError("Could not read request payload", err)
	}

	id, err := c.conn.Append(ctx, c.stream, map[string]interface{}{
		"operation": string(req.Operation),
		"payload":   string(payload),
	})
	if err != nil {
		return c.failure(ctx, err), nil
	}
	c.logger.WithContext(ctx).Debug("Appended stream entry", logging.String("entry_id", id))
	return success(map[string]interface{}{"id": id}), nil
}

func (c *Client) readLatest(ctx context.Context, count int64) protocols.Response {
	entries, err := c.conn.Latest(ctx, c.stream, count)
	if err != nil {
		return c.failure(ctx, err)
	}
	data := make([]interface{}, 0, len(entries))
	for _, e := range entries {
		data = append(data, entryData(e))
	}
	return success(data)
}

func (c *Client) readOne(ctx context.Context, id string) protocols.Response {
	entry, err := c.conn.Entry(ctx, c.stream, id)
	if stderrors.Is(err, redis.Nil) {
		return notFound(id)
	}
	if err != nil {
		return c.failure(ctx, err)
	}
	return success(entryData(*entry))
}

func (c *Client) remove(ctx context.Context, id string) protocols.Response {
	if id == "" {
		return notFound(id)
	}
	n, err := c.conn.Remove(ctx, c.stream, id)
	if err != nil {
		return c.failure(ctx, err)
	}
	if n == 0 {
		return notFound(id)
	}
	return success(map[string]interface{}{"id": id})
}

func (c *Client) failure(ctx context.Context, err error) protocols.Response {
	if stderrors.Is(ctx.Err(), context.DeadlineExceeded) {
		message := fmt.Sprintf("Operation exceeded the maximum %d seconds allowed", int(Timeout/time.Second))
		return protocols.ErrorResponse(message, errors.TimeoutError(message))
	}
	c.logger.WithContext(ctx).Warn("Stream command failed", logging.Err(err))
	return protocols.ErrorResponse(err.Error(), errors.ConnectionError(err.Error(), err))
}

// Close closes the connection pool unless it is shared.
func (c *Client) Close() error {
	if c.conn == nil || !c.owned {
		return nil
	}
	return c.conn.Close()
}

func success(data interface{}) protocols.Response {
	return protocols.NewResponseBuilder().WithData(data).WithStatusCode(http.StatusOK).Build()
}

func notFound(id string) protocols.Response {
	return protocols.NewResponseBuilder().
		WithError(fmt.Sprintf("Entry %s not found", id)).
		WithStatusCode(http.StatusNotFound).
		Build()
}

// entryData decodes the payload field when it holds JSON
func entryData(e redis.StreamEntry) map[string]interface{} {
	data := map[string]interface{}{"id": e.ID}
	for key, value := range e.Values {
		data[key] = value
	}
	if raw, ok := e.Values["payload"].(string); ok {
		var parsed interface{}
		if err := json.Unmarshal([]byte(raw), &parsed); err == nil {
			data["payload"] = parsed
		}
	}
	return data
}

func readCount(config map[string]interface{}) int64 {
	switch v := config[ConfigCount].(type) {
	case int:
		if v > 0 {
			return int64(v)
		}
	case int64:
		if v > 0 {
			return v
		}
	case float64:
		if v > 0 {
			return int64(v)
		}
	case string:
		if n, err := strconv.ParseInt(v, 10, 64); err == nil && n > 0 {
			return n
		}
	}
	return DefaultReadCount
}
