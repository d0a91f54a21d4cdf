package protocols

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"strings"

	"extsys/internal/models"
)

// Operation is the logical action requested from an external system.
type Operation string

const (
	OperationCreate Operation = "CREATE"
	OperationRead   Operation = "READ"
	OperationUpdate Operation = "UPDATE"
	OperationDelete Operation = "DELETE"
)

// PayloadSupplier produces the request body when the request is built. It is
// called once per attempt, so a retried request streams a fresh body.
type PayloadSupplier func() (io.Reader, error)

// BytesPayload supplies a fixed byte slice.
func BytesPayload(b []byte) PayloadSupplier {
	return func() (io.Reader, error) { return bytes.NewReader(b), nil }
}

// StringPayload supplies a fixed string.
func StringPayload(s string) PayloadSupplier {
	return func() (io.Reader, error) { return strings.NewReader(s), nil }
}

// JSONPayload encodes v when the request is built.
func JSONPayload(v interface{}) PayloadSupplier {
	return func() (io.Reader, error) {
		data, err := json.Marshal(v)
		if err != nil {
			return nil, err
		}
		return bytes.NewReader(data), nil
	}
}

// SendRequest describes one logical call.
type SendRequest struct {
	// Operation defaults to the system's DefaultOperation when empty
	Operation Operation
	Payload   PayloadSupplier
	// Path is appended to the base address of the system
	Path string
	// Config holds per-call options understood by the protocol
	// (e.g. "queryParameters", "Content-Type" for HTTP)
	Config map[string]interface{}
}

// ExternalSystem is a configured client of one third-party system. Implementations
// must be safe for concurrent use.
type ExternalSystem interface {
	// Configure reads the connection record. Errors are configuration errors.
	Configure(config *models.ExternalSystem) error

	// ID, Name and SearchKey identify the configured record
	ID() string
	Name() string
	SearchKey() string

	// DefaultOperation is used for requests that do not name one
	DefaultOperation() Operation

	// Send dispatches the request without blocking the caller.
	Send(ctx context.Context, req SendRequest) *Future

	// Close releases the resources held by the client
	Close() error
}

// Base stores the fields common to every ExternalSystem. Implementations embed it.
type Base struct {
	id        string
	name      string
	searchKey string
}

// Configure copies the identifying fields of config.
func (b *Base) Configure(config *models.ExternalSystem) error {
	b.id = config.ID
	b.name = config.Name
	b.searchKey = config.SearchKey
	return nil
}

func (b *Base) ID() string        { return b.id }
func (b *Base) Name() string      { return b.name }
func (b *Base) SearchKey() string { return b.searchKey }

// DefaultOperation is CREATE unless an implementation says otherwise.
func (b *Base) DefaultOperation() Operation { return OperationCreate }

// Push sends payload with the system's default operation.
func Push(ctx context.Context, system ExternalSystem, payload PayloadSupplier) *Future {
	return system.Send(ctx, SendRequest{Operation: system.DefaultOperation(), Payload: payload})
}

// SendOperation sends payload with op to path.
func SendOperation(ctx context.Context, system ExternalSystem, op Operation, payload PayloadSupplier, path string) *Future {
	return system.Send(ctx, SendRequest{Operation: op, Payload: payload, Path: path})
}

// Read issues a READ to path with the given query parameters.
func Read(ctx context.Context, system ExternalSystem, path string, query map[string]string) *Future {
	var config map[string]interface{}
	if len(query) > 0 {
		config = map[string]interface{}{ConfigQueryParameters: query}
	}
	return system.Send(ctx, SendRequest{Operation: OperationRead, Path: path, Config: config})
}

// Per-call configuration keys
const (
	ConfigQueryParameters = "queryParameters"
	ConfigContentType     = "Content-Type"
)

// Factory creates ExternalSystem instances for one protocol tag.
type Factory interface {
	GetType() string
	Create() ExternalSystem
	// Cacheable reports whether instances may be reused across calls
	Cacheable() bool
}
