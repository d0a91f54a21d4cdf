// Package http provides the HTTP transport for external systems.
// A configured Client turns a logical operation into one HTTP request,
// applies the authorization strategy of its configuration, retries once when
// the strategy asks for it and normalizes the outcome into a protocols.Response.
package http

import (
	"net/http"
	"strings"
	"time"

	"extsys/internal/common/errors"
	"extsys/internal/models"
	"extsys/internal/protocols"
)

const (
	// MaxTimeout is the hard cap on the per-call timeout
	MaxTimeout = 30 * time.Second

	// DefaultTimeout applies when the configuration leaves the timeout unset
	DefaultTimeout = 10 * time.Second

	// MaxRetries is the number of resends allowed per logical call
	MaxRetries = 1

	DefaultContentType = "application/json"
)

// Config holds the transport settings derived from an HTTP configuration record.
type Config struct {
	// URL is the base address requests are sent to
	URL string

	// Method is the configured request method, upper-cased
	Method string

	// DefaultOperation is derived from Method
	DefaultOperation protocols.Operation

	// Timeout bounds each logical call, connection included
	Timeout time.Duration

	// MaxConnections limits idle connections kept per client
	MaxConnections int

	// KeepAlive specifies how long idle connections are kept
	KeepAlive time.Duration

	// FollowRedirects determines whether redirects are followed
	FollowRedirects bool
}

// NewConfig derives transport settings from record. Timeouts above
// MaxTimeout are clamped; unsupported methods are configuration errors.
func NewConfig(record *models.HTTPConfig) (*Config, error) {
	method := strings.ToUpper(strings.TrimSpace(record.RequestMethod))
	op, err := DefaultOperationFor(method)
	if err != nil {
		return nil, err
	}

	return &Config{
		URL:              record.URL,
		Method:           method,
		DefaultOperation: op,
		Timeout:          EffectiveTimeout(record.TimeoutSeconds),
		MaxConnections:   100,
		KeepAlive:        30 * time.Second,
		FollowRedirects:  true,
	}, nil
}

// EffectiveTimeout converts a configured number of seconds into the timeout
// actually applied.
func EffectiveTimeout(seconds int) time.Duration {
	if seconds <= 0 {
		return DefaultTimeout
	}
	timeout := time.Duration(seconds) * time.Second
	if timeout > MaxTimeout {
		return MaxTimeout
	}
	return timeout
}

// DefaultOperationFor maps a configured request method to the operation used
// when a call does not name one.
func DefaultOperationFor(method string) (protocols.Operation, error) {
	switch method {
	case http.MethodDelete:
		return protocols.OperationDelete, nil
	case http.MethodGet:
		return protocols.OperationRead, nil
	case http.MethodPost:
		return protocols.OperationCreate, nil
	case http.MethodPut:
		return protocols.OperationUpdate, nil
	default:
		return "", errors.ConfigErrorf("Unsupported HTTP request method %s", method)
	}
}

// MethodFor returns the HTTP method an operation is sent with.
func MethodFor(op protocols.Operation) (string, error) {
	switch op {
	case protocols.OperationCreate:
		return http.MethodPost, nil
	case protocols.OperationRead:
		return http.MethodGet, nil
	case protocols.OperationUpdate:
		return http.MethodPut, nil
	case protocols.OperationDelete:
		return http.MethodDelete, nil
	default:
		return "", errors.UsageError("Unsupported operation " + string(op))
	}
}
