// Package connectivity verifies that a configured external system accepts requests.
package connectivity

import (
	"context"
	"fmt"
	"time"

	"extsys/internal/common/errors"
	"extsys/internal/common/logging"
	"extsys/internal/protocols"
)

// Resolver hands out configured clients, as provider.Provider does
type Resolver interface {
	GetBySearchKeyOrID(ctx context.Context, ref string) (protocols.ExternalSystem, bool, error)
	Release(instance protocols.ExternalSystem)
}

// Result is the outcome of one check, ready to show to an operator.
type Result struct {
	Success    bool   `json:"success"`
	Message    string `json:"message"`
	StatusCode int    `json:"status_code,omitempty"`
}

const (
	MessageMissing   = "External system not found or inactive"
	MessageSucceeded = "Connectivity test succeeded"
)

// Check sends an empty CREATE to the system identified by ref and reports
// how it answered.
func Check(ctx context.Context, resolver Resolver, ref string, logger logging.Logger) Result {
	if logger == nil {
		logger = logging.GetGlobalLogger()
	}
	logger = logger.WithFields(logging.String("external_system", ref))

	system, ok, err := resolver.GetBySearchKeyOrID(ctx, ref)
	if err != nil {
		logger.Error("Could not resolve external system", err)
		return Result{Message: fmt.Sprintf("Could not resolve external system: %s", errors.Message(err))}
	}
	if !ok {
		return Result{Message: MessageMissing}
	}
	defer resolver.Release(system)

	resp, err := system.Send(ctx, protocols.SendRequest{
		Operation: protocols.OperationCreate,
		Payload:   protocols.StringPayload("{}"),
		Config: map[string]interface{}{
			"event":     "ConnectivityTest",
			"id":        "1",
			"timestamp": time.Now().UnixMilli(),
		},
	}).Await(ctx)
	if err != nil {
		logger.Error("Connectivity test failed", err)
		return Result{Message: fmt.Sprintf("Connectivity test failed: %s", errors.Message(err))}
	}

	result := describe(resp)
	logger.Info("Connectivity test finished",
		logging.Bool("success", result.Success),
		logging.Int("status_code", resp.StatusCode),
	)
	return result
}

func describe(resp protocols.Response) Result {
	if resp.IsSuccess() {
		return Result{Success: true, Message: MessageSucceeded, StatusCode: resp.StatusCode}
	}
	if resp.StatusCode == 0 {
		return Result{Message: fmt.Sprintf("Could not connect: %s", resp.ErrorMessage())}
	}
	return Result{
		Message:    fmt.Sprintf("Connectivity test failed with status %d: %s", resp.StatusCode, resp.ErrorMessage()),
		StatusCode: resp.StatusCode,
	}
}
