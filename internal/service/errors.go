package service

import (
	"errors"
	"fmt"

	"api-gateway-go/internal/model"
)

// ErrNotConfigured is returned when the requested service has no endpoint.
var ErrNotConfigured = errors.New("service not configured")

// ProxyError is the failure outcome of Forward. Kind drives the status code
// the client receives.
type ProxyError struct {
	Kind      model.FailureKind
	Service   string
	RequestID string
	Err       error
}

// Error implements the error interface.
func (e *ProxyError) Error() string {
	return fmt.Sprintf("proxy %s [%s]: %v", e.Service, e.Kind, e.Err)
}

// Unwrap returns the underlying error.
func (e *ProxyError) Unwrap() error {
	return e.Err
}
