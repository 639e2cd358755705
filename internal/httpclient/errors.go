package httpclient

import (
	"errors"
	"fmt"

	"ordergate/internal/resilience"
)

// ErrTransport wraps network-level failures, including per-attempt timeouts.
var ErrTransport = errors.New("transport error")

// StatusError reports a dependency response the client could not map to a
// business outcome.
type StatusError struct {
	Service    string
	StatusCode int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s: unexpected status %d", e.Service, e.StatusCode)
}

// Retryable reports whether the status is a server-side failure.
func (e *StatusError) Retryable() bool {
	return e.StatusCode >= 500
}

// IsUnavailable reports whether err means the dependency could not give a
// usable answer: transport failure, open or busy circuit, or an unmapped status.
func IsUnavailable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrTransport) ||
		errors.Is(err, resilience.ErrCircuitOpen) ||
		errors.Is(err, resilience.ErrCircuitBusy) {
		return true
	}
	var statusErr *StatusError
	return errors.As(err, &statusErr)
}
