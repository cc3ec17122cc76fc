package rag

import (
	"errors"
	"fmt"
)

// UpstreamError reports a failure of an external model API (embedding or
// completion). Handlers surface it as a retryable failure.
type UpstreamError struct {
	// Service names the failing dependency ("embedding", "completion").
	Service string
	// Err is the underlying cause.
	Err error
}

// Error implements error.
func (e *UpstreamError) Error() string {
	return fmt.Sprintf("%s upstream: %v", e.Service, e.Err)
}

// Unwrap returns the underlying cause.
func (e *UpstreamError) Unwrap() error { return e.Err }

// Upstream wraps err in an UpstreamError for service. A nil err yields nil and
// an error that already carries an UpstreamError is returned unchanged.
func Upstream(service string, err error) error {
	if err == nil {
		return nil
	}
	var ue *UpstreamError
	if errors.As(err, &ue) {
		return err
	}
	return &UpstreamError{Service: service, Err: err}
}

// IsUpstream reports whether err carries an UpstreamError.
func IsUpstream(err error) bool {
	var ue *UpstreamError
	return errors.As(err, &ue)
}
