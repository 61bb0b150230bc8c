package extract

import (
	"errors"
	"fmt"
)

// ErrInvalidImageData is returned when the input cannot be decoded as an image.
var ErrInvalidImageData = errors.New("invalid image data")

// ErrMissingAPIKey is returned when no credential is configured for the
// cloud backend.
var ErrMissingAPIKey = errors.New("missing api key")

// ErrAuthentication is returned on HTTP 401 from the cloud endpoint.
var ErrAuthentication = errors.New("authentication failed")

// InvalidEndpointError is returned when the configured base URL is malformed
// or the authenticated URL cannot be constructed.
type InvalidEndpointError struct {
	Reason string
}

func (e *InvalidEndpointError) Error() string {
	return "invalid api endpoint: " + e.Reason
}

// ServerError is returned on any non-200, non-401 status from the cloud
// endpoint.
type ServerError struct {
	Status int
}

func (e *ServerError) Error() string {
	return fmt.Sprintf("server returned status %d", e.Status)
}

// NetworkError wraps a transport-level failure.
type NetworkError struct {
	Err error
}

func (e *NetworkError) Error() string { return "network error: " + e.Err.Error() }
func (e *NetworkError) Unwrap() error { return e.Err }
