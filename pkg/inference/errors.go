package inference

import (
	"errors"
	"fmt"
)

// ErrNoImage is returned when a request carries no frame.
var ErrNoImage = errors.New("inference: request has no image")

// APIError is a non-success response from the endpoint. It carries the
// status code and the raw response body so the failure is diagnosable
// from the status line alone.
type APIError struct {
	// StatusCode is the HTTP status code.
	StatusCode int

	// Body is the raw response body text.
	Body string
}

// Error implements the error interface.
func (e *APIError) Error() string {
	return fmt.Sprintf("inference: API error %d: %s", e.StatusCode, e.Body)
}

// IsRateLimited returns true for HTTP 429.
func (e *APIError) IsRateLimited() bool {
	return e.StatusCode == 429
}

// IsUnauthorized returns true for HTTP 401.
func (e *APIError) IsUnauthorized() bool {
	return e.StatusCode == 401
}

// IsServerError returns true for HTTP 5xx.
func (e *APIError) IsServerError() bool {
	return e.StatusCode >= 500 && e.StatusCode < 600
}
