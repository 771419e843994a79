// ABOUTME: Typed error taxonomy for collection API failures.
// ABOUTME: Auth, validation, server, and network errors with status codes.

package client

import "fmt"

// AuthError reports a 401 or 403 response: the tracer token was missing,
// expired, or not authorized for the namespace.
type AuthError struct {
	StatusCode int
	Message    string
}

func (e *AuthError) Error() string {
	return fmt.Sprintf("authentication failed (%d): %s", e.StatusCode, e.Message)
}

// ValidationError reports a non-auth 4xx response: the API rejected the
// payload. These are never retried.
type ValidationError struct {
	StatusCode int
	Message    string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("request rejected (%d): %s", e.StatusCode, e.Message)
}

// ServerError reports a 5xx response.
type ServerError struct {
	StatusCode int
	Message    string
}

func (e *ServerError) Error() string {
	return fmt.Sprintf("server error (%d): %s", e.StatusCode, e.Message)
}

// NetworkError wraps a transport-level failure (connection refused, DNS,
// timeout) where no HTTP response was received.
type NetworkError struct {
	Err error
}

func (e *NetworkError) Error() string {
	return fmt.Sprintf("network error: %v", e.Err)
}

func (e *NetworkError) Unwrap() error {
	return e.Err
}

// retryable reports whether the request that produced err may be retried.
// Server errors and transport failures are transient; 4xx responses mean
// the request itself is wrong and repeating it cannot help.
func retryable(err error) bool {
	switch err.(type) {
	case *ServerError, *NetworkError:
		return true
	default:
		return false
	}
}
