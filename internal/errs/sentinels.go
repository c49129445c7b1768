// Package errs contains sentinel errors used across layers for stable error mapping.
package errs

import (
	"errors"
	"fmt"
	"net/http"
)

// Common sentinels across client/store/repository layers.
var (
	// ErrNotFound indicates the requested entity does not exist (locally or on the server).
	ErrNotFound = errors.New("not found")

	// ErrAuthFailed indicates an unrecoverable authentication failure: no refresh token
	// is stored or the refresh endpoint rejected the refresh. Stored credentials are cleared.
	ErrAuthFailed = errors.New("authentication failed")

	// ErrRejected indicates the server answered with a non-success status.
	ErrRejected = errors.New("rejected by server")

	// ErrContractViolation indicates a success status with an empty or unusable payload.
	ErrContractViolation = errors.New("server contract violation")

	// ErrValidation indicates invalid input detected before any request was sent.
	ErrValidation = errors.New("validation")
)

// HTTPError is a non-success response surfaced verbatim to callers.
type HTTPError struct {
	Status  int
	Message string // server-provided message, or status text
	Method  string
	Path    string
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("%s %s: %d %s", e.Method, e.Path, e.Status, e.Message)
}

// Is makes every HTTPError match ErrRejected, and 404s match ErrNotFound.
func (e *HTTPError) Is(target error) bool {
	switch target {
	case ErrRejected:
		return true
	case ErrNotFound:
		return e.Status == http.StatusNotFound
	}
	return false
}

// Message extracts a human readable message suitable for UI display:
// the server-provided message for HTTPError, err.Error() otherwise.
func Message(err error) string {
	if err == nil {
		return ""
	}
	var he *HTTPError
	if errors.As(err, &he) && he.Message != "" {
		return he.Message
	}
	return err.Error()
}
