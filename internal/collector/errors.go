package collector

import (
	"errors"
	"fmt"
	"net/http"
)

var (
	// ErrNetworkFailure matches every failed request: transport errors and
	// non-2xx responses alike.
	ErrNetworkFailure = errors.New("network failure")
	ErrNotFound       = errors.New("not found")
	ErrConflict       = errors.New("conflict")
)

// StatusError is a non-2xx response. Message is the server's {message} field
// when it sent one.
type StatusError struct {
	Method     string
	Path       string
	StatusCode int
	Message    string
}

func (e *StatusError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("%s %s: status %d: %s", e.Method, e.Path, e.StatusCode, e.Message)
	}
	return fmt.Sprintf("%s %s: status %d", e.Method, e.Path, e.StatusCode)
}

func (e *StatusError) Is(target error) bool {
	switch target {
	case ErrNetworkFailure:
		return true
	case ErrNotFound:
		return e.StatusCode == http.StatusNotFound
	case ErrConflict:
		return e.StatusCode == http.StatusConflict
	}
	return false
}

// transportError wraps failures before any response arrived.
type transportError struct{ err error }

func (e *transportError) Error() string { return e.err.Error() }
func (e *transportError) Unwrap() error { return e.err }
func (e *transportError) Is(target error) bool {
	return target == ErrNetworkFailure
}

// Message returns the server-provided refusal message of err, if any.
func Message(err error) string {
	var se *StatusError
	if errors.As(err, &se) {
		return se.Message
	}
	return ""
}
