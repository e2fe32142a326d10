package crm

import (
	"errors"
	"fmt"
	"net/http"
)

// Domain errors for CRM access.
var (
	// ErrNotFound indicates the remote reported the record or type does not exist.
	ErrNotFound = errors.New("record not found")

	// ErrMissingCredentials indicates a required credential was not configured.
	ErrMissingCredentials = errors.New("missing credentials")

	// ErrMalformedResponse indicates the remote returned a body that could not be decoded.
	ErrMalformedResponse = errors.New("malformed response")
)

// AuthenticationError indicates the token exchange failed.
type AuthenticationError struct {
	StatusCode int
	Body       string
	Err        error
}

func (e *AuthenticationError) Error() string {
	switch {
	case e.StatusCode != 0:
		return fmt.Sprintf("authentication failed (status %d): %s", e.StatusCode, e.Body)
	case e.Err != nil:
		return fmt.Sprintf("authentication failed: %v", e.Err)
	default:
		return "authentication failed"
	}
}

func (e *AuthenticationError) Unwrap() error {
	return e.Err
}

// RemoteError is a non-2xx or undecodable response from a CRM call.
type RemoteError struct {
	Method     string
	URL        string
	StatusCode int
	Body       string
	Err        error
}

func (e *RemoteError) Error() string {
	if e.StatusCode == 0 && e.Err != nil {
		return fmt.Sprintf("%s %s: %v", e.Method, e.URL, e.Err)
	}
	return fmt.Sprintf("%s %s: status %d: %s", e.Method, e.URL, e.StatusCode, e.Body)
}

// Unwrap exposes ErrNotFound for 404 responses so callers can use errors.Is.
func (e *RemoteError) Unwrap() error {
	if e.StatusCode == http.StatusNotFound {
		return ErrNotFound
	}
	return e.Err
}

// PortExhaustionError indicates no candidate port could be bound.
type PortExhaustionError struct {
	Host  string
	First int
	Last  int
}

func (e *PortExhaustionError) Error() string {
	return fmt.Sprintf("no free port on %s in range %d-%d", e.Host, e.First, e.Last)
}

// ProcessLaunchError indicates the tool server subprocess could not be started.
type ProcessLaunchError struct {
	Command string
	Err     error
}

func (e *ProcessLaunchError) Error() string {
	return fmt.Sprintf("launch %q: %v", e.Command, e.Err)
}

func (e *ProcessLaunchError) Unwrap() error {
	return e.Err
}
