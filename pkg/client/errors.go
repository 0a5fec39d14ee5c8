package client

import (
	"errors"
	"fmt"
	"net/http"
)

// ErrNotAuthenticated is returned before any network call when no token is available.
var ErrNotAuthenticated = errors.New("not authenticated")

// ErrTransport wraps failures to reach the backend at all.
var ErrTransport = errors.New("transport error")

// HTTPError represents a non-2xx HTTP response from the API.
type HTTPError struct {
	StatusCode int
	Message    string
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("HTTP %d: %s", e.StatusCode, e.Message)
}

// IsStatus returns true if err (or any wrapped error) is an HTTPError with the given status code.
func IsStatus(err error, code int) bool {
	var httpErr *HTTPError
	if errors.As(err, &httpErr) {
		return httpErr.StatusCode == code
	}
	return false
}

// IsSessionExpired reports whether the backend rejected the bearer token.
func IsSessionExpired(err error) bool {
	return IsStatus(err, http.StatusUnauthorized)
}

// RejectedError is a 2xx response whose payload reports failure
// (success:false, ok:false or an error field).
type RejectedError struct {
	Op      string
	Message string
}

func (e *RejectedError) Error() string {
	if e.Op == "" {
		return e.Message
	}
	return e.Op + ": " + e.Message
}

// IsRejected returns the RejectedError in err's chain, if any.
func IsRejected(err error) (*RejectedError, bool) {
	var rej *RejectedError
	if errors.As(err, &rej) {
		return rej, true
	}
	return nil, false
}

// Message returns the text a screen should show for err: the backend's own
// message when it sent one, the error string otherwise.
func Message(err error) string {
	if err == nil {
		return ""
	}
	if rej, ok := IsRejected(err); ok {
		return rej.Message
	}
	var httpErr *HTTPError
	if errors.As(err, &httpErr) && httpErr.Message != "" {
		return httpErr.Message
	}
	return err.Error()
}
