package client

import (
	"fmt"
	"net/http"

	"github.com/pkg/errors"
)

// NetworkError is a transport-level failure: no response was received.
type NetworkError struct {
	Op  string
	Err error
}

func (e *NetworkError) Error() string {
	return fmt.Sprintf("%s: network error: %v", e.Op, e.Err)
}

func (e *NetworkError) Unwrap() error { return e.Err }

// AuthError is a non-2xx answer to login or register.
type AuthError struct {
	Status  int
	Message string
}

func (e *AuthError) Error() string {
	return fmt.Sprintf("authentication failed (%d): %s", e.Status, e.Message)
}

// ChatRequestError is a non-2xx answer to an authenticated or chat request.
type ChatRequestError struct {
	Status  int
	Message string
}

func (e *ChatRequestError) Error() string {
	return fmt.Sprintf("chat request failed (%d): %s", e.Status, e.Message)
}

// MalformedResponseError is a 2xx answer missing a required field.
type MalformedResponseError struct {
	Op    string
	Field string
}

func (e *MalformedResponseError) Error() string {
	return fmt.Sprintf("%s: malformed response: missing %s", e.Op, e.Field)
}

// StatusCode returns the HTTP status carried by err, or 0.
func StatusCode(err error) int {
	var authErr *AuthError
	if errors.As(err, &authErr) {
		return authErr.Status
	}
	var chatErr *ChatRequestError
	if errors.As(err, &chatErr) {
		return chatErr.Status
	}
	return 0
}

// IsUnauthorized reports whether err is a 401 rejection from the backend.
func IsUnauthorized(err error) bool {
	return StatusCode(err) == http.StatusUnauthorized
}

// DisplayMessage converts any client failure into a string fit for the user.
func DisplayMessage(err error) string {
	if err == nil {
		return ""
	}

	var (
		netErr       *NetworkError
		authErr      *AuthError
		chatErr      *ChatRequestError
		malformedErr *MalformedResponseError
	)
	switch {
	case errors.As(err, &netErr):
		return "Unable to reach the server. Check your connection and try again."
	case errors.As(err, &authErr):
		return authErr.Message
	case errors.As(err, &chatErr):
		if chatErr.Status == http.StatusUnauthorized {
			return "Your session has expired. Please log in again."
		}
		return chatErr.Message
	case errors.As(err, &malformedErr):
		return "The server returned an unexpected response."
	default:
		return err.Error()
	}
}
