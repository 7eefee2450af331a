package api

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/nfrund/chatclient/internal/domain"
)

// Error is a non-success response from the chat backend.
type Error struct {
	StatusCode int
	// Message is the backend's "message" field, if it sent one.
	Message string
}

func (e *Error) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("api: %d %s: %s", e.StatusCode, http.StatusText(e.StatusCode), e.Message)
	}
	return fmt.Sprintf("api: %d %s", e.StatusCode, http.StatusText(e.StatusCode))
}

// Unwrap maps auth and lookup failures onto the domain sentinels so callers
// can test them with errors.Is.
func (e *Error) Unwrap() error {
	switch e.StatusCode {
	case http.StatusUnauthorized, http.StatusForbidden:
		return domain.ErrUnauthorized
	case http.StatusNotFound:
		return domain.ErrNotFound
	}
	return nil
}

// errorBody is the backend's error shape.
type errorBody struct {
	Message string `json:"message"`
}

// ErrorMessage returns the text to show the user for err: the backend's own
// message when the failure carried one, fallback otherwise.
func ErrorMessage(err error, fallback string) string {
	var apiErr *Error
	if errors.As(err, &apiErr) && apiErr.Message != "" {
		return apiErr.Message
	}
	return fallback
}
