package domain

import "errors"

// Sentinel errors shared by the client packages. They provide consistent,
// checkable errors for the failures the store reports to the user.
var (
	ErrNoUserSelected = errors.New("no user selected")
	ErrMissingUserID  = errors.New("user id is required")
	ErrEmptyResponse  = errors.New("no response from server")
	ErrNotConnected   = errors.New("live connection is not established")
	ErrUnauthorized   = errors.New("unauthorized")
	ErrNotFound       = errors.New("requested resource not found")
)
