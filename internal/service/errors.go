package service

import "errors"

var (
	// ErrPersistence marks a failed store write or read. The operation had no effect.
	ErrPersistence    = errors.New("persistence failure")
	ErrUnknownUser    = errors.New("unknown user")
	ErrInvalidMessage = errors.New("invalid message")
	ErrNotFound       = errors.New("not found")
	ErrForbidden      = errors.New("forbidden")
)
