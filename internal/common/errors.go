// Package common defines shared constants and sentinel errors used across
// the sync engine and the reference server. Callers should use errors.Is to
// match these values.
package common

import "errors"

var (
	// Repository-level errors.
	ErrNotFound = errors.New("not found")
	ErrStorage  = errors.New("storage error")

	// Remote-service errors.
	ErrUnavailable     = errors.New("server unavailable")
	ErrUnauthorized    = errors.New("unauthorized")
	ErrVersionConflict = errors.New("version conflict")

	// Validation errors.
	ErrInvalidEntityType = errors.New("invalid entity type")
	ErrInvalidPayload    = errors.New("invalid payload")

	// Auth errors (invalid or malformed token).
	ErrInvalidToken = errors.New("invalid token")
	ErrTokenExpired = errors.New("token expired")
)
