package domain

import "errors"

// Sentinel errors shared across store, services, and the protocol edge.
// The dispatcher maps these onto the wire error taxonomy exactly once.
var (
	ErrUnauthorized = errors.New("unauthorized")
	ErrForbidden    = errors.New("forbidden")
	ErrNotFound     = errors.New("not found")
	ErrConflict     = errors.New("conflict")
	ErrInvalid      = errors.New("invalid payload")
	ErrRateLimited  = errors.New("rate limited")
)
