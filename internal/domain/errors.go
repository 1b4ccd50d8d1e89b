package domain

import "errors"

// Sentinel errors for the domain layer.
var (
	ErrNotFound     = errors.New("domain: not found")
	ErrConflict     = errors.New("domain: conflict")
	ErrInUse        = errors.New("domain: still referenced")
	ErrUnauthorized = errors.New("domain: unauthorized")
	ErrForbidden    = errors.New("domain: forbidden")
)

// Audit contract violations.
var (
	ErrInvalidEntityType = errors.New("audit: invalid entity type")
	ErrInvalidAction     = errors.New("audit: invalid action")
	ErrEmptyEntityID     = errors.New("audit: entity id is required")
	ErrEmptyChanges      = errors.New("audit: before or after snapshot is required")
)
