package account

import "errors"

// Sentinel error kinds (stable for errors.Is and for mapping by the service layer).
var (
	ErrInvalidInput = errors.New("invalid_input")
	ErrNotFound     = errors.New("not_found")
	ErrConflict     = errors.New("conflict")
	ErrNotActive    = errors.New("not_active")
)
