package password

import "errors"

// Policy violations. Callers map these to validation failures.
var (
	ErrPasswordTooShort = errors.New("password: shorter than policy minimum")
	ErrPasswordTooLong  = errors.New("password: longer than policy maximum")
	ErrWeakPassword     = errors.New("password: trivially guessable")
)

// ErrInvalidHash reports a stored hash that is malformed, unsupported or
// outside accepted cost bounds.
var ErrInvalidHash = errors.New("password: invalid stored hash")
