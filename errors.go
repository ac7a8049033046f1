package kiroku

import (
	"errors"
	"fmt"
)

// InvalidIdentifierError is returned by container constructors when strict
// mode is enabled and the caller supplied an id that does not match
// [A-Za-z0-9_-]+. In lenient mode (the default) the bad id is replaced by a
// generated one and a warning is logged instead.
type InvalidIdentifierError struct {
	Entity EntityKind
	ID     string
}

func (e *InvalidIdentifierError) Error() string {
	return fmt.Sprintf("kiroku: invalid %s id %q (must match [A-Za-z0-9_-]+)", e.Entity, e.ID)
}

// Error represents an error from the logging backend with the HTTP status
// code and the server's error message.
type Error struct {
	StatusCode int
	Code       string
	Message    string
}

func (e *Error) Error() string {
	return fmt.Sprintf("kiroku: %s (%d): %s", e.Code, e.StatusCode, e.Message)
}

// IsNotFound returns true if the error is a 404.
func IsNotFound(err error) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.StatusCode == 404
	}
	return false
}

// IsUnauthorized returns true if the error is a 401.
func IsUnauthorized(err error) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.StatusCode == 401
	}
	return false
}

// IsForbidden returns true if the error is a 403.
func IsForbidden(err error) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.StatusCode == 403
	}
	return false
}

// IsRateLimited returns true if the error is a 429 (Too Many Requests).
func IsRateLimited(err error) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.StatusCode == 429
	}
	return false
}
