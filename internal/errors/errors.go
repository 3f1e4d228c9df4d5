package errors

import (
	"errors"
	"fmt"
)

// Common error types for the login site
var (
	// Session errors
	ErrSessionNotFound  = errors.New("session not found")
	ErrSessionExpired   = errors.New("session expired")
	ErrStoreUnavailable = errors.New("session store unavailable")

	// Authentication errors
	ErrInvalidCredentials = errors.New("invalid credentials")

	// Configuration errors
	ErrInvalidConfig = errors.New("invalid configuration")

	// Rendering errors
	ErrTemplateNotFound = errors.New("template not found")
)

// Wrapf wraps an error with context using fmt.Errorf
func Wrapf(err error, format string, args ...interface{}) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf(format+": %w", append(args, err)...)
}

// Is reports whether any error in err's chain matches target
func Is(err, target error) bool {
	return errors.Is(err, target)
}
