// Package errors provides standardized domain errors that express intent rather than
// infrastructure details. Every component of the gateway wraps one of these sentinels
// so that callers and the admin API can classify failures with errors.Is.
package errors

import (
	"errors"
	"fmt"
)

// Standard domain errors that can be used across all domain modules.
var (
	// ErrNotFound indicates the requested resource does not exist.
	ErrNotFound = errors.New("not found")

	// ErrConflict indicates a conflict with existing data (e.g., duplicate key).
	ErrConflict = errors.New("conflict")

	// ErrInvalidInput indicates the input data is invalid or fails validation.
	ErrInvalidInput = errors.New("invalid input")

	// ErrUnauthorized indicates the request lacks valid authentication credentials.
	ErrUnauthorized = errors.New("unauthorized")

	// ErrForbidden indicates the caller doesn't have permission.
	ErrForbidden = errors.New("forbidden")
)

// Gateway lifecycle and deployment errors.
var (
	// ErrInitialization indicates a service failed to initialize or start.
	// Fatal during registry startup.
	ErrInitialization = errors.New("initialization failed")

	// ErrDependencyMissing indicates a service was used before the service it
	// depends on produced its state. This is an ordering bug.
	ErrDependencyMissing = errors.New("dependency missing")

	// ErrParse indicates a malformed topology descriptor.
	ErrParse = errors.New("parse error")

	// ErrCompile indicates a topology could not be compiled into a deployment.
	ErrCompile = errors.New("compile error")

	// ErrIO indicates an artifact write or remove failure.
	ErrIO = errors.New("io error")

	// ErrUnavailable indicates a resource exists but cannot currently serve.
	ErrUnavailable = errors.New("unavailable")
)

// New creates a new error with the given message.
// This is a convenience wrapper around errors.New for consistency.
func New(message string) error {
	return errors.New(message)
}

// Wrap wraps an error with additional context while preserving the error chain.
// Use this to add context at each layer without losing the original error type.
func Wrap(err error, message string) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", message, err)
}

// Wrapf wraps an error with a formatted message while preserving the error chain.
func Wrapf(err error, format string, args ...any) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", fmt.Sprintf(format, args...), err)
}

// Is reports whether any error in err's tree matches target.
// This is a convenience wrapper around errors.Is.
func Is(err, target error) bool {
	return errors.Is(err, target)
}

// As finds the first error in err's tree that matches target.
// This is a convenience wrapper around errors.As.
func As(err error, target any) bool {
	return errors.As(err, target)
}

// Join returns an error that wraps the given errors, discarding nils.
func Join(errs ...error) error {
	return errors.Join(errs...)
}
