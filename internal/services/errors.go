// Package services defines the business logic of the messaging core: users,
// conversations, messages, edit history, read state and notifications.
// This file centralizes the error kinds returned by service methods so that
// handlers can translate them into user-facing codes.
//
// Every failure a caller sees is a *Error carrying one of the kinds below
// and a human-readable reason. Match kinds with errors.Is:
//
//	if errors.Is(err, services.ErrPermission) { ... }
package services

import (
	"errors"
	"fmt"
)

// Error kinds.
var (
	// ErrValidation marks malformed or out-of-range input.
	ErrValidation = errors.New("validation error")

	// ErrNotFound marks a referenced id that does not exist.
	ErrNotFound = errors.New("not found")

	// ErrPermission marks an actor lacking rights for the action.
	ErrPermission = errors.New("permission denied")

	// ErrConflict marks an optimistic-concurrency or uniqueness violation.
	ErrConflict = errors.New("conflict")

	// ErrInternal marks a storage or infrastructure failure. Its reason is
	// opaque; the cause is kept for logging only.
	ErrInternal = errors.New("internal error")
)

// Error is the typed failure returned by service methods.
type Error struct {
	Kind   error
	Reason string
	cause  error
}

func (e *Error) Error() string {
	if e.Reason == "" {
		return e.Kind.Error()
	}
	return e.Kind.Error() + ": " + e.Reason
}

// Unwrap exposes the kind so errors.Is matches it.
func (e *Error) Unwrap() error { return e.Kind }

// Cause returns the underlying storage error of an internal failure, if any.
func (e *Error) Cause() error { return e.cause }

func validationf(format string, args ...any) error {
	return &Error{Kind: ErrValidation, Reason: fmt.Sprintf(format, args...)}
}

func notFound(what string) error {
	return &Error{Kind: ErrNotFound, Reason: what + " not found"}
}

func permissionf(format string, args ...any) error {
	return &Error{Kind: ErrPermission, Reason: fmt.Sprintf(format, args...)}
}

func conflictf(format string, args ...any) error {
	return &Error{Kind: ErrConflict, Reason: fmt.Sprintf(format, args...)}
}

// storageErr wraps a storage error. Errors that already are *Error pass through
// unchanged, so transaction callbacks can return typed errors directly.
func storageErr(err error) error {
	if err == nil {
		return nil
	}
	var se *Error
	if errors.As(err, &se) {
		return se
	}
	return &Error{Kind: ErrInternal, Reason: "storage failure", cause: err}
}
