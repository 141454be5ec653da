/*
 * Copyright (C) 2024 Adiom, Inc.
 *
 * SPDX-License-Identifier: AGPL-3.0-or-later
 */
package adapter

import (
	"errors"
	"fmt"
)

// Error kinds. Callers match with errors.Is against these sentinels rather
// than inspecting concrete backend errors.
var (
	// ErrConnection covers session establishment and liveness failures.
	// Retryable by the caller.
	ErrConnection = errors.New("connection error")

	// ErrValidation covers malformed filters/documents and mask function
	// failures. Not retryable without caller correction.
	ErrValidation = errors.New("validation error")

	// ErrNotFound is returned when an operation targets a missing
	// collection or record where the backend requires existence.
	ErrNotFound = errors.New("not found")

	// ErrUnsupportedBackend is returned by the registry for unknown
	// backend identifiers.
	ErrUnsupportedBackend = errors.New("unsupported backend")

	// ErrInvalidState is returned when a method is called outside its
	// allowed lifecycle state.
	ErrInvalidState = errors.New("invalid adapter state")

	// ErrBackend wraps any other backend diagnostic.
	ErrBackend = errors.New("backend error")
)

// Error carries a kind sentinel plus the backend, operation, and original
// diagnostic. The cause chain is always preserved.
type Error struct {
	Kind    error
	Backend string
	Op      string
	Cause   error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("[%s] %s: %v: %v", e.Backend, e.Op, e.Kind, e.Cause)
	}
	return fmt.Sprintf("[%s] %s: %v", e.Backend, e.Op, e.Kind)
}

func (e *Error) Unwrap() error {
	return e.Cause
}

func (e *Error) Is(target error) bool {
	return target == e.Kind
}

// NewError builds an adapter error of the given kind.
func NewError(kind error, backend, op string, cause error) *Error {
	return &Error{Kind: kind, Backend: backend, Op: op, Cause: cause}
}

// ConnectionErr reports a session establishment or liveness failure.
func ConnectionErr(backend, op string, cause error) *Error {
	return NewError(ErrConnection, backend, op, cause)
}

// ValidationErr reports a malformed filter, document, or mask failure.
func ValidationErr(backend, op string, cause error) *Error {
	return NewError(ErrValidation, backend, op, cause)
}

// NotFoundErr reports a missing collection or record.
func NotFoundErr(backend, op, name string) *Error {
	return NewError(ErrNotFound, backend, op, fmt.Errorf("%q does not exist", name))
}

// InvalidStateErr reports a lifecycle violation.
func InvalidStateErr(backend, op, detail string) *Error {
	return NewError(ErrInvalidState, backend, op, errors.New(detail))
}

// WrapBackend wraps an arbitrary backend diagnostic. Errors that are already
// adapter errors pass through unchanged so kinds are not double-wrapped.
func WrapBackend(backend, op string, err error) error {
	if err == nil {
		return nil
	}
	var ae *Error
	if errors.As(err, &ae) {
		return err
	}
	return NewError(ErrBackend, backend, op, err)
}

func IsConnectionError(err error) bool   { return errors.Is(err, ErrConnection) }
func IsValidationError(err error) bool   { return errors.Is(err, ErrValidation) }
func IsNotFoundError(err error) bool     { return errors.Is(err, ErrNotFound) }
func IsInvalidStateError(err error) bool { return errors.Is(err, ErrInvalidState) }
