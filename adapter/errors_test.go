/*
 * Copyright (C) 2024 Adiom, Inc.
 *
 * SPDX-License-Identifier: AGPL-3.0-or-later
 */

package adapter

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestErrorKinds(t *testing.T) {
	cause := fmt.Errorf("socket closed")
	err := ConnectionErr("mongodb", "connect", cause)

	assert.True(t, errors.Is(err, ErrConnection))
	assert.False(t, errors.Is(err, ErrValidation))
	assert.True(t, errors.Is(err, cause), "cause must be reachable through Unwrap")
	assert.Contains(t, err.Error(), "mongodb")
	assert.Contains(t, err.Error(), "connect")
}

func TestWrapBackendPassThrough(t *testing.T) {
	inner := ValidationErr("postgresql", "insert_one", fmt.Errorf("duplicate key"))
	wrapped := WrapBackend("postgresql", "bulk_write", inner)

	// An error already carrying a kind must not be re-wrapped as ErrBackend.
	assert.True(t, errors.Is(wrapped, ErrValidation))
	assert.False(t, errors.Is(wrapped, ErrBackend))
}

func TestWrapBackendDefault(t *testing.T) {
	err := WrapBackend("dynamodb", "scan", fmt.Errorf("throttled"))
	assert.True(t, errors.Is(err, ErrBackend))
}

func TestPredicates(t *testing.T) {
	assert.True(t, IsConnectionError(ConnectionErr("x", "connect", fmt.Errorf("nope"))))
	assert.True(t, IsValidationError(ValidationErr("x", "insert", fmt.Errorf("bad"))))
	assert.True(t, IsNotFoundError(NotFoundErr("x", "drop", "missing")))
	assert.True(t, IsInvalidStateError(InvalidStateErr("x", "find", "not connected")))
	assert.False(t, IsConnectionError(nil))
	assert.False(t, IsValidationError(fmt.Errorf("plain")))
}

func TestErrorMessageShape(t *testing.T) {
	err := NotFoundErr("memory", "drop_collection", "ghost")
	require.Error(t, err)
	assert.Contains(t, err.Error(), `"ghost"`)
	assert.Contains(t, err.Error(), "memory")
}
