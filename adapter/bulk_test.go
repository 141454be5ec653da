/*
 * Copyright (C) 2024 Adiom, Inc.
 *
 * SPDX-License-Identifier: AGPL-3.0-or-later
 */

package adapter

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPartitionOpsPreservesRelativeOrder(t *testing.T) {
	ops := []BulkOperation{
		InsertOp{Document: Document{"n": 1}},
		DeleteOp{Filter: Filter{"n": 9}},
		UpdateOp{Filter: Filter{"n": 1}, Patch: Document{"n": 2}},
		InsertOp{Document: Document{"n": 3}},
		InsertOp{Document: Document{"n": 4}},
		DeleteOp{Filter: Filter{"n": 8}},
	}
	inserts, updates, deletes := PartitionOps(ops)

	require.Len(t, inserts, 3)
	require.Len(t, updates, 1)
	require.Len(t, deletes, 2)

	assert.Equal(t, 1, inserts[0].Document["n"])
	assert.Equal(t, 3, inserts[1].Document["n"])
	assert.Equal(t, 4, inserts[2].Document["n"])
	assert.Equal(t, 9, deletes[0].Filter["n"])
	assert.Equal(t, 8, deletes[1].Filter["n"])
}

func TestPartitionOpsEmpty(t *testing.T) {
	inserts, updates, deletes := PartitionOps(nil)
	assert.Empty(t, inserts)
	assert.Empty(t, updates)
	assert.Empty(t, deletes)
}

func TestApplyMaskPolicy(t *testing.T) {
	upper := func(v interface{}) (interface{}, error) {
		return fmt.Sprintf("masked-%v", v), nil
	}

	testCases := []struct {
		name    string
		value   interface{}
		present bool
		persist bool
	}{
		{"missing field", nil, false, false},
		{"explicit nil", nil, true, false},
		{"empty string", "", true, false},
		{"regular value", "secret", true, true},
		{"zero number still masked", 0, true, true},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			masked, persist, err := ApplyMask("memory", upper, tc.value, tc.present)
			require.NoError(t, err)
			assert.Equal(t, tc.persist, persist)
			if tc.persist {
				assert.Equal(t, fmt.Sprintf("masked-%v", tc.value), masked)
			}
		})
	}
}

func TestApplyMaskFnError(t *testing.T) {
	boom := func(interface{}) (interface{}, error) {
		return nil, fmt.Errorf("bad rule")
	}
	_, persist, err := ApplyMask("memory", boom, "value", true)
	assert.False(t, persist)
	assert.True(t, IsValidationError(err))
}
