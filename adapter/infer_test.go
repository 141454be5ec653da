/*
 * Copyright (C) 2024 Adiom, Inc.
 *
 * SPDX-License-Identifier: AGPL-3.0-or-later
 */

package adapter

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClassifyValue(t *testing.T) {
	testCases := []struct {
		name  string
		value interface{}
		want  FieldType
	}{
		{"string", "hello", TypeString},
		{"bool", true, TypeBoolean},
		{"int", 42, TypeInteger},
		{"int32", int32(42), TypeInteger},
		{"int64", int64(42), TypeInteger},
		{"uint", uint(42), TypeInteger},
		{"float64", 4.2, TypeFloat},
		{"float32", float32(4.2), TypeFloat},
		{"json int", json.Number("42"), TypeInteger},
		{"json float", json.Number("4.2"), TypeFloat},
		{"json exponent", json.Number("1e6"), TypeFloat},
		{"identifier", Identifier("abc123"), TypeIdentifier},
		{"time", time.Now(), TypeDate},
		{"object", map[string]interface{}{"a": 1}, TypeObject},
		{"array", []interface{}{1, 2}, TypeArray},
		{"nil", nil, TypeUnknown},
		{"channel", make(chan int), TypeUnknown},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, ClassifyValue(tc.value))
		})
	}
}

func TestInferSchema(t *testing.T) {
	samples := []Document{
		{"_id": Identifier("1"), "name": "a", "age": 30, "score": 1.5},
		{"_id": Identifier("2"), "name": "b", "age": 31},
		{"_id": Identifier("3"), "name": "c", "age": 32, "mixed": "x"},
		{"_id": Identifier("4"), "name": "d", "age": 33, "mixed": 1},
	}
	schema := InferSchema("people", "_id", samples)

	require.Equal(t, "people", schema.Name)
	require.Equal(t, "_id", schema.PrimaryKey)

	byName := map[string]FieldSchema{}
	for _, f := range schema.Fields {
		byName[f.Name] = f
	}
	require.NotContains(t, byName, "_id")

	assert.Equal(t, TypeString, byName["name"].Type)
	assert.False(t, byName["name"].Nullable)

	assert.Equal(t, TypeInteger, byName["age"].Type)

	assert.Equal(t, TypeFloat, byName["score"].Type)
	assert.True(t, byName["score"].Nullable, "field absent in some samples")

	assert.Equal(t, TypeUnknown, byName["mixed"].Type, "conflicting types collapse to unknown")
}

func TestInferSchemaEmpty(t *testing.T) {
	schema := InferSchema("empty", "_id", nil)
	assert.Equal(t, "empty", schema.Name)
	assert.Empty(t, schema.Fields)
}

func TestInferSchemaNilValueDoesNotPinType(t *testing.T) {
	samples := []Document{
		{"note": nil},
		{"note": "present"},
	}
	schema := InferSchema("notes", "_id", samples)
	require.Len(t, schema.Fields, 1)
	assert.Equal(t, TypeString, schema.Fields["note"].Type)
	assert.True(t, schema.Fields["note"].Nullable)
}
