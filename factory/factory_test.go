/*
 * Copyright (C) 2024 Adiom, Inc.
 *
 * SPDX-License-Identifier: AGPL-3.0-or-later
 */

package factory

import (
	"testing"

	"github.com/ista-data/ista/adapter"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNamesAndLookup(t *testing.T) {
	assert.Equal(t, []string{"comments", "movies", "sessions", "users"}, Names())

	fa, err := Get("users")
	require.NoError(t, err)
	assert.Equal(t, "users", fa.Collection)

	_, err = Get("nope")
	assert.Error(t, err)
}

func TestBatchSize(t *testing.T) {
	fa, err := Get("sessions")
	require.NoError(t, err)
	docs := fa.Batch(New(1), 25)
	assert.Len(t, docs, 25)
}

func TestSeededOutputIsReproducible(t *testing.T) {
	fa, err := Get("users")
	require.NoError(t, err)
	a := fa.Build(New(42))
	b := fa.Build(New(42))
	assert.Equal(t, a["username"], b["username"])
	assert.Equal(t, a["email"], b["email"])
}

// Every factory must emit values the schema inferencer can classify, so a
// provisioned collection never reports "unknown" fields.
func TestFactoryOutputIsSchemaStable(t *testing.T) {
	f := New(7)
	expected := map[string]map[string]adapter.FieldType{
		"movies": {
			"title":    adapter.TypeString,
			"year":     adapter.TypeInteger,
			"runtime":  adapter.TypeInteger,
			"genres":   adapter.TypeArray,
			"released": adapter.TypeDate,
			"imdb":     adapter.TypeObject,
		},
		"users": {
			"username":   adapter.TypeString,
			"email":      adapter.TypeString,
			"profile":    adapter.TypeObject,
			"created_at": adapter.TypeDate,
		},
		"comments": {
			"text":      adapter.TypeString,
			"likes":     adapter.TypeInteger,
			"is_hidden": adapter.TypeBoolean,
			"date":      adapter.TypeDate,
		},
		"sessions": {
			"token":       adapter.TypeString,
			"expires_at":  adapter.TypeDate,
			"device_info": adapter.TypeObject,
			"is_active":   adapter.TypeBoolean,
		},
	}

	for name, fields := range expected {
		fa, err := Get(name)
		require.NoError(t, err)
		schema := adapter.InferSchema(fa.Collection, "_id", fa.Batch(f, 10))
		for field, wantType := range fields {
			got, ok := schema.Fields[field]
			require.True(t, ok, "%s.%s missing", name, field)
			assert.Equal(t, wantType, got.Type, "%s.%s", name, field)
			assert.False(t, got.Nullable, "%s.%s must appear in every document", name, field)
		}
	}
}
