/*
 * Copyright (C) 2024 Adiom, Inc.
 *
 * SPDX-License-Identifier: AGPL-3.0-or-later
 */
package postgres

import (
	"encoding/json"
	"testing"

	"github.com/ista-data/ista/adapter"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuildWhere(t *testing.T) {
	t.Run("empty filter", func(t *testing.T) {
		where, args, err := buildWhere(nil)
		require.NoError(t, err)
		assert.Empty(t, where)
		assert.Empty(t, args)
	})

	t.Run("primary key only", func(t *testing.T) {
		where, args, err := buildWhere(adapter.Filter{"_id": "abc"})
		require.NoError(t, err)
		assert.Equal(t, " WHERE _id = $1", where)
		assert.Equal(t, []interface{}{"abc"}, args)
	})

	t.Run("fields only", func(t *testing.T) {
		where, args, err := buildWhere(adapter.Filter{"name": "ada"})
		require.NoError(t, err)
		assert.Equal(t, " WHERE doc @> $1::jsonb", where)
		require.Len(t, args, 1)
		assert.JSONEq(t, `{"name":"ada"}`, string(args[0].([]byte)))
	})

	t.Run("primary key plus fields", func(t *testing.T) {
		where, args, err := buildWhere(adapter.Filter{"_id": "abc", "name": "ada"})
		require.NoError(t, err)
		assert.Equal(t, " WHERE _id = $1 AND doc @> $2::jsonb", where)
		require.Len(t, args, 2)
		assert.Equal(t, "abc", args[0])
		assert.JSONEq(t, `{"name":"ada"}`, string(args[1].([]byte)))
	})

	t.Run("unencodable filter", func(t *testing.T) {
		_, _, err := buildWhere(adapter.Filter{"bad": make(chan int)})
		assert.Error(t, err)
	})
}

func TestQuoteIdent(t *testing.T) {
	assert.Equal(t, `"users"`, quoteIdent("users"))
	assert.Equal(t, `"odd""name"`, quoteIdent(`odd"name`))
}

func TestQuoteLiteral(t *testing.T) {
	assert.Equal(t, "'email'", quoteLiteral("email"))
	assert.Equal(t, "'it''s'", quoteLiteral("it's"))
}

func TestDecodeDocKeepsNumbers(t *testing.T) {
	doc, err := decodeDoc([]byte(`{"age": 42, "score": 1.5}`))
	require.NoError(t, err)
	assert.Equal(t, json.Number("42"), doc["age"])
	assert.Equal(t, adapter.TypeInteger, adapter.ClassifyValue(doc["age"]))
	assert.Equal(t, adapter.TypeFloat, adapter.ClassifyValue(doc["score"]))
}
