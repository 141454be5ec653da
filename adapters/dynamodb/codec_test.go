/*
 * Copyright (C) 2024 Adiom, Inc.
 *
 * SPDX-License-Identifier: AGPL-3.0-or-later
 */
package dynamodb

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/ista-data/ista/adapter"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCodecRoundTrip(t *testing.T) {
	doc := adapter.Document{
		"_id":   "abc",
		"age":   42,
		"score": 1.5,
		"ok":    true,
		"tags":  []interface{}{"x", "y"},
		"meta":  map[string]interface{}{"depth": 2},
	}
	item, err := encodeDocument(doc)
	require.NoError(t, err)

	out, err := decodeDocument(item)
	require.NoError(t, err)

	assert.Equal(t, "abc", out["_id"])
	assert.Equal(t, json.Number("42"), out["age"])
	assert.Equal(t, adapter.TypeInteger, adapter.ClassifyValue(out["age"]))
	assert.Equal(t, adapter.TypeFloat, adapter.ClassifyValue(out["score"]))
	assert.Equal(t, true, out["ok"])
	assert.Equal(t, []interface{}{"x", "y"}, out["tags"])
	assert.Equal(t, json.Number("2"), out["meta"].(map[string]interface{})["depth"])
}

func TestLowerValue(t *testing.T) {
	ts := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	assert.Equal(t, int64(7), lowerValue(json.Number("7")))
	assert.Equal(t, 1.5, lowerValue(json.Number("1.5")))
	assert.Equal(t, "abc", lowerValue(adapter.Identifier("abc")))
	assert.Equal(t, "2024-05-01T12:00:00Z", lowerValue(ts))
}

func TestNormalizeFilterValue(t *testing.T) {
	assert.Equal(t, json.Number("7"), normalizeFilterValue(7))
	assert.Equal(t, json.Number("7"), normalizeFilterValue(int64(7)))
	assert.Equal(t, json.Number("1.5"), normalizeFilterValue(1.5))
	assert.Equal(t, "abc", normalizeFilterValue(adapter.Identifier("abc")))
	assert.Equal(t, "plain", normalizeFilterValue("plain"))
}

func TestMatches(t *testing.T) {
	doc := adapter.Document{"name": "ada", "age": json.Number("30")}
	assert.True(t, matches(doc, adapter.Filter{"name": "ada"}))
	assert.True(t, matches(doc, adapter.Filter{"age": 30}))
	assert.True(t, matches(doc, nil))
	assert.False(t, matches(doc, adapter.Filter{"name": "grace"}))
	assert.False(t, matches(doc, adapter.Filter{"missing": "x"}))
}

func TestEndpointFromURI(t *testing.T) {
	for uri, want := range map[string]string{
		"":                          "",
		"dynamodb://":               "",
		"dynamodb://localhost:8000": "http://localhost:8000",
	} {
		got, err := endpointFromURI(uri)
		require.NoError(t, err, uri)
		assert.Equal(t, want, got, uri)
	}
}
