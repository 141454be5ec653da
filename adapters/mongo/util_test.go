/*
 * Copyright (C) 2024 Adiom, Inc.
 *
 * SPDX-License-Identifier: AGPL-3.0-or-later
 */
package mongo

import (
	"testing"
	"time"

	"github.com/ista-data/ista/adapter"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

func TestDatabaseFromURI(t *testing.T) {
	testCases := []struct {
		uri     string
		want    string
		wantErr bool
	}{
		{"mongodb://localhost:27017/appdb", "appdb", false},
		{"mongodb://user:pw@host:27017/appdb?replicaSet=rs0", "appdb", false},
		{"mongodb://localhost:27017/", "", true},
		{"mongodb://localhost:27017", "", true},
	}
	for _, tc := range testCases {
		got, err := databaseFromURI(tc.uri)
		if tc.wantErr {
			assert.Error(t, err, tc.uri)
			continue
		}
		require.NoError(t, err, tc.uri)
		assert.Equal(t, tc.want, got)
	}
}

func TestNormalizeDocument(t *testing.T) {
	now := primitive.NewDateTimeFromTime(time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC))
	doc := bson.M{
		"name":    "a",
		"tags":    primitive.A{"x", bson.M{"deep": primitive.A{1}}},
		"created": now,
		"nested":  bson.M{"ts": now},
	}
	out := normalizeDocument(doc)

	tags, ok := out["tags"].([]interface{})
	require.True(t, ok, "bson arrays must become plain slices")
	nestedArr := tags[1].(map[string]interface{})["deep"]
	assert.IsType(t, []interface{}{}, nestedArr)

	assert.IsType(t, time.Time{}, out["created"])
	nested := out["nested"].(map[string]interface{})
	assert.IsType(t, time.Time{}, nested["ts"])
}

func TestNormalizeForSchemaMapsObjectIDs(t *testing.T) {
	oid := primitive.NewObjectID()
	out := normalizeForSchema(bson.M{"_id": oid, "name": "a"})
	assert.Equal(t, adapter.Identifier(oid.Hex()), out["_id"])
	assert.Equal(t, adapter.TypeIdentifier, adapter.ClassifyValue(out["_id"]))
}

func TestToInt64(t *testing.T) {
	assert.EqualValues(t, 7, toInt64(int32(7)))
	assert.EqualValues(t, 7, toInt64(int64(7)))
	assert.EqualValues(t, 7, toInt64(float64(7.2)))
	assert.EqualValues(t, 0, toInt64("not a number"))
}
