/*
 * Copyright (C) 2024 Adiom, Inc.
 *
 * SPDX-License-Identifier: AGPL-3.0-or-later
 */

package memory

import (
	"context"
	"testing"

	"github.com/ista-data/ista/adapter"
	"github.com/ista-data/ista/adapter/adaptertest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"
)

func TestConformance(t *testing.T) {
	suite.Run(t, &adaptertest.Suite{
		NewAdapter: NewAdapter,
		ConnString: "memory://",
	})
}

func connected(t *testing.T) adapter.Adapter {
	t.Helper()
	ad := NewAdapter()
	require.NoError(t, ad.Connect(context.Background(), "memory://", adapter.ConnectOptions{}))
	return ad
}

func TestRegistryLookup(t *testing.T) {
	ad, err := adapter.Get("MEMORY")
	require.NoError(t, err)
	assert.NotNil(t, ad)
}

func TestDropMissingCollection(t *testing.T) {
	ctx := context.Background()
	ad := connected(t)
	err := ad.DropCollection(ctx, "ghost")
	assert.ErrorIs(t, err, adapter.ErrNotFound)
}

func TestUniqueIndexEnforced(t *testing.T) {
	ctx := context.Background()
	ad := connected(t)
	require.NoError(t, ad.CreateCollection(ctx, "users", nil))
	require.NoError(t, ad.CreateIndex(ctx, "users", "email", true))

	_, err := ad.InsertOne(ctx, "users", adapter.Document{"email": "a@example.com"})
	require.NoError(t, err)
	_, err = ad.InsertOne(ctx, "users", adapter.Document{"email": "a@example.com"})
	assert.True(t, adapter.IsValidationError(err))

	// Unique indexes only reject duplicates that actually carry the field.
	_, err = ad.InsertOne(ctx, "users", adapter.Document{"name": "no-email"})
	assert.NoError(t, err)
}

func TestIndexedFieldsMarkedInSchema(t *testing.T) {
	ctx := context.Background()
	ad := connected(t)
	require.NoError(t, ad.CreateCollection(ctx, "users", nil))
	require.NoError(t, ad.CreateIndex(ctx, "users", "email", true))
	_, err := ad.InsertOne(ctx, "users", adapter.Document{"email": "a@example.com"})
	require.NoError(t, err)

	schema, err := ad.GetSchema(ctx, "users", 0)
	require.NoError(t, err)
	require.Len(t, schema.Fields, 1)
	assert.True(t, schema.Fields["email"].Indexed)
	assert.True(t, schema.Fields["email"].Unique)
}

func TestDocumentsAreIsolated(t *testing.T) {
	ctx := context.Background()
	ad := connected(t)
	require.NoError(t, ad.CreateCollection(ctx, "items", nil))

	original := adapter.Document{"name": "widget", "meta": map[string]interface{}{"color": "red"}}
	_, err := ad.InsertOne(ctx, "items", original)
	require.NoError(t, err)

	// Mutating the caller's map must not leak into storage.
	original["name"] = "tampered"
	doc, err := ad.FindOne(ctx, "items", adapter.Filter{"name": "widget"})
	require.NoError(t, err)
	require.NotNil(t, doc)

	// Mutating a returned document must not leak either.
	doc["meta"].(map[string]interface{})["color"] = "blue"
	again, err := ad.FindOne(ctx, "items", adapter.Filter{"name": "widget"})
	require.NoError(t, err)
	assert.Equal(t, "red", again["meta"].(map[string]interface{})["color"])
}

func TestUpdateMergesWithoutAliasing(t *testing.T) {
	ctx := context.Background()
	ad := connected(t)
	require.NoError(t, ad.CreateCollection(ctx, "items", nil))

	_, err := ad.InsertOne(ctx, "items", adapter.Document{"_id": "w1", "name": "widget", "stock": "low"})
	require.NoError(t, err)

	patch := adapter.Document{"stock": "high", "meta": map[string]interface{}{"color": "red"}}
	ok, err := ad.UpdateOne(ctx, "items", adapter.Filter{"_id": "w1"}, patch)
	require.NoError(t, err)
	require.True(t, ok)

	// Untouched fields survive the partial update.
	doc, err := ad.FindOne(ctx, "items", adapter.Filter{"_id": "w1"})
	require.NoError(t, err)
	require.NotNil(t, doc)
	assert.Equal(t, "widget", doc["name"])
	assert.Equal(t, "high", doc["stock"])

	// Mutating the caller's patch after the update must not leak into storage.
	patch["meta"].(map[string]interface{})["color"] = "blue"
	again, err := ad.FindOne(ctx, "items", adapter.Filter{"_id": "w1"})
	require.NoError(t, err)
	assert.Equal(t, "red", again["meta"].(map[string]interface{})["color"])
}

func TestBulkWritePartialResult(t *testing.T) {
	ctx := context.Background()
	ad := connected(t)
	require.NoError(t, ad.CreateCollection(ctx, "items", nil))

	res, err := ad.BulkWrite(ctx, "items", []adapter.BulkOperation{
		adapter.InsertOp{Document: adapter.Document{"_id": "a"}},
		adapter.InsertOp{Document: adapter.Document{"_id": "a"}}, // duplicate
		adapter.DeleteOp{Filter: adapter.Filter{"_id": "a"}},
	})
	require.Error(t, err)
	assert.True(t, adapter.IsValidationError(err))
	assert.EqualValues(t, 1, res.Inserted, "counts committed before the failure survive")
	assert.EqualValues(t, 0, res.Deleted, "later partitions must not run")
}
