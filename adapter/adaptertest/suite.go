/*
 * Copyright (C) 2024 Adiom, Inc.
 *
 * SPDX-License-Identifier: AGPL-3.0-or-later
 */

// Package adaptertest holds a reusable conformance suite that every backend
// must pass. Backend packages embed Suite in their own tests and point it at
// a constructor and connection string.
package adaptertest

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/ista-data/ista/adapter"
	"github.com/stretchr/testify/suite"
)

// Suite exercises the capability contract against a live backend. Field
// values written by the suite are strings wherever the assertion depends on
// round-trip equality, since numeric wire shapes legitimately differ per
// backend.
type Suite struct {
	suite.Suite

	// NewAdapter must return a fresh unconnected adapter.
	NewAdapter func() adapter.Adapter
	// ConnString is the backend connection string used by SetupTest.
	ConnString string

	ctx        context.Context
	ad         adapter.Adapter
	collection string
}

func (s *Suite) SetupTest() {
	s.ctx = context.Background()
	s.ad = s.NewAdapter()
	s.Require().NoError(s.ad.Connect(s.ctx, s.ConnString, adapter.ConnectOptions{}))
	s.collection = "t_" + strings.ReplaceAll(uuid.NewString(), "-", "")[:12]
	s.Require().NoError(s.ad.CreateCollection(s.ctx, s.collection, nil))
}

func (s *Suite) TearDownTest() {
	if s.ad == nil {
		return
	}
	_ = s.ad.DropCollection(s.ctx, s.collection)
	_ = s.ad.Disconnect(s.ctx)
}

func (s *Suite) TestConnectLifecycle() {
	err := s.ad.Connect(s.ctx, s.ConnString, adapter.ConnectOptions{})
	s.True(adapter.IsInvalidStateError(err), "second connect must fail, got %v", err)

	s.True(s.ad.HealthCheck(s.ctx))
	ok, msg := s.ad.ValidateConnection(s.ctx)
	s.True(ok, msg)

	s.NoError(s.ad.Disconnect(s.ctx))
	s.NoError(s.ad.Disconnect(s.ctx), "disconnect must be idempotent")

	s.False(s.ad.HealthCheck(s.ctx))
	_, err = s.ad.CountDocuments(s.ctx, s.collection, nil)
	s.True(adapter.IsInvalidStateError(err))

	err = s.ad.Connect(s.ctx, s.ConnString, adapter.ConnectOptions{})
	s.True(adapter.IsInvalidStateError(err), "closed adapters must not reconnect")
	s.ad = nil
}

func (s *Suite) TestOpsBeforeConnect() {
	fresh := s.NewAdapter()
	_, err := fresh.FindDocuments(s.ctx, s.collection, nil, 0, 0)
	s.True(adapter.IsInvalidStateError(err))
}

func (s *Suite) TestInsertFindRoundTrip() {
	docs := []adapter.Document{
		{"name": "ada", "city": "london"},
		{"name": "grace", "city": "arlington"},
	}
	n, err := s.ad.InsertDocuments(s.ctx, s.collection, docs)
	s.Require().NoError(err)
	s.Equal(2, n)

	found, err := s.ad.FindDocuments(s.ctx, s.collection, adapter.Filter{"name": "ada"}, 0, 0)
	s.Require().NoError(err)
	s.Require().Len(found, 1)
	s.Equal("london", found[0]["city"])
	s.NotNil(found[0]["_id"], "backend must assign a primary key")
}

func (s *Suite) TestInsertOneReturnsID() {
	id, err := s.ad.InsertOne(s.ctx, s.collection, adapter.Document{"name": "solo"})
	s.Require().NoError(err)
	s.Require().NotNil(id)

	doc, err := s.ad.FindOne(s.ctx, s.collection, adapter.Filter{"name": "solo"})
	s.Require().NoError(err)
	s.Require().NotNil(doc)
	s.Equal("solo", doc["name"])
}

func (s *Suite) TestDuplicatePrimaryKey() {
	_, err := s.ad.InsertOne(s.ctx, s.collection, adapter.Document{"_id": "fixed", "name": "first"})
	s.Require().NoError(err)
	_, err = s.ad.InsertOne(s.ctx, s.collection, adapter.Document{"_id": "fixed", "name": "second"})
	s.True(adapter.IsValidationError(err), "duplicate key must be a validation error, got %v", err)
}

func (s *Suite) TestFindOneNoMatch() {
	doc, err := s.ad.FindOne(s.ctx, s.collection, adapter.Filter{"name": "nobody"})
	s.NoError(err)
	s.Nil(doc)
}

func (s *Suite) TestCountAndPagination() {
	for i := 0; i < 5; i++ {
		_, err := s.ad.InsertOne(s.ctx, s.collection, adapter.Document{"name": fmt.Sprintf("user-%d", i), "kind": "batch"})
		s.Require().NoError(err)
	}

	count, err := s.ad.CountDocuments(s.ctx, s.collection, adapter.Filter{"kind": "batch"})
	s.Require().NoError(err)
	s.EqualValues(5, count)

	all, err := s.ad.FindDocuments(s.ctx, s.collection, nil, 0, 0)
	s.Require().NoError(err)
	s.Len(all, 5, "limit zero means unbounded")

	page, err := s.ad.FindDocuments(s.ctx, s.collection, nil, 2, 2)
	s.Require().NoError(err)
	s.Len(page, 2)

	tail, err := s.ad.FindDocuments(s.ctx, s.collection, nil, 0, 4)
	s.Require().NoError(err)
	s.Len(tail, 1)
}

func (s *Suite) TestUpdateOneAffectsSingleRecord() {
	for i := 0; i < 3; i++ {
		_, err := s.ad.InsertOne(s.ctx, s.collection, adapter.Document{"team": "blue", "rank": "member"})
		s.Require().NoError(err)
	}

	ok, err := s.ad.UpdateOne(s.ctx, s.collection, adapter.Filter{"team": "blue"}, adapter.Document{"rank": "lead"})
	s.Require().NoError(err)
	s.True(ok)

	leads, err := s.ad.CountDocuments(s.ctx, s.collection, adapter.Filter{"rank": "lead"})
	s.Require().NoError(err)
	s.EqualValues(1, leads, "update_one must touch exactly one record")
}

func (s *Suite) TestUpdateManyMergesFields() {
	for i := 0; i < 2; i++ {
		_, err := s.ad.InsertOne(s.ctx, s.collection, adapter.Document{"team": "red", "motto": "fast"})
		s.Require().NoError(err)
	}
	n, err := s.ad.UpdateDocuments(s.ctx, s.collection, adapter.Filter{"team": "red"}, adapter.Document{"motto": "steady"})
	s.Require().NoError(err)
	s.EqualValues(2, n)

	doc, err := s.ad.FindOne(s.ctx, s.collection, adapter.Filter{"team": "red"})
	s.Require().NoError(err)
	s.Require().NotNil(doc)
	s.Equal("steady", doc["motto"])
	s.Equal("red", doc["team"], "untouched fields must survive a patch")
}

func (s *Suite) TestDeleteOneAffectsSingleRecord() {
	for i := 0; i < 3; i++ {
		_, err := s.ad.InsertOne(s.ctx, s.collection, adapter.Document{"kind": "ephemeral"})
		s.Require().NoError(err)
	}
	ok, err := s.ad.DeleteOne(s.ctx, s.collection, adapter.Filter{"kind": "ephemeral"})
	s.Require().NoError(err)
	s.True(ok)

	left, err := s.ad.CountDocuments(s.ctx, s.collection, adapter.Filter{"kind": "ephemeral"})
	s.Require().NoError(err)
	s.EqualValues(2, left)

	n, err := s.ad.DeleteDocuments(s.ctx, s.collection, adapter.Filter{"kind": "ephemeral"})
	s.Require().NoError(err)
	s.EqualValues(2, n)
}

func (s *Suite) TestBulkWriteNormalizedCounts() {
	_, err := s.ad.InsertOne(s.ctx, s.collection, adapter.Document{"name": "patch-me", "state": "old"})
	s.Require().NoError(err)
	_, err = s.ad.InsertOne(s.ctx, s.collection, adapter.Document{"name": "drop-me"})
	s.Require().NoError(err)

	res, err := s.ad.BulkWrite(s.ctx, s.collection, []adapter.BulkOperation{
		adapter.InsertOp{Document: adapter.Document{"name": "bulk-a"}},
		adapter.UpdateOp{Filter: adapter.Filter{"name": "patch-me"}, Patch: adapter.Document{"state": "new"}},
		adapter.InsertOp{Document: adapter.Document{"name": "bulk-b"}},
		adapter.DeleteOp{Filter: adapter.Filter{"name": "drop-me"}},
		adapter.InsertOp{Document: adapter.Document{"name": "bulk-c"}},
	})
	s.Require().NoError(err)
	s.EqualValues(3, res.Inserted)
	s.EqualValues(1, res.Updated)
	s.EqualValues(1, res.Deleted)

	count, err := s.ad.CountDocuments(s.ctx, s.collection, nil)
	s.Require().NoError(err)
	s.EqualValues(4, count)
}

func (s *Suite) TestMaskSkipsMissingAndEmpty() {
	for i := 0; i < 6; i++ {
		_, err := s.ad.InsertOne(s.ctx, s.collection, adapter.Document{"email": fmt.Sprintf("user%d@example.com", i)})
		s.Require().NoError(err)
	}
	for i := 0; i < 3; i++ {
		_, err := s.ad.InsertOne(s.ctx, s.collection, adapter.Document{"name": "no-email"})
		s.Require().NoError(err)
	}
	_, err := s.ad.InsertOne(s.ctx, s.collection, adapter.Document{"email": ""})
	s.Require().NoError(err)

	masked, err := s.ad.MaskField(s.ctx, s.collection, "email", func(interface{}) (interface{}, error) {
		return "***", nil
	})
	s.Require().NoError(err)
	s.Equal(6, masked)

	hidden, err := s.ad.CountDocuments(s.ctx, s.collection, adapter.Filter{"email": "***"})
	s.Require().NoError(err)
	s.EqualValues(6, hidden)
}

func (s *Suite) TestSchemaEmptyCollection() {
	schema, err := s.ad.GetSchema(s.ctx, s.collection, 0)
	s.Require().NoError(err)
	s.Equal(s.collection, schema.Name)
	s.Empty(schema.Fields)
}

func (s *Suite) TestSchemaInference() {
	docs := []adapter.Document{
		{"name": "a", "age": 30, "tags": []interface{}{"x"}},
		{"name": "b", "age": 31},
		{"name": "c", "age": 32, "mixed": "text"},
		{"name": "d", "age": 33, "mixed": 7},
	}
	_, err := s.ad.InsertDocuments(s.ctx, s.collection, docs)
	s.Require().NoError(err)

	schema, err := s.ad.GetSchema(s.ctx, s.collection, 10)
	s.Require().NoError(err)
	byName := make(map[string]adapter.FieldSchema)
	for _, f := range schema.Fields {
		byName[f.Name] = f
	}
	s.NotContains(byName, "_id", "primary key is reported separately")
	s.Equal("_id", schema.PrimaryKey)

	s.Equal(adapter.TypeString, byName["name"].Type)
	s.False(byName["name"].Nullable)
	s.Equal(adapter.TypeInteger, byName["age"].Type)
	s.Equal(adapter.TypeArray, byName["tags"].Type)
	s.True(byName["tags"].Nullable, "absent in some samples means nullable")
	s.Equal(adapter.TypeUnknown, byName["mixed"].Type, "conflicting observed types")
}

func (s *Suite) TestCreateIndex() {
	s.Require().NoError(s.ad.CreateIndex(s.ctx, s.collection, "email", false))

	_, err := s.ad.InsertOne(s.ctx, s.collection, adapter.Document{"email": "a@example.com"})
	s.Require().NoError(err)

	// Every backend reports its native indexes through the inferred schema.
	s.Eventually(func() bool {
		schema, err := s.ad.GetSchema(s.ctx, s.collection, 5)
		if err != nil {
			return false
		}
		return schema.Fields["email"].Indexed
	}, 30*time.Second, time.Second)
}

func (s *Suite) TestCollectionStats() {
	for i := 0; i < 4; i++ {
		_, err := s.ad.InsertOne(s.ctx, s.collection, adapter.Document{"n": fmt.Sprintf("%d", i)})
		s.Require().NoError(err)
	}
	stats, err := s.ad.CollectionStats(s.ctx, s.collection)
	s.Require().NoError(err)
	s.EqualValues(4, stats.Count)
}
