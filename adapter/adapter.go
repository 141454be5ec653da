/*
 * Copyright (C) 2024 Adiom, Inc.
 *
 * SPDX-License-Identifier: AGPL-3.0-or-later
 */

// Package adapter defines the backend-neutral capability contract for test
// data provisioning, the adapter registry, and the shared algorithms every
// backend builds on: bulk-operation partitioning, sampled schema inference,
// and field masking.
package adapter

import (
	"context"
	"time"
)

// DefaultSampleSize bounds schema inference when the caller passes a
// non-positive sample size.
const DefaultSampleSize = 10

// ConnectOptions tunes session establishment. Zero values fall back to the
// adapter's defaults.
type ConnectOptions struct {
	ConnectTimeout time.Duration
	PingTimeout    time.Duration

	// Params carries backend-specific settings that have no
	// backend-neutral representation (e.g. an AWS region).
	Params map[string]string
}

// Adapter is one bound session implementing the full backend-neutral
// capability contract.
//
// Lifecycle: no method except Connect may be called before a successful
// Connect, and none may be called after Disconnect. Connect on an
// already-connected adapter fails with ErrInvalidState; Disconnect is
// idempotent. An adapter owns its backend session exclusively and its
// methods are not safe for concurrent mutation without external
// synchronization.
type Adapter interface {
	// Connect establishes the single backend session. It fails with
	// ErrConnection on a malformed connection string or unreachable host.
	Connect(ctx context.Context, connString string, opts ConnectOptions) error

	// Disconnect releases the session. Calling it on an already
	// disconnected adapter is a no-op.
	Disconnect(ctx context.Context) error

	// HealthCheck issues a lightweight liveness probe. It never returns
	// an error; backend failures report as false.
	HealthCheck(ctx context.Context) bool

	// ValidateConnection is like HealthCheck but returns a human-readable
	// diagnostic on both paths. For user-facing output, not control flow.
	ValidateConnection(ctx context.Context) (bool, string)

	// CreateCollection creates a collection or table. Creating an
	// existing name is a no-op. The schema is advisory; document backends
	// may ignore it.
	CreateCollection(ctx context.Context, name string, schema *DocumentSchema) error

	// DropCollection removes a collection. Backends that do not natively
	// treat a missing name as a no-op fail with ErrNotFound; the behavior
	// is documented per adapter.
	DropCollection(ctx context.Context, name string) error

	// ListCollections returns collection names in a stable order.
	ListCollections(ctx context.Context) ([]string, error)

	InsertDocuments(ctx context.Context, collection string, docs []Document) (int, error)

	// InsertOne inserts a single document and returns its id, which may
	// be backend-assigned.
	InsertOne(ctx context.Context, collection string, doc Document) (interface{}, error)

	// FindDocuments returns records matching the equality filter.
	// limit=0 means unbounded.
	FindDocuments(ctx context.Context, collection string, filter Filter, limit, skip int) ([]Document, error)

	// FindOne returns the first matching record or nil. Which record is
	// "first" is backend-defined; no ordering is guaranteed.
	FindOne(ctx context.Context, collection string, filter Filter) (Document, error)

	CountDocuments(ctx context.Context, collection string, filter Filter) (int64, error)

	// UpdateDocuments merges the given fields into every matching record
	// (partial-field merge, never document replacement) and returns the
	// number of records changed.
	UpdateDocuments(ctx context.Context, collection string, filter Filter, update Document) (int64, error)

	// UpdateOne merges fields into at most one matching record, even if
	// the filter matches many. Which record is backend-defined.
	UpdateOne(ctx context.Context, collection string, filter Filter, update Document) (bool, error)

	DeleteDocuments(ctx context.Context, collection string, filter Filter) (int64, error)

	// DeleteOne removes at most one matching record.
	DeleteOne(ctx context.Context, collection string, filter Filter) (bool, error)

	// BulkWrite executes an ordered batch of heterogeneous writes as
	// partitioned native batch calls (insert, then update, then delete)
	// and returns the normalized summary. On a partition failure the
	// partial result is returned alongside the error; committed
	// partitions are not rolled back.
	BulkWrite(ctx context.Context, collection string, ops []BulkOperation) (BulkResult, error)

	CreateIndex(ctx context.Context, collection, field string, unique bool) error

	CollectionStats(ctx context.Context, collection string) (CollectionStats, error)

	// MaskField applies fn to the named field of every record holding a
	// non-empty value and returns the count of records mutated. A fn
	// error aborts the scan with ErrValidation; the count still reflects
	// records masked before the failure.
	MaskField(ctx context.Context, collection, field string, fn MaskFunc) (int, error)

	// GetSchema samples up to sampleSize records and infers a structural
	// schema. An empty collection yields an empty field mapping, never an
	// error. The scan is bounded by sampleSize regardless of collection
	// size.
	GetSchema(ctx context.Context, collection string, sampleSize int) (DocumentSchema, error)
}
