/*
 * Copyright (C) 2024 Adiom, Inc.
 *
 * SPDX-License-Identifier: AGPL-3.0-or-later
 */
package adapter

// Document is a single record as exchanged with a backend. Backends impose no
// shape requirement beyond a primary-key-compatible identifier field.
type Document = map[string]interface{}

// Filter selects records by field equality. An empty or nil filter matches
// every record in the collection.
type Filter = map[string]interface{}

// FieldType is the set of type tags the schema inferencer can assign to a
// sampled field.
type FieldType string

const (
	TypeString     FieldType = "string"
	TypeInteger    FieldType = "integer"
	TypeFloat      FieldType = "float"
	TypeBoolean    FieldType = "boolean"
	TypeDate       FieldType = "date"
	TypeObject     FieldType = "object"
	TypeArray      FieldType = "array"
	TypeIdentifier FieldType = "identifier"
	TypeUnknown    FieldType = "unknown"
)

// Identifier marks a backend-native id value (e.g. an ObjectID rendered as
// hex) during schema sampling. Backends convert their native id types to
// Identifier before handing samples to the inferencer.
type Identifier string

// FieldSchema describes one field of an inferred schema. Indexed and Unique
// are never inferred from sampled data; they are only set when the caller
// created an index explicitly.
type FieldSchema struct {
	Name      string
	Type      FieldType
	Nullable  bool
	Indexed   bool
	Unique    bool
	Reference string
}

// DocumentSchema is a derived structural schema for a collection. It is
// recomputed on demand and never persisted.
type DocumentSchema struct {
	Name       string
	Fields     map[string]FieldSchema
	PrimaryKey string
}

// CollectionStats is a point-in-time snapshot of collection size information.
type CollectionStats struct {
	Count         int64
	SizeBytes     int64
	AvgRecordSize int64
	IndexCount    int
}

// BulkResult summarizes a bulk_write call. Counts are non-negative and sum
// to at most the batch length. When BulkWrite returns an error, the result
// carries the counts committed before the failure.
type BulkResult struct {
	Inserted int64
	Updated  int64
	Deleted  int64
}

// MaskFunc transforms a single field value. It must be pure and
// side-effect-free; an error aborts the remaining masking scan.
type MaskFunc func(value interface{}) (interface{}, error)
