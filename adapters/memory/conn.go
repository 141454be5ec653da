/*
 * Copyright (C) 2024 Adiom, Inc.
 *
 * SPDX-License-Identifier: AGPL-3.0-or-later
 */

// Package memory implements the capability contract against an in-process
// document store. It exists for offline provisioning dry runs and for
// exercising the contract test suite without a server.
package memory

import (
	"context"
	"encoding/json"
	"fmt"
	"reflect"
	"sort"
	"sync"

	"github.com/google/uuid"
	"github.com/ista-data/ista/adapter"
)

const backendName = "memory"

const primaryKey = "_id"

func init() {
	adapter.Register(NewAdapter, "memory")
}

type indexSpec struct {
	field  string
	unique bool
}

type collection struct {
	docs    map[string]adapter.Document
	order   []string // insertion order, for deterministic scans
	indexes []indexSpec
}

type conn struct {
	mu        sync.RWMutex
	connected bool
	closed    bool
	cols      map[string]*collection
}

// NewAdapter returns an unconnected in-memory adapter.
func NewAdapter() adapter.Adapter {
	return &conn{}
}

func (c *conn) guard(op string) error {
	if c.closed {
		return adapter.InvalidStateErr(backendName, op, "adapter is disconnected")
	}
	if !c.connected {
		return adapter.InvalidStateErr(backendName, op, "adapter is not connected")
	}
	return nil
}

// Connect accepts any connection string; there is no backing server.
func (c *conn) Connect(ctx context.Context, connString string, opts adapter.ConnectOptions) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return adapter.InvalidStateErr(backendName, "connect", "adapter is disconnected")
	}
	if c.connected {
		return adapter.InvalidStateErr(backendName, "connect", "already connected")
	}
	c.connected = true
	c.cols = map[string]*collection{}
	return nil
}

func (c *conn) Disconnect(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.connected = false
	c.closed = true
	c.cols = nil
	return nil
}

func (c *conn) HealthCheck(ctx context.Context) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.connected
}

func (c *conn) ValidateConnection(ctx context.Context) (bool, string) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if !c.connected {
		return false, "memory store is not connected"
	}
	return true, fmt.Sprintf("memory store with %d collections", len(c.cols))
}

func (c *conn) CreateCollection(ctx context.Context, name string, schema *adapter.DocumentSchema) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.guard("create_collection"); err != nil {
		return err
	}
	if _, ok := c.cols[name]; ok {
		return nil
	}
	c.cols[name] = &collection{docs: map[string]adapter.Document{}}
	return nil
}

// DropCollection fails with a not-found error on a missing name.
func (c *conn) DropCollection(ctx context.Context, name string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.guard("drop_collection"); err != nil {
		return err
	}
	if _, ok := c.cols[name]; !ok {
		return adapter.NotFoundErr(backendName, "drop_collection", name)
	}
	delete(c.cols, name)
	return nil
}

func (c *conn) ListCollections(ctx context.Context) ([]string, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if err := c.guard("list_collections"); err != nil {
		return nil, err
	}
	names := make([]string, 0, len(c.cols))
	for name := range c.cols {
		names = append(names, name)
	}
	sort.Strings(names)
	return names, nil
}

// getOrCreate assumes the write lock is held.
func (c *conn) getOrCreate(name string) *collection {
	col, ok := c.cols[name]
	if !ok {
		col = &collection{docs: map[string]adapter.Document{}}
		c.cols[name] = col
	}
	return col
}

func (c *conn) insertLocked(col *collection, doc adapter.Document) (interface{}, error) {
	stored := copyDoc(doc)
	id, ok := stored[primaryKey]
	if !ok {
		id = uuid.NewString()
		stored[primaryKey] = id
	}
	key := fmt.Sprintf("%v", id)
	if _, exists := col.docs[key]; exists {
		return nil, adapter.ValidationErr(backendName, "insert",
			fmt.Errorf("duplicate %s %v", primaryKey, id))
	}
	for _, idx := range col.indexes {
		if !idx.unique {
			continue
		}
		v, present := stored[idx.field]
		if !present {
			continue
		}
		for _, k := range col.order {
			if reflect.DeepEqual(col.docs[k][idx.field], v) {
				return nil, adapter.ValidationErr(backendName, "insert",
					fmt.Errorf("unique index violation on %q", idx.field))
			}
		}
	}
	col.docs[key] = stored
	col.order = append(col.order, key)
	return id, nil
}

func (c *conn) InsertDocuments(ctx context.Context, collectionName string, docs []adapter.Document) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.guard("insert_documents"); err != nil {
		return 0, err
	}
	col := c.getOrCreate(collectionName)
	inserted := 0
	for _, doc := range docs {
		if _, err := c.insertLocked(col, doc); err != nil {
			return inserted, err
		}
		inserted++
	}
	return inserted, nil
}

func (c *conn) InsertOne(ctx context.Context, collectionName string, doc adapter.Document) (interface{}, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.guard("insert_one"); err != nil {
		return nil, err
	}
	return c.insertLocked(c.getOrCreate(collectionName), doc)
}

// scanLocked returns keys of matching documents in insertion order.
func scanLocked(col *collection, filter adapter.Filter) []string {
	var keys []string
	for _, key := range col.order {
		if matches(col.docs[key], filter) {
			keys = append(keys, key)
		}
	}
	return keys
}

func (c *conn) FindDocuments(ctx context.Context, collectionName string, filter adapter.Filter, limit, skip int) ([]adapter.Document, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if err := c.guard("find_documents"); err != nil {
		return nil, err
	}
	col, ok := c.cols[collectionName]
	if !ok {
		return nil, nil
	}
	var out []adapter.Document
	for _, key := range scanLocked(col, filter) {
		if skip > 0 {
			skip--
			continue
		}
		out = append(out, copyDoc(col.docs[key]))
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out, nil
}

func (c *conn) FindOne(ctx context.Context, collectionName string, filter adapter.Filter) (adapter.Document, error) {
	docs, err := c.FindDocuments(ctx, collectionName, filter, 1, 0)
	if err != nil || len(docs) == 0 {
		return nil, err
	}
	return docs[0], nil
}

func (c *conn) CountDocuments(ctx context.Context, collectionName string, filter adapter.Filter) (int64, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if err := c.guard("count_documents"); err != nil {
		return 0, err
	}
	col, ok := c.cols[collectionName]
	if !ok {
		return 0, nil
	}
	return int64(len(scanLocked(col, filter))), nil
}

func (c *conn) UpdateDocuments(ctx context.Context, collectionName string, filter adapter.Filter, update adapter.Document) (int64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.guard("update_documents"); err != nil {
		return 0, err
	}
	col, ok := c.cols[collectionName]
	if !ok {
		return 0, nil
	}
	var updated int64
	for _, key := range scanLocked(col, filter) {
		mergeDoc(col.docs[key], update)
		updated++
	}
	return updated, nil
}

func (c *conn) UpdateOne(ctx context.Context, collectionName string, filter adapter.Filter, update adapter.Document) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.guard("update_one"); err != nil {
		return false, err
	}
	col, ok := c.cols[collectionName]
	if !ok {
		return false, nil
	}
	keys := scanLocked(col, filter)
	if len(keys) == 0 {
		return false, nil
	}
	mergeDoc(col.docs[keys[0]], update)
	return true, nil
}

func (c *conn) DeleteDocuments(ctx context.Context, collectionName string, filter adapter.Filter) (int64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.guard("delete_documents"); err != nil {
		return 0, err
	}
	col, ok := c.cols[collectionName]
	if !ok {
		return 0, nil
	}
	keys := scanLocked(col, filter)
	c.removeLocked(col, keys)
	return int64(len(keys)), nil
}

func (c *conn) DeleteOne(ctx context.Context, collectionName string, filter adapter.Filter) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.guard("delete_one"); err != nil {
		return false, err
	}
	col, ok := c.cols[collectionName]
	if !ok {
		return false, nil
	}
	keys := scanLocked(col, filter)
	if len(keys) == 0 {
		return false, nil
	}
	c.removeLocked(col, keys[:1])
	return true, nil
}

func (c *conn) removeLocked(col *collection, keys []string) {
	for _, key := range keys {
		delete(col.docs, key)
	}
	var order []string
	for _, key := range col.order {
		if _, ok := col.docs[key]; ok {
			order = append(order, key)
		}
	}
	col.order = order
}

func (c *conn) BulkWrite(ctx context.Context, collectionName string, ops []adapter.BulkOperation) (adapter.BulkResult, error) {
	var result adapter.BulkResult
	if err := func() error {
		c.mu.RLock()
		defer c.mu.RUnlock()
		return c.guard("bulk_write")
	}(); err != nil {
		return result, err
	}

	inserts, updates, deletes := adapter.PartitionOps(ops)

	for _, op := range inserts {
		if _, err := c.InsertOne(ctx, collectionName, op.Document); err != nil {
			return result, err
		}
		result.Inserted++
	}
	for _, op := range updates {
		ok, err := c.UpdateOne(ctx, collectionName, op.Filter, op.Patch)
		if err != nil {
			return result, err
		}
		if ok {
			result.Updated++
		}
	}
	for _, op := range deletes {
		ok, err := c.DeleteOne(ctx, collectionName, op.Filter)
		if err != nil {
			return result, err
		}
		if ok {
			result.Deleted++
		}
	}
	return result, nil
}

func (c *conn) CreateIndex(ctx context.Context, collectionName, field string, unique bool) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.guard("create_index"); err != nil {
		return err
	}
	col := c.getOrCreate(collectionName)
	for _, idx := range col.indexes {
		if idx.field == field {
			return nil
		}
	}
	col.indexes = append(col.indexes, indexSpec{field: field, unique: unique})
	return nil
}

func (c *conn) CollectionStats(ctx context.Context, collectionName string) (adapter.CollectionStats, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if err := c.guard("collection_stats"); err != nil {
		return adapter.CollectionStats{}, err
	}
	col, ok := c.cols[collectionName]
	if !ok {
		return adapter.CollectionStats{}, adapter.NotFoundErr(backendName, "collection_stats", collectionName)
	}
	var size int64
	for _, key := range col.order {
		b, err := json.Marshal(col.docs[key])
		if err != nil {
			return adapter.CollectionStats{}, adapter.WrapBackend(backendName, "collection_stats", err)
		}
		size += int64(len(b))
	}
	stats := adapter.CollectionStats{
		Count:      int64(len(col.order)),
		SizeBytes:  size,
		IndexCount: len(col.indexes),
	}
	if stats.Count > 0 {
		stats.AvgRecordSize = size / stats.Count
	}
	return stats, nil
}

func (c *conn) MaskField(ctx context.Context, collectionName, field string, fn adapter.MaskFunc) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.guard("mask_field"); err != nil {
		return 0, err
	}
	col, ok := c.cols[collectionName]
	if !ok {
		return 0, nil
	}
	masked := 0
	for _, key := range col.order {
		doc := col.docs[key]
		value, present := doc[field]
		maskedValue, persist, err := adapter.ApplyMask(backendName, fn, value, present)
		if err != nil {
			return masked, err
		}
		if !persist {
			continue
		}
		doc[field] = maskedValue
		masked++
	}
	return masked, nil
}

func (c *conn) GetSchema(ctx context.Context, collectionName string, sampleSize int) (adapter.DocumentSchema, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if err := c.guard("get_schema"); err != nil {
		return adapter.DocumentSchema{}, err
	}
	if sampleSize <= 0 {
		sampleSize = adapter.DefaultSampleSize
	}
	schema := adapter.DocumentSchema{Name: collectionName, Fields: map[string]adapter.FieldSchema{}, PrimaryKey: primaryKey}
	col, ok := c.cols[collectionName]
	if !ok {
		return schema, nil
	}
	var samples []adapter.Document
	for _, key := range col.order {
		samples = append(samples, col.docs[key])
		if len(samples) == sampleSize {
			break
		}
	}
	schema = adapter.InferSchema(collectionName, primaryKey, samples)
	markIndexes(&schema, col.indexes)
	return schema, nil
}

func markIndexes(schema *adapter.DocumentSchema, indexes []indexSpec) {
	for _, idx := range indexes {
		if fs, ok := schema.Fields[idx.field]; ok {
			fs.Indexed = true
			fs.Unique = idx.unique
			schema.Fields[idx.field] = fs
		}
	}
}

func matches(doc adapter.Document, filter adapter.Filter) bool {
	for k, want := range filter {
		got, ok := doc[k]
		if !ok || !reflect.DeepEqual(got, want) {
			return false
		}
	}
	return true
}

// mergeDoc applies a partial update in place, deep-copying patch values so
// the store never aliases caller memory.
func mergeDoc(dst adapter.Document, patch adapter.Document) {
	for k, v := range patch {
		dst[k] = copyValue(v)
	}
}

func copyDoc(doc adapter.Document) adapter.Document {
	out := make(adapter.Document, len(doc))
	for k, v := range doc {
		out[k] = copyValue(v)
	}
	return out
}

func copyValue(v interface{}) interface{} {
	switch value := v.(type) {
	case map[string]interface{}:
		return copyDoc(value)
	case []interface{}:
		out := make([]interface{}, len(value))
		for i, item := range value {
			out[i] = copyValue(item)
		}
		return out
	default:
		return v
	}
}
