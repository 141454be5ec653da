/*
 * Copyright (C) 2024 Adiom, Inc.
 *
 * SPDX-License-Identifier: AGPL-3.0-or-later
 */

// Package postgres implements the capability contract on top of PostgreSQL.
//
// Each collection is a table of shape (_id text primary key, doc jsonb not
// null). The jsonb column holds the full record including _id; the key
// column mirrors it so primary-key lookups stay index-backed. Field indexes
// are expression indexes on (doc->>'field').
package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/ista-data/ista/adapter"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

const backendName = "postgresql"

const primaryKey = "_id"

func init() {
	adapter.Register(NewAdapter, "postgresql", "postgres")
}

const (
	stateCreated int32 = iota
	stateConnected
	stateClosed
)

type conn struct {
	state atomic.Int32
	pool  *pgxpool.Pool
}

// NewAdapter returns an unconnected PostgreSQL adapter.
func NewAdapter() adapter.Adapter {
	return &conn{}
}

func (c *conn) guard(op string) error {
	switch c.state.Load() {
	case stateConnected:
		return nil
	case stateClosed:
		return adapter.InvalidStateErr(backendName, op, "adapter is disconnected")
	default:
		return adapter.InvalidStateErr(backendName, op, "adapter is not connected")
	}
}

func (c *conn) Connect(ctx context.Context, connString string, opts adapter.ConnectOptions) error {
	if c.state.Load() == stateClosed {
		return adapter.InvalidStateErr(backendName, "connect", "adapter is disconnected")
	}
	if c.state.Load() == stateConnected {
		return adapter.InvalidStateErr(backendName, "connect", "already connected")
	}

	connectTimeout := opts.ConnectTimeout
	if connectTimeout <= 0 {
		connectTimeout = 10 * time.Second
	}
	ctxConnect, cancel := context.WithTimeout(ctx, connectTimeout)
	defer cancel()

	pool, err := pgxpool.New(ctxConnect, connString)
	if err != nil {
		return adapter.ConnectionErr(backendName, "connect", err)
	}
	if err := pool.Ping(ctxConnect); err != nil {
		pool.Close()
		return adapter.ConnectionErr(backendName, "connect", err)
	}

	c.pool = pool
	c.state.Store(stateConnected)
	slog.Debug("connected to postgresql")
	return nil
}

func (c *conn) Disconnect(ctx context.Context) error {
	if !c.state.CompareAndSwap(stateConnected, stateClosed) {
		c.state.Store(stateClosed)
		return nil
	}
	c.pool.Close()
	return nil
}

func (c *conn) HealthCheck(ctx context.Context) bool {
	if c.guard("health_check") != nil {
		return false
	}
	ctxPing, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	return c.pool.Ping(ctxPing) == nil
}

func (c *conn) ValidateConnection(ctx context.Context) (bool, string) {
	if err := c.guard("validate_connection"); err != nil {
		return false, err.Error()
	}
	var version string
	if err := c.pool.QueryRow(ctx, "SELECT version()").Scan(&version); err != nil {
		return false, fmt.Sprintf("postgresql connection failed: %v", err)
	}
	return true, fmt.Sprintf("connected to %s", version)
}

func (c *conn) CreateCollection(ctx context.Context, name string, schema *adapter.DocumentSchema) error {
	if err := c.guard("create_collection"); err != nil {
		return err
	}
	query := fmt.Sprintf(
		"CREATE TABLE IF NOT EXISTS %s (_id text PRIMARY KEY, doc jsonb NOT NULL)",
		quoteIdent(name))
	if _, err := c.pool.Exec(ctx, query); err != nil {
		return adapter.WrapBackend(backendName, "create_collection", err)
	}
	if schema == nil {
		return nil
	}
	for _, field := range schema.Fields {
		if field.Name == primaryKey || (!field.Indexed && !field.Unique) {
			continue
		}
		if err := c.CreateIndex(ctx, name, field.Name, field.Unique); err != nil {
			return err
		}
	}
	return nil
}

func (c *conn) DropCollection(ctx context.Context, name string) error {
	if err := c.guard("drop_collection"); err != nil {
		return err
	}
	tag, err := c.pool.Exec(ctx, "SELECT 1 FROM information_schema.tables WHERE table_schema = current_schema() AND table_name = $1", name)
	if err != nil {
		return adapter.WrapBackend(backendName, "drop_collection", err)
	}
	if tag.RowsAffected() == 0 {
		return adapter.NotFoundErr(backendName, "drop_collection", name)
	}
	if _, err := c.pool.Exec(ctx, fmt.Sprintf("DROP TABLE %s", quoteIdent(name))); err != nil {
		return adapter.WrapBackend(backendName, "drop_collection", err)
	}
	return nil
}

func (c *conn) ListCollections(ctx context.Context) ([]string, error) {
	if err := c.guard("list_collections"); err != nil {
		return nil, err
	}
	rows, err := c.pool.Query(ctx,
		"SELECT table_name FROM information_schema.tables WHERE table_schema = current_schema() AND table_type = 'BASE TABLE' ORDER BY table_name")
	if err != nil {
		return nil, adapter.WrapBackend(backendName, "list_collections", err)
	}
	defer rows.Close()
	var names []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, adapter.WrapBackend(backendName, "list_collections", err)
		}
		names = append(names, name)
	}
	if rows.Err() != nil {
		return nil, adapter.WrapBackend(backendName, "list_collections", rows.Err())
	}
	return names, nil
}

func (c *conn) InsertDocuments(ctx context.Context, collection string, docs []adapter.Document) (int, error) {
	if err := c.guard("insert_documents"); err != nil {
		return 0, err
	}
	inserted := 0
	for _, doc := range docs {
		if err := c.insertDoc(ctx, collection, doc); err != nil {
			return inserted, err
		}
		inserted++
	}
	return inserted, nil
}

func (c *conn) InsertOne(ctx context.Context, collection string, doc adapter.Document) (interface{}, error) {
	if err := c.guard("insert_one"); err != nil {
		return nil, err
	}
	id := recordID(doc)
	stored := make(adapter.Document, len(doc)+1)
	for k, v := range doc {
		stored[k] = v
	}
	stored[primaryKey] = id
	if err := c.storeDoc(ctx, collection, "insert_one", id, stored); err != nil {
		return nil, err
	}
	return id, nil
}

func (c *conn) insertDoc(ctx context.Context, collection string, doc adapter.Document) error {
	id := recordID(doc)
	stored := make(adapter.Document, len(doc)+1)
	for k, v := range doc {
		stored[k] = v
	}
	stored[primaryKey] = id
	return c.storeDoc(ctx, collection, "insert_documents", id, stored)
}

func (c *conn) storeDoc(ctx context.Context, collection, op, id string, doc adapter.Document) error {
	payload, err := json.Marshal(doc)
	if err != nil {
		return adapter.ValidationErr(backendName, op, err)
	}
	query := fmt.Sprintf("INSERT INTO %s (_id, doc) VALUES ($1, $2)", quoteIdent(collection))
	if _, err := c.pool.Exec(ctx, query, id, payload); err != nil {
		return wrapPgErr(op, err)
	}
	return nil
}

func (c *conn) FindDocuments(ctx context.Context, collection string, filter adapter.Filter, limit, skip int) ([]adapter.Document, error) {
	if err := c.guard("find_documents"); err != nil {
		return nil, err
	}
	where, args, err := buildWhere(filter)
	if err != nil {
		return nil, adapter.ValidationErr(backendName, "find_documents", err)
	}
	query := fmt.Sprintf("SELECT doc FROM %s%s ORDER BY _id", quoteIdent(collection), where)
	if limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", limit)
	}
	if skip > 0 {
		query += fmt.Sprintf(" OFFSET %d", skip)
	}
	rows, err := c.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, adapter.WrapBackend(backendName, "find_documents", err)
	}
	defer rows.Close()
	var out []adapter.Document
	for rows.Next() {
		var payload []byte
		if err := rows.Scan(&payload); err != nil {
			return out, adapter.WrapBackend(backendName, "find_documents", err)
		}
		doc, err := decodeDoc(payload)
		if err != nil {
			return out, adapter.WrapBackend(backendName, "find_documents", err)
		}
		out = append(out, doc)
	}
	if rows.Err() != nil {
		return out, adapter.WrapBackend(backendName, "find_documents", rows.Err())
	}
	return out, nil
}

func (c *conn) FindOne(ctx context.Context, collection string, filter adapter.Filter) (adapter.Document, error) {
	if err := c.guard("find_one"); err != nil {
		return nil, err
	}
	where, args, err := buildWhere(filter)
	if err != nil {
		return nil, adapter.ValidationErr(backendName, "find_one", err)
	}
	query := fmt.Sprintf("SELECT doc FROM %s%s ORDER BY _id LIMIT 1", quoteIdent(collection), where)
	var payload []byte
	err = c.pool.QueryRow(ctx, query, args...).Scan(&payload)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, adapter.WrapBackend(backendName, "find_one", err)
	}
	doc, err := decodeDoc(payload)
	if err != nil {
		return nil, adapter.WrapBackend(backendName, "find_one", err)
	}
	return doc, nil
}

func (c *conn) CountDocuments(ctx context.Context, collection string, filter adapter.Filter) (int64, error) {
	if err := c.guard("count_documents"); err != nil {
		return 0, err
	}
	where, args, err := buildWhere(filter)
	if err != nil {
		return 0, adapter.ValidationErr(backendName, "count_documents", err)
	}
	query := fmt.Sprintf("SELECT count(*) FROM %s%s", quoteIdent(collection), where)
	var count int64
	if err := c.pool.QueryRow(ctx, query, args...).Scan(&count); err != nil {
		return 0, adapter.WrapBackend(backendName, "count_documents", err)
	}
	return count, nil
}

// UpdateDocuments merges the patch into matching rows with the jsonb
// concatenation operator, so untouched fields survive.
func (c *conn) UpdateDocuments(ctx context.Context, collection string, filter adapter.Filter, update adapter.Document) (int64, error) {
	if err := c.guard("update_documents"); err != nil {
		return 0, err
	}
	return c.applyPatch(ctx, collection, "update_documents", filter, update, false)
}

func (c *conn) UpdateOne(ctx context.Context, collection string, filter adapter.Filter, update adapter.Document) (bool, error) {
	if err := c.guard("update_one"); err != nil {
		return false, err
	}
	n, err := c.applyPatch(ctx, collection, "update_one", filter, update, true)
	return n > 0, err
}

func (c *conn) applyPatch(ctx context.Context, collection, op string, filter adapter.Filter, update adapter.Document, single bool) (int64, error) {
	if _, ok := update[primaryKey]; ok {
		return 0, adapter.ValidationErr(backendName, op, fmt.Errorf("cannot update %s", primaryKey))
	}
	patch, err := json.Marshal(update)
	if err != nil {
		return 0, adapter.ValidationErr(backendName, op, err)
	}
	where, args, err := buildWhere(filter)
	if err != nil {
		return 0, adapter.ValidationErr(backendName, op, err)
	}
	table := quoteIdent(collection)
	args = append(args, patch)
	var query string
	if single {
		query = fmt.Sprintf(
			"UPDATE %s SET doc = doc || $%d::jsonb WHERE ctid IN (SELECT ctid FROM %s%s ORDER BY _id LIMIT 1)",
			table, len(args), table, where)
	} else {
		query = fmt.Sprintf("UPDATE %s SET doc = doc || $%d::jsonb%s", table, len(args), where)
	}
	tag, err := c.pool.Exec(ctx, query, args...)
	if err != nil {
		return 0, wrapPgErr(op, err)
	}
	return tag.RowsAffected(), nil
}

func (c *conn) DeleteDocuments(ctx context.Context, collection string, filter adapter.Filter) (int64, error) {
	if err := c.guard("delete_documents"); err != nil {
		return 0, err
	}
	where, args, err := buildWhere(filter)
	if err != nil {
		return 0, adapter.ValidationErr(backendName, "delete_documents", err)
	}
	query := fmt.Sprintf("DELETE FROM %s%s", quoteIdent(collection), where)
	tag, err := c.pool.Exec(ctx, query, args...)
	if err != nil {
		return 0, adapter.WrapBackend(backendName, "delete_documents", err)
	}
	return tag.RowsAffected(), nil
}

func (c *conn) DeleteOne(ctx context.Context, collection string, filter adapter.Filter) (bool, error) {
	if err := c.guard("delete_one"); err != nil {
		return false, err
	}
	where, args, err := buildWhere(filter)
	if err != nil {
		return false, adapter.ValidationErr(backendName, "delete_one", err)
	}
	table := quoteIdent(collection)
	query := fmt.Sprintf(
		"DELETE FROM %s WHERE ctid IN (SELECT ctid FROM %s%s ORDER BY _id LIMIT 1)",
		table, table, where)
	tag, err := c.pool.Exec(ctx, query, args...)
	if err != nil {
		return false, adapter.WrapBackend(backendName, "delete_one", err)
	}
	return tag.RowsAffected() > 0, nil
}

// BulkWrite executes each op as its own statement in the fixed insert,
// update, delete order. Ops that already took effect are not rolled back on
// a later failure; the partial result reflects what was committed.
func (c *conn) BulkWrite(ctx context.Context, collection string, ops []adapter.BulkOperation) (adapter.BulkResult, error) {
	var result adapter.BulkResult
	if err := c.guard("bulk_write"); err != nil {
		return result, err
	}
	inserts, updates, deletes := adapter.PartitionOps(ops)
	for _, op := range inserts {
		if err := c.insertDoc(ctx, collection, op.Document); err != nil {
			return result, err
		}
		result.Inserted++
	}
	for _, op := range updates {
		ok, err := c.UpdateOne(ctx, collection, op.Filter, op.Patch)
		if err != nil {
			return result, err
		}
		if ok {
			result.Updated++
		}
	}
	for _, op := range deletes {
		ok, err := c.DeleteOne(ctx, collection, op.Filter)
		if err != nil {
			return result, err
		}
		if ok {
			result.Deleted++
		}
	}
	return result, nil
}

func (c *conn) CreateIndex(ctx context.Context, collection, field string, unique bool) error {
	if err := c.guard("create_index"); err != nil {
		return err
	}
	kind := "INDEX"
	if unique {
		kind = "UNIQUE INDEX"
	}
	name := fmt.Sprintf("idx_%s_%s", collection, field)
	query := fmt.Sprintf("CREATE %s IF NOT EXISTS %s ON %s ((doc->>%s))",
		kind, quoteIdent(name), quoteIdent(collection), quoteLiteral(field))
	if _, err := c.pool.Exec(ctx, query); err != nil {
		return adapter.WrapBackend(backendName, "create_index", err)
	}
	return nil
}

func (c *conn) CollectionStats(ctx context.Context, collection string) (adapter.CollectionStats, error) {
	if err := c.guard("collection_stats"); err != nil {
		return adapter.CollectionStats{}, err
	}
	var stats adapter.CollectionStats
	err := c.pool.QueryRow(ctx,
		fmt.Sprintf("SELECT count(*) FROM %s", quoteIdent(collection))).Scan(&stats.Count)
	if err != nil {
		return adapter.CollectionStats{}, wrapPgErr("collection_stats", err)
	}
	err = c.pool.QueryRow(ctx,
		"SELECT pg_total_relation_size(quote_ident($1)::regclass)", collection).Scan(&stats.SizeBytes)
	if err != nil {
		return adapter.CollectionStats{}, wrapPgErr("collection_stats", err)
	}
	if stats.Count > 0 {
		stats.AvgRecordSize = stats.SizeBytes / stats.Count
	}
	var indexCount int
	err = c.pool.QueryRow(ctx,
		"SELECT count(*) FROM pg_indexes WHERE schemaname = current_schema() AND tablename = $1", collection).Scan(&indexCount)
	if err != nil {
		return adapter.CollectionStats{}, adapter.WrapBackend(backendName, "collection_stats", err)
	}
	stats.IndexCount = indexCount
	return stats, nil
}

func (c *conn) MaskField(ctx context.Context, collection, field string, fn adapter.MaskFunc) (int, error) {
	if err := c.guard("mask_field"); err != nil {
		return 0, err
	}
	rows, err := c.pool.Query(ctx, fmt.Sprintf("SELECT _id, doc FROM %s ORDER BY _id", quoteIdent(collection)))
	if err != nil {
		return 0, adapter.WrapBackend(backendName, "mask_field", err)
	}
	type pending struct {
		id    string
		patch []byte
	}
	var updates []pending
	for rows.Next() {
		var id string
		var payload []byte
		if err := rows.Scan(&id, &payload); err != nil {
			rows.Close()
			return 0, adapter.WrapBackend(backendName, "mask_field", err)
		}
		doc, err := decodeDoc(payload)
		if err != nil {
			rows.Close()
			return 0, adapter.WrapBackend(backendName, "mask_field", err)
		}
		value, present := doc[field]
		maskedValue, persist, err := adapter.ApplyMask(backendName, fn, value, present)
		if err != nil {
			rows.Close()
			return 0, err
		}
		if !persist {
			continue
		}
		patch, err := json.Marshal(adapter.Document{field: maskedValue})
		if err != nil {
			rows.Close()
			return 0, adapter.ValidationErr(backendName, "mask_field", err)
		}
		updates = append(updates, pending{id: id, patch: patch})
	}
	if rows.Err() != nil {
		rows.Close()
		return 0, adapter.WrapBackend(backendName, "mask_field", rows.Err())
	}
	rows.Close()

	masked := 0
	query := fmt.Sprintf("UPDATE %s SET doc = doc || $2::jsonb WHERE _id = $1", quoteIdent(collection))
	for _, u := range updates {
		if _, err := c.pool.Exec(ctx, query, u.id, u.patch); err != nil {
			return masked, adapter.WrapBackend(backendName, "mask_field", err)
		}
		masked++
	}
	return masked, nil
}

func (c *conn) GetSchema(ctx context.Context, collection string, sampleSize int) (adapter.DocumentSchema, error) {
	if err := c.guard("get_schema"); err != nil {
		return adapter.DocumentSchema{}, err
	}
	if sampleSize <= 0 {
		sampleSize = adapter.DefaultSampleSize
	}
	query := fmt.Sprintf("SELECT doc FROM %s ORDER BY _id LIMIT %d", quoteIdent(collection), sampleSize)
	rows, err := c.pool.Query(ctx, query)
	if err != nil {
		return adapter.DocumentSchema{}, adapter.WrapBackend(backendName, "get_schema", err)
	}
	defer rows.Close()
	var samples []adapter.Document
	for rows.Next() {
		var payload []byte
		if err := rows.Scan(&payload); err != nil {
			return adapter.DocumentSchema{}, adapter.WrapBackend(backendName, "get_schema", err)
		}
		doc, err := decodeDoc(payload)
		if err != nil {
			return adapter.DocumentSchema{}, adapter.WrapBackend(backendName, "get_schema", err)
		}
		doc[primaryKey] = adapter.Identifier(fmt.Sprint(doc[primaryKey]))
		samples = append(samples, doc)
	}
	if rows.Err() != nil {
		return adapter.DocumentSchema{}, adapter.WrapBackend(backendName, "get_schema", rows.Err())
	}
	schema := adapter.InferSchema(collection, primaryKey, samples)
	if err := c.markIndexes(ctx, collection, &schema); err != nil {
		return schema, err
	}
	return schema, nil
}

func (c *conn) markIndexes(ctx context.Context, collection string, schema *adapter.DocumentSchema) error {
	rows, err := c.pool.Query(ctx,
		"SELECT indexdef FROM pg_indexes WHERE schemaname = current_schema() AND tablename = $1", collection)
	if err != nil {
		return adapter.WrapBackend(backendName, "get_schema", err)
	}
	defer rows.Close()
	for rows.Next() {
		var def string
		if err := rows.Scan(&def); err != nil {
			return adapter.WrapBackend(backendName, "get_schema", err)
		}
		unique := strings.HasPrefix(def, "CREATE UNIQUE")
		for name, field := range schema.Fields {
			marker := fmt.Sprintf("doc ->> '%s'", name)
			if strings.Contains(def, marker) {
				field.Indexed = true
				if unique {
					field.Unique = true
				}
				schema.Fields[name] = field
			}
		}
	}
	return rows.Err()
}

func recordID(doc adapter.Document) string {
	if v, ok := doc[primaryKey]; ok {
		return fmt.Sprint(v)
	}
	return uuid.NewString()
}

func wrapPgErr(op string, err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		// 23xxx is the integrity constraint violation class.
		if len(pgErr.Code) == 5 && pgErr.Code[:2] == "23" {
			return adapter.ValidationErr(backendName, op, err)
		}
	}
	return adapter.WrapBackend(backendName, op, err)
}
