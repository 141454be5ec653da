/*
 * Copyright (C) 2024 Adiom, Inc.
 *
 * SPDX-License-Identifier: AGPL-3.0-or-later
 */

// Package mongo implements the capability contract for MongoDB.
//
// Backend-specific behavior:
//   - DropCollection on a missing name is a native no-op.
//   - Which record the *One variants touch when a filter matches several is
//     whatever the server returns first; no ordering is guaranteed.
package mongo

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync/atomic"
	"time"

	"github.com/ista-data/ista/adapter"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	moptions "go.mongodb.org/mongo-driver/mongo/options"
)

const backendName = "mongodb"

const primaryKey = "_id"

func init() {
	adapter.Register(NewAdapter, "mongodb", "mongo")
}

const (
	stateCreated int32 = iota
	stateConnected
	stateClosed
)

// Settings tunes the MongoDB session. Zero values fall back to defaults.
type Settings struct {
	ServerConnectTimeout time.Duration
	PingTimeout          time.Duration
}

type conn struct {
	state    atomic.Int32
	client   *mongo.Client
	db       *mongo.Database
	settings Settings
}

// NewAdapter returns an unconnected MongoDB adapter. No I/O happens until
// Connect.
func NewAdapter() adapter.Adapter {
	return &conn{}
}

func setDefault[T comparable](field *T, defaultValue T) {
	if *field == *new(T) {
		*field = defaultValue
	}
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

// Connect establishes the client and pings the deployment. The database name
// is taken from the connection string path, matching the mongodb://host/db
// convention.
func (c *conn) Connect(ctx context.Context, connString string, opts adapter.ConnectOptions) error {
	if c.state.Load() == stateClosed {
		return adapter.InvalidStateErr(backendName, "connect", "adapter is disconnected")
	}
	if c.state.Load() == stateConnected {
		return adapter.InvalidStateErr(backendName, "connect", "already connected")
	}

	setDefault(&c.settings.ServerConnectTimeout, 10*time.Second)
	setDefault(&c.settings.PingTimeout, 2*time.Second)
	if opts.ConnectTimeout > 0 {
		c.settings.ServerConnectTimeout = opts.ConnectTimeout
	}
	if opts.PingTimeout > 0 {
		c.settings.PingTimeout = opts.PingTimeout
	}

	dbName, err := databaseFromURI(connString)
	if err != nil {
		return adapter.ConnectionErr(backendName, "connect", err)
	}

	ctxConnect, cancelConnect := context.WithTimeout(ctx, c.settings.ServerConnectTimeout)
	defer cancelConnect()
	clientOptions := moptions.Client().SetAppName("ista").ApplyURI(connString).SetConnectTimeout(c.settings.ServerConnectTimeout)
	client, err := mongo.Connect(ctxConnect, clientOptions)
	if err != nil {
		return adapter.ConnectionErr(backendName, "connect", err)
	}

	ctxPing, cancelPing := context.WithTimeout(ctx, c.settings.PingTimeout)
	defer cancelPing()
	if err := client.Ping(ctxPing, nil); err != nil {
		_ = client.Disconnect(context.Background())
		return adapter.ConnectionErr(backendName, "connect", err)
	}

	c.client = client
	c.db = client.Database(dbName)
	c.state.Store(stateConnected)
	slog.Debug("connected to mongodb", "database", dbName)
	return nil
}

func (c *conn) Disconnect(ctx context.Context) error {
	if !c.state.CompareAndSwap(stateConnected, stateClosed) {
		c.state.Store(stateClosed)
		return nil
	}
	if err := c.client.Disconnect(ctx); err != nil {
		return adapter.WrapBackend(backendName, "disconnect", err)
	}
	return nil
}

func (c *conn) HealthCheck(ctx context.Context) bool {
	if c.guard("health_check") != nil {
		return false
	}
	ctxPing, cancel := context.WithTimeout(ctx, c.settings.PingTimeout)
	defer cancel()
	return c.client.Ping(ctxPing, nil) == nil
}

func (c *conn) ValidateConnection(ctx context.Context) (bool, string) {
	if err := c.guard("validate_connection"); err != nil {
		return false, err.Error()
	}
	var buildInfo bson.M
	err := c.db.Client().Database("admin").RunCommand(ctx, bson.D{{Key: "buildInfo", Value: 1}}).Decode(&buildInfo)
	if err != nil {
		return false, fmt.Sprintf("mongodb connection failed: %v", err)
	}
	return true, fmt.Sprintf("connected to MongoDB %v, database %q", buildInfo["version"], c.db.Name())
}

func (c *conn) CreateCollection(ctx context.Context, name string, schema *adapter.DocumentSchema) error {
	if err := c.guard("create_collection"); err != nil {
		return err
	}
	names, err := c.db.ListCollectionNames(ctx, bson.M{"name": name})
	if err != nil {
		return adapter.WrapBackend(backendName, "create_collection", err)
	}
	if len(names) > 0 {
		return nil
	}
	if err := c.db.CreateCollection(ctx, name); err != nil {
		return adapter.WrapBackend(backendName, "create_collection", err)
	}
	return nil
}

func (c *conn) DropCollection(ctx context.Context, name string) error {
	if err := c.guard("drop_collection"); err != nil {
		return err
	}
	if err := c.db.Collection(name).Drop(ctx); err != nil {
		return adapter.WrapBackend(backendName, "drop_collection", err)
	}
	return nil
}

func (c *conn) ListCollections(ctx context.Context) ([]string, error) {
	if err := c.guard("list_collections"); err != nil {
		return nil, err
	}
	names, err := c.db.ListCollectionNames(ctx, bson.M{})
	if err != nil {
		return nil, adapter.WrapBackend(backendName, "list_collections", err)
	}
	sort.Strings(names)
	return names, nil
}

func (c *conn) InsertDocuments(ctx context.Context, collection string, docs []adapter.Document) (int, error) {
	if err := c.guard("insert_documents"); err != nil {
		return 0, err
	}
	if len(docs) == 0 {
		return 0, nil
	}
	batch := make([]interface{}, len(docs))
	for i, doc := range docs {
		batch[i] = doc
	}
	res, err := c.db.Collection(collection).InsertMany(ctx, batch)
	inserted := 0
	if res != nil {
		inserted = len(res.InsertedIDs)
	}
	if err != nil {
		return inserted, wrapWriteErr("insert_documents", err)
	}
	return inserted, nil
}

func (c *conn) InsertOne(ctx context.Context, collection string, doc adapter.Document) (interface{}, error) {
	if err := c.guard("insert_one"); err != nil {
		return nil, err
	}
	res, err := c.db.Collection(collection).InsertOne(ctx, doc)
	if err != nil {
		return nil, wrapWriteErr("insert_one", err)
	}
	return res.InsertedID, nil
}

func (c *conn) FindDocuments(ctx context.Context, collection string, filter adapter.Filter, limit, skip int) ([]adapter.Document, error) {
	if err := c.guard("find_documents"); err != nil {
		return nil, err
	}
	findOpts := moptions.Find().SetSkip(int64(skip))
	if limit > 0 {
		findOpts.SetLimit(int64(limit))
	}
	cursor, err := c.db.Collection(collection).Find(ctx, toBSON(filter), findOpts)
	if err != nil {
		return nil, adapter.WrapBackend(backendName, "find_documents", err)
	}
	defer cursor.Close(ctx)
	var out []adapter.Document
	for cursor.Next(ctx) {
		var doc bson.M
		if err := cursor.Decode(&doc); err != nil {
			return out, adapter.WrapBackend(backendName, "find_documents", err)
		}
		out = append(out, normalizeDocument(doc))
	}
	if cursor.Err() != nil {
		return out, adapter.WrapBackend(backendName, "find_documents", cursor.Err())
	}
	return out, nil
}

func (c *conn) FindOne(ctx context.Context, collection string, filter adapter.Filter) (adapter.Document, error) {
	if err := c.guard("find_one"); err != nil {
		return nil, err
	}
	var doc bson.M
	err := c.db.Collection(collection).FindOne(ctx, toBSON(filter)).Decode(&doc)
	if err == mongo.ErrNoDocuments {
		return nil, nil
	}
	if err != nil {
		return nil, adapter.WrapBackend(backendName, "find_one", err)
	}
	return normalizeDocument(doc), nil
}

func (c *conn) CountDocuments(ctx context.Context, collection string, filter adapter.Filter) (int64, error) {
	if err := c.guard("count_documents"); err != nil {
		return 0, err
	}
	count, err := c.db.Collection(collection).CountDocuments(ctx, toBSON(filter))
	if err != nil {
		return 0, adapter.WrapBackend(backendName, "count_documents", err)
	}
	return count, nil
}

func (c *conn) UpdateDocuments(ctx context.Context, collection string, filter adapter.Filter, update adapter.Document) (int64, error) {
	if err := c.guard("update_documents"); err != nil {
		return 0, err
	}
	res, err := c.db.Collection(collection).UpdateMany(ctx, toBSON(filter), bson.M{"$set": update})
	if err != nil {
		return 0, wrapWriteErr("update_documents", err)
	}
	return res.ModifiedCount, nil
}

func (c *conn) UpdateOne(ctx context.Context, collection string, filter adapter.Filter, update adapter.Document) (bool, error) {
	if err := c.guard("update_one"); err != nil {
		return false, err
	}
	res, err := c.db.Collection(collection).UpdateOne(ctx, toBSON(filter), bson.M{"$set": update})
	if err != nil {
		return false, wrapWriteErr("update_one", err)
	}
	return res.ModifiedCount > 0, nil
}

func (c *conn) DeleteDocuments(ctx context.Context, collection string, filter adapter.Filter) (int64, error) {
	if err := c.guard("delete_documents"); err != nil {
		return 0, err
	}
	res, err := c.db.Collection(collection).DeleteMany(ctx, toBSON(filter))
	if err != nil {
		return 0, adapter.WrapBackend(backendName, "delete_documents", err)
	}
	return res.DeletedCount, nil
}

func (c *conn) DeleteOne(ctx context.Context, collection string, filter adapter.Filter) (bool, error) {
	if err := c.guard("delete_one"); err != nil {
		return false, err
	}
	res, err := c.db.Collection(collection).DeleteOne(ctx, toBSON(filter))
	if err != nil {
		return false, adapter.WrapBackend(backendName, "delete_one", err)
	}
	return res.DeletedCount > 0, nil
}

// BulkWrite executes the three partitions as separate native bulk calls in
// the fixed order insert, update, delete. A partition failure aborts the
// remaining partitions; the result keeps the counts committed so far.
func (c *conn) BulkWrite(ctx context.Context, collection string, ops []adapter.BulkOperation) (adapter.BulkResult, error) {
	var result adapter.BulkResult
	if err := c.guard("bulk_write"); err != nil {
		return result, err
	}
	inserts, updates, deletes := adapter.PartitionOps(ops)
	col := c.db.Collection(collection)

	if len(inserts) > 0 {
		models := make([]mongo.WriteModel, len(inserts))
		for i, op := range inserts {
			models[i] = mongo.NewInsertOneModel().SetDocument(op.Document)
		}
		res, err := col.BulkWrite(ctx, models, moptions.BulkWrite().SetOrdered(true))
		if res != nil {
			result.Inserted += res.InsertedCount
		}
		if err != nil {
			return result, wrapWriteErr("bulk_write", err)
		}
	}
	if len(updates) > 0 {
		models := make([]mongo.WriteModel, len(updates))
		for i, op := range updates {
			models[i] = mongo.NewUpdateOneModel().SetFilter(toBSON(op.Filter)).SetUpdate(bson.M{"$set": op.Patch})
		}
		res, err := col.BulkWrite(ctx, models, moptions.BulkWrite().SetOrdered(true))
		if res != nil {
			result.Updated += res.ModifiedCount
		}
		if err != nil {
			return result, wrapWriteErr("bulk_write", err)
		}
	}
	if len(deletes) > 0 {
		models := make([]mongo.WriteModel, len(deletes))
		for i, op := range deletes {
			models[i] = mongo.NewDeleteOneModel().SetFilter(toBSON(op.Filter))
		}
		res, err := col.BulkWrite(ctx, models, moptions.BulkWrite().SetOrdered(true))
		if res != nil {
			result.Deleted += res.DeletedCount
		}
		if err != nil {
			return result, wrapWriteErr("bulk_write", err)
		}
	}
	return result, nil
}

func (c *conn) CreateIndex(ctx context.Context, collection, field string, unique bool) error {
	if err := c.guard("create_index"); err != nil {
		return err
	}
	model := mongo.IndexModel{
		Keys:    bson.D{{Key: field, Value: 1}},
		Options: moptions.Index().SetUnique(unique),
	}
	if _, err := c.db.Collection(collection).Indexes().CreateOne(ctx, model); err != nil {
		return adapter.WrapBackend(backendName, "create_index", err)
	}
	return nil
}

func (c *conn) CollectionStats(ctx context.Context, collection string) (adapter.CollectionStats, error) {
	if err := c.guard("collection_stats"); err != nil {
		return adapter.CollectionStats{}, err
	}
	var stats bson.M
	err := c.db.RunCommand(ctx, bson.D{{Key: "collStats", Value: collection}}).Decode(&stats)
	if err != nil {
		return adapter.CollectionStats{}, adapter.WrapBackend(backendName, "collection_stats", err)
	}
	indexSizes, _ := stats["indexSizes"].(bson.M)
	return adapter.CollectionStats{
		Count:         toInt64(stats["count"]),
		SizeBytes:     toInt64(stats["size"]),
		AvgRecordSize: toInt64(stats["avgObjSize"]),
		IndexCount:    len(indexSizes),
	}, nil
}

// MaskField streams the whole collection and rewrites the field record by
// record keyed on _id. Records missing the field or holding an empty value
// are skipped and not counted.
func (c *conn) MaskField(ctx context.Context, collection, field string, fn adapter.MaskFunc) (int, error) {
	if err := c.guard("mask_field"); err != nil {
		return 0, err
	}
	col := c.db.Collection(collection)
	cursor, err := col.Find(ctx, bson.D{})
	if err != nil {
		return 0, adapter.WrapBackend(backendName, "mask_field", err)
	}
	defer cursor.Close(ctx)

	masked := 0
	for cursor.Next(ctx) {
		var doc bson.M
		if err := cursor.Decode(&doc); err != nil {
			return masked, adapter.WrapBackend(backendName, "mask_field", err)
		}
		value, present := doc[field]
		maskedValue, persist, err := adapter.ApplyMask(backendName, fn, normalizeValue(value), present)
		if err != nil {
			return masked, err
		}
		if !persist {
			continue
		}
		_, err = col.UpdateOne(ctx,
			bson.M{primaryKey: doc[primaryKey]},
			bson.M{"$set": bson.M{field: maskedValue}})
		if err != nil {
			return masked, adapter.WrapBackend(backendName, "mask_field", err)
		}
		masked++
	}
	if cursor.Err() != nil {
		return masked, adapter.WrapBackend(backendName, "mask_field", cursor.Err())
	}
	return masked, nil
}

// GetSchema samples up to sampleSize documents and infers a schema from
// them. The scan never exceeds the sample bound.
func (c *conn) GetSchema(ctx context.Context, collection string, sampleSize int) (adapter.DocumentSchema, error) {
	if err := c.guard("get_schema"); err != nil {
		return adapter.DocumentSchema{}, err
	}
	if sampleSize <= 0 {
		sampleSize = adapter.DefaultSampleSize
	}
	cursor, err := c.db.Collection(collection).Find(ctx, bson.D{}, moptions.Find().SetLimit(int64(sampleSize)))
	if err != nil {
		return adapter.DocumentSchema{}, adapter.WrapBackend(backendName, "get_schema", err)
	}
	defer cursor.Close(ctx)

	var samples []adapter.Document
	for cursor.Next(ctx) {
		var doc bson.M
		if err := cursor.Decode(&doc); err != nil {
			return adapter.DocumentSchema{}, adapter.WrapBackend(backendName, "get_schema", err)
		}
		samples = append(samples, normalizeForSchema(doc))
	}
	if cursor.Err() != nil {
		return adapter.DocumentSchema{}, adapter.WrapBackend(backendName, "get_schema", cursor.Err())
	}
	schema := adapter.InferSchema(collection, primaryKey, samples)
	if err := c.markIndexes(ctx, collection, &schema); err != nil {
		return schema, err
	}
	return schema, nil
}

// markIndexes flags sampled fields covered by a native index.
func (c *conn) markIndexes(ctx context.Context, collection string, schema *adapter.DocumentSchema) error {
	cursor, err := c.db.Collection(collection).Indexes().List(ctx)
	if err != nil {
		return adapter.WrapBackend(backendName, "get_schema", err)
	}
	defer cursor.Close(ctx)
	for cursor.Next(ctx) {
		var spec struct {
			Key    bson.D `bson:"key"`
			Unique bool   `bson:"unique"`
		}
		if err := cursor.Decode(&spec); err != nil {
			return adapter.WrapBackend(backendName, "get_schema", err)
		}
		for _, elem := range spec.Key {
			field, ok := schema.Fields[elem.Key]
			if !ok {
				continue
			}
			field.Indexed = true
			if spec.Unique {
				field.Unique = true
			}
			schema.Fields[elem.Key] = field
		}
	}
	if cursor.Err() != nil {
		return adapter.WrapBackend(backendName, "get_schema", cursor.Err())
	}
	return nil
}

func wrapWriteErr(op string, err error) error {
	if mongo.IsDuplicateKeyError(err) {
		return adapter.ValidationErr(backendName, op, err)
	}
	if strings.Contains(err.Error(), "unknown operator") {
		return adapter.ValidationErr(backendName, op, err)
	}
	return adapter.WrapBackend(backendName, op, err)
}
