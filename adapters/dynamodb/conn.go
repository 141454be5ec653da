/*
 * Copyright (C) 2024 Adiom, Inc.
 *
 * SPDX-License-Identifier: AGPL-3.0-or-later
 */

// Package dynamodb implements the capability contract on top of DynamoDB.
//
// Each collection is a table with a single "_id" string hash key, billed
// on demand. Filtered reads scan the table and match client-side, so this
// backend is meant for test datasets, not large tables. Unique indexes are
// not enforced; CreateIndex builds a non-unique global secondary index.
package dynamodb

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"reflect"
	"sort"
	"strings"
	"sync/atomic"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/google/uuid"
	"github.com/ista-data/ista/adapter"
)

const backendName = "dynamodb"

const primaryKey = "_id"

func init() {
	adapter.Register(NewAdapter, "dynamodb")
}

const (
	stateCreated int32 = iota
	stateConnected
	stateClosed
)

type conn struct {
	state  atomic.Int32
	client *dynamodb.Client
}

// NewAdapter returns an unconnected DynamoDB adapter.
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

// Connect builds a client from the ambient AWS configuration. A connection
// string of the form dynamodb://host:port points the client at a local
// endpoint (dynamodb-local, localstack); "dynamodb://" targets real AWS.
func (c *conn) Connect(ctx context.Context, connString string, opts adapter.ConnectOptions) error {
	if c.state.Load() == stateClosed {
		return adapter.InvalidStateErr(backendName, "connect", "adapter is disconnected")
	}
	if c.state.Load() == stateConnected {
		return adapter.InvalidStateErr(backendName, "connect", "already connected")
	}

	endpoint, err := endpointFromURI(connString)
	if err != nil {
		return adapter.ConnectionErr(backendName, "connect", err)
	}

	connectTimeout := opts.ConnectTimeout
	if connectTimeout <= 0 {
		connectTimeout = 10 * time.Second
	}
	ctxConnect, cancel := context.WithTimeout(ctx, connectTimeout)
	defer cancel()

	awsConfig, err := awsconfig.LoadDefaultConfig(ctxConnect)
	if err != nil {
		return adapter.ConnectionErr(backendName, "connect", err)
	}
	client := dynamodb.NewFromConfig(awsConfig, func(o *dynamodb.Options) {
		if endpoint != "" {
			o.BaseEndpoint = aws.String(endpoint)
		}
	})
	if _, err := client.ListTables(ctxConnect, &dynamodb.ListTablesInput{Limit: aws.Int32(1)}); err != nil {
		return adapter.ConnectionErr(backendName, "connect", err)
	}

	c.client = client
	c.state.Store(stateConnected)
	slog.Debug("connected to dynamodb", "endpoint", endpoint)
	return nil
}

func endpointFromURI(connString string) (string, error) {
	if connString == "" {
		return "", nil
	}
	parsed, err := url.Parse(connString)
	if err != nil {
		return "", fmt.Errorf("malformed connection string: %w", err)
	}
	if parsed.Host == "" {
		return "", nil
	}
	return "http://" + parsed.Host, nil
}

func (c *conn) Disconnect(ctx context.Context) error {
	// The SDK client holds no connection state worth tearing down.
	c.state.Store(stateClosed)
	return nil
}

func (c *conn) HealthCheck(ctx context.Context) bool {
	if c.guard("health_check") != nil {
		return false
	}
	ctxPing, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	_, err := c.client.ListTables(ctxPing, &dynamodb.ListTablesInput{Limit: aws.Int32(1)})
	return err == nil
}

func (c *conn) ValidateConnection(ctx context.Context) (bool, string) {
	if err := c.guard("validate_connection"); err != nil {
		return false, err.Error()
	}
	out, err := c.client.ListTables(ctx, &dynamodb.ListTablesInput{})
	if err != nil {
		return false, fmt.Sprintf("dynamodb connection failed: %v", err)
	}
	return true, fmt.Sprintf("connected to DynamoDB, %d tables visible", len(out.TableNames))
}

func (c *conn) CreateCollection(ctx context.Context, name string, schema *adapter.DocumentSchema) error {
	if err := c.guard("create_collection"); err != nil {
		return err
	}
	_, err := c.client.CreateTable(ctx, &dynamodb.CreateTableInput{
		TableName:   aws.String(name),
		BillingMode: types.BillingModePayPerRequest,
		AttributeDefinitions: []types.AttributeDefinition{
			{AttributeName: aws.String(primaryKey), AttributeType: types.ScalarAttributeTypeS},
		},
		KeySchema: []types.KeySchemaElement{
			{AttributeName: aws.String(primaryKey), KeyType: types.KeyTypeHash},
		},
	})
	if err != nil {
		var inUse *types.ResourceInUseException
		if errors.As(err, &inUse) {
			return nil
		}
		return adapter.WrapBackend(backendName, "create_collection", err)
	}
	waiter := dynamodb.NewTableExistsWaiter(c.client)
	if err := waiter.Wait(ctx, &dynamodb.DescribeTableInput{TableName: aws.String(name)}, 30*time.Second); err != nil {
		return adapter.WrapBackend(backendName, "create_collection", err)
	}
	if schema != nil {
		for _, field := range schema.Fields {
			if field.Name == primaryKey || (!field.Indexed && !field.Unique) {
				continue
			}
			if err := c.CreateIndex(ctx, name, field.Name, field.Unique); err != nil {
				return err
			}
		}
	}
	return nil
}

func (c *conn) DropCollection(ctx context.Context, name string) error {
	if err := c.guard("drop_collection"); err != nil {
		return err
	}
	_, err := c.client.DeleteTable(ctx, &dynamodb.DeleteTableInput{TableName: aws.String(name)})
	if err != nil {
		var notFound *types.ResourceNotFoundException
		if errors.As(err, &notFound) {
			return adapter.NotFoundErr(backendName, "drop_collection", name)
		}
		return adapter.WrapBackend(backendName, "drop_collection", err)
	}
	return nil
}

func (c *conn) ListCollections(ctx context.Context) ([]string, error) {
	if err := c.guard("list_collections"); err != nil {
		return nil, err
	}
	var names []string
	paginator := dynamodb.NewListTablesPaginator(c.client, &dynamodb.ListTablesInput{})
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, adapter.WrapBackend(backendName, "list_collections", err)
		}
		names = append(names, page.TableNames...)
	}
	sort.Strings(names)
	return names, nil
}

func (c *conn) InsertDocuments(ctx context.Context, collection string, docs []adapter.Document) (int, error) {
	if err := c.guard("insert_documents"); err != nil {
		return 0, err
	}
	inserted := 0
	for _, doc := range docs {
		if _, err := c.putDoc(ctx, collection, "insert_documents", doc); err != nil {
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
	return c.putDoc(ctx, collection, "insert_one", doc)
}

func (c *conn) putDoc(ctx context.Context, collection, op string, doc adapter.Document) (interface{}, error) {
	id := fmt.Sprint(doc[primaryKey])
	if _, ok := doc[primaryKey]; !ok {
		id = uuid.NewString()
	}
	stored := make(adapter.Document, len(doc)+1)
	for k, v := range doc {
		stored[k] = v
	}
	stored[primaryKey] = id
	item, err := encodeDocument(stored)
	if err != nil {
		return nil, adapter.ValidationErr(backendName, op, err)
	}
	_, err = c.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName:           aws.String(collection),
		Item:                item,
		ConditionExpression: aws.String("attribute_not_exists(#id)"),
		ExpressionAttributeNames: map[string]string{
			"#id": primaryKey,
		},
	})
	if err != nil {
		var cond *types.ConditionalCheckFailedException
		if errors.As(err, &cond) {
			return nil, adapter.ValidationErr(backendName, op, fmt.Errorf("duplicate %s %q", primaryKey, id))
		}
		return nil, adapter.WrapBackend(backendName, op, err)
	}
	return id, nil
}

// scanMatching pulls every item from the table, decodes it and keeps the
// ones matching the filter, sorted by _id so skip and limit paginate
// deterministically.
func (c *conn) scanMatching(ctx context.Context, collection, op string, filter adapter.Filter) ([]adapter.Document, error) {
	var matched []adapter.Document
	paginator := dynamodb.NewScanPaginator(c.client, &dynamodb.ScanInput{TableName: aws.String(collection)})
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			var notFound *types.ResourceNotFoundException
			if errors.As(err, &notFound) {
				return nil, adapter.NotFoundErr(backendName, op, collection)
			}
			return nil, adapter.WrapBackend(backendName, op, err)
		}
		for _, item := range page.Items {
			doc, err := decodeDocument(item)
			if err != nil {
				return nil, adapter.WrapBackend(backendName, op, err)
			}
			if matches(doc, filter) {
				matched = append(matched, doc)
			}
		}
	}
	sort.Slice(matched, func(i, j int) bool {
		return fmt.Sprint(matched[i][primaryKey]) < fmt.Sprint(matched[j][primaryKey])
	})
	return matched, nil
}

func matches(doc adapter.Document, filter adapter.Filter) bool {
	for k, want := range filter {
		got, ok := doc[k]
		if !ok || !reflect.DeepEqual(normalizeFilterValue(want), got) {
			return false
		}
	}
	return true
}

func (c *conn) FindDocuments(ctx context.Context, collection string, filter adapter.Filter, limit, skip int) ([]adapter.Document, error) {
	if err := c.guard("find_documents"); err != nil {
		return nil, err
	}
	matched, err := c.scanMatching(ctx, collection, "find_documents", filter)
	if err != nil {
		return nil, err
	}
	if skip >= len(matched) {
		return nil, nil
	}
	matched = matched[skip:]
	if limit > 0 && limit < len(matched) {
		matched = matched[:limit]
	}
	return matched, nil
}

func (c *conn) FindOne(ctx context.Context, collection string, filter adapter.Filter) (adapter.Document, error) {
	if err := c.guard("find_one"); err != nil {
		return nil, err
	}
	docs, err := c.FindDocuments(ctx, collection, filter, 1, 0)
	if err != nil {
		return nil, err
	}
	if len(docs) == 0 {
		return nil, nil
	}
	return docs[0], nil
}

func (c *conn) CountDocuments(ctx context.Context, collection string, filter adapter.Filter) (int64, error) {
	if err := c.guard("count_documents"); err != nil {
		return 0, err
	}
	matched, err := c.scanMatching(ctx, collection, "count_documents", filter)
	if err != nil {
		return 0, err
	}
	return int64(len(matched)), nil
}

func (c *conn) UpdateDocuments(ctx context.Context, collection string, filter adapter.Filter, update adapter.Document) (int64, error) {
	if err := c.guard("update_documents"); err != nil {
		return 0, err
	}
	matched, err := c.scanMatching(ctx, collection, "update_documents", filter)
	if err != nil {
		return 0, err
	}
	var updated int64
	for _, doc := range matched {
		changed, err := c.patchDoc(ctx, collection, "update_documents", doc, update)
		if err != nil {
			return updated, err
		}
		if changed {
			updated++
		}
	}
	return updated, nil
}

func (c *conn) UpdateOne(ctx context.Context, collection string, filter adapter.Filter, update adapter.Document) (bool, error) {
	if err := c.guard("update_one"); err != nil {
		return false, err
	}
	matched, err := c.scanMatching(ctx, collection, "update_one", filter)
	if err != nil {
		return false, err
	}
	if len(matched) == 0 {
		return false, nil
	}
	return c.patchDoc(ctx, collection, "update_one", matched[0], update)
}

// patchDoc writes the patched fields of a single record. Fields whose value
// already equals the patch are skipped so modified counts stay honest.
func (c *conn) patchDoc(ctx context.Context, collection, op string, doc adapter.Document, update adapter.Document) (bool, error) {
	if _, ok := update[primaryKey]; ok {
		return false, adapter.ValidationErr(backendName, op, fmt.Errorf("cannot update %s", primaryKey))
	}
	names := make(map[string]string)
	values := make(map[string]types.AttributeValue)
	var sets []string
	i := 0
	for field, value := range update {
		if existing, ok := doc[field]; ok && reflect.DeepEqual(existing, normalizeFilterValue(value)) {
			continue
		}
		av, err := encodeValue(value)
		if err != nil {
			return false, adapter.ValidationErr(backendName, op, err)
		}
		nameKey := fmt.Sprintf("#f%d", i)
		valueKey := fmt.Sprintf(":v%d", i)
		names[nameKey] = field
		values[valueKey] = av
		sets = append(sets, nameKey+" = "+valueKey)
		i++
	}
	if len(sets) == 0 {
		return false, nil
	}
	key, err := encodeValue(doc[primaryKey])
	if err != nil {
		return false, adapter.ValidationErr(backendName, op, err)
	}
	_, err = c.client.UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName:                 aws.String(collection),
		Key:                       map[string]types.AttributeValue{primaryKey: key},
		UpdateExpression:          aws.String("SET " + strings.Join(sets, ", ")),
		ExpressionAttributeNames:  names,
		ExpressionAttributeValues: values,
	})
	if err != nil {
		return false, adapter.WrapBackend(backendName, op, err)
	}
	return true, nil
}

func (c *conn) DeleteDocuments(ctx context.Context, collection string, filter adapter.Filter) (int64, error) {
	if err := c.guard("delete_documents"); err != nil {
		return 0, err
	}
	matched, err := c.scanMatching(ctx, collection, "delete_documents", filter)
	if err != nil {
		return 0, err
	}
	var deleted int64
	// BatchWriteItem caps a request at 25 items.
	for start := 0; start < len(matched); start += 25 {
		end := start + 25
		if end > len(matched) {
			end = len(matched)
		}
		var requests []types.WriteRequest
		for _, doc := range matched[start:end] {
			key, err := encodeValue(doc[primaryKey])
			if err != nil {
				return deleted, adapter.ValidationErr(backendName, "delete_documents", err)
			}
			requests = append(requests, types.WriteRequest{
				DeleteRequest: &types.DeleteRequest{
					Key: map[string]types.AttributeValue{primaryKey: key},
				},
			})
		}
		_, err := c.client.BatchWriteItem(ctx, &dynamodb.BatchWriteItemInput{
			RequestItems: map[string][]types.WriteRequest{collection: requests},
		})
		if err != nil {
			return deleted, adapter.WrapBackend(backendName, "delete_documents", err)
		}
		deleted += int64(end - start)
	}
	return deleted, nil
}

func (c *conn) DeleteOne(ctx context.Context, collection string, filter adapter.Filter) (bool, error) {
	if err := c.guard("delete_one"); err != nil {
		return false, err
	}
	matched, err := c.scanMatching(ctx, collection, "delete_one", filter)
	if err != nil {
		return false, err
	}
	if len(matched) == 0 {
		return false, nil
	}
	key, err := encodeValue(matched[0][primaryKey])
	if err != nil {
		return false, adapter.ValidationErr(backendName, "delete_one", err)
	}
	_, err = c.client.DeleteItem(ctx, &dynamodb.DeleteItemInput{
		TableName: aws.String(collection),
		Key:       map[string]types.AttributeValue{primaryKey: key},
	})
	if err != nil {
		return false, adapter.WrapBackend(backendName, "delete_one", err)
	}
	return true, nil
}

func (c *conn) BulkWrite(ctx context.Context, collection string, ops []adapter.BulkOperation) (adapter.BulkResult, error) {
	var result adapter.BulkResult
	if err := c.guard("bulk_write"); err != nil {
		return result, err
	}
	inserts, updates, deletes := adapter.PartitionOps(ops)
	for _, op := range inserts {
		if _, err := c.putDoc(ctx, collection, "bulk_write", op.Document); err != nil {
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

// CreateIndex adds a global secondary index over the field. DynamoDB has no
// unique constraint, so the unique flag only shapes inferred schemas on
// other backends and is ignored here.
func (c *conn) CreateIndex(ctx context.Context, collection, field string, unique bool) error {
	if err := c.guard("create_index"); err != nil {
		return err
	}
	indexName := fmt.Sprintf("idx_%s_%s", collection, field)
	_, err := c.client.UpdateTable(ctx, &dynamodb.UpdateTableInput{
		TableName: aws.String(collection),
		AttributeDefinitions: []types.AttributeDefinition{
			{AttributeName: aws.String(field), AttributeType: types.ScalarAttributeTypeS},
		},
		GlobalSecondaryIndexUpdates: []types.GlobalSecondaryIndexUpdate{{
			Create: &types.CreateGlobalSecondaryIndexAction{
				IndexName: aws.String(indexName),
				KeySchema: []types.KeySchemaElement{
					{AttributeName: aws.String(field), KeyType: types.KeyTypeHash},
				},
				Projection: &types.Projection{ProjectionType: types.ProjectionTypeAll},
			},
		}},
	})
	if err != nil {
		if strings.Contains(err.Error(), "already exists") {
			return nil
		}
		return adapter.WrapBackend(backendName, "create_index", err)
	}
	return nil
}

func (c *conn) CollectionStats(ctx context.Context, collection string) (adapter.CollectionStats, error) {
	if err := c.guard("collection_stats"); err != nil {
		return adapter.CollectionStats{}, err
	}
	out, err := c.client.DescribeTable(ctx, &dynamodb.DescribeTableInput{TableName: aws.String(collection)})
	if err != nil {
		var notFound *types.ResourceNotFoundException
		if errors.As(err, &notFound) {
			return adapter.CollectionStats{}, adapter.NotFoundErr(backendName, "collection_stats", collection)
		}
		return adapter.CollectionStats{}, adapter.WrapBackend(backendName, "collection_stats", err)
	}
	stats := adapter.CollectionStats{
		Count:      aws.ToInt64(out.Table.ItemCount),
		SizeBytes:  aws.ToInt64(out.Table.TableSizeBytes),
		IndexCount: len(out.Table.GlobalSecondaryIndexes),
	}
	// DescribeTable counters lag writes by up to six hours; fall back to a
	// scan count so fresh test data reports correctly.
	if stats.Count == 0 {
		matched, err := c.scanMatching(ctx, collection, "collection_stats", nil)
		if err != nil {
			return stats, err
		}
		stats.Count = int64(len(matched))
	}
	if stats.Count > 0 {
		stats.AvgRecordSize = stats.SizeBytes / stats.Count
	}
	return stats, nil
}

func (c *conn) MaskField(ctx context.Context, collection, field string, fn adapter.MaskFunc) (int, error) {
	if err := c.guard("mask_field"); err != nil {
		return 0, err
	}
	docs, err := c.scanMatching(ctx, collection, "mask_field", nil)
	if err != nil {
		return 0, err
	}
	masked := 0
	for _, doc := range docs {
		value, present := doc[field]
		maskedValue, persist, err := adapter.ApplyMask(backendName, fn, value, present)
		if err != nil {
			return masked, err
		}
		if !persist {
			continue
		}
		changed, err := c.patchDoc(ctx, collection, "mask_field", doc, adapter.Document{field: maskedValue})
		if err != nil {
			return masked, err
		}
		if changed {
			masked++
		}
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
	out, err := c.client.Scan(ctx, &dynamodb.ScanInput{
		TableName: aws.String(collection),
		Limit:     aws.Int32(int32(sampleSize)),
	})
	if err != nil {
		var notFound *types.ResourceNotFoundException
		if errors.As(err, &notFound) {
			return adapter.DocumentSchema{}, adapter.NotFoundErr(backendName, "get_schema", collection)
		}
		return adapter.DocumentSchema{}, adapter.WrapBackend(backendName, "get_schema", err)
	}
	var samples []adapter.Document
	for _, item := range out.Items {
		doc, err := decodeDocument(item)
		if err != nil {
			return adapter.DocumentSchema{}, adapter.WrapBackend(backendName, "get_schema", err)
		}
		doc[primaryKey] = adapter.Identifier(fmt.Sprint(doc[primaryKey]))
		samples = append(samples, doc)
	}
	schema := adapter.InferSchema(collection, primaryKey, samples)
	if err := c.markIndexes(ctx, collection, &schema); err != nil {
		return schema, err
	}
	return schema, nil
}

// markIndexes flags sampled fields that a GSI hashes on. Uniqueness is not
// native here, so the unique flag stays false.
func (c *conn) markIndexes(ctx context.Context, collection string, schema *adapter.DocumentSchema) error {
	out, err := c.client.DescribeTable(ctx, &dynamodb.DescribeTableInput{TableName: aws.String(collection)})
	if err != nil {
		return adapter.WrapBackend(backendName, "get_schema", err)
	}
	for _, gsi := range out.Table.GlobalSecondaryIndexes {
		for _, key := range gsi.KeySchema {
			if key.AttributeName == nil {
				continue
			}
			if field, ok := schema.Fields[*key.AttributeName]; ok {
				field.Indexed = true
				schema.Fields[*key.AttributeName] = field
			}
		}
	}
	return nil
}
