/*
 * Copyright (C) 2024 Adiom, Inc.
 *
 * SPDX-License-Identifier: AGPL-3.0-or-later
 */

package mongo

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/ista-data/ista/adapter"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// databaseFromURI extracts the database name from the connection string path,
// e.g. mongodb://host:27017/mydb?replicaSet=rs0 yields "mydb".
func databaseFromURI(connString string) (string, error) {
	parsed, err := url.Parse(connString)
	if err != nil {
		return "", fmt.Errorf("malformed connection string: %w", err)
	}
	dbName := strings.TrimPrefix(parsed.Path, "/")
	if dbName == "" {
		return "", fmt.Errorf("connection string is missing a database name")
	}
	return dbName, nil
}

func toBSON(filter adapter.Filter) bson.M {
	if filter == nil {
		return bson.M{}
	}
	return bson.M(filter)
}

// normalizeDocument rewrites driver container types into plain Go values so
// callers never see bson primitives in nested positions.
func normalizeDocument(doc bson.M) adapter.Document {
	out := make(adapter.Document, len(doc))
	for k, v := range doc {
		out[k] = normalizeValue(v)
	}
	return out
}

func normalizeValue(v interface{}) interface{} {
	switch tv := v.(type) {
	case bson.M:
		return normalizeDocument(tv)
	case bson.D:
		return normalizeDocument(tv.Map())
	case primitive.A:
		out := make([]interface{}, len(tv))
		for i, e := range tv {
			out[i] = normalizeValue(e)
		}
		return out
	case primitive.DateTime:
		return tv.Time()
	default:
		return v
	}
}

// normalizeForSchema additionally maps ObjectIDs to the opaque identifier
// type so inference can tag them instead of reporting "unknown".
func normalizeForSchema(doc bson.M) adapter.Document {
	out := normalizeDocument(doc)
	for k, v := range out {
		if oid, ok := v.(primitive.ObjectID); ok {
			out[k] = adapter.Identifier(oid.Hex())
		}
	}
	return out
}

func toInt64(v interface{}) int64 {
	switch tv := v.(type) {
	case int32:
		return int64(tv)
	case int64:
		return tv
	case float64:
		return int64(tv)
	case int:
		return int64(tv)
	default:
		return 0
	}
}
