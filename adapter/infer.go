/*
 * Copyright (C) 2024 Adiom, Inc.
 *
 * SPDX-License-Identifier: AGPL-3.0-or-later
 */
package adapter

import (
	"encoding/json"
	"sort"
	"strings"
	"time"
)

// InferSchema derives a merged field-type schema from sampled documents.
// The primary key field is recorded separately and excluded from the field
// mapping. A field absent or null in any sample is nullable; a field
// observed with more than one type tag reports TypeUnknown rather than
// guessing.
//
// Samples must already be normalized to plain Go values: backend-native id
// types as Identifier, native datetimes as time.Time.
func InferSchema(name, primaryKey string, samples []Document) DocumentSchema {
	schema := DocumentSchema{
		Name:       name,
		Fields:     map[string]FieldSchema{},
		PrimaryKey: primaryKey,
	}
	if len(samples) == 0 {
		return schema
	}

	fieldNames := map[string]struct{}{}
	for _, doc := range samples {
		for k := range doc {
			if k != primaryKey {
				fieldNames[k] = struct{}{}
			}
		}
	}

	for fieldName := range fieldNames {
		types := map[FieldType]struct{}{}
		nullable := false
		for _, doc := range samples {
			value, present := doc[fieldName]
			if !present || value == nil {
				nullable = true
				continue
			}
			types[ClassifyValue(value)] = struct{}{}
		}

		fieldType := TypeUnknown
		if len(types) == 1 {
			for t := range types {
				fieldType = t
			}
		}
		schema.Fields[fieldName] = FieldSchema{
			Name:     fieldName,
			Type:     fieldType,
			Nullable: nullable,
		}
	}

	return schema
}

// ClassifyValue assigns exactly one type tag to a sampled value using value
// inspection. nil classifies as unknown; the caller decides whether an
// explicit null also marks the field nullable.
func ClassifyValue(v interface{}) FieldType {
	switch value := v.(type) {
	case bool:
		return TypeBoolean
	case int, int8, int16, int32, int64, uint, uint8, uint16, uint32, uint64:
		return TypeInteger
	case float32:
		return TypeFloat
	case float64:
		return TypeFloat
	case json.Number:
		if strings.ContainsAny(value.String(), ".eE") {
			return TypeFloat
		}
		return TypeInteger
	case Identifier:
		return TypeIdentifier
	case time.Time:
		return TypeDate
	case string:
		return TypeString
	case map[string]interface{}:
		return TypeObject
	case []interface{}:
		return TypeArray
	default:
		return TypeUnknown
	}
}

// SortedFieldNames returns the schema's field names in lexical order, for
// stable presentation.
func SortedFieldNames(s DocumentSchema) []string {
	names := make([]string, 0, len(s.Fields))
	for name := range s.Fields {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
