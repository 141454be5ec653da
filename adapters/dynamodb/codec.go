/*
 * Copyright (C) 2024 Adiom, Inc.
 *
 * SPDX-License-Identifier: AGPL-3.0-or-later
 */

package dynamodb

import (
	"encoding/json"
	"strconv"
	"time"

	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/ista-data/ista/adapter"
)

// encodeDocument marshals a record into an attribute map. Values that only
// exist on our side of the contract are lowered to encodable shapes first.
func encodeDocument(doc adapter.Document) (map[string]types.AttributeValue, error) {
	lowered := make(map[string]interface{}, len(doc))
	for k, v := range doc {
		lowered[k] = lowerValue(v)
	}
	return attributevalue.MarshalMap(lowered)
}

func encodeValue(v interface{}) (types.AttributeValue, error) {
	return attributevalue.Marshal(lowerValue(v))
}

func lowerValue(v interface{}) interface{} {
	switch tv := v.(type) {
	case json.Number:
		if i, err := tv.Int64(); err == nil {
			return i
		}
		if f, err := tv.Float64(); err == nil {
			return f
		}
		return tv.String()
	case adapter.Identifier:
		return string(tv)
	case time.Time:
		return tv.UTC().Format(time.RFC3339Nano)
	case map[string]interface{}:
		out := make(map[string]interface{}, len(tv))
		for k, e := range tv {
			out[k] = lowerValue(e)
		}
		return out
	case []interface{}:
		out := make([]interface{}, len(tv))
		for i, e := range tv {
			out[i] = lowerValue(e)
		}
		return out
	default:
		return v
	}
}

// decodeDocument unmarshals an item keeping numbers as json.Number so
// integer fields do not collapse to float64.
func decodeDocument(item map[string]types.AttributeValue) (adapter.Document, error) {
	dec := attributevalue.NewDecoder(func(o *attributevalue.DecoderOptions) {
		o.UseNumber = true
	})
	var raw map[string]interface{}
	if err := dec.Decode(&types.AttributeValueMemberM{Value: item}, &raw); err != nil {
		return nil, err
	}
	doc := make(adapter.Document, len(raw))
	for k, v := range raw {
		doc[k] = liftValue(v)
	}
	return doc, nil
}

func liftValue(v interface{}) interface{} {
	switch tv := v.(type) {
	case attributevalue.Number:
		return json.Number(tv.String())
	case map[string]interface{}:
		out := make(map[string]interface{}, len(tv))
		for k, e := range tv {
			out[k] = liftValue(e)
		}
		return out
	case []interface{}:
		out := make([]interface{}, len(tv))
		for i, e := range tv {
			out[i] = liftValue(e)
		}
		return out
	default:
		return v
	}
}

// normalizeFilterValue aligns a caller-supplied filter value with the shape
// decode produces, so equality matching works after a round trip.
func normalizeFilterValue(v interface{}) interface{} {
	switch tv := v.(type) {
	case int:
		return json.Number(strconv.FormatInt(int64(tv), 10))
	case int64:
		return json.Number(strconv.FormatInt(tv, 10))
	case float64:
		return json.Number(strconv.FormatFloat(tv, 'g', -1, 64))
	case adapter.Identifier:
		return string(tv)
	default:
		return v
	}
}
