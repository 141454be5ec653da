/*
 * Copyright (C) 2024 Adiom, Inc.
 *
 * SPDX-License-Identifier: AGPL-3.0-or-later
 */

package postgres

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/ista-data/ista/adapter"
	"github.com/jackc/pgx/v5"
)

// buildWhere translates an equality filter into a WHERE clause. A _id key
// targets the key column directly; any other keys collapse into a single
// jsonb containment test so nested filters work the same as on MongoDB.
func buildWhere(filter adapter.Filter) (string, []interface{}, error) {
	if len(filter) == 0 {
		return "", nil, nil
	}
	var clauses []string
	var args []interface{}

	if id, ok := filter[primaryKey]; ok {
		args = append(args, fmt.Sprint(id))
		clauses = append(clauses, fmt.Sprintf("_id = $%d", len(args)))
	}

	rest := make(adapter.Filter, len(filter))
	for k, v := range filter {
		if k == primaryKey {
			continue
		}
		rest[k] = v
	}
	if len(rest) > 0 {
		payload, err := json.Marshal(rest)
		if err != nil {
			return "", nil, fmt.Errorf("unencodable filter: %w", err)
		}
		args = append(args, payload)
		clauses = append(clauses, fmt.Sprintf("doc @> $%d::jsonb", len(args)))
	}
	return " WHERE " + strings.Join(clauses, " AND "), args, nil
}

func quoteIdent(name string) string {
	return pgx.Identifier{name}.Sanitize()
}

func quoteLiteral(s string) string {
	return "'" + strings.ReplaceAll(s, "'", "''") + "'"
}

// decodeDoc unmarshals a jsonb payload with UseNumber so integers survive
// as json.Number instead of collapsing to float64.
func decodeDoc(payload []byte) (adapter.Document, error) {
	dec := json.NewDecoder(bytes.NewReader(payload))
	dec.UseNumber()
	var doc adapter.Document
	if err := dec.Decode(&doc); err != nil {
		return nil, err
	}
	return doc, nil
}
