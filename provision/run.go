/*
 * Copyright (C) 2024 Adiom, Inc.
 *
 * SPDX-License-Identifier: AGPL-3.0-or-later
 */

package provision

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/cespare/xxhash"
	"github.com/google/uuid"
	"github.com/ista-data/ista/adapter"
)

// RunsCollection is the bookkeeping collection holding one record per
// provisioning run. It lives next to the provisioned data so cleanup works
// from any process that can reach the backend.
const RunsCollection = "ista_runs"

// TagField is stamped on every provisioned document so a run's documents
// can be found and deleted later.
const TagField = "run_id"

// Run describes one provisioning run.
type Run struct {
	ID          string
	Collections []string
	Documents   int64
	CreatedAt   time.Time
	ExpiresAt   time.Time // zero when the run never expires
}

// NewRunID derives a short stable id from the connection target plus a
// random component.
func NewRunID(connString string) string {
	hasher := xxhash.New()
	_, _ = hasher.Write([]byte(connString))
	_, _ = hasher.Write([]byte(uuid.NewString()))
	return fmt.Sprintf("run-%x", hasher.Sum64())
}

// Expired reports whether the run's deadline has passed at the given time.
func (r Run) Expired(now time.Time) bool {
	return !r.ExpiresAt.IsZero() && !now.Before(r.ExpiresAt)
}

// Timestamps cross the adapter boundary as unix seconds so every backend
// round-trips them identically.
func (r Run) document() adapter.Document {
	collections := make([]interface{}, len(r.Collections))
	for i, c := range r.Collections {
		collections[i] = c
	}
	var expires int64
	if !r.ExpiresAt.IsZero() {
		expires = r.ExpiresAt.Unix()
	}
	return adapter.Document{
		"_id":         r.ID,
		"collections": collections,
		"documents":   r.Documents,
		"created_at":  r.CreatedAt.Unix(),
		"expires_at":  expires,
	}
}

func runFromDocument(doc adapter.Document) (Run, error) {
	id, ok := doc["_id"].(string)
	if !ok {
		return Run{}, fmt.Errorf("run record has no string _id: %v", doc["_id"])
	}
	run := Run{
		ID:        id,
		Documents: asInt64(doc["documents"]),
		CreatedAt: time.Unix(asInt64(doc["created_at"]), 0).UTC(),
	}
	if expires := asInt64(doc["expires_at"]); expires > 0 {
		run.ExpiresAt = time.Unix(expires, 0).UTC()
	}
	if raw, ok := doc["collections"].([]interface{}); ok {
		for _, c := range raw {
			run.Collections = append(run.Collections, fmt.Sprint(c))
		}
	}
	return run, nil
}

// asInt64 tolerates the numeric shapes the backends hand back: int on the
// memory backend, int32/int64 from bson, json.Number from jsonb and
// attribute maps.
func asInt64(v interface{}) int64 {
	switch tv := v.(type) {
	case int:
		return int64(tv)
	case int32:
		return int64(tv)
	case int64:
		return tv
	case float64:
		return int64(tv)
	case json.Number:
		i, _ := tv.Int64()
		return i
	default:
		return 0
	}
}
