/*
 * Copyright (C) 2024 Adiom, Inc.
 *
 * SPDX-License-Identifier: AGPL-3.0-or-later
 */

package provision

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/ista-data/ista/adapter"
	_ "github.com/ista-data/ista/adapters/memory"
	"github.com/ista-data/ista/dataset"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func usersDataset(count int, maskFields ...string) dataset.Dataset {
	return dataset.Dataset{
		Metadata: dataset.Metadata{Name: "users"},
		Spec: dataset.Spec{
			Collection: "users",
			Factory:    "users",
			Volume:     dataset.Volume{Count: count},
			Masking:    dataset.Masking{Fields: maskFields},
			Indexes:    []dataset.Index{{Field: "email", Unique: false}},
		},
	}
}

func newTestEngine(t *testing.T, opts Options) (*Engine, adapter.Adapter, *clock.Mock) {
	t.Helper()
	ctx := context.Background()
	ad, err := Connect(ctx, "memory", "memory://", adapter.ConnectOptions{})
	require.NoError(t, err)
	t.Cleanup(func() { _ = ad.Disconnect(context.Background()) })
	mock := clock.NewMock()
	return NewEngine(ad, mock, "memory://", opts), ad, mock
}

func TestConnectUnknownBackend(t *testing.T) {
	_, err := Connect(context.Background(), "oracle", "", adapter.ConnectOptions{})
	assert.ErrorIs(t, err, adapter.ErrUnsupportedBackend)
}

func TestProvisionInsertsAndRecordsRun(t *testing.T) {
	ctx := context.Background()
	e, ad, _ := newTestEngine(t, Options{Seed: 1, BatchSize: 10})

	run, err := e.Provision(ctx, []dataset.Dataset{usersDataset(35)})
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(run.ID, "run-"))
	assert.EqualValues(t, 35, run.Documents)
	assert.Equal(t, []string{"users"}, run.Collections)

	count, err := ad.CountDocuments(ctx, "users", adapter.Filter{TagField: run.ID})
	require.NoError(t, err)
	assert.EqualValues(t, 35, count, "every document carries the run tag")

	runs, err := e.Runs(ctx)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, run.ID, runs[0].ID)
	assert.True(t, runs[0].ExpiresAt.IsZero(), "no TTL means no deadline")
}

func TestProvisionMaskPass(t *testing.T) {
	ctx := context.Background()
	e, ad, _ := newTestEngine(t, Options{Seed: 1, Mask: true})

	_, err := e.Provision(ctx, []dataset.Dataset{usersDataset(10, "email")})
	require.NoError(t, err)

	docs, err := ad.FindDocuments(ctx, "users", nil, 0, 0)
	require.NoError(t, err)
	require.Len(t, docs, 10)
	for _, doc := range docs {
		email := doc["email"].(string)
		assert.Contains(t, email, "****", "email %q must be masked", email)
	}
}

func TestProvisionClear(t *testing.T) {
	ctx := context.Background()
	e, ad, _ := newTestEngine(t, Options{Seed: 1, Clear: true})

	require.NoError(t, ad.CreateCollection(ctx, "users", nil))
	_, err := ad.InsertOne(ctx, "users", adapter.Document{"stale": true})
	require.NoError(t, err)

	_, err = e.Provision(ctx, []dataset.Dataset{usersDataset(5)})
	require.NoError(t, err)

	stale, err := ad.CountDocuments(ctx, "users", adapter.Filter{"stale": true})
	require.NoError(t, err)
	assert.EqualValues(t, 0, stale)
}

func TestCleanupRemovesOnlyTaggedDocuments(t *testing.T) {
	ctx := context.Background()
	e, ad, _ := newTestEngine(t, Options{Seed: 1})

	require.NoError(t, ad.CreateCollection(ctx, "users", nil))
	_, err := ad.InsertOne(ctx, "users", adapter.Document{"keep": true})
	require.NoError(t, err)

	run, err := e.Provision(ctx, []dataset.Dataset{usersDataset(8)})
	require.NoError(t, err)

	deleted, err := e.Cleanup(ctx, run.ID)
	require.NoError(t, err)
	assert.EqualValues(t, 8, deleted)

	left, err := ad.CountDocuments(ctx, "users", nil)
	require.NoError(t, err)
	assert.EqualValues(t, 1, left, "documents outside the run survive")

	_, err = e.Cleanup(ctx, run.ID)
	assert.True(t, adapter.IsNotFoundError(err), "run record is gone after cleanup")
}

func TestCleanupExpired(t *testing.T) {
	ctx := context.Background()
	e, ad, mock := newTestEngine(t, Options{Seed: 1, TTL: time.Hour})

	run, err := e.Provision(ctx, []dataset.Dataset{usersDataset(5)})
	require.NoError(t, err)
	assert.False(t, run.ExpiresAt.IsZero())

	// Not expired yet.
	removed, err := e.CleanupExpired(ctx)
	require.NoError(t, err)
	assert.Zero(t, removed)

	mock.Add(2 * time.Hour)
	removed, err = e.CleanupExpired(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, removed)

	count, err := ad.CountDocuments(ctx, "users", nil)
	require.NoError(t, err)
	assert.EqualValues(t, 0, count)
}

func TestReaperSweepsOnTicker(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	e, ad, mock := newTestEngine(t, Options{Seed: 1, TTL: time.Minute})

	_, err := e.Provision(ctx, []dataset.Dataset{usersDataset(3)})
	require.NoError(t, err)

	e.StartReaper(ctx, 30*time.Second)

	// Advance the mock clock in steps until the reaper goroutine has
	// registered its ticker and swept the expired run.
	assert.Eventually(t, func() bool {
		mock.Add(time.Minute)
		count, err := ad.CountDocuments(context.Background(), "users", nil)
		return err == nil && count == 0
	}, 2*time.Second, 10*time.Millisecond, "reaper must remove the expired run")
}

func TestRunDocumentRoundTrip(t *testing.T) {
	created := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	run := Run{
		ID:          "run-abc",
		Collections: []string{"users", "movies"},
		Documents:   42,
		CreatedAt:   created,
		ExpiresAt:   created.Add(time.Hour),
	}
	out, err := runFromDocument(run.document())
	require.NoError(t, err)
	assert.Equal(t, run, out)
}
