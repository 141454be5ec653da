/*
 * Copyright (C) 2024 Adiom, Inc.
 *
 * SPDX-License-Identifier: AGPL-3.0-or-later
 */

// Package provision drives an adapter to populate, mask, and clean up
// synthetic datasets. All backend access goes through the capability
// contract; the engine never talks to a driver directly.
package provision

import (
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/cenkalti/backoff/v4"
	"github.com/ista-data/ista/adapter"
	"github.com/ista-data/ista/dataset"
	"github.com/ista-data/ista/factory"
	"golang.org/x/sync/errgroup"
)

// Options tunes a provisioning engine. Zero values fall back to defaults.
type Options struct {
	// BatchSize is the number of documents per insert batch.
	BatchSize int
	// Parallelism caps concurrent insert batches per dataset.
	Parallelism int
	// RateLimit caps inserted documents per second per collection.
	// Non-positive means unlimited.
	RateLimit int
	// TTL is how long provisioned data lives before the reaper removes it.
	// Zero means the data never expires.
	TTL time.Duration
	// Seed makes generation reproducible when non-zero.
	Seed uint64
	// Mask enables the post-insert masking pass for datasets that declare
	// masking fields.
	Mask bool
	// Clear empties each target collection before provisioning into it.
	Clear bool
}

func (o *Options) setDefaults() {
	if o.BatchSize <= 0 {
		o.BatchSize = 100
	}
	if o.Parallelism <= 0 {
		o.Parallelism = 4
	}
}

// Engine provisions datasets through a connected adapter.
type Engine struct {
	ad         adapter.Adapter
	clk        clock.Clock
	connString string
	opts       Options
	limiter    *collectionLimiter
}

// NewEngine wraps a connected adapter. The clock is injectable so the TTL
// reaper can be driven by a mock in tests.
func NewEngine(ad adapter.Adapter, clk clock.Clock, connString string, opts Options) *Engine {
	opts.setDefaults()
	return &Engine{
		ad:         ad,
		clk:        clk,
		connString: connString,
		opts:       opts,
		limiter:    newCollectionLimiter(opts.RateLimit, opts.BatchSize),
	}
}

// Connect resolves the backend in the registry and establishes the session,
// retrying transient connection failures with exponential backoff. Retries
// live here in the service layer; adapters themselves never retry.
func Connect(ctx context.Context, backend, connString string, connOpts adapter.ConnectOptions) (adapter.Adapter, error) {
	ad, err := adapter.Get(backend)
	if err != nil {
		return nil, err
	}
	policy := backoff.WithContext(backoff.WithMaxRetries(backoff.NewExponentialBackOff(), 4), ctx)
	err = backoff.Retry(func() error {
		err := ad.Connect(ctx, connString, connOpts)
		if err == nil {
			return nil
		}
		if adapter.IsConnectionError(err) {
			slog.Warn("connect failed, retrying", "backend", backend, "err", err)
			return err
		}
		return backoff.Permanent(err)
	}, policy)
	if err != nil {
		return nil, err
	}
	return ad, nil
}

// Provision generates and inserts every dataset, records the run in the
// bookkeeping collection, and optionally masks declared fields.
func (e *Engine) Provision(ctx context.Context, datasets []dataset.Dataset) (Run, error) {
	run := Run{
		ID:        NewRunID(e.connString),
		CreatedAt: e.clk.Now().UTC(),
	}
	if e.opts.TTL > 0 {
		run.ExpiresAt = run.CreatedAt.Add(e.opts.TTL)
	}

	faker := factory.New(e.opts.Seed)
	for _, ds := range datasets {
		inserted, err := e.provisionDataset(ctx, faker, ds, run.ID)
		if err != nil {
			return run, fmt.Errorf("provision dataset %s: %w", ds.Metadata.Name, err)
		}
		run.Collections = append(run.Collections, ds.CollectionName())
		run.Documents += inserted
	}

	if err := e.recordRun(ctx, run); err != nil {
		return run, err
	}

	if e.opts.Mask {
		if err := e.maskDatasets(ctx, datasets); err != nil {
			return run, err
		}
	}
	slog.Info("provisioning complete",
		"run", run.ID, "documents", run.Documents, "collections", len(run.Collections))
	return run, nil
}

func (e *Engine) provisionDataset(ctx context.Context, faker *factory.Faker, ds dataset.Dataset, runID string) (int64, error) {
	fa, err := factory.Get(ds.Spec.Factory)
	if err != nil {
		return 0, err
	}
	collection := ds.CollectionName()

	if e.opts.Clear {
		if _, err := e.ad.DeleteDocuments(ctx, collection, nil); err != nil && !adapter.IsNotFoundError(err) {
			return 0, err
		}
	}
	if err := e.ad.CreateCollection(ctx, collection, nil); err != nil {
		return 0, err
	}
	for _, idx := range ds.Spec.Indexes {
		if err := e.ad.CreateIndex(ctx, collection, idx.Field, idx.Unique); err != nil {
			return 0, err
		}
	}

	// Generation is serial (the faker is not goroutine safe); insertion of
	// the resulting batches is parallel.
	docs := fa.Batch(faker, ds.Spec.Volume.Count)
	for _, doc := range docs {
		doc[TagField] = runID
	}

	limiter := e.limiter.get(collection)
	group, groupCtx := errgroup.WithContext(ctx)
	group.SetLimit(e.opts.Parallelism)
	var inserted atomic.Int64
	for start := 0; start < len(docs); start += e.opts.BatchSize {
		end := start + e.opts.BatchSize
		if end > len(docs) {
			end = len(docs)
		}
		batch := docs[start:end]
		group.Go(func() error {
			if err := limiter.WaitN(groupCtx, len(batch)); err != nil {
				return err
			}
			n, err := e.ad.InsertDocuments(groupCtx, collection, batch)
			inserted.Add(int64(n))
			return err
		})
	}
	if err := group.Wait(); err != nil {
		return inserted.Load(), err
	}
	slog.Debug("dataset provisioned", "dataset", ds.Metadata.Name, "collection", collection, "documents", inserted.Load())
	return inserted.Load(), nil
}

func (e *Engine) maskDatasets(ctx context.Context, datasets []dataset.Dataset) error {
	for _, ds := range datasets {
		fn, err := maskRule(ds.Spec.Masking)
		if err != nil {
			return err
		}
		for _, field := range ds.Spec.Masking.Fields {
			rule := fn
			if rule == nil {
				rule = ruleForField(field)
			}
			masked, err := e.ad.MaskField(ctx, ds.CollectionName(), field, rule)
			if err != nil {
				return fmt.Errorf("mask %s.%s: %w", ds.CollectionName(), field, err)
			}
			slog.Debug("field masked", "collection", ds.CollectionName(), "field", field, "records", masked)
		}
	}
	return nil
}

// maskRule resolves an explicitly named rule; nil means per-field inference.
func maskRule(m dataset.Masking) (adapter.MaskFunc, error) {
	if m.Rule == "" {
		return nil, nil
	}
	return Rule(m.Rule)
}

func (e *Engine) recordRun(ctx context.Context, run Run) error {
	if err := e.ad.CreateCollection(ctx, RunsCollection, nil); err != nil {
		return err
	}
	if _, err := e.ad.InsertOne(ctx, RunsCollection, run.document()); err != nil {
		return fmt.Errorf("record run %s: %w", run.ID, err)
	}
	return nil
}

// Runs lists the recorded provisioning runs.
func (e *Engine) Runs(ctx context.Context) ([]Run, error) {
	docs, err := e.ad.FindDocuments(ctx, RunsCollection, nil, 0, 0)
	if err != nil {
		if adapter.IsNotFoundError(err) {
			return nil, nil
		}
		return nil, err
	}
	runs := make([]Run, 0, len(docs))
	for _, doc := range docs {
		run, err := runFromDocument(doc)
		if err != nil {
			slog.Warn("skipping malformed run record", "err", err)
			continue
		}
		runs = append(runs, run)
	}
	return runs, nil
}

// Cleanup deletes every document a run provisioned plus its run record.
func (e *Engine) Cleanup(ctx context.Context, runID string) (int64, error) {
	doc, err := e.ad.FindOne(ctx, RunsCollection, adapter.Filter{"_id": runID})
	if err != nil {
		return 0, err
	}
	if doc == nil {
		return 0, adapter.NotFoundErr("provision", "cleanup", runID)
	}
	run, err := runFromDocument(doc)
	if err != nil {
		return 0, err
	}

	var deleted int64
	for _, collection := range run.Collections {
		n, err := e.ad.DeleteDocuments(ctx, collection, adapter.Filter{TagField: runID})
		if err != nil && !adapter.IsNotFoundError(err) {
			return deleted, err
		}
		deleted += n
	}
	if _, err := e.ad.DeleteOne(ctx, RunsCollection, adapter.Filter{"_id": runID}); err != nil {
		return deleted, err
	}
	slog.Info("run cleaned up", "run", runID, "documents", deleted)
	return deleted, nil
}

// CleanupExpired removes every run whose deadline has passed.
func (e *Engine) CleanupExpired(ctx context.Context) (int, error) {
	runs, err := e.Runs(ctx)
	if err != nil {
		return 0, err
	}
	now := e.clk.Now()
	removed := 0
	for _, run := range runs {
		if !run.Expired(now) {
			continue
		}
		if _, err := e.Cleanup(ctx, run.ID); err != nil {
			return removed, err
		}
		removed++
	}
	return removed, nil
}

// StartReaper sweeps expired runs on the given interval until the context
// is cancelled.
func (e *Engine) StartReaper(ctx context.Context, interval time.Duration) {
	go func() {
		ticker := e.clk.Ticker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				if n, err := e.CleanupExpired(ctx); err != nil {
					slog.Error("reaper sweep failed", "err", err)
				} else if n > 0 {
					slog.Info("reaper removed expired runs", "runs", n)
				}
			case <-ctx.Done():
				return
			}
		}
	}()
}
