/*
 * Copyright (C) 2024 Adiom, Inc.
 *
 * SPDX-License-Identifier: AGPL-3.0-or-later
 */

// Package factory generates realistic synthetic records for the built-in
// mflix-shaped collections. Factories are pure: they build documents and
// hand them to the caller, who decides how to write them.
package factory

import (
	"fmt"
	"sort"

	"github.com/brianvoe/gofakeit/v7"
	"github.com/ista-data/ista/adapter"
)

// Builder constructs one document from the faker instance. Implementations
// must only emit values the schema inferencer can classify: int, float64,
// string, bool, time.Time, map[string]interface{}, []interface{}.
type Builder func(f *gofakeit.Faker) adapter.Document

// Factory couples a builder with the collection it populates by default.
type Factory struct {
	Name       string
	Collection string
	Build      Builder
}

// Batch builds n documents.
func (fa Factory) Batch(f *gofakeit.Faker, n int) []adapter.Document {
	docs := make([]adapter.Document, 0, n)
	for i := 0; i < n; i++ {
		docs = append(docs, fa.Build(f))
	}
	return docs
}

var factories = map[string]Factory{}

func register(fa Factory) {
	factories[fa.Name] = fa
}

// Get looks up a factory by name.
func Get(name string) (Factory, error) {
	fa, ok := factories[name]
	if !ok {
		return Factory{}, fmt.Errorf("unknown factory %q (have %v)", name, Names())
	}
	return fa, nil
}

// Names lists the registered factories in lexical order.
func Names() []string {
	names := make([]string, 0, len(factories))
	for name := range factories {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Faker aliases the generator so callers do not import gofakeit directly.
type Faker = gofakeit.Faker

// New returns a seedable faker. Seed zero gives non-deterministic output;
// any other seed makes batches reproducible. The returned faker is not
// goroutine safe.
func New(seed uint64) *Faker {
	return gofakeit.New(seed)
}
