/*
 * Copyright (C) 2024 Adiom, Inc.
 *
 * SPDX-License-Identifier: AGPL-3.0-or-later
 */

package adapter

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubAdapter struct {
	Adapter
}

func TestRegistryCaseInsensitive(t *testing.T) {
	r := NewRegistry()
	r.Register(func() Adapter { return &stubAdapter{} }, "MongoDB", "mongo")

	for _, id := range []string{"mongodb", "MONGODB", "Mongo"} {
		ad, err := r.Get(id)
		require.NoError(t, err, id)
		assert.NotNil(t, ad)
	}
}

func TestRegistryUnknownBackend(t *testing.T) {
	r := NewRegistry()
	_, err := r.Get("oracle")
	assert.True(t, errors.Is(err, ErrUnsupportedBackend))
	assert.Contains(t, err.Error(), "oracle")
}

func TestRegistryReturnsFreshInstances(t *testing.T) {
	r := NewRegistry()
	r.Register(func() Adapter { return &stubAdapter{} }, "stub")

	a, err := r.Get("stub")
	require.NoError(t, err)
	b, err := r.Get("stub")
	require.NoError(t, err)
	assert.NotSame(t, a, b, "each Get must construct a fresh adapter")
}

func TestRegistryBackendsSorted(t *testing.T) {
	r := NewRegistry()
	ctor := func() Adapter { return &stubAdapter{} }
	r.Register(ctor, "zeta")
	r.Register(ctor, "alpha", "Mid")
	assert.Equal(t, []string{"alpha", "mid", "zeta"}, r.Backends())
}
