/*
 * Copyright (C) 2024 Adiom, Inc.
 *
 * SPDX-License-Identifier: AGPL-3.0-or-later
 */
package adapter

import (
	"fmt"
	"sort"
	"strings"
	"sync"
)

// Constructor builds an unconnected adapter. Construction must not attempt
// any I/O; the session is only established by Connect.
type Constructor func() Adapter

// Registry maps lowercased backend identifiers to adapter constructors.
type Registry struct {
	mu           sync.RWMutex
	constructors map[string]Constructor
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{constructors: map[string]Constructor{}}
}

// Register installs a constructor under one or more identifiers.
// Identifiers are matched case-insensitively.
func (r *Registry) Register(ctor Constructor, identifiers ...string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, id := range identifiers {
		r.constructors[strings.ToLower(id)] = ctor
	}
}

// Get returns a fresh, unconnected adapter for the backend identifier.
// Unknown identifiers fail with ErrUnsupportedBackend.
func (r *Registry) Get(backendType string) (Adapter, error) {
	r.mu.RLock()
	ctor, ok := r.constructors[strings.ToLower(backendType)]
	r.mu.RUnlock()
	if !ok {
		return nil, NewError(ErrUnsupportedBackend, backendType, "get_adapter",
			fmt.Errorf("no adapter registered for %q", backendType))
	}
	return ctor(), nil
}

// Backends returns the registered identifiers in lexical order.
func (r *Registry) Backends() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ids := make([]string, 0, len(r.constructors))
	for id := range r.constructors {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// defaultRegistry backs the package-level functions. Backend packages
// register themselves here from their init functions.
var defaultRegistry = NewRegistry()

// Register installs a constructor in the default registry.
func Register(ctor Constructor, identifiers ...string) {
	defaultRegistry.Register(ctor, identifiers...)
}

// Get returns an adapter from the default registry.
func Get(backendType string) (Adapter, error) {
	return defaultRegistry.Get(backendType)
}

// Backends lists the default registry's identifiers.
func Backends() []string {
	return defaultRegistry.Backends()
}
