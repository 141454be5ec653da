/*
 * Copyright (C) 2024 Adiom, Inc.
 *
 * SPDX-License-Identifier: AGPL-3.0-or-later
 */

// Package dataset loads and validates YAML dataset specifications. A dataset
// binds a factory to a collection with a target volume, optional masking
// fields, and optional indexes.
package dataset

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/ista-data/ista/factory"
	"gopkg.in/yaml.v3"
)

// Dataset is one parsed specification file.
type Dataset struct {
	APIVersion string   `yaml:"apiVersion"`
	Kind       string   `yaml:"kind"`
	Metadata   Metadata `yaml:"metadata"`
	Spec       Spec     `yaml:"spec"`
}

type Metadata struct {
	Name string `yaml:"name"`
}

type Spec struct {
	Collection string  `yaml:"collection"`
	Factory    string  `yaml:"factory"`
	Volume     Volume  `yaml:"volume"`
	Masking    Masking `yaml:"masking"`
	Indexes    []Index `yaml:"indexes"`
}

type Volume struct {
	Count int `yaml:"count"`
}

type Masking struct {
	Fields []string `yaml:"fields"`
	Rule   string   `yaml:"rule"`
}

type Index struct {
	Field  string `yaml:"field"`
	Unique bool   `yaml:"unique"`
}

// Load parses and validates one specification file.
func Load(path string) (Dataset, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return Dataset{}, fmt.Errorf("read dataset %s: %w", path, err)
	}
	var ds Dataset
	if err := yaml.Unmarshal(raw, &ds); err != nil {
		return Dataset{}, fmt.Errorf("parse dataset %s: %w", path, err)
	}
	if err := ds.validate(); err != nil {
		return Dataset{}, fmt.Errorf("dataset %s: %w", path, err)
	}
	return ds, nil
}

// LoadDir loads every .yaml/.yml file in the directory, sorted by name.
func LoadDir(dir string) ([]Dataset, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("read dataset dir %s: %w", dir, err)
	}
	var paths []string
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		ext := strings.ToLower(filepath.Ext(entry.Name()))
		if ext == ".yaml" || ext == ".yml" {
			paths = append(paths, filepath.Join(dir, entry.Name()))
		}
	}
	sort.Strings(paths)
	if len(paths) == 0 {
		return nil, fmt.Errorf("no dataset files in %s", dir)
	}
	datasets := make([]Dataset, 0, len(paths))
	for _, path := range paths {
		ds, err := Load(path)
		if err != nil {
			return nil, err
		}
		datasets = append(datasets, ds)
	}
	return datasets, nil
}

func (ds Dataset) validate() error {
	if ds.Kind != "" && ds.Kind != "Dataset" {
		return fmt.Errorf("unsupported kind %q", ds.Kind)
	}
	if ds.Metadata.Name == "" {
		return fmt.Errorf("metadata.name is required")
	}
	if ds.Spec.Factory == "" {
		return fmt.Errorf("spec.factory is required")
	}
	if _, err := factory.Get(ds.Spec.Factory); err != nil {
		return err
	}
	if ds.Spec.Volume.Count <= 0 {
		return fmt.Errorf("spec.volume.count must be positive, got %d", ds.Spec.Volume.Count)
	}
	for _, idx := range ds.Spec.Indexes {
		if idx.Field == "" {
			return fmt.Errorf("index field must not be empty")
		}
	}
	return nil
}

// CollectionName returns the explicit collection or the factory default.
func (ds Dataset) CollectionName() string {
	if ds.Spec.Collection != "" {
		return ds.Spec.Collection
	}
	fa, err := factory.Get(ds.Spec.Factory)
	if err != nil {
		return ds.Spec.Factory
	}
	return fa.Collection
}
