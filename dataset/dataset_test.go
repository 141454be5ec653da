/*
 * Copyright (C) 2024 Adiom, Inc.
 *
 * SPDX-License-Identifier: AGPL-3.0-or-later
 */

package dataset

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const validSpec = `apiVersion: v1
kind: Dataset
metadata:
  name: users
spec:
  collection: users
  factory: users
  volume: {count: 100}
  masking:
    fields: [email]
  indexes:
    - {field: email, unique: true}
`

func writeSpec(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoad(t *testing.T) {
	path := writeSpec(t, t.TempDir(), "users.yaml", validSpec)
	ds, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "users", ds.Metadata.Name)
	assert.Equal(t, "users", ds.CollectionName())
	assert.Equal(t, 100, ds.Spec.Volume.Count)
	assert.Equal(t, []string{"email"}, ds.Spec.Masking.Fields)
	require.Len(t, ds.Spec.Indexes, 1)
	assert.True(t, ds.Spec.Indexes[0].Unique)
}

func TestLoadValidation(t *testing.T) {
	testCases := []struct {
		name    string
		content string
		wantErr string
	}{
		{
			"unknown factory",
			"metadata: {name: x}\nspec: {factory: nope, volume: {count: 1}}",
			"unknown factory",
		},
		{
			"zero volume",
			"metadata: {name: x}\nspec: {factory: users, volume: {count: 0}}",
			"must be positive",
		},
		{
			"missing name",
			"spec: {factory: users, volume: {count: 1}}",
			"metadata.name",
		},
		{
			"wrong kind",
			"kind: Pod\nmetadata: {name: x}\nspec: {factory: users, volume: {count: 1}}",
			"unsupported kind",
		},
		{
			"empty index field",
			"metadata: {name: x}\nspec: {factory: users, volume: {count: 1}, indexes: [{unique: true}]}",
			"index field",
		},
		{
			"not yaml",
			"{{{{",
			"parse dataset",
		},
	}
	dir := t.TempDir()
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			path := writeSpec(t, dir, tc.name+".yaml", tc.content)
			_, err := Load(path)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tc.wantErr)
		})
	}
}

func TestCollectionDefaultsToFactory(t *testing.T) {
	path := writeSpec(t, t.TempDir(), "c.yaml",
		"metadata: {name: c}\nspec: {factory: comments, volume: {count: 5}}")
	ds, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "comments", ds.CollectionName())
}

func TestLoadDir(t *testing.T) {
	dir := t.TempDir()
	writeSpec(t, dir, "b_users.yaml", validSpec)
	writeSpec(t, dir, "a_comments.yml",
		"metadata: {name: comments}\nspec: {factory: comments, volume: {count: 5}}")
	writeSpec(t, dir, "notes.txt", "ignored")

	datasets, err := LoadDir(dir)
	require.NoError(t, err)
	require.Len(t, datasets, 2)
	assert.Equal(t, "comments", datasets[0].Metadata.Name, "sorted by file name")
	assert.Equal(t, "users", datasets[1].Metadata.Name)
}

func TestLoadDirEmpty(t *testing.T) {
	_, err := LoadDir(t.TempDir())
	assert.Error(t, err)
}
