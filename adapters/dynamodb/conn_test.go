//go:build external
// +build external

/*
 * Copyright (C) 2024 Adiom, Inc.
 *
 * SPDX-License-Identifier: AGPL-3.0-or-later
 */
package dynamodb

import (
	"context"
	"fmt"
	"os"
	"testing"

	"github.com/google/uuid"
	"github.com/ista-data/ista/adapter"
	"github.com/ista-data/ista/adapter/adaptertest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"
)

const DynamoEnvironmentVariable = "DYNAMODB_TEST"

var TestDynamoConnectionString = os.Getenv(DynamoEnvironmentVariable)

// Conformance suite against dynamodb-local or localstack, e.g.
// DYNAMODB_TEST=dynamodb://localhost:8000 go test -tags external ./adapters/dynamodb
func TestDynamoConformanceSuite(t *testing.T) {
	if TestDynamoConnectionString == "" {
		t.Skipf("%s not set", DynamoEnvironmentVariable)
	}
	suite.Run(t, &adaptertest.Suite{
		NewAdapter: NewAdapter,
		ConnString: TestDynamoConnectionString,
	})
}

// An identity mask leaves every item as-is, so the reported count must be
// zero even though the mask function ran for each record.
func TestMaskFieldIdentityCountsNothing(t *testing.T) {
	if TestDynamoConnectionString == "" {
		t.Skipf("%s not set", DynamoEnvironmentVariable)
	}
	ctx := context.Background()
	ad := NewAdapter()
	require.NoError(t, ad.Connect(ctx, TestDynamoConnectionString, adapter.ConnectOptions{}))
	defer func() { _ = ad.Disconnect(ctx) }()

	table := "t_" + uuid.NewString()[:12]
	require.NoError(t, ad.CreateCollection(ctx, table, nil))
	defer func() { _ = ad.DropCollection(ctx, table) }()

	for i := 0; i < 3; i++ {
		_, err := ad.InsertOne(ctx, table, adapter.Document{"email": fmt.Sprintf("u%d@example.com", i)})
		require.NoError(t, err)
	}

	masked, err := ad.MaskField(ctx, table, "email", func(v interface{}) (interface{}, error) {
		return v, nil
	})
	require.NoError(t, err)
	assert.Zero(t, masked)
}
