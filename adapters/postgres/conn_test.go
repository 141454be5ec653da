//go:build external
// +build external

/*
 * Copyright (C) 2024 Adiom, Inc.
 *
 * SPDX-License-Identifier: AGPL-3.0-or-later
 */
package postgres

import (
	"os"
	"testing"

	"github.com/ista-data/ista/adapter/adaptertest"
	"github.com/stretchr/testify/suite"
)

const PostgresEnvironmentVariable = "POSTGRES_TEST"

var TestPostgresConnectionString = os.Getenv(PostgresEnvironmentVariable)

// Conformance suite against a live PostgreSQL, e.g.
// POSTGRES_TEST=postgres://user:pw@localhost:5432/ista_test go test -tags external ./adapters/postgres
func TestPostgresConformanceSuite(t *testing.T) {
	if TestPostgresConnectionString == "" {
		t.Skipf("%s not set", PostgresEnvironmentVariable)
	}
	suite.Run(t, &adaptertest.Suite{
		NewAdapter: NewAdapter,
		ConnString: TestPostgresConnectionString,
	})
}
