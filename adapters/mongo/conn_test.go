//go:build external
// +build external

/*
 * Copyright (C) 2024 Adiom, Inc.
 *
 * SPDX-License-Identifier: AGPL-3.0-or-later
 */
package mongo

import (
	"os"
	"testing"

	"github.com/ista-data/ista/adapter/adaptertest"
	"github.com/stretchr/testify/suite"
	"github.com/tryvium-travels/memongo"
)

const MongoEnvironmentVariable = "MONGO_TEST"

var TestMongoConnectionString = os.Getenv(MongoEnvironmentVariable)

// Conformance suite against a live MongoDB, e.g.
// MONGO_TEST=mongodb://localhost:27017/ista_test go test -tags external ./adapters/mongo
// Without MONGO_TEST an in-process mongod is started instead.
func TestMongoConformanceSuite(t *testing.T) {
	connString := TestMongoConnectionString
	if connString == "" {
		server, err := memongo.Start("6.0.16")
		if err != nil {
			t.Fatal(err)
		}
		defer server.Stop()
		connString = server.URI() + "/" + memongo.RandomDatabase()
	}
	suite.Run(t, &adaptertest.Suite{
		NewAdapter: NewAdapter,
		ConnString: connString,
	})
}
