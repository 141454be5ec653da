/*
 * Copyright (C) 2024 Adiom, Inc.
 *
 * SPDX-License-Identifier: AGPL-3.0-or-later
 */
package options

import (
	"fmt"
	"strings"
	"time"

	"github.com/urfave/cli/v2"
)

type Options struct {
	Verbosity string
	Logfile   string

	Backend    string
	ConnString string

	Seed        uint64
	BatchSize   int
	Parallelism int
	RateLimit   int

	ServerConnectTimeout time.Duration
	PingTimeout          time.Duration
}

func NewFromCLIContext(c *cli.Context) (Options, error) {
	o := Options{}

	o.Verbosity = c.String("verbosity")
	o.Logfile = c.String("logfile")
	o.ConnString = c.String("uri")
	o.Backend = c.String("backend")
	o.Seed = c.Uint64("seed")
	o.BatchSize = c.Int("batch-size")
	o.Parallelism = c.Int("parallelism")
	o.RateLimit = c.Int("rate-limit")
	o.ServerConnectTimeout = time.Duration(c.Int("server-timeout")) * time.Second
	o.PingTimeout = time.Duration(c.Int("ping-timeout")) * time.Second

	if o.ConnString == "" {
		return o, fmt.Errorf("a connection string is required (--uri or ISTA_URI)")
	}
	if o.Backend == "" {
		backend, err := detectBackend(o.ConnString)
		if err != nil {
			return o, err
		}
		o.Backend = backend
	}
	return o, nil
}

// detectBackend maps the URI scheme to a registered backend identifier.
func detectBackend(connString string) (string, error) {
	scheme, _, found := strings.Cut(connString, "://")
	if !found {
		return "", fmt.Errorf("cannot autodetect backend from %q; use --backend", connString)
	}
	switch strings.ToLower(scheme) {
	case "mongodb", "mongodb+srv":
		return "mongodb", nil
	case "postgres", "postgresql":
		return "postgresql", nil
	case "dynamodb":
		return "dynamodb", nil
	case "memory":
		return "memory", nil
	default:
		return "", fmt.Errorf("cannot autodetect backend from scheme %q; use --backend", scheme)
	}
}
