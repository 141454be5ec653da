/*
 * Copyright (C) 2024 Adiom, Inc.
 *
 * SPDX-License-Identifier: AGPL-3.0-or-later
 */

package options

import (
	"fmt"
	"slices"
	"strings"

	"github.com/urfave/cli/v2"
	"github.com/urfave/cli/v2/altsrc"
)

// DefaultVerbosity is the default verbosity level for the application.
const DefaultVerbosity = "INFO"

var validVerbosities = []string{"DEBUG", "INFO", "WARN", "ERROR"}

// GetFlagsAndBeforeFunc defines the global CLI options as flags and returns
// a BeforeFunc to parse a configuration file before any other actions.
func GetFlagsAndBeforeFunc() ([]cli.Flag, cli.BeforeFunc) {
	flags := []cli.Flag{
		altsrc.NewStringFlag(&cli.StringFlag{
			Name:    "uri",
			Usage:   "backend connection string",
			Aliases: []string{"u"},
			EnvVars: []string{"ISTA_URI"},
		}),
		altsrc.NewStringFlag(&cli.StringFlag{
			Name:    "backend",
			Usage:   "backend type. When not specified, will autodetect from the URI scheme",
			Aliases: []string{"b"},
			EnvVars: []string{"ISTA_BACKEND"},
		}),
		altsrc.NewStringFlag(&cli.StringFlag{
			Name:        "verbosity",
			Usage:       fmt.Sprintf("set the verbosity level (%s)", strings.Join(validVerbosities, ",")),
			Value:       DefaultVerbosity,
			DefaultText: DefaultVerbosity,
			Action: func(ctx *cli.Context, verbosity string) error {
				if !slices.Contains(validVerbosities, verbosity) {
					return fmt.Errorf("unsupported verbosity setting %v", verbosity)
				}
				return nil
			},
		}),
		altsrc.NewStringFlag(&cli.StringFlag{
			Name:  "logfile",
			Usage: "log file path, also sends logs to file as JSON",
		}),
		&cli.StringFlag{
			Name:    "config",
			Aliases: []string{"c"},
			Usage:   "specify the path of the config file",
		},
		cli.VersionFlag,
		altsrc.NewUint64Flag(&cli.Uint64Flag{
			Name:  "seed",
			Usage: "faker seed for reproducible data. 0 means random",
		}),
		altsrc.NewIntFlag(&cli.IntFlag{
			Name:     "batch-size",
			Usage:    "number of documents per insert batch",
			Required: false,
			Hidden:   true,
		}),
		altsrc.NewIntFlag(&cli.IntFlag{
			Name:     "parallelism",
			Usage:    "number of parallel insert batches per dataset",
			Required: false,
			Hidden:   true,
		}),
		altsrc.NewIntFlag(&cli.IntFlag{
			Name:     "rate-limit",
			Usage:    "maximum inserted documents per second per collection. 0 means unlimited",
			Required: false,
			Hidden:   true,
		}),
		altsrc.NewIntFlag(&cli.IntFlag{
			Name:     "server-timeout",
			Usage:    "duration in seconds for server connection timeout. Set a higher value for slower connections",
			Required: false,
			Hidden:   true,
		}),
		altsrc.NewIntFlag(&cli.IntFlag{
			Name:     "ping-timeout",
			Usage:    "duration in seconds for ping request timeout",
			Required: false,
			Hidden:   true,
		}),
	}

	before := altsrc.InitInputSourceWithContext(flags, altsrc.NewYamlSourceFromFlagFunc("config"))
	return flags, before
}
