/*
 * Copyright (C) 2024 Adiom, Inc.
 *
 * SPDX-License-Identifier: AGPL-3.0-or-later
 */

// Package ista wires the CLI surface. Commands are presentation only: every
// backend interaction goes through the capability contract and the
// provisioning engine.
package ista

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"text/tabwriter"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/ista-data/ista/adapter"
	_ "github.com/ista-data/ista/adapters/dynamodb"
	_ "github.com/ista-data/ista/adapters/memory"
	_ "github.com/ista-data/ista/adapters/mongo"
	_ "github.com/ista-data/ista/adapters/postgres"
	"github.com/ista-data/ista/dataset"
	"github.com/ista-data/ista/internal/app/options"
	"github.com/ista-data/ista/internal/build"
	"github.com/ista-data/ista/logger"
	"github.com/ista-data/ista/provision"
	"github.com/mitchellh/hashstructure"
	"github.com/urfave/cli/v2"
)

// NewApp builds the ista CLI.
func NewApp() *cli.App {
	flags, before := options.GetFlagsAndBeforeFunc()

	app := &cli.App{
		Before:    before,
		Flags:     flags,
		Name:      "ista",
		Usage:     "Provisions synthetic test data into document and relational backends",
		UsageText: "ista [options] command",
		Version:   build.VersionStr,
		Copyright: build.CopyrightStr,
		Commands: []*cli.Command{
			provisionCommand(),
			cleanupCommand(),
			statusCommand(),
			showCommand(),
			healthCommand(),
			schemaCommand(),
			maskCommand(),
		},
	}

	return app
}

// withAdapter parses the global options, sets up logging, connects, and
// hands the session to the command body. Disconnect always runs.
func withAdapter(c *cli.Context, fn func(o options.Options, ad adapter.Adapter) error) error {
	o, err := options.NewFromCLIContext(c)
	if err != nil {
		return err
	}
	if err := logger.Setup(logger.Options{Verbosity: o.Verbosity, LogFile: o.Logfile}); err != nil {
		return err
	}
	slog.Debug(fmt.Sprintf("Parsed options: %+v", o))

	ad, err := provision.Connect(c.Context, o.Backend, o.ConnString, adapter.ConnectOptions{
		ConnectTimeout: o.ServerConnectTimeout,
		PingTimeout:    o.PingTimeout,
	})
	if err != nil {
		return err
	}
	defer func() {
		if err := ad.Disconnect(c.Context); err != nil {
			slog.Warn("disconnect failed", "err", err)
		}
	}()
	return fn(o, ad)
}

func newEngine(o options.Options, ad adapter.Adapter, mask, clear bool, ttl time.Duration) *provision.Engine {
	return provision.NewEngine(ad, clock.New(), o.ConnString, provision.Options{
		BatchSize:   o.BatchSize,
		Parallelism: o.Parallelism,
		RateLimit:   o.RateLimit,
		Seed:        o.Seed,
		Mask:        mask,
		Clear:       clear,
		TTL:         ttl,
	})
}

func provisionCommand() *cli.Command {
	return &cli.Command{
		Name:      "provision",
		Usage:     "generate and insert datasets",
		UsageText: "ista [options] provision --dataset users.yaml [--dataset movies.yaml]",
		Flags: []cli.Flag{
			&cli.StringSliceFlag{
				Name:    "dataset",
				Usage:   "dataset specification file (repeatable)",
				Aliases: []string{"f"},
			},
			&cli.StringFlag{
				Name:  "dataset-dir",
				Usage: "load every dataset specification in a directory",
			},
			&cli.StringFlag{
				Name:  "volumes",
				Usage: `override dataset document counts, e.g. '{"users": 500}'`,
			},
			&cli.BoolFlag{
				Name:  "mask",
				Usage: "apply the masking pass for datasets that declare masking fields",
				Value: true,
			},
			&cli.BoolFlag{
				Name:  "clear",
				Usage: "empty each target collection before provisioning",
			},
			&cli.DurationFlag{
				Name:  "ttl",
				Usage: "time-to-live for the provisioned data, e.g. 24h. 0 means no expiry",
			},
		},
		Action: func(c *cli.Context) error {
			return withAdapter(c, func(o options.Options, ad adapter.Adapter) error {
				datasets, err := loadDatasets(c)
				if err != nil {
					return err
				}
				e := newEngine(o, ad, c.Bool("mask"), c.Bool("clear"), c.Duration("ttl"))
				run, err := e.Provision(c.Context, datasets)
				if err != nil {
					return err
				}
				fmt.Printf("provisioned run %s: %d documents across %d collections\n",
					run.ID, run.Documents, len(run.Collections))
				if !run.ExpiresAt.IsZero() {
					fmt.Printf("expires at %s\n", run.ExpiresAt.Format(time.RFC3339))
				}
				return nil
			})
		},
	}
}

func loadDatasets(c *cli.Context) ([]dataset.Dataset, error) {
	var datasets []dataset.Dataset
	if dir := c.String("dataset-dir"); dir != "" {
		loaded, err := dataset.LoadDir(dir)
		if err != nil {
			return nil, err
		}
		datasets = loaded
	} else {
		paths := c.StringSlice("dataset")
		if len(paths) == 0 {
			return nil, fmt.Errorf("no datasets given; use --dataset or --dataset-dir")
		}
		for _, path := range paths {
			ds, err := dataset.Load(path)
			if err != nil {
				return nil, err
			}
			datasets = append(datasets, ds)
		}
	}
	if err := applyVolumeOverrides(datasets, c.String("volumes")); err != nil {
		return nil, err
	}
	return datasets, nil
}

// applyVolumeOverrides rewrites dataset counts from a JSON object keyed by
// dataset name.
func applyVolumeOverrides(datasets []dataset.Dataset, raw string) error {
	if raw == "" {
		return nil
	}
	var volumes map[string]int
	if err := json.Unmarshal([]byte(raw), &volumes); err != nil {
		return fmt.Errorf("parsing --volumes: %w", err)
	}
	for name, count := range volumes {
		if count <= 0 {
			return fmt.Errorf("--volumes count for %q must be positive", name)
		}
		found := false
		for i := range datasets {
			if datasets[i].Metadata.Name == name {
				datasets[i].Spec.Volume.Count = count
				found = true
			}
		}
		if !found {
			return fmt.Errorf("--volumes names unknown dataset %q", name)
		}
	}
	return nil
}

func cleanupCommand() *cli.Command {
	return &cli.Command{
		Name:      "cleanup",
		Usage:     "delete a run's documents, or all expired runs",
		UsageText: "ista [options] cleanup <run-id>... | --expired",
		Flags: []cli.Flag{
			&cli.BoolFlag{
				Name:  "expired",
				Usage: "remove every run whose TTL deadline has passed",
			},
		},
		Action: func(c *cli.Context) error {
			return withAdapter(c, func(o options.Options, ad adapter.Adapter) error {
				e := newEngine(o, ad, false, false, 0)
				if c.Bool("expired") {
					removed, err := e.CleanupExpired(c.Context)
					if err != nil {
						return err
					}
					fmt.Printf("removed %d expired runs\n", removed)
					return nil
				}
				if c.NArg() == 0 {
					return fmt.Errorf("no run ids given; pass run ids or --expired")
				}
				for _, runID := range c.Args().Slice() {
					deleted, err := e.Cleanup(c.Context, runID)
					if err != nil {
						return err
					}
					fmt.Printf("run %s: deleted %d documents\n", runID, deleted)
				}
				return nil
			})
		},
	}
}

func statusCommand() *cli.Command {
	return &cli.Command{
		Name:  "status",
		Usage: "per-collection stats and recorded runs",
		Action: func(c *cli.Context) error {
			return withAdapter(c, func(o options.Options, ad adapter.Adapter) error {
				collections, err := ad.ListCollections(c.Context)
				if err != nil {
					return err
				}
				w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
				fmt.Fprintln(w, "COLLECTION\tCOUNT\tSIZE\tAVG\tINDEXES")
				for _, collection := range collections {
					stats, err := ad.CollectionStats(c.Context, collection)
					if err != nil {
						slog.Warn("stats unavailable", "collection", collection, "err", err)
						continue
					}
					fmt.Fprintf(w, "%s\t%d\t%d\t%d\t%d\n",
						collection, stats.Count, stats.SizeBytes, stats.AvgRecordSize, stats.IndexCount)
				}
				if err := w.Flush(); err != nil {
					return err
				}

				e := newEngine(o, ad, false, false, 0)
				runs, err := e.Runs(c.Context)
				if err != nil {
					return err
				}
				if len(runs) == 0 {
					return nil
				}
				fmt.Println()
				w = tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
				fmt.Fprintln(w, "RUN\tDOCUMENTS\tCREATED\tEXPIRES")
				for _, run := range runs {
					expires := "-"
					if !run.ExpiresAt.IsZero() {
						expires = run.ExpiresAt.Format(time.RFC3339)
					}
					fmt.Fprintf(w, "%s\t%d\t%s\t%s\n",
						run.ID, run.Documents, run.CreatedAt.Format(time.RFC3339), expires)
				}
				return w.Flush()
			})
		},
	}
}

func showCommand() *cli.Command {
	return &cli.Command{
		Name:      "show",
		Usage:     "print sample documents from a collection as JSON",
		UsageText: "ista [options] show <collection>",
		Flags: []cli.Flag{
			&cli.IntFlag{
				Name:  "limit",
				Usage: "number of documents to print",
				Value: 5,
			},
			&cli.IntFlag{
				Name:  "skip",
				Usage: "number of documents to skip",
			},
		},
		Action: func(c *cli.Context) error {
			if c.NArg() != 1 {
				return fmt.Errorf("usage: show <collection>")
			}
			collection := c.Args().First()
			return withAdapter(c, func(o options.Options, ad adapter.Adapter) error {
				docs, err := ad.FindDocuments(c.Context, collection, nil, c.Int("limit"), c.Int("skip"))
				if err != nil {
					return err
				}
				enc := json.NewEncoder(os.Stdout)
				enc.SetIndent("", "  ")
				for _, doc := range docs {
					if err := enc.Encode(doc); err != nil {
						return err
					}
				}
				return nil
			})
		},
	}
}

func healthCommand() *cli.Command {
	return &cli.Command{
		Name:  "health",
		Usage: "check backend connectivity",
		Action: func(c *cli.Context) error {
			return withAdapter(c, func(o options.Options, ad adapter.Adapter) error {
				healthy := ad.HealthCheck(c.Context)
				ok, detail := ad.ValidateConnection(c.Context)
				fmt.Printf("backend:  %s\nhealthy:  %v\ndetail:   %s\n", o.Backend, healthy, detail)
				if healthy && ok {
					return nil
				}
				if tail := logger.Recent(); tail != "" {
					fmt.Printf("\nrecent log output (newest first):\n%s", tail)
				}
				return fmt.Errorf("backend %s is unhealthy", o.Backend)
			})
		},
	}
}

func schemaCommand() *cli.Command {
	return &cli.Command{
		Name:      "schema",
		Usage:     "infer and print a collection's schema",
		UsageText: "ista [options] schema <collection>",
		Flags: []cli.Flag{
			&cli.IntFlag{
				Name:  "sample",
				Usage: "number of documents to sample",
				Value: adapter.DefaultSampleSize,
			},
		},
		Action: func(c *cli.Context) error {
			if c.NArg() != 1 {
				return fmt.Errorf("usage: schema <collection>")
			}
			collection := c.Args().First()
			return withAdapter(c, func(o options.Options, ad adapter.Adapter) error {
				schema, err := ad.GetSchema(c.Context, collection, c.Int("sample"))
				if err != nil {
					return err
				}
				w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
				fmt.Fprintf(w, "collection: %s\tprimary key: %s\n", schema.Name, schema.PrimaryKey)
				fmt.Fprintln(w, "FIELD\tTYPE\tNULLABLE\tINDEXED\tUNIQUE")
				for _, name := range adapter.SortedFieldNames(schema) {
					field := schema.Fields[name]
					fmt.Fprintf(w, "%s\t%s\t%v\t%v\t%v\n",
						name, field.Type, field.Nullable, field.Indexed, field.Unique)
				}
				if err := w.Flush(); err != nil {
					return err
				}

				// A stable fingerprint of the structure, for change detection
				// across environments.
				fingerprint, err := hashstructure.Hash(schema, nil)
				if err != nil {
					return err
				}
				fmt.Printf("fingerprint: %016x\n", fingerprint)
				return nil
			})
		},
	}
}

func maskCommand() *cli.Command {
	return &cli.Command{
		Name:      "mask",
		Usage:     "mask a field across a collection",
		UsageText: "ista [options] mask <collection> <field>",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "rule",
				Usage: fmt.Sprintf("mask rule (%v). Defaults by field name", provision.RuleNames()),
			},
		},
		Action: func(c *cli.Context) error {
			if c.NArg() != 2 {
				return fmt.Errorf("usage: mask <collection> <field>")
			}
			collection, field := c.Args().Get(0), c.Args().Get(1)
			return withAdapter(c, func(o options.Options, ad adapter.Adapter) error {
				fn, err := provision.FieldRule(field, c.String("rule"))
				if err != nil {
					return err
				}
				masked, err := ad.MaskField(c.Context, collection, field, fn)
				if err != nil {
					return err
				}
				fmt.Printf("masked %d records in %s.%s\n", masked, collection, field)
				return nil
			})
		},
	}
}
