/*
 * Copyright (C) 2024 Adiom, Inc.
 *
 * SPDX-License-Identifier: AGPL-3.0-or-later
 */
package logger

import (
	"log/slog"
	"os"

	"github.com/lmittmann/tint"
	"github.com/mattn/go-isatty"
	slogmulti "github.com/samber/slog-multi"
)

type Options struct {
	Verbosity string
	// LogFile receives a JSON copy of the log stream when set.
	LogFile string
}

// Setup installs the default slog logger: a tinted console handler on
// stderr, an optional JSON file handler, and an in-memory tail for
// diagnostics output, fanned out together.
func Setup(o Options) error {
	var level slog.Level
	switch o.Verbosity {
	case "DEBUG":
		level = slog.LevelDebug
	case "INFO":
		level = slog.LevelInfo
	case "WARN":
		level = slog.LevelWarn
	case "ERROR":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	w := os.Stderr
	handlers := []slog.Handler{
		tint.NewHandler(w, &tint.Options{
			NoColor:   !isatty.IsTerminal(w.Fd()),
			Level:     level,
			AddSource: level < 0, //only for debugging
		}),
		slog.NewTextHandler(recent, &slog.HandlerOptions{Level: level}),
	}

	if o.LogFile != "" {
		f, err := os.OpenFile(o.LogFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return err
		}
		handlers = append(handlers, slog.NewJSONHandler(f, &slog.HandlerOptions{Level: level}))
	}

	slog.SetDefault(slog.New(slogmulti.Fanout(handlers...)))
	return nil
}

var recent = NewReverseBuffer(16 * 1024)

// Recent returns the retained log tail, newest line first.
func Recent() string {
	return recent.String()
}
