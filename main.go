// Copyright (c) 2024. Adiom, Inc.
// SPDX-License-Identifier: AGPL-3.0-or-later

package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	ista "github.com/ista-data/ista/internal/app"
)

func main() {

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT, syscall.SIGPIPE)
	cancellableCtx, cancelApp := context.WithCancel(context.Background())

	go func() {
		for s := range sigChan {
			if s != syscall.SIGPIPE {
				cancelApp()
				break
			}
		}
	}()

	app := ista.NewApp()
	err := app.RunContext(cancellableCtx, os.Args)
	if err != nil {
		fmt.Printf("ista exited with error: %v\n", err)
		os.Exit(1)
	}
}
