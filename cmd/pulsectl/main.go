// Pulse - Activity Fan-out and Search Synchronization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/pulse

// Command pulsectl publishes activity events, queries search and mints
// development tokens against a Pulse deployment.
package main

import (
	"fmt"
	"os"

	"github.com/tomtom215/pulse/internal/command"
)

func main() {
	if err := command.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
