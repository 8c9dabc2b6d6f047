// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2026 Caldera Works
//
// Spastat - Balboa spa bus client
//
// A CLI tool for monitoring, controlling, and bridging Balboa-style spa
// control boards over serial, TCP, or WebSocket links.

package main

import (
	"os"

	"github.com/calderaworks/spastat/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
