// Package main provides the entry point for meshsync-cli.
//
// meshsync-cli is the command-line client for a meshsync server,
// covering connectivity checks, chat, remote calls, and live entity
// watching.
package main

import (
	"fmt"
	"os"

	"github.com/unknownsaying/meshsync/internal/cli/command"
)

func main() {
	app := command.App()

	if err := app.Run(os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}
