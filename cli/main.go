// Package main is the entry point for the manimate CLI.
//
// Usage:
//
//	manimate [flags] <command> <topic>
//
// Commands:
//
//	generate   - run on a manimate server over its WebSocket
//	local      - run the pipeline in this process
package main

import (
	"fmt"
	"os"

	"github.com/xiaot623/manimate/cli/commands"
)

func main() {
	if err := commands.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
