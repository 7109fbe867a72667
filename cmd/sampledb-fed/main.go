// Package main provides sampledb-fed, the command line entry point of a
// federation node: it serves the HTTP API and runs imports and exports
// against the local database.
package main

import (
	"fmt"
	"os"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
