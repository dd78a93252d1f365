// Package main provides the entry point for the tflmirror CLI.
package main

import (
	"os"

	"github.com/dalenewman/tflmirror/cmd/tflmirror/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
