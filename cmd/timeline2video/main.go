// Package main is the entry point for the timeline2video application.
package main

import (
	"os"

	"github.com/ivlev/timeline2video/cmd/timeline2video/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
