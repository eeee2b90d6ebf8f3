// Package main is the entry point for the autopeerd daemon.
package main

import (
	"fmt"
	"os"

	"github.com/autopeerd/autopeerd/cmd/autopeerd/app"
	"github.com/autopeerd/autopeerd/pkg/logger"
)

func main() {
	// Initialize the logger
	logger.Initialize()

	if err := app.NewRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "there was an error: %v\n", err)
		os.Exit(1)
	}
}
