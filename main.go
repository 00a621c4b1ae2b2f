// Package main is the entry point for the threatharvest service.
package main

import (
	"context"
	"fmt"
	"os"

	"threatharvest/bootstrap"
	"threatharvest/cmd"
)

// run initializes and starts the service: the API server plus the
// enrichment scheduler when one is configured.
func run() error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	app, err := bootstrap.NewApp(ctx)
	if err != nil {
		return fmt.Errorf("failed to initialize application: %w", err)
	}

	if err := app.Start(ctx); err != nil {
		app.Shutdown()
		return fmt.Errorf("failed to start application: %w", err)
	}

	app.WaitForShutdown()
	cancel()
	app.Shutdown()

	return nil
}

// main runs the CLI when arguments are given, otherwise the service.
func main() {
	if len(os.Args) > 1 {
		cmd.Execute()
		return
	}

	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "FATAL: %v\n", err)
		os.Exit(1)
	}
}
