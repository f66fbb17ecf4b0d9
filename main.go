// Package main is the entry point for the booklist CLI.
package main

import (
	"context"
	"os"
	"os/signal"

	"github.com/agentic-research/booklist/cmd"
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	if err := cmd.ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}
