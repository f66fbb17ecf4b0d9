// Package cmd contains the CLI commands for the booklist application.
package cmd

import (
	"context"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/agentic-research/booklist/internal/logger"
)

var rootCmd *cobra.Command

var (
	verbose bool
	logMode string
	dbPath  string
)

func init() {
	rootCmd = NewRootCmd()
}

// NewRootCmd creates a fresh root command with every subcommand attached.
func NewRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:          "booklist",
		Short:        "Build and browse grouped views of a book catalogue",
		SilenceUsage: true,
	}
	cmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable debug logging to stderr")
	cmd.PersistentFlags().StringVar(&logMode, "log", "dev", "Log format: dev or prod")
	cmd.PersistentFlags().StringVarP(&dbPath, "db", "d", "booklist.db", "Path to the catalogue database")

	cmd.AddCommand(newInitCmd(), newImportCmd(), newShowCmd(), newStylesCmd())
	return cmd
}

// ExecuteContext runs the root command with the given context.
func ExecuteContext(ctx context.Context) error {
	return rootCmd.ExecuteContext(ctx)
}

// newLogger builds the logger selected by the global flags.
func newLogger() (*zap.Logger, error) {
	return logger.New(logMode, verbose)
}
