package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/agentic-research/booklist/internal/catalog"
)

func newInitCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "init",
		Short: "Create an empty catalogue database",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			db, err := catalog.Open(cmd.Context(), dbPath)
			if err != nil {
				return err
			}
			defer func() { _ = db.Close() }()
			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "Initialised %s\n", dbPath)
			return nil
		},
	}
}
