package cmd

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/agentic-research/booklist/internal/catalog"
)

func newImportCmd() *cobra.Command {
	var selector string

	cmd := &cobra.Command{
		Use:   "import [books.json]",
		Short: "Add the books in a JSON document to the catalogue",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			log, err := newLogger()
			if err != nil {
				return err
			}
			defer func() { _ = log.Sync() }()

			data, err := os.ReadFile(args[0])
			if err != nil {
				return fmt.Errorf("read %s: %w", args[0], err)
			}
			db, err := catalog.Open(cmd.Context(), dbPath)
			if err != nil {
				return err
			}
			defer func() { _ = db.Close() }()

			w, err := catalog.NewWriter(db, log)
			if err != nil {
				return err
			}
			start := time.Now()
			n, err := catalog.Import(cmd.Context(), w, data, selector)
			if cerr := w.Close(); err == nil {
				err = cerr
			}
			if err != nil {
				return err
			}
			log.Info("import finished", zap.Int("books", n), zap.Duration("took", time.Since(start)))
			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "Imported %d books into %s\n", n, dbPath)
			return nil
		},
	}
	cmd.Flags().StringVar(&selector, "select", catalog.DefaultSelector, "JSONPath selecting the book objects")
	return cmd
}
