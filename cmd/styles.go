package cmd

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/agentic-research/booklist/internal/style"
)

func newStylesCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "styles",
		Short: "List the built-in styles",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			for _, name := range style.Builtins() {
				s, err := style.Builtin(name)
				if err != nil {
					return err
				}
				kinds := make([]string, 0, len(s.Levels))
				for _, k := range s.Kinds() {
					kinds = append(kinds, k.String())
				}
				marker := " "
				if name == style.DefaultName {
					marker = "*"
				}
				_, _ = fmt.Fprintf(out, "%s %-14s %s\n", marker, name, strings.Join(kinds, " > "))
			}
			return nil
		},
	}
}
