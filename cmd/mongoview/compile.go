package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/hanpama/mongoview/internal/graph"
)

func NewCompileCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "compile",
		Short: "Validate the view graphs and print their compiled plans",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			log, err := newLogger()
			if err != nil {
				return err
			}
			metas, plans, err := compilePlans(context.Background(), log)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			for i, meta := range metas {
				if i > 0 {
					fmt.Fprintln(out)
				}
				fmt.Fprintf(out, "# %s (%s)\n", meta.Name, meta.FilePath)
				fmt.Fprint(out, graph.Render(plans[meta.Name]))
			}
			return nil
		},
	}
}
