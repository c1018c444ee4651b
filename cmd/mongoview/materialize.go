package main

import (
	"fmt"
	"sort"

	"github.com/spf13/cobra"
)

func NewMaterializeCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "materialize [view...]",
		Short: "Rebuild views from their source collections",
		Long:  "Rebuild the named views, or every view when none is named, from their source collections.",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			env, err := openEnvironment(ctx)
			if err != nil {
				return err
			}
			defer env.Close(ctx)

			counts, err := env.views.MaterializeAll(ctx, args...)
			printCounts(cmd, counts)
			return err
		},
	}
}

func printCounts(cmd *cobra.Command, counts map[string]int) {
	names := make([]string, 0, len(counts))
	for name := range counts {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		fmt.Fprintf(cmd.OutOrStdout(), "%s\t%d\n", name, counts[name])
	}
}
