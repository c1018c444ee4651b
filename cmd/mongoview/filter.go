package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
	"go.mongodb.org/mongo-driver/v2/bson"

	"github.com/hanpama/mongoview/internal/view"
)

func NewFilterCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "filter <view>",
		Short: "Print the reverse filter a source change maps to",
		Long:  "Print, as extended JSON, the filter selecting the view documents that embed the given source document.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			typ, _ := cmd.Flags().GetString(recomputeTypeFlag)
			id, _ := cmd.Flags().GetString(recomputeIDFlag)

			log, err := newLogger()
			if err != nil {
				return err
			}
			_, plans, err := compilePlans(context.Background(), log)
			if err != nil {
				return err
			}
			p, ok := plans[args[0]]
			if !ok {
				return fmt.Errorf("%w: %s", view.ErrUnknownView, args[0])
			}
			f, err := p.Keys.FilterFor(typ, parseIDFlag(id))
			if err != nil {
				return err
			}
			out, err := bson.MarshalExtJSON(f, false, false)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), string(out))
			return nil
		},
	}

	flags := cmd.Flags()
	flags.String(recomputeTypeFlag, "", "the model type of the changed document")
	flags.String(recomputeIDFlag, "", "the id of the changed document")
	_ = cmd.MarkFlagRequired(recomputeTypeFlag)
	_ = cmd.MarkFlagRequired(recomputeIDFlag)
	return cmd
}
