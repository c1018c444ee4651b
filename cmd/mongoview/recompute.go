package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"
	"go.mongodb.org/mongo-driver/v2/bson"
)

func NewRecomputeCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "recompute [view]",
		Short: "Recompute the view documents affected by a source change",
		Long: `Recompute the view documents that embed a changed source document.

With --type and --id, every view that embeds the type is recomputed unless a view is named.
With --filter, the named view recomputes the documents matching the extended JSON filter.`,
		Example: `  mongoview recompute --type Product --id 64b7f0c2e13a4a0012345678
  mongoview recompute orders --filter '{"customer._id": "C1"}'`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			flags := cmd.Flags()
			typ, _ := flags.GetString(recomputeTypeFlag)
			id, _ := flags.GetString(recomputeIDFlag)
			rawFilter, _ := flags.GetString(recomputeFilterFlag)

			var filter bson.M
			switch {
			case rawFilter != "":
				if len(args) == 0 {
					return errors.New("--filter requires a view name")
				}
				if err := bson.UnmarshalExtJSON([]byte(rawFilter), false, &filter); err != nil {
					return fmt.Errorf("invalid filter: %w", err)
				}
			case typ == "" || id == "":
				return errors.New("either --filter or both --type and --id are required")
			}

			ctx := cmd.Context()
			env, err := openEnvironment(ctx)
			if err != nil {
				return err
			}
			defer env.Close(ctx)

			if len(args) == 0 {
				counts, err := env.views.RecomputeFor(ctx, typ, parseIDFlag(id))
				printCounts(cmd, counts)
				return err
			}
			v, err := env.views.Get(args[0])
			if err != nil {
				return err
			}
			var n int
			if filter != nil {
				n, err = v.Recompute(ctx, filter)
			} else {
				n, err = v.RecomputeFor(ctx, typ, parseIDFlag(id))
			}
			printCounts(cmd, map[string]int{v.Name(): n})
			return err
		},
	}

	flags := cmd.Flags()
	flags.String(recomputeTypeFlag, "", "the model type of the changed document")
	flags.String(recomputeIDFlag, "", "the id of the changed document")
	flags.String(recomputeFilterFlag, "", "an extended JSON filter over the view collection")
	cmd.MarkFlagsRequiredTogether(recomputeTypeFlag, recomputeIDFlag)
	cmd.MarkFlagsMutuallyExclusive(recomputeFilterFlag, recomputeTypeFlag)
	return cmd
}

// parseIDFlag reads an id given on the command line. Extended JSON values
// such as {"$oid": "..."} or {"$numberLong": "7"} keep their BSON type; any
// other text is a string id.
func parseIDFlag(raw string) any {
	var doc struct {
		ID any `bson:"id"`
	}
	if err := bson.UnmarshalExtJSON([]byte(`{"id":`+raw+`}`), false, &doc); err == nil && doc.ID != nil {
		return doc.ID
	}
	return raw
}
