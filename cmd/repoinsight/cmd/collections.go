package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newCollectionsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "collections",
		Short: "Administer vector collections",
	}
	cmd.AddCommand(newCollectionsListCmd())
	cmd.AddCommand(newCollectionsDeleteCmd())
	return cmd
}

func newCollectionsListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List stored collections with chunk counts",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, cleanup, err := buildApp()
			if err != nil {
				return err
			}
			defer cleanup()

			ctx := cmd.Context()
			names, err := a.vectors.ListCollections(ctx)
			if err != nil {
				return err
			}
			for _, name := range names {
				count, err := a.vectors.Count(ctx, name)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%s\t%d\n", name, count)
			}
			return nil
		},
	}
}

// Deleting a collection is the explicit admin action that allows a
// clean re-ingest of a repository.
func newCollectionsDeleteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "delete <repository-identifier>",
		Short: "Delete one collection and its stored chunks",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, cleanup, err := buildApp()
			if err != nil {
				return err
			}
			defer cleanup()

			if err := a.vectors.DeleteCollection(cmd.Context(), args[0]); err != nil {
				return err
			}
			a.bm25Cache.Invalidate(args[0])
			fmt.Fprintf(cmd.OutOrStdout(), "deleted %s\n", args[0])
			return nil
		},
	}
}
