package main

import (
	"context"
	"fmt"

	"github.com/smallnest/graphrag/config"
	"github.com/spf13/cobra"
)

func (a *app) deleteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "delete <document-id>...",
		Short: "Remove documents and everything extracted from them",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.run(cmd, func(ctx context.Context, rt *config.Runtime) error {
				for _, id := range args {
					if err := rt.Engine.DeleteDocument(ctx, id); err != nil {
						return err
					}
					fmt.Fprintf(cmd.OutOrStdout(), "deleted %s\n", id)
				}
				return nil
			})
		},
	}
}
