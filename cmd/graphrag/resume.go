package main

import (
	"context"
	"fmt"

	"github.com/smallnest/graphrag/config"
	"github.com/spf13/cobra"
)

func (a *app) resumeCmd() *cobra.Command {
	var includeFailed bool
	cmd := &cobra.Command{
		Use:   "resume",
		Short: "Process pending and interrupted documents",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return a.run(cmd, func(ctx context.Context, rt *config.Runtime) error {
				results, err := rt.Engine.Resume(ctx, includeFailed)
				if perr := printResults(cmd.OutOrStdout(), results, a.flags.jsonOutput); perr != nil {
					return perr
				}
				if err != nil {
					return err
				}
				if n := failures(results); n > 0 {
					return fmt.Errorf("%d of %d documents failed", n, len(results))
				}
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&includeFailed, "include-failed", false, "retry failed documents too")
	return cmd
}
