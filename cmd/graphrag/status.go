package main

import (
	"context"
	"fmt"

	"github.com/smallnest/graphrag/config"
	"github.com/smallnest/graphrag/rag"
	"github.com/spf13/cobra"
)

var allStatuses = []rag.DocStatus{
	rag.StatusPending, rag.StatusChunking, rag.StatusExtracting,
	rag.StatusIndexing, rag.StatusProcessed, rag.StatusFailed,
}

func parseStatus(s string) (rag.DocStatus, error) {
	for _, st := range allStatuses {
		if string(st) == s {
			return st, nil
		}
	}
	return "", fmt.Errorf("unknown document status %q", s)
}

func (a *app) statusCmd() *cobra.Command {
	var states []string
	cmd := &cobra.Command{
		Use:   "status [document-id]...",
		Short: "Show document processing state",
		Long:  "Without arguments lists every document, optionally filtered by --state.",
		RunE: func(cmd *cobra.Command, args []string) error {
			filter := allStatuses
			if len(states) > 0 {
				filter = nil
				for _, s := range states {
					st, err := parseStatus(s)
					if err != nil {
						return err
					}
					filter = append(filter, st)
				}
			}
			return a.run(cmd, func(ctx context.Context, rt *config.Runtime) error {
				var docs []rag.DocumentStatus
				if len(args) > 0 {
					for _, id := range args {
						st, err := rt.Engine.Status(ctx, id)
						if err != nil {
							return err
						}
						docs = append(docs, *st)
					}
				} else {
					for _, s := range filter {
						list, err := rt.Engine.List(ctx, s)
						if err != nil {
							return err
						}
						docs = append(docs, list...)
					}
				}
				return printStatuses(cmd.OutOrStdout(), docs, a.flags.jsonOutput)
			})
		},
	}
	cmd.Flags().StringSliceVarP(&states, "state", "s", nil, "only list documents in these states")
	return cmd
}
