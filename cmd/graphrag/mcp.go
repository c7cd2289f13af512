package main

import (
	"context"

	"github.com/smallnest/graphrag/adapter/mcp"
	"github.com/smallnest/graphrag/config"
	"github.com/spf13/cobra"
)

func (a *app) mcpCmd() *cobra.Command {
	var (
		addr     string
		readOnly bool
	)
	cmd := &cobra.Command{
		Use:   "mcp",
		Short: "Serve the knowledge base over the Model Context Protocol",
		Long:  "Serves over stdio by default, or streamable HTTP with --http.",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return a.run(cmd, func(ctx context.Context, rt *config.Runtime) error {
				defaults, err := rt.Config.QueryParam("")
				if err != nil {
					return err
				}
				opts := []mcp.Option{mcp.WithDefaults(defaults), mcp.WithLogger(rt.Logger)}
				if readOnly {
					opts = append(opts, mcp.WithReadOnly())
				}
				srv, err := mcp.NewServer(rt.Engine, opts...)
				if err != nil {
					return err
				}
				if addr != "" {
					return srv.RunHTTP(ctx, addr)
				}
				return srv.Run(ctx)
			})
		},
	}
	cmd.Flags().StringVar(&addr, "http", "", "listen address for streamable HTTP, e.g. :8080")
	cmd.Flags().BoolVar(&readOnly, "read-only", false, "expose only the query and status tools")
	return cmd
}
