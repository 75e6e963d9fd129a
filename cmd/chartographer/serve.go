package main

import (
	"context"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/dusk-indust/chartographer/internal/mcptools"
	"github.com/dusk-indust/chartographer/internal/web"
)

func newServeCmd(g *globalFlags) *cobra.Command {
	var addr string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve sessions over HTTP (JSON API, event streams, MCP, metrics)",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			ws, err := openWorkspace(ctx, g)
			if err != nil {
				return err
			}
			defer ws.Close(context.WithoutCancel(ctx))

			srv := web.NewServer(ws, web.ServerConfig{Addr: addr, Logger: slog.Default()})
			return srv.ListenAndServe(ctx)
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "listen address (default: config server.addr)")
	return cmd
}

func newMCPCmd(g *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "mcp",
		Short: "Serve the call graph tools over MCP on stdin/stdout",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			ws, err := openWorkspace(ctx, g)
			if err != nil {
				return err
			}
			defer ws.Close(context.WithoutCancel(ctx))

			return mcptools.RunStdio(ctx, mcptools.NewCallGraphService(ws))
		},
	}
}
