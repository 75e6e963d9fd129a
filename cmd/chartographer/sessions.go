package main

import (
	"context"
	"encoding/json"
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/dusk-indust/chartographer/internal/export"
)

func newSessionsCmd(g *globalFlags) *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "sessions",
		Short: "List sessions saved in the workspace store",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			ws, err := openWorkspace(ctx, g)
			if err != nil {
				return err
			}
			defer ws.Close(context.WithoutCancel(ctx))

			saved, err := ws.SavedSessions(ctx)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if asJSON {
				enc := json.NewEncoder(out)
				enc.SetIndent("", "  ")
				return enc.Encode(saved)
			}
			if len(saved) == 0 {
				fmt.Fprintln(out, "No saved sessions.")
				return nil
			}
			tw := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
			fmt.Fprintln(tw, "ID\tTITLE\tDIRECTION\tNODES\tEDGES\tUPDATED")
			for _, s := range saved {
				fmt.Fprintf(tw, "%s\t%s\t%s\t%d\t%d\t%s\n",
					s.ID, s.Title, s.Direction, s.Nodes, s.Edges, s.UpdatedAt.Local().Format(time.DateTime))
			}
			return tw.Flush()
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "print as JSON")

	cmd.AddCommand(newSessionsExportCmd(g), newSessionsDeleteCmd(g))
	return cmd
}

func newSessionsExportCmd(g *globalFlags) *cobra.Command {
	var format string
	cmd := &cobra.Command{
		Use:   "export <id>",
		Short: "Write a saved session as Mermaid or JSON",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			ws, err := openWorkspace(ctx, g)
			if err != nil {
				return err
			}
			defer ws.Close(context.WithoutCancel(ctx))

			sess, err := ws.RestoreSession(ctx, args[0])
			if err != nil {
				return err
			}
			return export.Write(cmd.OutOrStdout(), format, sess.Snapshot())
		},
	}
	cmd.Flags().StringVar(&format, "format", export.FormatMermaid, "output format: mermaid|json")
	return cmd
}

func newSessionsDeleteCmd(g *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "delete <id>",
		Short: "Remove a saved session",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			ws, err := openWorkspace(ctx, g)
			if err != nil {
				return err
			}
			defer ws.Close(context.WithoutCancel(ctx))

			return ws.DeleteSaved(ctx, args[0])
		},
	}
}
