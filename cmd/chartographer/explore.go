package main

import (
	"context"
	"fmt"
	"slices"
	"time"

	"github.com/spf13/cobra"

	"github.com/dusk-indust/chartographer/internal/callgraph"
	"github.com/dusk-indust/chartographer/internal/export"
	"github.com/dusk-indust/chartographer/internal/workspace"
)

type exploreFlags struct {
	direction string
	file      string
	line      int
	character int
	symbol    string
	depth     int
	format    string
	title     string
	save      bool
}

func newExploreCmd(g *globalFlags) *cobra.Command {
	f := &exploreFlags{}
	cmd := &cobra.Command{
		Use:   "explore",
		Short: "Explore the call graph of a function and print it",
		Long: "Resolves the function at --file/--line/--character (or named by --symbol), explores its\n" +
			"callers, callees, or both, and writes the graph to stdout as Mermaid or JSON.",
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runExplore(cmd, g, f)
		},
	}
	cmd.Flags().StringVarP(&f.direction, "direction", "d", "both", "incoming|outgoing|both")
	cmd.Flags().StringVarP(&f.file, "file", "f", "", "source file containing the entry function")
	cmd.Flags().IntVarP(&f.line, "line", "l", 0, "zero-based line of the entry function")
	cmd.Flags().IntVarP(&f.character, "character", "c", 0, "zero-based column of the entry function")
	cmd.Flags().StringVarP(&f.symbol, "symbol", "s", "", "entry function name (or Type.method)")
	cmd.Flags().IntVar(&f.depth, "depth", -1, "maximum depth; negative means unlimited (default: config maxDepth)")
	cmd.Flags().StringVar(&f.format, "format", export.FormatMermaid, "output format: mermaid|json")
	cmd.Flags().StringVar(&f.title, "title", "", "session title")
	cmd.Flags().BoolVar(&f.save, "save", false, "save the session to the workspace store")
	return cmd
}

func runExplore(cmd *cobra.Command, g *globalFlags, f *exploreFlags) error {
	if f.file == "" && f.symbol == "" {
		return fmt.Errorf("one of --file or --symbol is required")
	}
	if !slices.Contains(export.Formats, f.format) {
		return fmt.Errorf("unknown format %q (want mermaid or json)", f.format)
	}
	dir, err := callgraph.ParseDirection(f.direction)
	if err != nil {
		return err
	}

	ctx := cmd.Context()
	ws, err := openWorkspace(ctx, g)
	if err != nil {
		return err
	}
	defer ws.Close(context.WithoutCancel(ctx))

	req := workspace.OpenRequest{
		File:      f.file,
		Position:  callgraph.Position{Line: f.line, Character: f.character},
		Symbol:    f.symbol,
		Direction: dir,
		Title:     f.title,
	}
	if cmd.Flags().Changed("depth") {
		req.MaxDepth = &f.depth
	}

	start := time.Now()
	sess, err := ws.OpenSession(ctx, req)
	if err != nil {
		return err
	}
	stats, err := sess.Explore(ctx)
	if err != nil {
		return fmt.Errorf("exploring: %w", err)
	}

	counts := sess.Model().Counts()
	fmt.Fprintf(cmd.ErrOrStderr(), "Explored %s (%s): %d functions, %d files, %d edges, %d errors in %s\n",
		sess.Info().Title, dir, counts.Functions, counts.Files, counts.Edges, stats.Errors,
		time.Since(start).Round(time.Millisecond))

	if f.save {
		info, err := ws.SaveSession(ctx, sess.ID())
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.ErrOrStderr(), "Saved session %s\n", info.ID)
	}

	return export.Write(cmd.OutOrStdout(), f.format, sess.Snapshot())
}
