package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/dusk-indust/chartographer/internal/workspace"
)

// version is set with -ldflags "-X main.version=..." at build time.
var version = "dev"

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	root := newRootCmd()
	if err := root.ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %s\n", err)
		os.Exit(1)
	}
}

// globalFlags are shared by every subcommand.
type globalFlags struct {
	root    string
	verbose bool
}

func newRootCmd() *cobra.Command {
	g := &globalFlags{}
	cmd := &cobra.Command{
		Use:           "chartographer",
		Short:         "Explore and visualize call graphs",
		Long:          "chartographer resolves the callers and callees of a function, recursively and concurrently, and renders the result as a graph.",
		SilenceErrors: true,
		SilenceUsage:  true,
		PersistentPreRun: func(cmd *cobra.Command, _ []string) {
			slog.SetDefault(newLogger(cmd.ErrOrStderr(), g.verbose))
		},
	}
	cmd.PersistentFlags().StringVar(&g.root, "root", ".", "workspace root directory")
	cmd.PersistentFlags().BoolVarP(&g.verbose, "verbose", "v", false, "enable debug logging")

	cmd.AddCommand(
		newExploreCmd(g),
		newServeCmd(g),
		newMCPCmd(g),
		newSessionsCmd(g),
		newVersionCmd(),
	)
	return cmd
}

// newLogger writes text logs to w; warnings and errors only unless verbose.
func newLogger(w io.Writer, verbose bool) *slog.Logger {
	level := slog.LevelWarn
	if verbose {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: level}))
}

func openWorkspace(ctx context.Context, g *globalFlags) (*workspace.Workspace, error) {
	ws, err := workspace.Open(ctx, workspace.Options{Root: g.root, Logger: slog.Default()})
	if err != nil {
		return nil, fmt.Errorf("opening workspace %s: %w", g.root, err)
	}
	return ws, nil
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintln(cmd.OutOrStdout(), version)
		},
	}
}
