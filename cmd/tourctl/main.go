// Command tourctl runs maintenance tasks against the tour database with the
// same configuration as the server.
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

	"github.com/playperu/tourcast/internal/app"
	"github.com/playperu/tourcast/internal/config"
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := newRootCmd(os.Stdout, os.Stderr).ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func newRootCmd(stdout, stderr io.Writer) *cobra.Command {
	root := &cobra.Command{
		Use:           "tourctl",
		Short:         "Tour authoring maintenance",
		Long:          `Manage users, teams, tours and versions directly, bypassing the HTTP API.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.SetOut(stdout)
	root.SetErr(stderr)

	root.AddCommand(
		migrateCmd(),
		userCmd(),
		teamCmd(),
		tourCmd(),
		versionCmd(),
	)
	return root
}

// withApp loads the configuration, opens every backend and runs fn.
func withApp(fn func(ctx context.Context, cmd *cobra.Command, a *app.App, args []string) error) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load()
		if err != nil {
			return fmt.Errorf("loading config: %w", err)
		}
		logger := slog.New(slog.NewJSONHandler(cmd.ErrOrStderr(), &slog.HandlerOptions{
			Level: cfg.LogLevel,
		}))

		ctx := cmd.Context()
		a, err := app.New(ctx, cfg, logger)
		if err != nil {
			return err
		}
		defer a.Close()
		return fn(ctx, cmd, a, args)
	}
}

func migrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply database migrations",
		Args:  cobra.NoArgs,
		// Migrations run while the app is opened.
		RunE: withApp(func(_ context.Context, cmd *cobra.Command, a *app.App, _ []string) error {
			fmt.Fprintf(cmd.OutOrStdout(), "database %s is up to date\n", a.Config.DBPath)
			return nil
		}),
	}
}
