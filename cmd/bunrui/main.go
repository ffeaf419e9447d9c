package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/ashita-ai/bunrui"
	"github.com/ashita-ai/bunrui/internal/config"
	"github.com/ashita-ai/bunrui/internal/storage"
	"github.com/ashita-ai/bunrui/internal/telemetry"
	"github.com/ashita-ai/bunrui/migrations"
)

// version is set at build time via -ldflags.
var version = "dev"

func main() {
	// Load .env file if present (non-fatal; production won't have one).
	_ = godotenv.Load()

	logger := telemetry.NewLogger(os.Stdout, os.Getenv("BUNRUI_LOG_LEVEL"))
	slog.SetDefault(logger)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := newRootCmd(logger).ExecuteContext(ctx); err != nil {
		logger.Error("fatal error", "error", err)
		cancel()
		os.Exit(1)
	}
}

func newRootCmd(logger *slog.Logger) *cobra.Command {
	var storageKind string

	root := &cobra.Command{
		Use:           "bunrui",
		Short:         "Website domain categorization and usage accounting service",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&storageKind, "storage", "", "storage backend override: postgres|sqlite|memory")

	loadApp := func(cmd *cobra.Command, extra ...bunrui.Option) (*bunrui.App, error) {
		opts := []bunrui.Option{bunrui.WithLogger(logger), bunrui.WithVersion(version)}
		if storageKind != "" {
			opts = append(opts, bunrui.WithStorage(storageKind))
		}
		return bunrui.New(cmd.Context(), append(opts, extra...)...)
	}

	root.AddCommand(newServeCmd(loadApp))
	root.AddCommand(newMigrateCmd(logger))
	root.AddCommand(newClassifyCmd(loadApp))
	root.AddCommand(newUsageCmd(loadApp))
	return root
}

type appLoader func(cmd *cobra.Command, extra ...bunrui.Option) (*bunrui.App, error)

func newServeCmd(loadApp appLoader) *cobra.Command {
	var port int
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP and MCP server",
		RunE: func(cmd *cobra.Command, _ []string) error {
			app, err := loadApp(cmd, bunrui.WithPort(port))
			if err != nil {
				return err
			}
			return app.Run(cmd.Context())
		},
	}
	cmd.Flags().IntVar(&port, "port", 0, "listen port (overrides BUNRUI_PORT)")
	return cmd
}

func newMigrateCmd(logger *slog.Logger) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply the embedded Postgres migrations and exit",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load()
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			db, err := storage.New(cmd.Context(), cfg.DatabaseURL, logger)
			if err != nil {
				return err
			}
			defer func() { _ = db.Close(context.Background()) }()
			if err := db.RunMigrations(cmd.Context(), migrations.FS); err != nil {
				return err
			}
			logger.Info("migrations applied")
			return nil
		},
	}
}

func newClassifyCmd(loadApp appLoader) *cobra.Command {
	return &cobra.Command{
		Use:   "classify DOMAIN...",
		Short: "Resolve categories for domains and print them as JSON",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := loadApp(cmd)
			if err != nil {
				return err
			}
			defer app.Close(context.Background())
			return printJSON(cmd, app.Categorize(cmd.Context(), args))
		},
	}
}

func newUsageCmd(loadApp appLoader) *cobra.Command {
	return &cobra.Command{
		Use:   "usage",
		Short: "Print the per-user usage ledger as JSON",
		RunE: func(cmd *cobra.Command, _ []string) error {
			app, err := loadApp(cmd)
			if err != nil {
				return err
			}
			defer app.Close(context.Background())
			ledger, err := app.Usage(cmd.Context())
			if err != nil {
				return err
			}
			return printJSON(cmd, ledger)
		},
	}
}

func printJSON(cmd *cobra.Command, v any) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
