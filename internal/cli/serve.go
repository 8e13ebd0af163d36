package cli

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/gdp-network/gdpnet/internal/daemon"
	"github.com/gdp-network/gdpnet/internal/infra/postgres"
	"github.com/gdp-network/gdpnet/internal/infra/sqlite"
)

func init() {
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(migrateCmd)
	rootCmd.AddCommand(initCmd)
}

// ─── serve ──────────────────────────────────────────────────────────────────

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API and the credit reconciler",
	RunE:  runServe,
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	d, err := openDaemon(ctx)
	if err != nil {
		return err
	}
	defer d.Close()
	return d.Serve(ctx)
}

// ─── migrate ────────────────────────────────────────────────────────────────

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply storage migrations",
	Long: `Apply schema migrations for the configured backend. The sqlite store
migrates on open; for postgres this runs the embedded goose migrations.`,
	RunE: runMigrate,
}

func runMigrate(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	switch cfg.Storage.Backend {
	case daemon.BackendPostgres:
		if err := postgres.Migrate(cmd.Context(), cfg.Postgres.ConnString(), newLogger()); err != nil {
			return err
		}
		stdout("✅ postgres %s/%s migrated\n", cfg.Postgres.Host, cfg.Postgres.Database)
	case daemon.BackendSQLite:
		db, err := sqlite.Open(cfg.DataDir())
		if err != nil {
			return err
		}
		defer db.Close()
		stdout("✅ sqlite %s migrated\n", cfg.DataDir())
	default:
		stdout("Nothing to migrate for the %s backend.\n", cfg.Storage.Backend)
	}
	return nil
}

// ─── init ───────────────────────────────────────────────────────────────────

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Write a default config file",
	RunE:  runInit,
}

func runInit(cmd *cobra.Command, args []string) error {
	path := configPath
	if path == "" {
		path = daemon.ConfigPath()
	}
	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("%s already exists", path)
	}
	if err := daemon.Save(path, daemon.DefaultConfig()); err != nil {
		return err
	}
	stdout("✅ Wrote %s\n", path)
	return nil
}

