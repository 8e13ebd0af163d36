// Package cli implements the gdpnet command line.
package cli

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/gdp-network/gdpnet/internal/daemon"
	"github.com/gdp-network/gdpnet/internal/logger"
)

var (
	configPath string
	verbose    bool

	output io.Writer = os.Stdout
)

var rootCmd = &cobra.Command{
	Use:   "gdpnet",
	Short: "Referral reward eligibility and claims",
	Long: `gdpnet evaluates members of the GDP referral network against the
reward tiers (130% to 1000%) and settles claims exactly once per tier.

Configuration is read from $GDPNET_HOME/config.toml; environment variables
(GDPNET_*, POSTGRES_*, NEO4J_*) and a local .env file override it.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "config file (default $GDPNET_HOME/config.toml)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "debug logging")
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

func newLogger() *slog.Logger {
	return logger.New(verbose)
}

func loadConfig() (daemon.Config, error) {
	path := configPath
	if path == "" {
		path = daemon.ConfigPath()
	}
	return daemon.Load(path)
}

// openDaemon loads the config and wires the components. The caller closes
// the daemon.
func openDaemon(ctx context.Context) (*daemon.Daemon, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	d, err := daemon.New(ctx, cfg, newLogger())
	if err != nil {
		return nil, fmt.Errorf("start: %w", err)
	}
	return d, nil
}

func stdout(format string, args ...any) {
	fmt.Fprintf(output, format, args...)
}
