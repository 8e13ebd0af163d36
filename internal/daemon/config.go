// Package daemon loads gdpnet's configuration and wires storage, the
// eligibility engine, the claim service and the HTTP API together.
package daemon

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"

	"github.com/gdp-network/gdpnet/internal/infra/neo4j"
	"github.com/gdp-network/gdpnet/internal/infra/postgres"
)

// Storage backends.
const (
	BackendSQLite   = "sqlite"
	BackendPostgres = "postgres"
	BackendMemory   = "memory"
)

// Config is the on-disk configuration at $GDPNET_HOME/config.toml.
type Config struct {
	API      APIConfig       `toml:"api"`
	Storage  StorageConfig   `toml:"storage"`
	Postgres postgres.Config `toml:"postgres"`
	Neo4j    neo4j.Config    `toml:"neo4j"`
	Rewards  RewardsConfig   `toml:"rewards"`
	Claims   ClaimsConfig    `toml:"claims"`
	Metrics  MetricsConfig   `toml:"metrics"`
	Tracing  TracingConfig   `toml:"tracing"`
}

type APIConfig struct {
	Host           string   `toml:"host"`
	Port           int      `toml:"port"`
	AllowedOrigins []string `toml:"allowed_origins"`
	RequestTimeout string   `toml:"request_timeout"`
}

// Addr returns host:port.
func (c APIConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

type StorageConfig struct {
	Backend string `toml:"backend"`  // sqlite | postgres | memory
	DataDir string `toml:"data_dir"` // sqlite only; defaults to Home()
}

type RewardsConfig struct {
	// SettingsFile, when set, is a YAML file that overrides the settings
	// stored in the backend.
	SettingsFile         string `toml:"settings_file"`
	ReconcileInterval    string `toml:"reconcile_interval"`
	ReconcileBatch       int    `toml:"reconcile_batch"`
	ReconcileConcurrency int    `toml:"reconcile_concurrency"`
}

type ClaimsConfig struct {
	RateLimitPerMinute int `toml:"rate_limit_per_minute"` // 0 disables
	Burst              int `toml:"burst"`
}

type MetricsConfig struct {
	Enabled bool `toml:"enabled"`
}

type TracingConfig struct {
	Enabled  bool `toml:"enabled"`
	MaxSpans int  `toml:"max_spans"`
}

// DefaultConfig returns the built-in defaults.
func DefaultConfig() Config {
	return Config{
		API: APIConfig{
			Host:           "127.0.0.1",
			Port:           8420,
			AllowedOrigins: []string{"*"},
			RequestTimeout: "30s",
		},
		Storage: StorageConfig{
			Backend: BackendSQLite,
		},
		Postgres: postgres.DefaultConfig(),
		Neo4j:    neo4j.DefaultConfig(),
		Rewards: RewardsConfig{
			ReconcileInterval:    "1m",
			ReconcileBatch:       500,
			ReconcileConcurrency: 4,
		},
		Claims: ClaimsConfig{
			RateLimitPerMinute: 30,
			Burst:              5,
		},
		Metrics: MetricsConfig{Enabled: true},
		Tracing: TracingConfig{Enabled: true, MaxSpans: 10000},
	}
}

// Home returns $GDPNET_HOME, or ~/.gdpnet.
func Home() string {
	if h := os.Getenv("GDPNET_HOME"); h != "" {
		return h
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return ".gdpnet"
	}
	return filepath.Join(home, ".gdpnet")
}

// ConfigPath returns the default config file location.
func ConfigPath() string {
	return filepath.Join(Home(), "config.toml")
}

// Load reads the config file at path (a missing file means defaults),
// then applies environment overrides. Variables in ./.env are loaded first
// without replacing ones already set.
func Load(path string) (Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return Config{}, fmt.Errorf("load .env: %w", err)
	}

	cfg := DefaultConfig()
	if path != "" {
		if _, err := toml.DecodeFile(path, &cfg); err != nil && !errors.Is(err, os.ErrNotExist) {
			return Config{}, fmt.Errorf("parse config %s: %w", path, err)
		}
	}
	if err := cfg.applyEnv(); err != nil {
		return Config{}, err
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Save writes cfg as TOML, creating the directory if needed.
func Save(path string, cfg Config) error {
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return fmt.Errorf("create config dir: %w", err)
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0600)
	if err != nil {
		return fmt.Errorf("open config: %w", err)
	}
	defer f.Close()
	if err := toml.NewEncoder(f).Encode(cfg); err != nil {
		return fmt.Errorf("encode config: %w", err)
	}
	return nil
}

func (c *Config) applyEnv() error {
	str := func(key string, dst *string) {
		if v, ok := os.LookupEnv(key); ok && v != "" {
			*dst = v
		}
	}
	integer := func(key string, dst *int) error {
		v, ok := os.LookupEnv(key)
		if !ok || v == "" {
			return nil
		}
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("%s: %w", key, err)
		}
		*dst = n
		return nil
	}

	str("GDPNET_HOST", &c.API.Host)
	if err := integer("GDPNET_PORT", &c.API.Port); err != nil {
		return err
	}
	str("GDPNET_STORAGE", &c.Storage.Backend)
	str("GDPNET_DATA_DIR", &c.Storage.DataDir)
	str("GDPNET_SETTINGS_FILE", &c.Rewards.SettingsFile)
	if v := os.Getenv("GDPNET_ALLOWED_ORIGINS"); v != "" {
		c.API.AllowedOrigins = strings.Split(v, ",")
	}

	str("POSTGRES_HOST", &c.Postgres.Host)
	if err := integer("POSTGRES_PORT", &c.Postgres.Port); err != nil {
		return err
	}
	str("POSTGRES_DB", &c.Postgres.Database)
	str("POSTGRES_USER", &c.Postgres.Username)
	str("POSTGRES_PASSWORD", &c.Postgres.Password)
	str("POSTGRES_SSLMODE", &c.Postgres.SSLMode)

	if v := os.Getenv("NEO4J_URI"); v != "" {
		c.Neo4j.URI = v
		c.Neo4j.Enabled = true
	}
	str("NEO4J_DATABASE", &c.Neo4j.Database)
	str("NEO4J_USERNAME", &c.Neo4j.Username)
	str("NEO4J_PASSWORD", &c.Neo4j.Password)
	return nil
}

// Validate checks the configuration.
func (c Config) Validate() error {
	switch c.Storage.Backend {
	case BackendSQLite, BackendMemory:
	case BackendPostgres:
		if err := c.Postgres.Validate(); err != nil {
			return err
		}
	default:
		return fmt.Errorf("storage.backend %q: want sqlite, postgres or memory", c.Storage.Backend)
	}
	if c.API.Port <= 0 || c.API.Port > 65535 {
		return fmt.Errorf("api.port %d out of range", c.API.Port)
	}
	if c.Neo4j.Enabled && c.Neo4j.URI == "" {
		return fmt.Errorf("neo4j.uri is required when neo4j is enabled")
	}
	if _, err := parseDuration(c.API.RequestTimeout, 30*time.Second); err != nil {
		return fmt.Errorf("api.request_timeout: %w", err)
	}
	if _, err := parseDuration(c.Rewards.ReconcileInterval, time.Minute); err != nil {
		return fmt.Errorf("rewards.reconcile_interval: %w", err)
	}
	if c.Claims.RateLimitPerMinute < 0 || c.Claims.Burst < 0 {
		return fmt.Errorf("claims rate limit must not be negative")
	}
	return nil
}

// DataDir returns the sqlite data directory.
func (c Config) DataDir() string {
	if c.Storage.DataDir != "" {
		return c.Storage.DataDir
	}
	return Home()
}

// parseDuration parses s, falling back to def when s is empty.
func parseDuration(s string, def time.Duration) (time.Duration, error) {
	if s == "" {
		return def, nil
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, err
	}
	if d <= 0 {
		return 0, fmt.Errorf("duration %q must be positive", s)
	}
	return d, nil
}
