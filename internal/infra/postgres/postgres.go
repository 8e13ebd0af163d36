// Package postgres is the server store: the same tables as the embedded
// store on PostgreSQL via pgxpool, with goose-managed migrations.
package postgres

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"io"
	"log/slog"
	"net/url"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	_ "github.com/jackc/pgx/v5/stdlib" // Register pgx driver with database/sql
	"github.com/pressly/goose/v3"

	"github.com/gdp-network/gdpnet/internal/domain"
)

//go:embed migrations/*.sql
var embedMigrations embed.FS

// Config holds the PostgreSQL connection settings.
type Config struct {
	Host          string `toml:"host"`
	Port          int    `toml:"port"`
	Database      string `toml:"database"`
	Username      string `toml:"username"`
	Password      string `toml:"password"`
	SSLMode       string `toml:"sslmode"`
	MaxConns      int32  `toml:"max_conns"`
	RunMigrations bool   `toml:"run_migrations"`
}

// DefaultConfig returns local development defaults.
func DefaultConfig() Config {
	return Config{
		Host:          "localhost",
		Port:          5432,
		Database:      "gdpnet",
		Username:      "gdpnet",
		SSLMode:       "disable",
		MaxConns:      10,
		RunMigrations: true,
	}
}

// Validate checks required fields.
func (c Config) Validate() error {
	switch {
	case c.Host == "":
		return fmt.Errorf("postgres host is required")
	case c.Database == "":
		return fmt.Errorf("postgres database is required")
	case c.Username == "":
		return fmt.Errorf("postgres username is required")
	}
	return nil
}

// ConnString renders the config as a postgres:// URL.
func (c Config) ConnString() string {
	u := url.URL{
		Scheme:   "postgres",
		User:     url.UserPassword(c.Username, c.Password),
		Host:     fmt.Sprintf("%s:%d", c.Host, c.Port),
		Path:     "/" + c.Database,
		RawQuery: "sslmode=" + c.SSLMode,
	}
	return u.String()
}

// Store implements domain.Store on PostgreSQL.
type Store struct {
	pool *pgxpool.Pool
	log  *slog.Logger
	now  func() time.Time
}

var (
	_ domain.Store      = (*Store)(nil)
	_ domain.UserWriter = (*Store)(nil)
)

// Open connects a pool, optionally runs migrations, and pings.
func Open(ctx context.Context, cfg Config, log *slog.Logger) (*Store, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return OpenURL(ctx, cfg.ConnString(), cfg.MaxConns, cfg.RunMigrations, log)
}

// OpenURL is Open with a ready connection string.
func OpenURL(ctx context.Context, connStr string, maxConns int32, migrate bool, log *slog.Logger) (*Store, error) {
	if log == nil {
		log = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	if migrate {
		if err := Migrate(ctx, connStr, log); err != nil {
			return nil, err
		}
	}

	poolConfig, err := pgxpool.ParseConfig(connStr)
	if err != nil {
		return nil, fmt.Errorf("failed to parse postgres config: %w", err)
	}
	if maxConns > 0 {
		poolConfig.MaxConns = maxConns
	}
	poolConfig.MinConns = 1
	poolConfig.MaxConnLifetime = time.Hour
	poolConfig.MaxConnIdleTime = 30 * time.Minute

	connectCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	pool, err := pgxpool.NewWithConfig(connectCtx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create postgres pool: %w", err)
	}
	if err := pool.Ping(connectCtx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping postgres: %w", err)
	}
	log.Info("postgres: connected", "host", poolConfig.ConnConfig.Host, "database", poolConfig.ConnConfig.Database)
	return &Store{pool: pool, log: log, now: time.Now}, nil
}

// Migrate applies the embedded goose migrations.
func Migrate(ctx context.Context, connStr string, log *slog.Logger) error {
	db, err := sql.Open("pgx", connStr)
	if err != nil {
		return fmt.Errorf("failed to open database for migrations: %w", err)
	}
	defer db.Close()

	goose.SetBaseFS(embedMigrations)
	if err := goose.SetDialect("postgres"); err != nil {
		return fmt.Errorf("failed to set goose dialect: %w", err)
	}
	if err := goose.UpContext(ctx, db, "migrations"); err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}
	if log != nil {
		log.Info("postgres: migrations applied")
	}
	return nil
}

// Close closes the pool.
func (s *Store) Close() error {
	if s != nil && s.pool != nil {
		s.pool.Close()
	}
	return nil
}

// Ping checks the connection.
func (s *Store) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}
