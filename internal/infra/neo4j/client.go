// Package neo4j serves network snapshots from a referral graph in Neo4j,
// where (:User)-[:REFERRED_BY]->(:User) points from child to parent.
// The client is read-only; the graph is owned by the enrollment system.
package neo4j

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
)

// DefaultDatabase is the database used when none is configured.
const DefaultDatabase = "neo4j"

// Config holds connection settings.
type Config struct {
	Enabled  bool   `toml:"enabled"`
	URI      string `toml:"uri"`
	Database string `toml:"database"`
	Username string `toml:"username"`
	Password string `toml:"password"`
}

// DefaultConfig returns local defaults with the provider disabled.
func DefaultConfig() Config {
	return Config{
		URI:      "bolt://localhost:7687",
		Database: DefaultDatabase,
		Username: "neo4j",
	}
}

// Client wraps a driver with a fixed database and read access mode.
type Client struct {
	driver   neo4j.DriverWithContext
	database string
	log      *slog.Logger
}

// NewReadOnlyClient connects and verifies connectivity.
func NewReadOnlyClient(ctx context.Context, log *slog.Logger, cfg Config) (*Client, error) {
	if log == nil {
		log = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	if cfg.Database == "" {
		cfg.Database = DefaultDatabase
	}
	driver, err := neo4j.NewDriverWithContext(cfg.URI, neo4j.BasicAuth(cfg.Username, cfg.Password, ""))
	if err != nil {
		return nil, fmt.Errorf("create neo4j driver: %w", err)
	}

	verifyCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := driver.VerifyConnectivity(verifyCtx); err != nil {
		driver.Close(ctx)
		return nil, fmt.Errorf("neo4j connectivity: %w", err)
	}

	log.Info("neo4j: connected (read-only)", "uri", cfg.URI, "database", cfg.Database)
	return &Client{driver: driver, database: cfg.Database, log: log}, nil
}

// Session opens a read session.
func (c *Client) Session(ctx context.Context) neo4j.SessionWithContext {
	return c.driver.NewSession(ctx, neo4j.SessionConfig{
		DatabaseName: c.database,
		AccessMode:   neo4j.AccessModeRead,
	})
}

// Close closes the driver.
func (c *Client) Close(ctx context.Context) error {
	if c == nil || c.driver == nil {
		return nil
	}
	return c.driver.Close(ctx)
}
