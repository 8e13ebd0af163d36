// Package sqlite is the embedded store: members, claim records, the reward
// ledger and reward settings in one WAL-mode database file.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"github.com/gdp-network/gdpnet/internal/domain"
)

// FileName is the database file created inside the data directory.
const FileName = "gdpnet.db"

// timeLayout is fixed-width so that text comparison orders timestamps.
const timeLayout = "2006-01-02T15:04:05.000000000Z"

// DB wraps the sqlite handle.
type DB struct {
	db  *sql.DB
	now func() time.Time
}

var (
	_ domain.Store      = (*DB)(nil)
	_ domain.UserWriter = (*DB)(nil)
)

// Open opens (creating if needed) the database under dir and migrates it.
// Write transactions take the lock up front (BEGIN IMMEDIATE) so that two
// claimers never both read "absent" and then race to upgrade.
func Open(dir string) (*DB, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create data dir: %w", err)
	}
	dsn := "file:" + filepath.Join(dir, FileName) +
		"?_txlock=immediate" +
		"&_pragma=busy_timeout(5000)" +
		"&_pragma=journal_mode(WAL)" +
		"&_pragma=foreign_keys(1)"

	sqlDB, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	db := &DB{db: sqlDB, now: time.Now}
	if err := db.migrate(context.Background()); err != nil {
		sqlDB.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return db, nil
}

// Close releases database resources.
func (db *DB) Close() error {
	if db == nil || db.db == nil {
		return nil
	}
	return db.db.Close()
}

// Ping checks the connection.
func (db *DB) Ping(ctx context.Context) error {
	return db.db.PingContext(ctx)
}

// ─── Schema ─────────────────────────────────────────────────────────────────

// Migrations returns the schema statements. Each string is a single SQL
// statement (SQLite executes one at a time).
func Migrations() []string {
	return []string{
		`CREATE TABLE IF NOT EXISTS users (
			id             TEXT PRIMARY KEY,
			role           TEXT NOT NULL DEFAULT 'member',
			value          REAL NOT NULL DEFAULT 0,
			parent_id      TEXT REFERENCES users(id),
			investment     TEXT NOT NULL DEFAULT '0',
			claimed_130    INTEGER NOT NULL DEFAULT 0,
			claimed_150    INTEGER NOT NULL DEFAULT 0,
			claimed_200    INTEGER NOT NULL DEFAULT 0,
			claimed_300    INTEGER NOT NULL DEFAULT 0,
			claimed_500    INTEGER NOT NULL DEFAULT 0,
			claimed_1000   INTEGER NOT NULL DEFAULT 0,
			reward_claimed INTEGER NOT NULL DEFAULT 0,
			created_at     TEXT NOT NULL DEFAULT (datetime('now'))
		)`,
		`CREATE INDEX IF NOT EXISTS idx_users_parent ON users(parent_id)`,

		// Claim records. seq is the store-assigned tiebreaker.
		`CREATE TABLE IF NOT EXISTS claims (
			seq        INTEGER PRIMARY KEY AUTOINCREMENT,
			id         TEXT NOT NULL UNIQUE,
			user_id    TEXT NOT NULL REFERENCES users(id),
			tier_id    INTEGER NOT NULL,
			claimed_at TEXT NOT NULL,
			amount     TEXT NOT NULL DEFAULT '0',
			UNIQUE(user_id, tier_id)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_claims_user ON claims(user_id, claimed_at, seq)`,

		`CREATE TABLE IF NOT EXISTS ledger_entries (
			id         TEXT PRIMARY KEY,
			claim_id   TEXT NOT NULL UNIQUE,
			account    TEXT NOT NULL,
			tx_type    TEXT NOT NULL,
			entry_type TEXT NOT NULL,
			amount     TEXT NOT NULL,
			reason     INTEGER NOT NULL,
			created_at TEXT NOT NULL,
			matures_at TEXT NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_ledger_account ON ledger_entries(account)`,

		// Single-row settings table.
		`CREATE TABLE IF NOT EXISTS reward_settings (
			id                    INTEGER PRIMARY KEY CHECK (id = 1),
			percentage            REAL NOT NULL,
			investment_percentage REAL NOT NULL,
			investment_term       INTEGER NOT NULL,
			gdp_reward_percentage REAL NOT NULL,
			updated_at            TEXT NOT NULL DEFAULT (datetime('now'))
		)`,
	}
}

func (db *DB) migrate(ctx context.Context) error {
	for _, stmt := range Migrations() {
		if _, err := db.db.ExecContext(ctx, stmt); err != nil {
			return err
		}
	}
	return nil
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(timeLayout)
}

func parseTime(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, nil
	}
	return time.Parse(timeLayout, s)
}
