package domain

import (
	"context"

	"github.com/shopspring/decimal"
)

// ─── Service Interfaces ─────────────────────────────────────────────────────
// These interfaces define boundaries between layers.
// Infrastructure implements them; the application layer depends on them.

// SnapshotProvider returns a point-in-time view of a user's descendants.
type SnapshotProvider interface {
	Snapshot(ctx context.Context, userID string, maxDepth int) (*NetworkSnapshot, error)
}

// UserStore looks up members.
type UserStore interface {
	User(ctx context.Context, userID string) (*User, error)
}

// UserWriter is implemented by stores that own the member table. The
// referral graph store is read-only to the engine and does not implement it.
type UserWriter interface {
	UpsertUser(ctx context.Context, u User) error
}

// SettingsStore is a read-only source of reward settings.
type SettingsStore interface {
	RewardSettings(ctx context.Context) (RewardSettings, error)
}

// ClaimStore persists claim records keyed by (UserID, TierID).
type ClaimStore interface {
	// CreateIfAbsent atomically inserts rec and sets the user's denormalized
	// flags. created is false when a record already exists for the key, in
	// which case the existing record is returned.
	CreateIfAbsent(ctx context.Context, rec ClaimRecord) (created bool, stored ClaimRecord, err error)

	// Get returns ErrClaimNotFound when no record exists.
	Get(ctx context.Context, userID string, tierID TierID) (*ClaimRecord, error)

	// ListByUser returns the user's records ordered by (ClaimedAt, Seq).
	ListByUser(ctx context.Context, userID string) ([]ClaimRecord, error)

	// PendingCredits returns records with no ledger entry yet.
	PendingCredits(ctx context.Context, limit int) ([]ClaimRecord, error)
}

// Ledger is the reward ledger. Credit must be idempotent per ClaimID.
type Ledger interface {
	Credit(ctx context.Context, entry LedgerEntry) error
	Balance(ctx context.Context, account string) (decimal.Decimal, error)
}

// Store bundles everything one backend provides.
type Store interface {
	SnapshotProvider
	UserStore
	SettingsStore
	ClaimStore
	Ledger
	Close() error
}
