package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// ─── Claim Types ────────────────────────────────────────────────────────────

// ClaimState is the per (user, tier) claim state. Claimed is terminal.
type ClaimState int

const (
	StateUnclaimed ClaimState = iota
	StateClaimed
)

// Label is the display label. "unclaimed" is informational only; there is
// no transition back from StateClaimed.
func (s ClaimState) Label() string {
	if s == StateClaimed {
		return "claimed"
	}
	return "unclaimed"
}

// StateOf returns the claim state implied by an optional record.
func StateOf(rec *ClaimRecord) ClaimState {
	if rec == nil {
		return StateUnclaimed
	}
	return StateClaimed
}

// ClaimRecord is created exactly once per (UserID, TierID) and never mutated.
// Seq is assigned by the store and breaks ClaimedAt ties within a user.
type ClaimRecord struct {
	ID        string          `json:"id"`
	UserID    string          `json:"user_id"`
	TierID    TierID          `json:"tier_id"`
	ClaimedAt time.Time       `json:"claimed_at"`
	Seq       int64           `json:"seq"`
	Amount    decimal.Decimal `json:"amount"`
}

// Before orders records within one user's history.
func (r ClaimRecord) Before(o ClaimRecord) bool {
	if !r.ClaimedAt.Equal(o.ClaimedAt) {
		return r.ClaimedAt.Before(o.ClaimedAt)
	}
	return r.Seq < o.Seq
}
