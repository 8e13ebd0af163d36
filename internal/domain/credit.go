package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// ─── Credit Types ───────────────────────────────────────────────────────────
// The reward ledger is external to the engine. A credit is keyed by the claim
// it settles so that re-crediting the same claim is a no-op.

// EntryType represents the accounting side of a ledger entry.
type EntryType string

const (
	EntryDebit  EntryType = "DEBIT"
	EntryCredit EntryType = "CREDIT"
)

// TransactionType represents the business reason for a ledger entry.
type TransactionType string

const (
	TxReward TransactionType = "REWARD"
	TxBonus  TransactionType = "BONUS"
)

// LedgerEntry is a single credit to a member's reward account.
type LedgerEntry struct {
	ID        string          `json:"id"`
	ClaimID   string          `json:"claim_id"`
	Timestamp time.Time       `json:"timestamp"`
	Type      TransactionType `json:"type"`
	EntryType EntryType       `json:"entry_type"`
	Account   string          `json:"account"`
	Amount    decimal.Decimal `json:"amount"`
	Reason    TierID          `json:"reason"`
	MaturesAt time.Time       `json:"matures_at"`
}
