package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/gdp-network/gdpnet/internal/domain"
	"github.com/gdp-network/gdpnet/internal/infra/dberror"
)

// ─── Claim Records ──────────────────────────────────────────────────────────

const claimColumns = `seq, id, user_id, tier_id, claimed_at, amount`

// CreateIfAbsent inserts the record and sets the user's flags in one
// transaction. An existing (user, tier) record is returned unchanged with
// created = false.
func (db *DB) CreateIfAbsent(ctx context.Context, rec domain.ClaimRecord) (bool, domain.ClaimRecord, error) {
	column, ok := domain.FlagColumn(rec.TierID)
	if !ok {
		return false, domain.ClaimRecord{}, domain.UnknownTier(rec.TierID)
	}

	tx, err := db.db.BeginTx(ctx, nil)
	if err != nil {
		return false, domain.ClaimRecord{}, dberror.Wrap("claims.begin", err)
	}
	defer tx.Rollback()

	var exists int
	err = tx.QueryRowContext(ctx, `SELECT 1 FROM users WHERE id = ?`, rec.UserID).Scan(&exists)
	if errors.Is(err, sql.ErrNoRows) {
		return false, domain.ClaimRecord{}, domain.ErrUserNotFound
	}
	if err != nil {
		return false, domain.ClaimRecord{}, dberror.Wrap("claims.create", err)
	}

	res, err := tx.ExecContext(ctx, `
		INSERT INTO claims (id, user_id, tier_id, claimed_at, amount)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(user_id, tier_id) DO NOTHING
	`, rec.ID, rec.UserID, int(rec.TierID), formatTime(rec.ClaimedAt), rec.Amount.String())
	if err != nil {
		return false, domain.ClaimRecord{}, dberror.Wrap("claims.create", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, domain.ClaimRecord{}, dberror.Wrap("claims.create", err)
	}

	if n == 0 {
		existing, err := scanClaim(tx.QueryRowContext(ctx,
			`SELECT `+claimColumns+` FROM claims WHERE user_id = ? AND tier_id = ?`,
			rec.UserID, int(rec.TierID)))
		if err != nil {
			return false, domain.ClaimRecord{}, dberror.Wrap("claims.create", err)
		}
		return false, existing, nil
	}

	if rec.Seq, err = res.LastInsertId(); err != nil {
		return false, domain.ClaimRecord{}, dberror.Wrap("claims.create", err)
	}
	// column comes from FlagColumn, never from input.
	if _, err := tx.ExecContext(ctx,
		fmt.Sprintf(`UPDATE users SET %s = 1, reward_claimed = 1 WHERE id = ?`, column),
		rec.UserID); err != nil {
		return false, domain.ClaimRecord{}, dberror.Wrap("claims.flags", err)
	}
	if err := tx.Commit(); err != nil {
		return false, domain.ClaimRecord{}, dberror.Wrap("claims.commit", err)
	}
	return true, rec, nil
}

// Get returns the record for (userID, tierID).
func (db *DB) Get(ctx context.Context, userID string, tierID domain.TierID) (*domain.ClaimRecord, error) {
	rec, err := scanClaim(db.db.QueryRowContext(ctx,
		`SELECT `+claimColumns+` FROM claims WHERE user_id = ? AND tier_id = ?`,
		userID, int(tierID)))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrClaimNotFound
	}
	if err != nil {
		return nil, dberror.Wrap("claims.get", err)
	}
	return &rec, nil
}

// ListByUser returns the user's records ordered by (claimed_at, seq).
func (db *DB) ListByUser(ctx context.Context, userID string) ([]domain.ClaimRecord, error) {
	rows, err := db.db.QueryContext(ctx,
		`SELECT `+claimColumns+` FROM claims WHERE user_id = ? ORDER BY claimed_at, seq`, userID)
	if err != nil {
		return nil, dberror.Wrap("claims.list", err)
	}
	return collectClaims(rows, "claims.list")
}

// PendingCredits returns records with no ledger entry, oldest first.
// limit <= 0 means no limit.
func (db *DB) PendingCredits(ctx context.Context, limit int) ([]domain.ClaimRecord, error) {
	if limit <= 0 {
		limit = -1
	}
	rows, err := db.db.QueryContext(ctx, `
		SELECT c.seq, c.id, c.user_id, c.tier_id, c.claimed_at, c.amount
		FROM claims c
		LEFT JOIN ledger_entries l ON l.claim_id = c.id
		WHERE l.id IS NULL
		ORDER BY c.seq
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, dberror.Wrap("claims.pending", err)
	}
	return collectClaims(rows, "claims.pending")
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanClaim(row rowScanner) (domain.ClaimRecord, error) {
	var (
		rec       domain.ClaimRecord
		tier      int
		claimedAt string
		amount    string
	)
	if err := row.Scan(&rec.Seq, &rec.ID, &rec.UserID, &tier, &claimedAt, &amount); err != nil {
		return domain.ClaimRecord{}, err
	}
	rec.TierID = domain.TierID(tier)
	var err error
	if rec.ClaimedAt, err = parseTime(claimedAt); err != nil {
		return domain.ClaimRecord{}, fmt.Errorf("claim %s claimed_at: %w", rec.ID, err)
	}
	if rec.Amount, err = decimal.NewFromString(amount); err != nil {
		return domain.ClaimRecord{}, fmt.Errorf("claim %s amount: %w", rec.ID, err)
	}
	return rec, nil
}

func collectClaims(rows *sql.Rows, op string) ([]domain.ClaimRecord, error) {
	defer rows.Close()
	var out []domain.ClaimRecord
	for rows.Next() {
		rec, err := scanClaim(rows)
		if err != nil {
			return nil, dberror.Wrap(op, err)
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, dberror.Wrap(op, err)
	}
	return out, nil
}

// ─── Ledger ─────────────────────────────────────────────────────────────────

// Credit writes entry unless a credit for the same claim exists.
func (db *DB) Credit(ctx context.Context, e domain.LedgerEntry) error {
	if e.ClaimID == "" {
		return domain.Invalid("claim_id", "ledger entry has no claim")
	}
	if e.Timestamp.IsZero() {
		e.Timestamp = db.now()
	}
	_, err := db.db.ExecContext(ctx, `
		INSERT INTO ledger_entries (id, claim_id, account, tx_type, entry_type, amount, reason, created_at, matures_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(claim_id) DO NOTHING
	`, e.ID, e.ClaimID, e.Account, string(e.Type), string(e.EntryType), e.Amount.String(),
		int(e.Reason), formatTime(e.Timestamp), formatTime(e.MaturesAt))
	return dberror.Wrap("ledger.credit", err)
}

// Balance sums the account's credits minus debits. Amounts are summed as
// decimals in Go since sqlite has no exact numeric type.
func (db *DB) Balance(ctx context.Context, account string) (decimal.Decimal, error) {
	rows, err := db.db.QueryContext(ctx,
		`SELECT entry_type, amount FROM ledger_entries WHERE account = ?`, account)
	if err != nil {
		return decimal.Zero, dberror.Wrap("ledger.balance", err)
	}
	defer rows.Close()

	total := decimal.Zero
	for rows.Next() {
		var kind, amount string
		if err := rows.Scan(&kind, &amount); err != nil {
			return decimal.Zero, dberror.Wrap("ledger.balance", err)
		}
		d, err := decimal.NewFromString(amount)
		if err != nil {
			return decimal.Zero, fmt.Errorf("ledger amount %q: %w", amount, err)
		}
		if domain.EntryType(kind) == domain.EntryDebit {
			total = total.Sub(d)
		} else {
			total = total.Add(d)
		}
	}
	return total, dberror.Wrap("ledger.balance", rows.Err())
}
