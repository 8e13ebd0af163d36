package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"

	"github.com/gdp-network/gdpnet/internal/domain"
	"github.com/gdp-network/gdpnet/internal/infra/dberror"
)

// ─── Users ──────────────────────────────────────────────────────────────────

// UpsertUser inserts a member or updates its role and investment. The
// enrollment value is immutable: re-saving with a different value fails
// with an InvalidInputError.
func (s *Store) UpsertUser(ctx context.Context, u domain.User) error {
	if u.ID == "" {
		return domain.Invalid("id", "user id is empty")
	}
	role := u.Role
	if role == "" {
		role = domain.RoleMember
	}
	tag, err := s.pool.Exec(ctx, `
		INSERT INTO users (id, role, value, parent_id, investment)
		VALUES ($1, $2, $3, $4, $5::numeric)
		ON CONFLICT (id) DO UPDATE SET
			role       = EXCLUDED.role,
			investment = EXCLUDED.investment
		WHERE users.value = EXCLUDED.value
	`, u.ID, string(role), u.Value, u.ParentID, u.Investment.String())
	if err != nil {
		return dberror.Wrap("users.upsert", err)
	}
	if tag.RowsAffected() == 0 {
		var have float64
		if err := s.pool.QueryRow(ctx, `SELECT value FROM users WHERE id = $1`, u.ID).Scan(&have); err != nil {
			return dberror.Wrap("users.upsert", err)
		}
		return domain.ValueChanged(u.ID, have, u.Value)
	}
	return nil
}

// User loads a member with its claim flags.
func (s *Store) User(ctx context.Context, userID string) (*domain.User, error) {
	var (
		u          domain.User
		role       string
		investment string
	)
	err := s.pool.QueryRow(ctx, `
		SELECT id, role, value, parent_id, investment::text,
		       claimed_130, claimed_150, claimed_200, claimed_300, claimed_500, claimed_1000,
		       reward_claimed
		FROM users WHERE id = $1
	`, userID).Scan(&u.ID, &role, &u.Value, &u.ParentID, &investment,
		&u.Flags.Claimed130, &u.Flags.Claimed150, &u.Flags.Claimed200,
		&u.Flags.Claimed300, &u.Flags.Claimed500, &u.Flags.Claimed1000,
		&u.Flags.RewardClaimed)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.ErrUserNotFound
	}
	if err != nil {
		return nil, dberror.Wrap("users.get", err)
	}
	u.Role = domain.Role(role)
	if u.Investment, err = decimal.NewFromString(investment); err != nil {
		return nil, fmt.Errorf("user %s investment: %w", userID, err)
	}
	return &u, nil
}

// Snapshot reads the root and its descendants in one statement.
func (s *Store) Snapshot(ctx context.Context, userID string, maxDepth int) (*domain.NetworkSnapshot, error) {
	rows, err := s.pool.Query(ctx, `
		WITH RECURSIVE tree(id, parent_id, value, depth) AS (
			SELECT id, parent_id, value, 1 FROM users WHERE parent_id = $1
			UNION ALL
			SELECT u.id, u.parent_id, u.value, t.depth + 1
			FROM users u JOIN tree t ON u.parent_id = t.id
			WHERE t.depth < $2
		)
		SELECT id, '', value, 0 FROM users WHERE id = $1
		UNION ALL
		SELECT id, parent_id, value, depth FROM tree
	`, userID, maxDepth)
	if err != nil {
		return nil, dberror.Wrap("users.snapshot", err)
	}

	defer rows.Close()

	var (
		found     bool
		rootValue float64
		desc      []domain.DescendantRow
	)
	for rows.Next() {
		var r domain.DescendantRow
		if err := rows.Scan(&r.UserID, &r.ParentID, &r.Value, &r.Depth); err != nil {
			return nil, dberror.Wrap("users.snapshot", err)
		}
		if r.Depth == 0 {
			found, rootValue = true, r.Value
			continue
		}
		desc = append(desc, r)
	}
	if err := rows.Err(); err != nil {
		return nil, dberror.Wrap("users.snapshot", err)
	}
	if !found {
		return nil, domain.ErrUserNotFound
	}
	return domain.BuildSnapshot(userID, rootValue, desc, maxDepth, s.now()), nil
}

// ─── Reward Settings ────────────────────────────────────────────────────────

// RewardSettings returns the stored settings or the defaults.
func (s *Store) RewardSettings(ctx context.Context) (domain.RewardSettings, error) {
	var rs domain.RewardSettings
	err := s.pool.QueryRow(ctx, `
		SELECT percentage, investment_percentage, investment_term, gdp_reward_percentage
		FROM reward_settings WHERE id = 1
	`).Scan(&rs.Percentage, &rs.InvestmentPercentage, &rs.InvestmentTerm, &rs.GDPRewardPercentage)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.DefaultRewardSettings(), nil
	}
	if err != nil {
		return domain.RewardSettings{}, dberror.Wrap("settings.get", err)
	}
	return rs, nil
}

// SaveRewardSettings replaces the settings row.
func (s *Store) SaveRewardSettings(ctx context.Context, rs domain.RewardSettings) error {
	if err := rs.Validate(); err != nil {
		return err
	}
	_, err := s.pool.Exec(ctx, `
		INSERT INTO reward_settings (id, percentage, investment_percentage, investment_term, gdp_reward_percentage, updated_at)
		VALUES (1, $1, $2, $3, $4, now())
		ON CONFLICT (id) DO UPDATE SET
			percentage            = EXCLUDED.percentage,
			investment_percentage = EXCLUDED.investment_percentage,
			investment_term       = EXCLUDED.investment_term,
			gdp_reward_percentage = EXCLUDED.gdp_reward_percentage,
			updated_at            = now()
	`, rs.Percentage, rs.InvestmentPercentage, rs.InvestmentTerm, rs.GDPRewardPercentage)
	return dberror.Wrap("settings.save", err)
}

// ─── Claim Records ──────────────────────────────────────────────────────────

const claimColumns = `seq, id, user_id, tier_id, claimed_at, amount::text`

// CreateIfAbsent inserts the record and sets the user's flags in one
// transaction; ON CONFLICT makes the (user, tier) key the arbiter.
func (s *Store) CreateIfAbsent(ctx context.Context, rec domain.ClaimRecord) (bool, domain.ClaimRecord, error) {
	column, ok := domain.FlagColumn(rec.TierID)
	if !ok {
		return false, domain.ClaimRecord{}, domain.UnknownTier(rec.TierID)
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return false, domain.ClaimRecord{}, dberror.Wrap("claims.begin", err)
	}
	defer tx.Rollback(ctx)

	var exists bool
	err = tx.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM users WHERE id = $1)`, rec.UserID).Scan(&exists)
	if err != nil {
		return false, domain.ClaimRecord{}, dberror.Wrap("claims.create", err)
	}
	if !exists {
		return false, domain.ClaimRecord{}, domain.ErrUserNotFound
	}

	err = tx.QueryRow(ctx, `
		INSERT INTO claims (id, user_id, tier_id, claimed_at, amount)
		VALUES ($1, $2, $3, $4, $5::numeric)
		ON CONFLICT (user_id, tier_id) DO NOTHING
		RETURNING seq
	`, rec.ID, rec.UserID, int(rec.TierID), rec.ClaimedAt.UTC(), rec.Amount.String()).Scan(&rec.Seq)
	if errors.Is(err, pgx.ErrNoRows) {
		existing, err := scanClaim(tx.QueryRow(ctx,
			`SELECT `+claimColumns+` FROM claims WHERE user_id = $1 AND tier_id = $2`,
			rec.UserID, int(rec.TierID)))
		if err != nil {
			return false, domain.ClaimRecord{}, dberror.Wrap("claims.create", err)
		}
		return false, existing, nil
	}
	if err != nil {
		return false, domain.ClaimRecord{}, dberror.Wrap("claims.create", err)
	}

	// column comes from FlagColumn, never from input.
	if _, err := tx.Exec(ctx,
		fmt.Sprintf(`UPDATE users SET %s = TRUE, reward_claimed = TRUE WHERE id = $1`, column),
		rec.UserID); err != nil {
		return false, domain.ClaimRecord{}, dberror.Wrap("claims.flags", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return false, domain.ClaimRecord{}, dberror.Wrap("claims.commit", err)
	}
	return true, rec, nil
}

// Get returns the record for (userID, tierID).
func (s *Store) Get(ctx context.Context, userID string, tierID domain.TierID) (*domain.ClaimRecord, error) {
	rec, err := scanClaim(s.pool.QueryRow(ctx,
		`SELECT `+claimColumns+` FROM claims WHERE user_id = $1 AND tier_id = $2`,
		userID, int(tierID)))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.ErrClaimNotFound
	}
	if err != nil {
		return nil, dberror.Wrap("claims.get", err)
	}
	return &rec, nil
}

// ListByUser returns the user's records ordered by (claimed_at, seq).
func (s *Store) ListByUser(ctx context.Context, userID string) ([]domain.ClaimRecord, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+claimColumns+` FROM claims WHERE user_id = $1 ORDER BY claimed_at, seq`, userID)
	if err != nil {
		return nil, dberror.Wrap("claims.list", err)
	}
	return collectClaims(rows, "claims.list")
}

// PendingCredits returns records with no ledger entry, oldest first.
func (s *Store) PendingCredits(ctx context.Context, limit int) ([]domain.ClaimRecord, error) {
	var lim *int
	if limit > 0 {
		lim = &limit
	}
	rows, err := s.pool.Query(ctx, `
		SELECT c.seq, c.id, c.user_id, c.tier_id, c.claimed_at, c.amount::text
		FROM claims c
		LEFT JOIN ledger_entries l ON l.claim_id = c.id
		WHERE l.id IS NULL
		ORDER BY c.seq
		LIMIT $1
	`, lim)
	if err != nil {
		return nil, dberror.Wrap("claims.pending", err)
	}
	return collectClaims(rows, "claims.pending")
}

func scanClaim(row pgx.Row) (domain.ClaimRecord, error) {
	var (
		rec    domain.ClaimRecord
		tier   int
		amount string
	)
	if err := row.Scan(&rec.Seq, &rec.ID, &rec.UserID, &tier, &rec.ClaimedAt, &amount); err != nil {
		return domain.ClaimRecord{}, err
	}
	rec.TierID = domain.TierID(tier)
	rec.ClaimedAt = rec.ClaimedAt.UTC()
	var err error
	if rec.Amount, err = decimal.NewFromString(amount); err != nil {
		return domain.ClaimRecord{}, fmt.Errorf("claim %s amount: %w", rec.ID, err)
	}
	return rec, nil
}

func collectClaims(rows pgx.Rows, op string) ([]domain.ClaimRecord, error) {
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
func (s *Store) Credit(ctx context.Context, e domain.LedgerEntry) error {
	if e.ClaimID == "" {
		return domain.Invalid("claim_id", "ledger entry has no claim")
	}
	if e.Timestamp.IsZero() {
		e.Timestamp = s.now()
	}
	var maturesAt *time.Time
	if !e.MaturesAt.IsZero() {
		t := e.MaturesAt.UTC()
		maturesAt = &t
	}
	_, err := s.pool.Exec(ctx, `
		INSERT INTO ledger_entries (id, claim_id, account, tx_type, entry_type, amount, reason, created_at, matures_at)
		VALUES ($1, $2, $3, $4, $5, $6::numeric, $7, $8, $9)
		ON CONFLICT (claim_id) DO NOTHING
	`, e.ID, e.ClaimID, e.Account, string(e.Type), string(e.EntryType), e.Amount.String(),
		int(e.Reason), e.Timestamp.UTC(), maturesAt)
	return dberror.Wrap("ledger.credit", err)
}

// Balance sums credits minus debits in NUMERIC.
func (s *Store) Balance(ctx context.Context, account string) (decimal.Decimal, error) {
	var total string
	err := s.pool.QueryRow(ctx, `
		SELECT COALESCE(SUM(CASE WHEN entry_type = $2 THEN -amount ELSE amount END), 0)::text
		FROM ledger_entries WHERE account = $1
	`, account, string(domain.EntryDebit)).Scan(&total)
	if err != nil {
		return decimal.Zero, dberror.Wrap("ledger.balance", err)
	}
	return decimal.NewFromString(total)
}
