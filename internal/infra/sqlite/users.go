package sqlite

import (
	"context"
	"database/sql"
	"errors"

	"github.com/shopspring/decimal"

	"github.com/gdp-network/gdpnet/internal/domain"
	"github.com/gdp-network/gdpnet/internal/infra/dberror"
)

// ─── Users ──────────────────────────────────────────────────────────────────

// UpsertUser inserts a member or updates its role and investment. The
// enrollment value is immutable: re-saving with a different value fails
// with an InvalidInputError. Parent links and claim flags are never
// rewritten here.
func (db *DB) UpsertUser(ctx context.Context, u domain.User) error {
	if u.ID == "" {
		return domain.Invalid("id", "user id is empty")
	}
	role := u.Role
	if role == "" {
		role = domain.RoleMember
	}
	res, err := db.db.ExecContext(ctx, `
		INSERT INTO users (id, role, value, parent_id, investment)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			role       = excluded.role,
			investment = excluded.investment
		WHERE users.value = excluded.value
	`, u.ID, string(role), u.Value, u.ParentID, u.Investment.String())
	if err != nil {
		return dberror.Wrap("users.upsert", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return dberror.Wrap("users.upsert", err)
	}
	if n == 0 {
		var have float64
		if err := db.db.QueryRowContext(ctx, `SELECT value FROM users WHERE id = ?`, u.ID).Scan(&have); err != nil {
			return dberror.Wrap("users.upsert", err)
		}
		return domain.ValueChanged(u.ID, have, u.Value)
	}
	return nil
}

// User loads a member with its claim flags.
func (db *DB) User(ctx context.Context, userID string) (*domain.User, error) {
	var (
		u          domain.User
		role       string
		parent     sql.NullString
		investment string
	)
	err := db.db.QueryRowContext(ctx, `
		SELECT id, role, value, parent_id, investment,
		       claimed_130, claimed_150, claimed_200, claimed_300, claimed_500, claimed_1000,
		       reward_claimed
		FROM users WHERE id = ?
	`, userID).Scan(&u.ID, &role, &u.Value, &parent, &investment,
		&u.Flags.Claimed130, &u.Flags.Claimed150, &u.Flags.Claimed200,
		&u.Flags.Claimed300, &u.Flags.Claimed500, &u.Flags.Claimed1000,
		&u.Flags.RewardClaimed)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrUserNotFound
	}
	if err != nil {
		return nil, dberror.Wrap("users.get", err)
	}
	u.Role = domain.Role(role)
	if parent.Valid {
		u.ParentID = &parent.String
	}
	if u.Investment, err = decimal.NewFromString(investment); err != nil {
		return nil, dberror.Wrap("users.get", err)
	}
	return &u, nil
}

// ─── Network Snapshot ───────────────────────────────────────────────────────

// Snapshot reads the root and its descendants in a single statement, so the
// result reflects one consistent database state.
func (db *DB) Snapshot(ctx context.Context, userID string, maxDepth int) (*domain.NetworkSnapshot, error) {
	rows, err := db.db.QueryContext(ctx, `
		WITH RECURSIVE tree(id, parent_id, value, depth) AS (
			SELECT id, parent_id, value, 1 FROM users WHERE parent_id = ?1
			UNION ALL
			SELECT u.id, u.parent_id, u.value, t.depth + 1
			FROM users u JOIN tree t ON u.parent_id = t.id
			WHERE t.depth < ?2
		)
		SELECT id, '', value, 0 FROM users WHERE id = ?1
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
	return domain.BuildSnapshot(userID, rootValue, desc, maxDepth, db.now()), nil
}

// ─── Reward Settings ────────────────────────────────────────────────────────

// RewardSettings returns the stored settings, or the defaults if none were
// ever saved.
func (db *DB) RewardSettings(ctx context.Context) (domain.RewardSettings, error) {
	var s domain.RewardSettings
	err := db.db.QueryRowContext(ctx, `
		SELECT percentage, investment_percentage, investment_term, gdp_reward_percentage
		FROM reward_settings WHERE id = 1
	`).Scan(&s.Percentage, &s.InvestmentPercentage, &s.InvestmentTerm, &s.GDPRewardPercentage)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.DefaultRewardSettings(), nil
	}
	if err != nil {
		return domain.RewardSettings{}, dberror.Wrap("settings.get", err)
	}
	return s, nil
}

// SaveRewardSettings replaces the settings row.
func (db *DB) SaveRewardSettings(ctx context.Context, s domain.RewardSettings) error {
	if err := s.Validate(); err != nil {
		return err
	}
	_, err := db.db.ExecContext(ctx, `
		INSERT INTO reward_settings (id, percentage, investment_percentage, investment_term, gdp_reward_percentage, updated_at)
		VALUES (1, ?, ?, ?, ?, datetime('now'))
		ON CONFLICT(id) DO UPDATE SET
			percentage            = excluded.percentage,
			investment_percentage = excluded.investment_percentage,
			investment_term       = excluded.investment_term,
			gdp_reward_percentage = excluded.gdp_reward_percentage,
			updated_at            = datetime('now')
	`, s.Percentage, s.InvestmentPercentage, s.InvestmentTerm, s.GDPRewardPercentage)
	return dberror.Wrap("settings.save", err)
}
