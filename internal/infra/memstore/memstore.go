// Package memstore is an in-process domain.Store guarded by one mutex.
// It backs tests and single-process embedding; it is not shared across
// processes.
package memstore

import (
	"context"
	"sort"
	"sync"

	"github.com/jonboulle/clockwork"
	"github.com/shopspring/decimal"

	"github.com/gdp-network/gdpnet/internal/domain"
)

type claimKey struct {
	userID string
	tierID domain.TierID
}

// Store implements domain.Store in memory.
type Store struct {
	mu       sync.Mutex
	clock    clockwork.Clock
	users    map[string]*domain.User
	children map[string][]string
	claims   map[claimKey]domain.ClaimRecord
	ledger   map[string]domain.LedgerEntry // by ClaimID
	settings domain.RewardSettings
	seq      int64
}

var _ domain.Store = (*Store)(nil)

// New creates an empty store with default reward settings.
func New(clock clockwork.Clock) *Store {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &Store{
		clock:    clock,
		users:    make(map[string]*domain.User),
		children: make(map[string][]string),
		claims:   make(map[claimKey]domain.ClaimRecord),
		ledger:   make(map[string]domain.LedgerEntry),
		settings: domain.DefaultRewardSettings(),
	}
}

// ─── Seeding ────────────────────────────────────────────────────────────────

// PutUser inserts or replaces a user and links it under its parent. Claim
// flags are rebuilt from the stored claim records.
func (s *Store) PutUser(u domain.User) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.putLocked(u)
}

func (s *Store) putLocked(u domain.User) {
	if old, ok := s.users[u.ID]; ok && old.ParentID != nil {
		s.children[*old.ParentID] = remove(s.children[*old.ParentID], u.ID)
	}
	cp := u
	cp.Flags = s.flagsLocked(u.ID)
	s.users[u.ID] = &cp
	if u.ParentID != nil {
		s.children[*u.ParentID] = append(s.children[*u.ParentID], u.ID)
	}
}

func (s *Store) flagsLocked(userID string) domain.ClaimFlags {
	var recs []domain.ClaimRecord
	for k, rec := range s.claims {
		if k.userID == userID {
			recs = append(recs, rec)
		}
	}
	return domain.FlagsFromRecords(recs)
}

// SetRewardSettings replaces the settings returned by RewardSettings.
func (s *Store) SetRewardSettings(rs domain.RewardSettings) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.settings = rs
}

func remove(ids []string, id string) []string {
	out := ids[:0]
	for _, v := range ids {
		if v != id {
			out = append(out, v)
		}
	}
	return out
}

// ─── Users & Network ────────────────────────────────────────────────────────

// User returns a copy of the user.
func (s *Store) User(_ context.Context, userID string) (*domain.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	u, ok := s.users[userID]
	if !ok {
		return nil, domain.ErrUserNotFound
	}
	cp := *u
	return &cp, nil
}

// Snapshot walks the child index breadth-first.
func (s *Store) Snapshot(_ context.Context, userID string, maxDepth int) (*domain.NetworkSnapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	root, ok := s.users[userID]
	if !ok {
		return nil, domain.ErrUserNotFound
	}

	var rows []domain.DescendantRow
	level := []string{userID}
	for depth := 1; depth <= maxDepth && len(level) > 0; depth++ {
		var next []string
		for _, parent := range level {
			for _, child := range s.children[parent] {
				rows = append(rows, domain.DescendantRow{
					UserID:   child,
					ParentID: parent,
					Value:    s.users[child].Value,
					Depth:    depth,
				})
				next = append(next, child)
			}
		}
		level = next
	}
	return domain.BuildSnapshot(userID, root.Value, rows, maxDepth, s.clock.Now()), nil
}

// RewardSettings returns the current settings.
func (s *Store) RewardSettings(context.Context) (domain.RewardSettings, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.settings, nil
}

// ─── Claims ─────────────────────────────────────────────────────────────────

// CreateIfAbsent stores rec unless the (user, tier) key already exists.
func (s *Store) CreateIfAbsent(_ context.Context, rec domain.ClaimRecord) (bool, domain.ClaimRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	u, ok := s.users[rec.UserID]
	if !ok {
		return false, domain.ClaimRecord{}, domain.ErrUserNotFound
	}
	key := claimKey{rec.UserID, rec.TierID}
	if existing, ok := s.claims[key]; ok {
		return false, existing, nil
	}
	s.seq++
	rec.Seq = s.seq
	s.claims[key] = rec
	u.Flags.Mark(rec.TierID)
	return true, rec, nil
}

// Get returns the record for (userID, tierID).
func (s *Store) Get(_ context.Context, userID string, tierID domain.TierID) (*domain.ClaimRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.claims[claimKey{userID, tierID}]
	if !ok {
		return nil, domain.ErrClaimNotFound
	}
	return &rec, nil
}

// ListByUser returns the user's records ordered by (ClaimedAt, Seq).
func (s *Store) ListByUser(_ context.Context, userID string) ([]domain.ClaimRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []domain.ClaimRecord
	for k, rec := range s.claims {
		if k.userID == userID {
			out = append(out, rec)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Before(out[j]) })
	return out, nil
}

// PendingCredits returns records without a ledger entry, oldest first.
func (s *Store) PendingCredits(_ context.Context, limit int) ([]domain.ClaimRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []domain.ClaimRecord
	for _, rec := range s.claims {
		if _, ok := s.ledger[rec.ID]; !ok {
			out = append(out, rec)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Seq < out[j].Seq })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// ─── Ledger ─────────────────────────────────────────────────────────────────

// Credit records entry once per ClaimID.
func (s *Store) Credit(_ context.Context, entry domain.LedgerEntry) error {
	if entry.ClaimID == "" {
		return domain.Invalid("claim_id", "ledger entry has no claim")
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.ledger[entry.ClaimID]; ok {
		return nil
	}
	if entry.Timestamp.IsZero() {
		entry.Timestamp = s.clock.Now()
	}
	s.ledger[entry.ClaimID] = entry
	return nil
}

// Balance sums matured and unmatured credits for account.
func (s *Store) Balance(_ context.Context, account string) (decimal.Decimal, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	total := decimal.Zero
	for _, e := range s.ledger {
		if e.Account != account {
			continue
		}
		if e.EntryType == domain.EntryDebit {
			total = total.Sub(e.Amount)
		} else {
			total = total.Add(e.Amount)
		}
	}
	return total, nil
}

// Entries returns ledger entries for account ordered by timestamp.
func (s *Store) Entries(account string) []domain.LedgerEntry {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []domain.LedgerEntry
	for _, e := range s.ledger {
		if e.Account == account {
			out = append(out, e)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Timestamp.Before(out[j].Timestamp) })
	return out
}

// Close is a no-op.
func (s *Store) Close() error { return nil }

// UpsertUser implements domain.UserWriter. An existing member keeps its
// value, parent and flags; only role and investment change, and a
// different value is rejected.
func (s *Store) UpsertUser(_ context.Context, u domain.User) error {
	if u.ID == "" {
		return domain.Invalid("id", "user id is empty")
	}
	if u.Role == "" {
		u.Role = domain.RoleMember
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if old, ok := s.users[u.ID]; ok {
		if old.Value != u.Value {
			return domain.ValueChanged(u.ID, old.Value, u.Value)
		}
		old.Role = u.Role
		old.Investment = u.Investment
		return nil
	}
	s.putLocked(u)
	return nil
}
