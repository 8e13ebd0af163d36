// Package domain contains pure business types with ZERO infrastructure imports.
// This is the innermost ring: it depends on nothing but small value libraries.
package domain

import (
	"strconv"

	"github.com/shopspring/decimal"
)

// ─── User Types ─────────────────────────────────────────────────────────────

// Role is the member's role in the network.
type Role string

const (
	RoleMember Role = "member"
	RoleAdmin  Role = "admin"
)

// User is a member of the referral network.
// Value is the GDP price propagated from the parent at enrollment time and
// is immutable as far as the reward engine is concerned.
type User struct {
	ID         string          `json:"id"`
	Role       Role            `json:"role"`
	Value      float64         `json:"value"`
	ParentID   *string         `json:"parent_id,omitempty"`
	Investment decimal.Decimal `json:"investment"`
	Flags      ClaimFlags      `json:"flags"`
}

// RewardBasis is the amount a tier percentage is applied to.
func (u User) RewardBasis() decimal.Decimal {
	if u.Investment.IsPositive() {
		return u.Investment
	}
	return decimal.NewFromFloat(u.Value)
}

// ClaimFlags is the denormalized per-tier claimed cache on the user.
// The claim record set is the source of truth; see FlagsFromRecords.
type ClaimFlags struct {
	Claimed130    bool `json:"claimed130"`
	Claimed150    bool `json:"claimed150"`
	Claimed200    bool `json:"claimed200"`
	Claimed300    bool `json:"claimed300"`
	Claimed500    bool `json:"claimed500"`
	Claimed1000   bool `json:"claimed1000"`
	RewardClaimed bool `json:"reward_claimed"`
}

func (f *ClaimFlags) field(id TierID) *bool {
	switch id {
	case Tier130:
		return &f.Claimed130
	case Tier150:
		return &f.Claimed150
	case Tier200:
		return &f.Claimed200
	case Tier300:
		return &f.Claimed300
	case Tier500:
		return &f.Claimed500
	case Tier1000:
		return &f.Claimed1000
	}
	return nil
}

// Has reports whether the tier is flagged as claimed.
func (f ClaimFlags) Has(id TierID) bool {
	p := f.field(id)
	return p != nil && *p
}

// Mark flags the tier and the umbrella flag.
func (f *ClaimFlags) Mark(id TierID) {
	if p := f.field(id); p != nil {
		*p = true
		f.RewardClaimed = true
	}
}

// FlagsFromRecords derives the flags from claim records.
func FlagsFromRecords(records []ClaimRecord) ClaimFlags {
	var f ClaimFlags
	for _, r := range records {
		f.Mark(r.TierID)
	}
	return f
}

// FlagColumn returns the storage column backing the tier's flag.
func FlagColumn(id TierID) (string, bool) {
	if _, ok := LookupTier(id); !ok {
		return "", false
	}
	return "claimed_" + strconv.Itoa(int(id)), true
}

