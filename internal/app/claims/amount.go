package claims

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/gdp-network/gdpnet/internal/domain"
)

var hundred = decimal.NewFromInt(100)

// RewardAmount is basis × tier% × GDP reward%, with the basis being the
// user's investment when positive and otherwise their GDP value. A zero
// GDP reward percentage means "unset" and pays the full tier.
func RewardAmount(u domain.User, tier domain.TierID, s domain.RewardSettings) decimal.Decimal {
	gdpPct := decimal.NewFromFloat(s.GDPRewardPercentage)
	if gdpPct.IsZero() {
		gdpPct = hundred
	}
	return u.RewardBasis().
		Mul(decimal.NewFromInt(int64(tier.Percent()))).Div(hundred).
		Mul(gdpPct).Div(hundred)
}

// MaturesAt is when a credit made at claimedAt becomes withdrawable.
func MaturesAt(claimedAt time.Time, s domain.RewardSettings) time.Time {
	return claimedAt.AddDate(0, 0, s.InvestmentTerm)
}
