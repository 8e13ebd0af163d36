package domain

// RewardSettings is externally owned configuration. The engine reads it to
// compute reward amounts and never mutates it.
type RewardSettings struct {
	Percentage           float64 `json:"percentage" yaml:"percentage"`
	InvestmentPercentage float64 `json:"investment_percentage" yaml:"investment_percentage"`
	InvestmentTerm       int     `json:"investment_term" yaml:"investment_term"` // days
	GDPRewardPercentage  float64 `json:"gdp_reward_percentage" yaml:"gdp_reward_percentage"`
}

// DefaultRewardSettings pays the full tier percentage with no maturity term.
func DefaultRewardSettings() RewardSettings {
	return RewardSettings{
		Percentage:           100,
		InvestmentPercentage: 100,
		InvestmentTerm:       0,
		GDPRewardPercentage:  100,
	}
}

// Validate rejects negative percentages and terms.
func (s RewardSettings) Validate() error {
	switch {
	case s.Percentage < 0:
		return Invalid("percentage", "must not be negative, got %v", s.Percentage)
	case s.InvestmentPercentage < 0:
		return Invalid("investment_percentage", "must not be negative, got %v", s.InvestmentPercentage)
	case s.InvestmentTerm < 0:
		return Invalid("investment_term", "must not be negative, got %d", s.InvestmentTerm)
	case s.GDPRewardPercentage < 0:
		return Invalid("gdp_reward_percentage", "must not be negative, got %v", s.GDPRewardPercentage)
	}
	return nil
}
