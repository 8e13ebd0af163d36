package eligibility

import (
	"math"

	"github.com/gdp-network/gdpnet/internal/domain"
)

// unmetCeiling is the highest progress reported while neither condition
// holds, so that Eligible == (ProgressPercent >= 100) survives rounding.
const unmetCeiling = 99.99

// Evaluation is the outcome of evaluating one tier.
type Evaluation struct {
	TierID           domain.TierID              `json:"tier_id"`
	ProgressPercent  float64                    `json:"progress_percent"`
	Eligible         bool                       `json:"eligible"`
	WeightedProgress float64                    `json:"weighted_progress"`
	DirectProgress   float64                    `json:"direct_progress"`
	Explanation      *domain.MissingRequirement `json:"explanation"`
}

// Evaluate computes the tier's progress from qualifying counts.
//
//	weighted = Σ min(count[g]/threshold[g], 1) × weight[g]   (capped at 100)
//	direct   = min(count[1]/directOnly, 1) × 100
//	progress = max(weighted, direct)
//
// A zero threshold counts as satisfied. The explanation names the first
// unmet generation and is suppressed once the direct-only condition holds.
func Evaluate(counts CountVector, def domain.TierDefinition) (Evaluation, error) {
	if err := counts.Validate(); err != nil {
		return Evaluation{}, err
	}
	if err := def.Validate(); err != nil {
		return Evaluation{}, err
	}

	var (
		weighted float64
		allMet   = true
		missing  *domain.MissingRequirement
	)
	for i, threshold := range def.Thresholds {
		gen := i + 1
		have := counts.At(gen)
		ratio := 1.0
		if threshold > 0 {
			ratio = math.Min(float64(have)/float64(threshold), 1)
			if have < threshold {
				allMet = false
				if missing == nil {
					missing = &domain.MissingRequirement{Generation: gen, Needed: threshold - have}
				}
			}
		}
		weighted += ratio * def.Weights[i]
	}
	weighted = math.Min(weighted, 100)
	if allMet {
		weighted = 100
	}

	direct := math.Min(float64(counts.At(1))/float64(def.DirectOnly), 1) * 100
	directMet := counts.At(1) >= def.DirectOnly

	ev := Evaluation{
		TierID:           def.ID,
		Eligible:         allMet || directMet,
		WeightedProgress: round2(weighted),
		DirectProgress:   round2(direct),
	}
	switch {
	case ev.Eligible:
		ev.ProgressPercent = 100
	default:
		ev.ProgressPercent = math.Min(clamp(round2(math.Max(weighted, direct))), unmetCeiling)
		ev.Explanation = missing
	}
	return ev, nil
}

// EvaluateTier looks the tier up and evaluates it.
func EvaluateTier(counts CountVector, id domain.TierID) (Evaluation, error) {
	def, ok := domain.LookupTier(id)
	if !ok {
		return Evaluation{}, domain.UnknownTier(id)
	}
	return Evaluate(counts, def)
}

func clamp(v float64) float64 {
	return math.Max(0, math.Min(v, 100))
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
