package domain

import (
	"fmt"
	"math"
	"strconv"
	"strings"
)

// ─── Reward Tiers ───────────────────────────────────────────────────────────
// Six reward brackets share one evaluator. Each bracket is data: per
// generation thresholds and weights plus a direct-children-only shortcut.

// TierID identifies a reward tier by its percentage (130 = 130%).
type TierID int

const (
	Tier130  TierID = 130
	Tier150  TierID = 150
	Tier200  TierID = 200
	Tier300  TierID = 300
	Tier500  TierID = 500
	Tier1000 TierID = 1000
)

// String formats the tier as "130%".
func (t TierID) String() string { return strconv.Itoa(int(t)) + "%" }

// Percent returns the reward percentage of the tier.
func (t TierID) Percent() int { return int(t) }

// ParseTierID accepts "130", "130%" or "tier130".
func ParseTierID(s string) (TierID, error) {
	s = strings.TrimSpace(strings.ToLower(s))
	s = strings.TrimPrefix(s, "tier")
	s = strings.TrimSuffix(s, "%")
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0, &InvalidInputError{Field: "tier", Reason: fmt.Sprintf("unknown reward tier %q", s), Cause: ErrUnknownTier}
	}
	id := TierID(n)
	if _, ok := LookupTier(id); !ok {
		return 0, UnknownTier(id)
	}
	return id, nil
}

// MaxTierGenerations bounds how many generation thresholds a tier may carry.
const MaxTierGenerations = 6

// weightSumTolerance absorbs rounded weights such as 33.33+33.33+33.34.
const weightSumTolerance = 0.05

// TierDefinition is the static qualification rule for one tier.
type TierDefinition struct {
	ID         TierID    `json:"id"`
	Thresholds []int     `json:"thresholds"`
	Weights    []float64 `json:"weights"`
	DirectOnly int       `json:"direct_only"`
}

// Generations returns how many generations the weighted condition spans.
func (d TierDefinition) Generations() int { return len(d.Thresholds) }

// Validate checks the definition's shape.
func (d TierDefinition) Validate() error {
	if len(d.Thresholds) == 0 {
		return Invalid("thresholds", "tier %s defines no generations", d.ID)
	}
	if len(d.Thresholds) > MaxTierGenerations {
		return Invalid("thresholds", "tier %s defines %d generations, max %d", d.ID, len(d.Thresholds), MaxTierGenerations)
	}
	if len(d.Thresholds) != len(d.Weights) {
		return Invalid("weights", "tier %s has %d thresholds but %d weights", d.ID, len(d.Thresholds), len(d.Weights))
	}
	var sum float64
	for i, t := range d.Thresholds {
		if t < 0 {
			return Invalid("thresholds", "tier %s generation %d threshold %d is negative", d.ID, i+1, t)
		}
		w := d.Weights[i]
		if math.IsNaN(w) || math.IsInf(w, 0) || w < 0 {
			return Invalid("weights", "tier %s generation %d weight %v is not a finite non-negative number", d.ID, i+1, w)
		}
		sum += w
	}
	if math.Abs(sum-100) > weightSumTolerance {
		return Invalid("weights", "tier %s weights sum to %.2f, want 100", d.ID, sum)
	}
	if d.DirectOnly <= 0 {
		return Invalid("direct_only", "tier %s direct-only threshold must be positive, got %d", d.ID, d.DirectOnly)
	}
	return nil
}

var tiers = []TierDefinition{
	{ID: Tier130, Thresholds: []int{2}, Weights: []float64{100}, DirectOnly: 2},
	{ID: Tier150, Thresholds: []int{3, 4}, Weights: []float64{50, 50}, DirectOnly: 4},
	{ID: Tier200, Thresholds: []int{4, 4, 8}, Weights: []float64{33.33, 33.33, 33.34}, DirectOnly: 6},
	{ID: Tier300, Thresholds: []int{6, 4, 8, 16}, Weights: []float64{25, 25, 25, 25}, DirectOnly: 8},
	{ID: Tier500, Thresholds: []int{8, 4, 8, 16, 32}, Weights: []float64{20, 20, 20, 20, 20}, DirectOnly: 12},
	{ID: Tier1000, Thresholds: []int{16, 4, 8, 16, 32, 64}, Weights: []float64{16.67, 16.67, 16.67, 16.67, 16.67, 16.65}, DirectOnly: 20},
}

// Tiers returns a copy of the tier table in ascending order.
func Tiers() []TierDefinition {
	out := make([]TierDefinition, len(tiers))
	for i, t := range tiers {
		out[i] = TierDefinition{
			ID:         t.ID,
			Thresholds: append([]int(nil), t.Thresholds...),
			Weights:    append([]float64(nil), t.Weights...),
			DirectOnly: t.DirectOnly,
		}
	}
	return out
}

// TierIDs returns all tier IDs in ascending order.
func TierIDs() []TierID {
	ids := make([]TierID, len(tiers))
	for i, t := range tiers {
		ids[i] = t.ID
	}
	return ids
}

// LookupTier returns the definition for id.
func LookupTier(id TierID) (TierDefinition, bool) {
	for _, t := range Tiers() {
		if t.ID == id {
			return t, true
		}
	}
	return TierDefinition{}, false
}

// MissingRequirement names the first generation that still falls short.
type MissingRequirement struct {
	Generation int `json:"generation"`
	Needed     int `json:"needed"`
}

// String renders "need N more at generation G".
func (m MissingRequirement) String() string {
	return fmt.Sprintf("need %d more at generation %d", m.Needed, m.Generation)
}
