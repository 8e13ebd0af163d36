// Package eligibility turns a referral snapshot into per-tier reward progress.
//
// Count and Evaluate are pure functions; Engine wires them to storage and
// evaluates all tiers of a user concurrently.
package eligibility

import (
	"github.com/gdp-network/gdpnet/internal/domain"
)

// CountVector holds qualifying descendants for generations 1..5.
type CountVector [domain.MaxGeneration]int

// At returns the count for generation gen (1-based). Generations outside
// 1..5 count as zero.
func (c CountVector) At(gen int) int {
	if gen < 1 || gen > domain.MaxGeneration {
		return 0
	}
	return c[gen-1]
}

// Validate rejects negative counts.
func (c CountVector) Validate() error {
	for i, n := range c {
		if n < 0 {
			return domain.Invalid("counts", "generation %d count %d is negative", i+1, n)
		}
	}
	return nil
}

// Count tallies descendants whose value equals referencePrice exactly.
// There is no tolerance band.
func Count(snap *domain.NetworkSnapshot, referencePrice float64) CountVector {
	return CountNodes(snap.Flatten(domain.MaxGeneration), referencePrice)
}

// CountNodes is Count over an already flattened snapshot.
func CountNodes(nodes []domain.NetworkNode, referencePrice float64) CountVector {
	var c CountVector
	for _, n := range nodes {
		if n.Generation < 1 || n.Generation > domain.MaxGeneration {
			continue
		}
		if n.Value == referencePrice {
			c[n.Generation-1]++
		}
	}
	return c
}
