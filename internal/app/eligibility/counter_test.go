package eligibility

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/gdp-network/gdpnet/internal/domain"
)

func TestCount_PriceEquality(t *testing.T) {
	rows := []domain.DescendantRow{
		{UserID: "a", ParentID: "root", Value: 1.5, Depth: 1},
		{UserID: "b", ParentID: "root", Value: 1.5, Depth: 1},
		{UserID: "c", ParentID: "root", Value: 1.50001, Depth: 1},
		{UserID: "d", ParentID: "a", Value: 1.5, Depth: 2},
		{UserID: "e", ParentID: "d", Value: 2.0, Depth: 3},
		{UserID: "f", ParentID: "e", Value: 1.5, Depth: 4},
	}
	snap := domain.BuildSnapshot("root", 1.5, rows, domain.MaxGeneration, time.Now())

	assert.Equal(t, CountVector{2, 1, 0, 1, 0}, Count(snap, 1.5))
}

func TestCount_IgnoresDeeperThanFive(t *testing.T) {
	rows := []domain.DescendantRow{
		{UserID: "g1", ParentID: "root", Value: 1, Depth: 1},
		{UserID: "g2", ParentID: "g1", Value: 1, Depth: 2},
		{UserID: "g3", ParentID: "g2", Value: 1, Depth: 3},
		{UserID: "g4", ParentID: "g3", Value: 1, Depth: 4},
		{UserID: "g5", ParentID: "g4", Value: 1, Depth: 5},
		{UserID: "g6", ParentID: "g5", Value: 1, Depth: 6},
	}
	snap := domain.BuildSnapshot("root", 1, rows, 6, time.Now())

	assert.Equal(t, CountVector{1, 1, 1, 1, 1}, Count(snap, 1))
}

func TestCount_EmptySnapshot(t *testing.T) {
	assert.Equal(t, CountVector{}, Count(nil, 1))
	assert.Equal(t, CountVector{}, Count(&domain.NetworkSnapshot{}, 1))
}

func TestCountVector_At(t *testing.T) {
	c := CountVector{1, 2, 3, 4, 5}
	assert.Equal(t, 1, c.At(1))
	assert.Equal(t, 5, c.At(5))
	assert.Zero(t, c.At(0))
	assert.Zero(t, c.At(6))
}
