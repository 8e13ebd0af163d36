package settings

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gdp-network/gdpnet/internal/domain"
)

func TestFileStore_Missing(t *testing.T) {
	s := NewFileStore(filepath.Join(t.TempDir(), "rewards.yaml"))
	rs, err := s.RewardSettings(context.Background())
	require.NoError(t, err)
	assert.Equal(t, domain.DefaultRewardSettings(), rs)
}

func TestFileStore_PartialFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "rewards.yaml")
	require.NoError(t, os.WriteFile(path, []byte("gdp_reward_percentage: 40\ninvestment_term: 30\n"), 0o644))

	rs, err := NewFileStore(path).RewardSettings(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 40.0, rs.GDPRewardPercentage)
	assert.Equal(t, 30, rs.InvestmentTerm)
	assert.Equal(t, 100.0, rs.Percentage)
}

func TestFileStore_Reload(t *testing.T) {
	path := filepath.Join(t.TempDir(), "rewards.yaml")
	require.NoError(t, Save(path, domain.RewardSettings{GDPRewardPercentage: 10}))

	s := NewFileStore(path)
	rs, err := s.RewardSettings(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 10.0, rs.GDPRewardPercentage)

	require.NoError(t, Save(path, domain.RewardSettings{GDPRewardPercentage: 20}))
	future := time.Now().Add(time.Minute)
	require.NoError(t, os.Chtimes(path, future, future))

	rs, err = s.RewardSettings(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 20.0, rs.GDPRewardPercentage)
}

func TestLoad_Invalid(t *testing.T) {
	dir := t.TempDir()

	bad := filepath.Join(dir, "bad.yaml")
	require.NoError(t, os.WriteFile(bad, []byte("percentage: [1"), 0o644))
	_, err := Load(bad)
	assert.Error(t, err)

	neg := filepath.Join(dir, "neg.yaml")
	require.NoError(t, os.WriteFile(neg, []byte("investment_term: -5\n"), 0o644))
	_, err = Load(neg)
	assert.ErrorIs(t, err, domain.ErrInvalidInput)

	assert.ErrorIs(t, Save(neg, domain.RewardSettings{Percentage: -1}), domain.ErrInvalidInput)
}
