package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestApplyVenueConfigFile_OverridesVenuesAndSpeedRank(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "venues.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
venues:
  - uniswap
  - curve
venueSpeedRank:
  uniswap: 1
  curve: 2
`), 0o644))

	cfg := EngineConfig{
		Venues:         []string{"uniswap", "sushiswap", "curve", "balancer"},
		VenueSpeedRank: map[string]int{"uniswap": 1, "sushiswap": 2, "curve": 2, "balancer": 3},
	}

	require.NoError(t, applyVenueConfigFile(&cfg, path))
	assert.Equal(t, []string{"uniswap", "curve"}, cfg.Venues)
	assert.Equal(t, map[string]int{"uniswap": 1, "curve": 2}, cfg.VenueSpeedRank)
}

func TestApplyVenueConfigFile_LeavesDefaultsWhenFieldsOmitted(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "venues.yaml")
	require.NoError(t, os.WriteFile(path, []byte("venueSpeedRank:\n  uniswap: 9\n"), 0o644))

	cfg := EngineConfig{Venues: []string{"uniswap", "sushiswap"}}
	require.NoError(t, applyVenueConfigFile(&cfg, path))

	assert.Equal(t, []string{"uniswap", "sushiswap"}, cfg.Venues, "omitted venues field must not clear the existing roster")
	assert.Equal(t, map[string]int{"uniswap": 9}, cfg.VenueSpeedRank)
}

func TestApplyVenueConfigFile_MissingFileReturnsError(t *testing.T) {
	cfg := EngineConfig{}
	err := applyVenueConfigFile(&cfg, "/nonexistent/path/venues.yaml")
	require.Error(t, err)
}
