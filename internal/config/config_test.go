package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// ============================================================
// Load — missing file falls back to defaults
// ============================================================

func TestLoad_MissingFile_UsesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "does-not-exist.yaml"))
	require.NoError(t, err)

	assert.Equal(t, "BTC", cfg.HyperliquidSymbol)
	assert.Equal(t, 3600, cfg.LeaderboardRefreshSeconds)
	assert.Equal(t, 30, cfg.Retention.TraderPositionsDays)
	assert.Equal(t, 8090, cfg.HTTP.Port)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, "HIGH", cfg.Telegram.MinPriority)
}

func TestLoad_EmptyPath_UsesDefaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "BTC", cfg.HyperliquidSymbol)
}

// ============================================================
// Load — config file overrides defaults
// ============================================================

func TestLoad_ConfigFile_OverridesDefault(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cfg.yaml")
	require.NoError(t, os.WriteFile(path, []byte("hyperliquid_symbol: ETH\nhttp:\n  port: 9100\n"), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "ETH", cfg.HyperliquidSymbol)
	assert.Equal(t, 9100, cfg.HTTP.Port)
}

// ============================================================
// Load — unrecognized config keys are rejected, not silently dropped
// ============================================================

func TestLoad_UnknownConfigKey_ReturnsError(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cfg.yaml")
	require.NoError(t, os.WriteFile(path, []byte("hyperliquid_symbol: ETH\nnot_a_real_key: 1\n"), 0o644))

	_, err := Load(path)
	assert.Error(t, err)
}

func TestLoad_UnknownNestedConfigKey_ReturnsError(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cfg.yaml")
	require.NoError(t, os.WriteFile(path, []byte("scoring:\n  max_count: 10\n  bogus_field: true\n"), 0o644))

	_, err := Load(path)
	assert.Error(t, err)
}

// ============================================================
// Load — environment variables override defaults and file
// ============================================================

func TestLoad_EnvVar_OverridesDefault(t *testing.T) {
	t.Setenv("HYPERLIQUID__SYMBOL", "SOL")
	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "SOL", cfg.HyperliquidSymbol)
}

func TestLoad_EnvVar_OverridesNestedRetention(t *testing.T) {
	t.Setenv("RETENTION__TRADER_POSITIONS_DAYS", "5")
	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, 5, cfg.Retention.TraderPositionsDays)
}

// ============================================================
// Validate
// ============================================================

func TestValidate_EmptySymbol_ReturnsError(t *testing.T) {
	cfg := validConfig()
	cfg.HyperliquidSymbol = ""
	assert.Error(t, Validate(&cfg))
}

func TestValidate_NonPositiveMaxCount_ReturnsError(t *testing.T) {
	cfg := validConfig()
	cfg.Scoring.MaxCount = 0
	assert.Error(t, Validate(&cfg))
}

func TestValidate_PortOutOfRange_ReturnsError(t *testing.T) {
	cfg := validConfig()
	cfg.HTTP.Port = 70000
	assert.Error(t, Validate(&cfg))
}

func TestValidate_DimensionWeightsMustSumToOne(t *testing.T) {
	cfg := validConfig()
	cfg.Weighting.DimensionWeights = DimensionWeights{Performance: 0.5, Size: 0.5, Recency: 0.5, Regime: 0.5}
	assert.Error(t, Validate(&cfg))
}

func TestValidate_DimensionWeightsWithinTolerance_Passes(t *testing.T) {
	cfg := validConfig()
	cfg.Weighting.DimensionWeights = DimensionWeights{Performance: 0.41, Size: 0.29, Recency: 0.20, Regime: 0.10}
	assert.NoError(t, Validate(&cfg))
}

func TestValidate_WellFormedConfig_Passes(t *testing.T) {
	cfg := validConfig()
	assert.NoError(t, Validate(&cfg))
}

func validConfig() Config {
	return Config{
		HyperliquidSymbol: "BTC",
		Scoring:           ScoringConfig{MaxCount: 500},
		HTTP:              HTTPConfig{Port: 8090},
		Weighting: WeightingConfig{
			DimensionWeights: DimensionWeights{Performance: 0.40, Size: 0.30, Recency: 0.20, Regime: 0.10},
		},
	}
}
