package weighting

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"

	"hlpulse/internal/config"
	"hlpulse/internal/trader"
)

func testCfg() config.WeightingConfig {
	return config.WeightingConfig{
		DimensionWeights: config.DimensionWeights{
			Performance: 0.4,
			Size:        0.3,
			Recency:     0.2,
			Regime:      0.1,
		},
		PerformanceSub: config.PerformanceSubWeights{
			Sharpe:       0.2,
			Sortino:      0.2,
			Consistency:  0.2,
			MaxDrawdown:  0.15,
			WinRate:      0.15,
			ProfitFactor: 0.1,
		},
	}
}

func rowWithWindows(accountValue float64, day, week, month, allTime float64) trader.LeaderboardRow {
	return trader.LeaderboardRow{
		ID:           "0xabc",
		AccountValue: decimal.NewFromFloat(accountValue),
		Windows: map[trader.Window]trader.WindowPerformance{
			trader.WindowDay:     {ROI: decimal.NewFromFloat(day)},
			trader.WindowWeek:    {ROI: decimal.NewFromFloat(week)},
			trader.WindowMonth:   {ROI: decimal.NewFromFloat(month)},
			trader.WindowAllTime: {ROI: decimal.NewFromFloat(allTime)},
		},
	}
}

// ============================================================
// sizeScore / classify tiers
// ============================================================

func TestSizeScore_Thresholds(t *testing.T) {
	assert.Equal(t, 3.0, sizeScore(25_000_000))
	assert.Equal(t, 2.5, sizeScore(10_000_000))
	assert.Equal(t, 2.0, sizeScore(5_000_000))
	assert.Equal(t, 1.5, sizeScore(1_000_000))
	assert.Equal(t, 1.0, sizeScore(100_000))
	assert.Equal(t, 0.5, sizeScore(1_000))
}

func TestClassify_AlphaWhale(t *testing.T) {
	assert.Equal(t, TierAlphaWhale, classify(3.0, 85))
}

func TestClassify_FallsThroughToSmall(t *testing.T) {
	assert.Equal(t, TierSmall, classify(0.5, 10))
}

func TestClassify_Elite_NotQualifiedBySizeAlone(t *testing.T) {
	// large size but low performance should not classify as whale/large
	assert.Equal(t, TierSmall, classify(3.0, 10))
}

// ============================================================
// Compute — composite determinism and regime sensitivity
// ============================================================

func TestCompute_IsPureFunctionOfInputs(t *testing.T) {
	row := rowWithWindows(2_000_000, 0.02, 0.05, 0.1, 0.3)
	cfg := testCfg()

	w1 := Compute(row, cfg, RegimeUnknown)
	w2 := Compute(row, cfg, RegimeUnknown)
	assert.Equal(t, w1, w2)
}

func TestCompute_RegimeChangesRegimeScoreOnly(t *testing.T) {
	row := rowWithWindows(2_000_000, 0.02, 0.05, 0.1, 0.3)
	cfg := testCfg()

	unknown := Compute(row, cfg, RegimeUnknown)
	ranging := Compute(row, cfg, RegimeRanging)

	assert.Equal(t, unknown.Performance, ranging.Performance)
	assert.Equal(t, unknown.Size, ranging.Size)
	assert.Equal(t, unknown.Recency, ranging.Recency)
	assert.NotEqual(t, unknown.RegimeScore, ranging.RegimeScore)
	assert.NotEqual(t, unknown.Composite, ranging.Composite)
}

func TestCompute_EmptyWindows_ZeroROI(t *testing.T) {
	row := trader.LeaderboardRow{ID: "0xnone", AccountValue: decimal.NewFromInt(0)}
	w := Compute(row, testCfg(), RegimeUnknown)

	assert.Equal(t, TierSmall, w.Tier)
	assert.GreaterOrEqual(t, w.Performance, 0.0)
	assert.LessOrEqual(t, w.Performance, 100.0)
}

// ============================================================
// recencyScore bounds
// ============================================================

func TestRecencyScore_BoundedRange(t *testing.T) {
	row := rowWithWindows(1_000_000, 2.0, 2.0, 2.0, 2.0) // extreme positive ROI
	got := recencyScore(row)
	assert.LessOrEqual(t, got, 1.5)
	assert.GreaterOrEqual(t, got, 0.5)
}

func TestRecencyScore_Neutral_AtZeroROI(t *testing.T) {
	row := rowWithWindows(1_000_000, 0, 0, 0, 0)
	assert.InDelta(t, 1.0, recencyScore(row), 1e-9)
}

// ============================================================
// regimeFactor
// ============================================================

func TestRegimeFactor_UnknownIsNeutral(t *testing.T) {
	row := rowWithWindows(1_000_000, 0.1, 0.1, 0.1, 0.1)
	assert.Equal(t, 1.0, regimeFactor(RegimeUnknown, row))
}

func TestRegimeFactor_RangingIsDampened(t *testing.T) {
	row := rowWithWindows(1_000_000, 0.1, 0.1, 0.1, 0.1)
	assert.Equal(t, 0.9, regimeFactor(RegimeRanging, row))
}

// ============================================================
// clamp
// ============================================================

func TestClamp(t *testing.T) {
	assert.Equal(t, 0.0, clamp(-5, 0, 1))
	assert.Equal(t, 1.0, clamp(5, 0, 1))
	assert.Equal(t, 0.5, clamp(0.5, 0, 1))
}

// ============================================================
// StaticRegimeProvider
// ============================================================

func TestStaticRegimeProvider_AlwaysUnknown(t *testing.T) {
	var p RegimeProvider = StaticRegimeProvider{}
	assert.Equal(t, RegimeUnknown, p.CurrentRegime())
}

// ============================================================
// Cache
// ============================================================

func TestCache_GetCachesByTrader(t *testing.T) {
	c := NewCache()
	row := rowWithWindows(2_000_000, 0.02, 0.05, 0.1, 0.3)
	cfg := testCfg()

	first := c.Get("trader-1", row, cfg, RegimeUnknown)
	second := c.Get("trader-1", row, cfg, RegimeUnknown)
	assert.Equal(t, first, second)
}

func TestCache_RegimeChangeInvalidatesAll(t *testing.T) {
	c := NewCache()
	row := rowWithWindows(2_000_000, 0.02, 0.05, 0.1, 0.3)
	cfg := testCfg()

	unknown := c.Get("trader-1", row, cfg, RegimeUnknown)
	ranging := c.Get("trader-1", row, cfg, RegimeRanging)
	assert.NotEqual(t, unknown.Composite, ranging.Composite)
}

func TestCache_Invalidate_RemovesSingleEntry(t *testing.T) {
	c := NewCache()
	row := rowWithWindows(2_000_000, 0.02, 0.05, 0.1, 0.3)
	cfg := testCfg()

	c.Get("trader-1", row, cfg, RegimeUnknown)
	c.Invalidate("trader-1")

	c.mu.RLock()
	_, exists := c.weights["trader-1"]
	c.mu.RUnlock()
	assert.False(t, exists)
}
