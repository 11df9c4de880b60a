// Package weighting implements the Weighting Engine (§4.4): derives a per-trader
// TraderWeight from its window performances, account value, and the current market
// regime, cached until invalidated by a regime change. Grounded on the per-trader
// cached-metric map pattern in paper_trader.go, generalized from PnL bookkeeping to
// a pure scoring function.
package weighting

import (
	"math"
	"sync"

	"hlpulse/internal/config"
	"hlpulse/internal/trader"
)

// Regime is the external market-regime label (§4.4).
type Regime string

const (
	RegimeHighVolatility Regime = "high_volatility"
	RegimeTrending       Regime = "trending"
	RegimeRanging        Regime = "ranging"
	RegimeUnknown        Regime = "unknown"
)

// RegimeProvider supplies the current market regime. This expansion carries a
// static stub (StaticRegimeProvider) as the seam for the out-of-scope ML regime
// detector (§4.4, §9).
type RegimeProvider interface {
	CurrentRegime() Regime
}

// StaticRegimeProvider always reports RegimeUnknown; it satisfies RegimeProvider
// until a real detector is wired in.
type StaticRegimeProvider struct{}

func (StaticRegimeProvider) CurrentRegime() Regime { return RegimeUnknown }

// Tier is the derived (size, performance) classification label (§4.4).
type Tier string

const (
	TierAlphaWhale Tier = "alpha_whale"
	TierWhale      Tier = "whale"
	TierLarge      Tier = "large"
	TierElite      Tier = "elite"
	TierStandard   Tier = "standard"
	TierSmall      Tier = "small"
)

// TraderWeight is the derived, non-persisted per-trader weighting (§3, §4.4).
type TraderWeight struct {
	Performance float64 // 0-100
	Size        float64 // 0.5-3.0
	Recency     float64 // 0.5-1.5
	RegimeScore float64 // 0.8-1.2
	Composite   float64
	Tier        Tier
}

var sizeTiers = []struct {
	threshold float64
	value     float64
}{
	{20_000_000, 3.0},
	{10_000_000, 2.5},
	{5_000_000, 2.0},
	{1_000_000, 1.5},
	{100_000, 1.0},
}

// Compute derives a TraderWeight from a trader's current window performances and
// account value under the given regime (§4.4). It is a pure function of its inputs:
// calling it twice with unchanged arguments yields an identical result.
func Compute(row trader.LeaderboardRow, cfg config.WeightingConfig, regime Regime) TraderWeight {
	perf := performanceScore(row, cfg.PerformanceSub)
	size := sizeScore(row.AccountValue.InexactFloat64())
	recency := recencyScore(row)
	regimeScore := regimeFactor(regime, row)

	w := cfg.DimensionWeights
	composite := w.Performance*perf + w.Size*size + w.Recency*recency + w.Regime*regimeScore

	return TraderWeight{
		Performance: perf,
		Size:        size,
		Recency:     recency,
		RegimeScore: regimeScore,
		Composite:   composite,
		Tier:        classify(size, perf),
	}
}

func classify(size, perf float64) Tier {
	switch {
	case size >= 3.0 && perf >= 80:
		return TierAlphaWhale
	case size >= 2.5 && perf >= 70:
		return TierWhale
	case size >= 2.0 && perf >= 65:
		return TierLarge
	case perf >= 60:
		return TierElite
	case perf >= 50:
		return TierStandard
	default:
		return TierSmall
	}
}

func sizeScore(accountValue float64) float64 {
	for _, tier := range sizeTiers {
		if accountValue >= tier.threshold {
			return tier.value
		}
	}
	return 0.5
}

func roiFloat(row trader.LeaderboardRow, w trader.Window) float64 {
	wp, ok := row.Windows[w]
	if !ok {
		return 0
	}
	return wp.ROI.InexactFloat64()
}

// performanceScore is the weighted sum of six sub-metrics (§4.4). Each sub-metric is
// estimated from the available window performances via the documented approximate
// formulas; the point is the functional form, not calibration — every multiplier
// below is config (PerformanceSubWeights).
func performanceScore(row trader.LeaderboardRow, w config.PerformanceSubWeights) float64 {
	day := roiFloat(row, trader.WindowDay)
	week := roiFloat(row, trader.WindowWeek)
	month := roiFloat(row, trader.WindowMonth)
	allTime := roiFloat(row, trader.WindowAllTime)

	sharpe := sharpeLike(day, week, month)
	sortino := sortinoLike(day, week, month)
	consistency := consistencyFraction(day, week, month, allTime)
	maxDrawdown := drawdownBand(allTime)
	winRate := winRateEstimate(day, week)
	profitFactor := profitFactorBand(allTime)

	raw := w.Sharpe*sharpe + w.Sortino*sortino + w.Consistency*consistency +
		w.MaxDrawdown*maxDrawdown + w.WinRate*winRate + w.ProfitFactor*profitFactor
	return clamp(raw*100, 0, 100)
}

// sharpeLike approximates a Sharpe ratio as mean/stdev over the three normalized ROI
// samples {day, week/7, month/30}, squashed into [0,1] via a logistic-ish clamp.
func sharpeLike(day, week, month float64) float64 {
	samples := []float64{day, week / 7, month / 30}
	mean, stdev := meanStdev(samples)
	if stdev == 0 {
		return clamp(0.5+mean*10, 0, 1)
	}
	return clamp(0.5+(mean/stdev)*0.25, 0, 1)
}

// sortinoLike is the same ratio but the denominator considers only downside samples.
func sortinoLike(day, week, month float64) float64 {
	samples := []float64{day, week / 7, month / 30}
	mean, _ := meanStdev(samples)

	var downside []float64
	for _, s := range samples {
		if s < 0 {
			downside = append(downside, s)
		}
	}
	if len(downside) == 0 {
		return clamp(0.5+mean*10, 0, 1)
	}
	_, dstdev := meanStdev(downside)
	if dstdev == 0 {
		return clamp(0.5+mean*10, 0, 1)
	}
	return clamp(0.5+(mean/dstdev)*0.25, 0, 1)
}

func consistencyFraction(day, week, month, allTime float64) float64 {
	positive := 0
	for _, r := range []float64{day, week, month, allTime} {
		if r > 0 {
			positive++
		}
	}
	return float64(positive) / 4
}

// drawdownBand estimates max-drawdown resilience from the all-time ROI band: a
// strongly positive all-time return implies the trader has weathered drawdowns
// without net damage.
func drawdownBand(allTime float64) float64 {
	switch {
	case allTime >= 1.0:
		return 0.9
	case allTime >= 0.25:
		return 0.7
	case allTime >= 0:
		return 0.5
	default:
		return 0.2
	}
}

func winRateEstimate(day, week float64) float64 {
	wins := 0
	if day > 0 {
		wins++
	}
	if week > 0 {
		wins++
	}
	return float64(wins) / 2
}

func profitFactorBand(allTime float64) float64 {
	switch {
	case allTime >= 2.0:
		return 1.0
	case allTime >= 0.5:
		return 0.7
	case allTime >= 0:
		return 0.4
	default:
		return 0.1
	}
}

// recencyScore weights the short windows toward the present and maps the result
// linearly into [0.5, 1.5] (§4.4).
func recencyScore(row trader.LeaderboardRow) float64 {
	day := roiFloat(row, trader.WindowDay)
	week := roiFloat(row, trader.WindowWeek)
	month := roiFloat(row, trader.WindowMonth)

	weighted := day*0.50 + week*0.30 + month*0.20
	// normalize a +/-100% weighted move to the full [0.5, 1.5] span
	normalized := clamp(weighted, -1, 1)
	return 1.0 + normalized*0.5
}

// regimeFactor applies the regime-specific functional form (§4.4).
func regimeFactor(regime Regime, row trader.LeaderboardRow) float64 {
	switch regime {
	case RegimeHighVolatility:
		day := roiFloat(row, trader.WindowDay)
		week := roiFloat(row, trader.WindowWeek)
		month := roiFloat(row, trader.WindowMonth)
		allTime := roiFloat(row, trader.WindowAllTime)
		consistency := consistencyFraction(day, week, month, allTime)
		return 0.8 + consistency*0.4
	case RegimeTrending:
		month := roiFloat(row, trader.WindowMonth)
		return 0.8 + clamp(math.Abs(month)*0.4, 0, 0.4)
	case RegimeRanging:
		return 0.9
	default:
		return 1.0
	}
}

func meanStdev(samples []float64) (mean, stdev float64) {
	if len(samples) == 0 {
		return 0, 0
	}
	var sum float64
	for _, s := range samples {
		sum += s
	}
	mean = sum / float64(len(samples))

	var variance float64
	for _, s := range samples {
		d := s - mean
		variance += d * d
	}
	variance /= float64(len(samples))
	return mean, math.Sqrt(variance)
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// Cache holds per-trader TraderWeight results, invalidated wholesale on regime
// change (§4.4: "cached by trader id; invalidated on regime change").
type Cache struct {
	mu      sync.RWMutex
	regime  Regime
	weights map[string]TraderWeight
}

// NewCache builds an empty weight cache.
func NewCache() *Cache {
	return &Cache{weights: make(map[string]TraderWeight)}
}

// Get returns a cached weight for id under the given regime, computing and storing
// it via cfg/row if absent or if regime has changed since the last Get.
func (c *Cache) Get(id string, row trader.LeaderboardRow, cfg config.WeightingConfig, regime Regime) TraderWeight {
	c.mu.Lock()
	defer c.mu.Unlock()

	if regime != c.regime {
		c.weights = make(map[string]TraderWeight)
		c.regime = regime
	}

	if w, ok := c.weights[id]; ok {
		return w
	}

	w := Compute(row, cfg, regime)
	c.weights[id] = w
	return w
}

// Invalidate drops a single trader's cached weight, e.g. after a leaderboard refresh
// changes its window performances.
func (c *Cache) Invalidate(id string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.weights, id)
}
