package signal

import (
	"context"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"hlpulse/internal/config"
	"hlpulse/internal/eventbus"
	"hlpulse/internal/trader"
	"hlpulse/internal/weighting"
)

type fakeInfoProvider struct {
	rows map[string]trader.LeaderboardRow
}

func (f *fakeInfoProvider) Get(id string) (trader.LeaderboardRow, bool) {
	row, ok := f.rows[id]
	return row, ok
}

func newFakeInfoProvider(ids ...string) *fakeInfoProvider {
	rows := make(map[string]trader.LeaderboardRow, len(ids))
	for _, id := range ids {
		rows[id] = trader.LeaderboardRow{ID: id, AccountValue: decimal.NewFromInt(2_000_000)}
	}
	return &fakeInfoProvider{rows: rows}
}

func testWeightCfg() config.WeightingConfig {
	return config.WeightingConfig{
		DimensionWeights: config.DimensionWeights{Performance: 0.4, Size: 0.3, Recency: 0.2, Regime: 0.1},
		PerformanceSub: config.PerformanceSubWeights{
			Sharpe: 0.2, Sortino: 0.2, Consistency: 0.2, MaxDrawdown: 0.15, WinRate: 0.15, ProfitFactor: 0.1,
		},
	}
}

func scoredEvent(address, szi, mp string, t int64) eventbus.PositionScoredEvent {
	return eventbus.PositionScoredEvent{
		PositionRawEvent: eventbus.PositionRawEvent{
			Address: address, Coin: "BTC", Szi: szi, Ep: mp, Mp: mp, T: t,
		},
		Score: 50,
	}
}

// ============================================================
// OnPositionScored — symbol filtering and unresolved traders
// ============================================================

func TestOnPositionScored_IgnoresOtherSymbols(t *testing.T) {
	a := NewAggregator("BTC", newFakeInfoProvider("0x1"), weighting.StaticRegimeProvider{}, nil, nil)
	evt := scoredEvent("0x1", "1.0", "60000", 100)
	evt.Coin = "ETH"

	a.OnPositionScored(evt, testWeightCfg())

	_, ok := a.Current()
	assert.False(t, ok, "no signal should be computed for an untracked symbol")
}

func TestOnPositionScored_SkipsUnresolvedTrader(t *testing.T) {
	a := NewAggregator("BTC", newFakeInfoProvider(), weighting.StaticRegimeProvider{}, nil, nil)
	a.OnPositionScored(scoredEvent("0xunknown", "1.0", "60000", 100), testWeightCfg())

	_, ok := a.Current()
	assert.False(t, ok)
}

// ============================================================
// recompute — bias, counts, recommendation
// ============================================================

func TestOnPositionScored_SingleLong_RecommendsBuy(t *testing.T) {
	a := NewAggregator("BTC", newFakeInfoProvider("0x1"), weighting.StaticRegimeProvider{}, nil, nil)
	a.OnPositionScored(scoredEvent("0x1", "10.0", "60000", 100), testWeightCfg())

	sig, ok := a.Current()
	require.True(t, ok)
	assert.Equal(t, "BUY", sig.Recommendation)
	assert.Equal(t, 1, sig.Counts.Long)
	assert.Equal(t, 0, sig.Counts.Short)
	assert.InDelta(t, 1.0, sig.LongBias, 1e-9)
}

func TestOnPositionScored_SingleShort_RecommendsSell(t *testing.T) {
	a := NewAggregator("BTC", newFakeInfoProvider("0x1"), weighting.StaticRegimeProvider{}, nil, nil)
	a.OnPositionScored(scoredEvent("0x1", "-10.0", "60000", 100), testWeightCfg())

	sig, ok := a.Current()
	require.True(t, ok)
	assert.Equal(t, "SELL", sig.Recommendation)
	assert.Equal(t, 1, sig.Counts.Short)
}

func TestOnPositionScored_FlatPosition_NotCountedInBias(t *testing.T) {
	a := NewAggregator("BTC", newFakeInfoProvider("0x1"), weighting.StaticRegimeProvider{}, nil, nil)
	a.OnPositionScored(scoredEvent("0x1", "0", "60000", 100), testWeightCfg())

	sig, ok := a.Current()
	require.True(t, ok)
	assert.Equal(t, 1, sig.Counts.Flat)
	assert.Equal(t, "NEUTRAL", sig.Recommendation)
}

func TestOnPositionScored_BalancedLongShort_Neutral(t *testing.T) {
	a := NewAggregator("BTC", newFakeInfoProvider("0x1", "0x2"), weighting.StaticRegimeProvider{}, nil, nil)
	a.OnPositionScored(scoredEvent("0x1", "10.0", "60000", 100), testWeightCfg())
	a.OnPositionScored(scoredEvent("0x2", "-10.0", "60000", 100), testWeightCfg())

	sig, ok := a.Current()
	require.True(t, ok)
	assert.InDelta(t, 0.0, sig.NetExposure, 1e-9)
	assert.Equal(t, "NEUTRAL", sig.Recommendation)
}

func TestOnPositionScored_LaterUpdateReplacesTraderState(t *testing.T) {
	a := NewAggregator("BTC", newFakeInfoProvider("0x1"), weighting.StaticRegimeProvider{}, nil, nil)
	a.OnPositionScored(scoredEvent("0x1", "10.0", "60000", 100), testWeightCfg())
	a.OnPositionScored(scoredEvent("0x1", "-10.0", "60000", 200), testWeightCfg())

	sig, ok := a.Current()
	require.True(t, ok)
	assert.Equal(t, 0, sig.Counts.Long)
	assert.Equal(t, 1, sig.Counts.Short)
}

// ============================================================
// warming gate forces NEUTRAL / zero confidence
// ============================================================

func TestOnPositionScored_WarmingForcesNeutral(t *testing.T) {
	warming := func() bool { return true }
	a := NewAggregator("BTC", newFakeInfoProvider("0x1"), weighting.StaticRegimeProvider{}, warming, nil)
	a.OnPositionScored(scoredEvent("0x1", "10.0", "60000", 100), testWeightCfg())

	sig, ok := a.Current()
	require.True(t, ok)
	assert.Equal(t, "NEUTRAL", sig.Recommendation)
	assert.Equal(t, 0.0, sig.Confidence)
}

// ============================================================
// publish is invoked with the computed signal
// ============================================================

func TestOnPositionScored_PublishesSignalsOut(t *testing.T) {
	var published eventbus.SignalOutEvent
	var gotTopic eventbus.Topic
	publish := func(ctx context.Context, topic eventbus.Topic, payload interface{}) error {
		gotTopic = topic
		published = payload.(eventbus.SignalOutEvent)
		return nil
	}

	a := NewAggregator("BTC", newFakeInfoProvider("0x1"), weighting.StaticRegimeProvider{}, nil, publish)
	a.OnPositionScored(scoredEvent("0x1", "10.0", "60000", 100), testWeightCfg())

	assert.Equal(t, eventbus.TopicSignalsOut, gotTopic)
	assert.Equal(t, "aggregate_signal", published.Kind)
	assert.Equal(t, "BTC", published.Symbol)
}

// ============================================================
// InvalidateTrader clears cached weight without affecting position state
// ============================================================

func TestInvalidateTrader_DoesNotPanicWhenUncached(t *testing.T) {
	a := NewAggregator("BTC", newFakeInfoProvider("0x1"), weighting.StaticRegimeProvider{}, nil, nil)
	assert.NotPanics(t, func() { a.InvalidateTrader("0x1") })
}

// ============================================================
// helpers
// ============================================================

func TestParseDec_InvalidString_ReturnsZero(t *testing.T) {
	assert.True(t, parseDec("not-a-number").IsZero())
	assert.True(t, parseDec("").IsZero())
}

func TestAbsFloat(t *testing.T) {
	assert.Equal(t, 5.0, absFloat(-5))
	assert.Equal(t, 5.0, absFloat(5))
}

func TestMinFloat(t *testing.T) {
	assert.Equal(t, 1.0, minFloat(1, 2))
	assert.Equal(t, 1.0, minFloat(2, 1))
}
