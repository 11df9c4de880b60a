// Package signal implements the Signal Aggregator (§4.5): on every positions.scored
// event for the tracked symbol, folds the trader's position into an in-memory map
// and recomputes the current AggregateSignal. Grounded on the per-trader cached-state
// map and recompute-on-update pattern of paper_trader.go, generalized from PnL
// bookkeeping to a weighted directional-bias fold.
package signal

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"hlpulse/internal/config"
	"hlpulse/internal/eventbus"
	"hlpulse/internal/metrics"
	"hlpulse/internal/trader"
	"hlpulse/internal/weighting"
)

// TraderInfoProvider resolves a trader's current leaderboard row (account value and
// window performances) for weighting, independent of the live position stream.
type TraderInfoProvider interface {
	Get(id string) (trader.LeaderboardRow, bool)
}

// position is one trader's current non-flat-or-flat state for the tracked symbol.
type position struct {
	traderID      string
	szi           decimal.Decimal
	markPrice     decimal.Decimal
	positionValue decimal.Decimal
	tier          weighting.Tier
	composite     float64
	updatedAt     time.Time
}

func (p position) direction() string {
	switch {
	case p.szi.IsPositive():
		return "long"
	case p.szi.IsNegative():
		return "short"
	default:
		return "flat"
	}
}

// AggregateSignal is the (symbol, timestamp) derived signal (§3).
type AggregateSignal struct {
	Symbol         string                    `json:"symbol"`
	Timestamp      int64                     `json:"t"`
	Recommendation string                    `json:"rec"` // BUY, SELL, NEUTRAL
	Confidence     float64                   `json:"conf"`
	LongBias       float64                   `json:"long_bias"`
	ShortBias      float64                   `json:"short_bias"`
	NetExposure    float64                   `json:"net_exposure"`
	Counts         Counts                    `json:"counts"`
	WhaleBreakdown map[string]map[string]int `json:"whale_breakdown"`
	TopPositions   []TopPosition             `json:"top_positions"`
	PriceAtSignal  string                    `json:"price_at_signal"`
}

// Counts tallies traders by current direction.
type Counts struct {
	Long  int `json:"long"`
	Short int `json:"short"`
	Flat  int `json:"flat"`
}

// TopPosition is one entry of the top_positions list, sorted by composite weight.
type TopPosition struct {
	TraderID      string  `json:"trader_id"`
	Direction     string  `json:"direction"`
	Composite     float64 `json:"composite"`
	PositionValue string  `json:"position_value"`
}

const topPositionsLimit = 10

// Publisher sends a signals.out event; satisfied by eventbus.Bus.Publish.
type Publisher func(ctx context.Context, topic eventbus.Topic, payload interface{}) error

// Aggregator holds the per-trader position/weight state for one tracked symbol.
type Aggregator struct {
	symbol  string
	info    TraderInfoProvider
	regime  weighting.RegimeProvider
	weights *weighting.Cache
	warming func() bool
	publish Publisher

	mu        sync.RWMutex
	positions map[string]position
	current   *AggregateSignal
	lastPrice decimal.Decimal
}

// NewAggregator builds a Signal Aggregator for symbol (the single configured
// hyperliquid_symbol, default BTC).
func NewAggregator(symbol string, info TraderInfoProvider, regime weighting.RegimeProvider, warming func() bool, publish Publisher) *Aggregator {
	return &Aggregator{
		symbol:    symbol,
		info:      info,
		regime:    regime,
		weights:   weighting.NewCache(),
		warming:   warming,
		publish:   publish,
		positions: make(map[string]position),
	}
}

// Current returns the current signal for the tracked symbol, if any has been
// computed yet.
func (a *Aggregator) Current() (AggregateSignal, bool) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	if a.current == nil {
		return AggregateSignal{}, false
	}
	return *a.current, true
}

// OnPositionScored folds one positions.scored event into the in-memory state and
// recomputes the aggregate signal, if the event's coin matches the tracked symbol.
// The trader's leaderboard row is resolved via the configured TraderInfoProvider; a
// trader with no resolvable row (not yet ingested by a leaderboard refresh) is
// skipped rather than weighted with zero values.
func (a *Aggregator) OnPositionScored(evt eventbus.PositionScoredEvent, weightCfg config.WeightingConfig) {
	if evt.Coin != a.symbol {
		return
	}

	row, ok := a.info.Get(evt.Address)
	if !ok {
		return
	}

	szi := parseDec(evt.Szi)
	mp := parseDec(evt.Mp)
	posValue := szi.Abs().Mul(mp)

	regime := a.regime.CurrentRegime()
	w := a.weights.Get(evt.Address, row, weightCfg, regime)

	a.mu.Lock()
	a.positions[evt.Address] = position{
		traderID:      evt.Address,
		szi:           szi,
		markPrice:     mp,
		positionValue: posValue,
		tier:          w.Tier,
		composite:     w.Composite,
		updatedAt:     time.Now(),
	}
	a.mu.Unlock()

	a.recompute(evt.T)
}

// OnCandle records the tracked symbol's latest close price so it can be attached to
// the next computed AggregateSignal as price-at-signal (§3). Candles for any other
// symbol are ignored.
func (a *Aggregator) OnCandle(evt eventbus.CandleEvent) {
	if evt.Symbol != a.symbol {
		return
	}
	px := parseDec(evt.C)

	a.mu.Lock()
	a.lastPrice = px
	a.mu.Unlock()
}

// InvalidateTrader drops a trader's cached weight, e.g. after a leaderboard refresh.
func (a *Aggregator) InvalidateTrader(id string) {
	a.weights.Invalidate(id)
}

// recompute rebuilds the current AggregateSignal from the in-memory position map
// (§4.5); it is a stateless fold and therefore commutative over arrival order.
func (a *Aggregator) recompute(t int64) {
	if a.warming != nil && a.warming() {
		a.mu.Lock()
		a.current = &AggregateSignal{
			Symbol:         a.symbol,
			Timestamp:      t,
			Recommendation: "NEUTRAL",
			Confidence:     0,
			WhaleBreakdown: map[string]map[string]int{},
			PriceAtSignal:  a.lastPrice.String(),
		}
		a.mu.Unlock()
		a.publishCurrent()
		return
	}

	a.mu.RLock()
	snapshot := make([]position, 0, len(a.positions))
	for _, p := range a.positions {
		snapshot = append(snapshot, p)
	}
	a.mu.RUnlock()

	var weightedLong, weightedShort, totalWeight float64
	counts := Counts{}
	breakdown := map[string]map[string]int{}

	for _, p := range snapshot {
		dir := p.direction()
		switch dir {
		case "long":
			counts.Long++
		case "short":
			counts.Short++
		default:
			counts.Flat++
		}

		if dir == "flat" {
			continue
		}

		sizeFactor := p.positionValue.InexactFloat64() / 1_000_000
		effective := p.composite * sizeFactor
		totalWeight += effective

		if dir == "long" {
			weightedLong += effective
		} else {
			weightedShort += effective
		}

		tierKey := string(p.tier)
		if breakdown[tierKey] == nil {
			breakdown[tierKey] = map[string]int{}
		}
		breakdown[tierKey][dir]++
	}

	var longBias, shortBias, netBias float64
	if sum := weightedLong + weightedShort; sum > 0 {
		longBias = weightedLong / sum
		shortBias = weightedShort / sum
		netBias = longBias - shortBias
	}

	recommendation := "NEUTRAL"
	switch {
	case netBias > 0.2:
		recommendation = "BUY"
	case netBias < -0.2:
		recommendation = "SELL"
	}

	active := counts.Long + counts.Short
	confidence := 0.5*absFloat(netBias) + 0.3*minFloat(float64(active)/100, 1) + 0.2*minFloat(totalWeight/100, 1)

	top := topPositions(snapshot)

	a.mu.Lock()
	price := a.lastPrice
	sig := AggregateSignal{
		Symbol:         a.symbol,
		Timestamp:      t,
		Recommendation: recommendation,
		Confidence:     confidence,
		LongBias:       longBias,
		ShortBias:      shortBias,
		NetExposure:    netBias,
		Counts:         counts,
		WhaleBreakdown: breakdown,
		TopPositions:   top,
		PriceAtSignal:  price.String(),
	}
	a.current = &sig
	a.mu.Unlock()

	a.publishCurrent()
}

func (a *Aggregator) publishCurrent() {
	if a.publish == nil {
		return
	}
	sig, ok := a.Current()
	if !ok {
		return
	}
	metrics.SignalsEmittedTotal.WithLabelValues(a.symbol, sig.Recommendation).Inc()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	evt := eventbus.SignalOutEvent{Kind: "aggregate_signal", Symbol: a.symbol, Signal: sig}
	_ = a.publish(ctx, eventbus.TopicSignalsOut, evt)
}

func topPositions(snapshot []position) []TopPosition {
	nonFlat := make([]position, 0, len(snapshot))
	for _, p := range snapshot {
		if p.direction() != "flat" {
			nonFlat = append(nonFlat, p)
		}
	}
	sort.Slice(nonFlat, func(i, j int) bool {
		return nonFlat[i].composite > nonFlat[j].composite
	})
	if len(nonFlat) > topPositionsLimit {
		nonFlat = nonFlat[:topPositionsLimit]
	}

	out := make([]TopPosition, 0, len(nonFlat))
	for _, p := range nonFlat {
		out = append(out, TopPosition{
			TraderID:      p.traderID,
			Direction:     p.direction(),
			Composite:     p.composite,
			PositionValue: p.positionValue.String(),
		})
	}
	return out
}

func parseDec(s string) decimal.Decimal {
	if s == "" {
		return decimal.Zero
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero
	}
	return d
}

func absFloat(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}

func minFloat(a, b float64) float64 {
	if a < b {
		return a
	}
	return b
}
