package main

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"hlpulse/internal/bootstrap"
	"hlpulse/internal/config"
	"hlpulse/internal/eventbus"
	"hlpulse/internal/health"
	"hlpulse/internal/signal"
	"hlpulse/internal/trader"
	"hlpulse/internal/weighting"
	"hlpulse/internal/whale"
)

// newBus builds a Redis-backed bus when redisURL is set, otherwise the in-memory bus
// used for local/dev runs (§6).
func newBus(redisURL string, log zerolog.Logger) (eventbus.Bus, error) {
	if redisURL == "" {
		return eventbus.NewMemoryBus(log), nil
	}
	return eventbus.NewRedisBus(redisURL, log)
}

// traderRegistry caches the leaderboard rows the Signal System needs for weighting,
// populated from the bootstrap snapshot and refreshed on every later snapshot (§4.3,
// §4.4). It implements signal.TraderInfoProvider.
type traderRegistry struct {
	mu    sync.RWMutex
	rows  map[string]trader.LeaderboardRow
	score map[string]float64
	tags  map[string][]string
}

func newTraderRegistry() *traderRegistry {
	return &traderRegistry{
		rows:  make(map[string]trader.LeaderboardRow),
		score: make(map[string]float64),
		tags:  make(map[string][]string),
	}
}

func (r *traderRegistry) Get(id string) (trader.LeaderboardRow, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	row, ok := r.rows[id]
	return row, ok
}

func (r *traderRegistry) scoreTags(id string) (float64, []string, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.score[id]
	return s, r.tags[id], ok
}

func (r *traderRegistry) update(rec bootstrap.TraderRecord) {
	windows := make(map[trader.Window]trader.WindowPerformance, len(rec.Windows))
	for w, wr := range rec.Windows {
		windows[trader.Window(w)] = trader.WindowPerformance{
			PnL: decimal.NewFromFloat(wr.PnL),
			ROI: decimal.NewFromFloat(wr.ROI),
			Vlm: decimal.NewFromFloat(wr.Vlm),
		}
	}
	row := trader.LeaderboardRow{
		ID:           rec.ID,
		DisplayName:  rec.DisplayName,
		AccountValue: decimal.NewFromFloat(rec.AccountValue),
		Windows:      windows,
	}

	r.mu.Lock()
	r.rows[rec.ID] = row
	r.score[rec.ID] = rec.Score
	r.tags[rec.ID] = rec.Tags
	r.mu.Unlock()
}

// bootstrapSink implements bootstrap.Sink: it refreshes the trader registry and
// replays the snapshot's positions through the aggregator and whale detector so both
// start from a caught-up state rather than an empty one (§4.3 Bootstrap).
type bootstrapSink struct {
	registry   *traderRegistry
	aggregator *signal.Aggregator
	detector   *whale.Detector
	weightCfg  config.WeightingConfig
	regime     weighting.RegimeProvider
	symbol     string
	log        zerolog.Logger
}

func (s *bootstrapSink) ApplySnapshot(snap *bootstrap.RegistrySnapshot) {
	for _, rec := range snap.Traders {
		s.registry.update(rec)
	}

	for _, p := range snap.Positions {
		if p.Coin != s.symbol {
			continue
		}
		score, tags, _ := s.registry.scoreTags(p.Address)
		evt := eventbus.PositionScoredEvent{
			PositionRawEvent: eventbus.PositionRawEvent{
				Address: p.Address, Coin: p.Coin, Szi: p.Szi, Ep: p.Ep, Mp: p.Mp, Upnl: p.Upnl, Lev: p.Lev, T: p.T,
			},
			Score: score,
			Tags:  tags,
		}
		s.aggregator.OnPositionScored(evt, s.weightCfg)

		row, ok := s.registry.Get(p.Address)
		if !ok || !s.detector.Eligible(row.AccountValue, score) {
			continue
		}
		w := weighting.Compute(row, s.weightCfg, s.regime.CurrentRegime())
		szi := parseDecimal(p.Szi)
		s.detector.Observe(context.Background(), p.Address, row, score, string(w.Tier), szi, p.T)
	}

	s.log.Info().Int("traders", len(snap.Traders)).Int("positions", len(snap.Positions)).
		Msg("bootstrap snapshot applied to signal registry")
}

// positionsScoredHandler folds live positions.scored events into the aggregator and,
// for whale/elite-eligible traders on the tracked symbol, the whale detector.
func positionsScoredHandler(cfg *config.Config, registry *traderRegistry, aggregator *signal.Aggregator, detector *whale.Detector, regime weighting.RegimeProvider, log zerolog.Logger) eventbus.Handler {
	return func(msg eventbus.Message) {
		var evt eventbus.PositionScoredEvent
		if err := json.Unmarshal(msg.Payload, &evt); err != nil {
			log.Warn().Err(err).Msg("malformed positions.scored payload")
			return
		}

		aggregator.OnPositionScored(evt, cfg.Weighting)

		if evt.Coin != cfg.HyperliquidSymbol {
			return
		}
		row, ok := registry.Get(evt.Address)
		if !ok || !detector.Eligible(row.AccountValue, evt.Score) {
			return
		}
		w := weighting.Compute(row, cfg.Weighting, regime.CurrentRegime())
		szi := parseDecimal(evt.Szi)
		detector.Observe(context.Background(), evt.Address, row, evt.Score, string(w.Tier), szi, evt.T)
	}
}

// candlesHandler feeds the latest close price for the tracked symbol into the
// aggregator so it can be attached to the next AggregateSignal as price-at-signal
// (§4.3 bootstrap protocol: subscribes to positions.scored and candles).
func candlesHandler(aggregator *signal.Aggregator, log zerolog.Logger) eventbus.Handler {
	return func(msg eventbus.Message) {
		var evt eventbus.CandleEvent
		if err := json.Unmarshal(msg.Payload, &evt); err != nil {
			log.Warn().Err(err).Msg("malformed candles payload")
			return
		}
		aggregator.OnCandle(evt)
	}
}

func parseDecimal(s string) decimal.Decimal {
	if s == "" {
		return decimal.Zero
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero
	}
	return d
}

// runHealthReporter periodically reports whether the bootstrap coordinator has left
// the warming state (§4.3, §7).
func runHealthReporter(ctx context.Context, reg *health.Registry, coordinator *bootstrap.Coordinator, interval time.Duration) {
	if interval <= 0 {
		interval = time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if coordinator.IsWarming() {
				reg.Report("bootstrap", health.StatusDegraded, nil)
			} else {
				reg.Report("bootstrap", health.StatusHealthy, nil)
			}
		}
	}
}
