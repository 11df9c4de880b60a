package main

import (
	"context"
	"encoding/json"
	"time"

	"github.com/rs/zerolog"

	"hlpulse/internal/bootstrap"
	"hlpulse/internal/candle"
	"hlpulse/internal/eventbus"
	"hlpulse/internal/health"
	"hlpulse/internal/position"
	"hlpulse/internal/store"
	"hlpulse/internal/trader"
)

// newBus builds a Redis-backed bus when redisURL is set, otherwise the in-memory bus
// used for local/dev runs (§6).
func newBus(redisURL string, log zerolog.Logger) (eventbus.Bus, error) {
	if redisURL == "" {
		return eventbus.NewMemoryBus(log), nil
	}
	return eventbus.NewRedisBus(redisURL, log)
}

// positionPersister adapts store.SavePosition to position.PersistFunc.
func positionPersister(db *store.Store) position.PersistFunc {
	return func(ctx context.Context, traderID, coin string, pos position.Position) {
		doc := store.PositionDoc{
			Eth:  traderID,
			Coin: coin,
			T:    pos.ReceivedAt.UnixMilli(),
			Szi:  pos.Szi.String(),
			Ep:   pos.EntryPrice.String(),
			Mp:   pos.MarkPrice.String(),
			Upnl: pos.UnrealizedPnL.String(),
			Lev:  pos.Leverage,
		}
		_ = db.SavePosition(ctx, doc)
	}
}

// candlePersister adapts store.SaveCandle to candle.PersistFunc.
func candlePersister(db *store.Store) candle.PersistFunc {
	return func(ctx context.Context, symbol, interval string, bar candle.Bar) {
		payload, err := json.Marshal(bar)
		if err != nil {
			return
		}
		_ = db.SaveCandle(ctx, symbol, interval, bar.Start.UnixMilli(), payload)
	}
}

// signalsOutHandler persists aggregate signals and whale alerts forwarded back from
// the Signal System over the signals.out topic (§4.3, §6).
func signalsOutHandler(db *store.Store, logger zerolog.Logger) eventbus.Handler {
	type envelope struct {
		Kind   string          `json:"kind"`
		Symbol string          `json:"symbol,omitempty"`
		Signal json.RawMessage `json:"signal,omitempty"`
		Alert  json.RawMessage `json:"alert,omitempty"`
	}
	type timestamped struct {
		T int64 `json:"t"`
	}
	type traderTimestamped struct {
		TraderID string `json:"trader_id"`
		T        int64  `json:"t"`
	}

	return func(msg eventbus.Message) {
		var env envelope
		if err := json.Unmarshal(msg.Payload, &env); err != nil {
			logger.Warn().Err(err).Msg("malformed signals.out payload")
			return
		}

		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		switch env.Kind {
		case "aggregate_signal":
			var ts timestamped
			_ = json.Unmarshal(env.Signal, &ts)
			if err := db.SaveSignal(ctx, env.Symbol, ts.T, env.Signal); err != nil {
				logger.Warn().Err(err).Msg("failed to persist aggregate signal")
			}
		case "whale_alert":
			var ts traderTimestamped
			_ = json.Unmarshal(env.Alert, &ts)
			if err := db.SaveTraderSignal(ctx, ts.TraderID, ts.T, env.Alert); err != nil {
				logger.Warn().Err(err).Msg("failed to persist whale alert")
			}
		}
	}
}

// registrySnapshotProvider implements httpapi.SnapshotProvider by reading the current
// active tracked traders and latest positions straight from the document store (§4.3
// Bootstrap, §6).
type registrySnapshotProvider struct {
	store *store.Store
}

func (p *registrySnapshotProvider) Snapshot(ctx context.Context) (*bootstrap.RegistrySnapshot, error) {
	rows, err := p.store.ActiveTracked(ctx)
	if err != nil {
		return nil, err
	}
	positions, err := p.store.LatestPositions(ctx)
	if err != nil {
		return nil, err
	}

	traders := make([]bootstrap.TraderRecord, 0, len(rows))
	for _, sr := range rows {
		windows := make(map[string]bootstrap.WindowRecord, len(sr.Row.Windows))
		for w, perf := range sr.Row.Windows {
			windows[string(w)] = bootstrap.WindowRecord{
				PnL: perf.PnL.InexactFloat64(),
				ROI: perf.ROI.InexactFloat64(),
				Vlm: perf.Vlm.InexactFloat64(),
			}
		}
		tags := make([]string, 0, len(sr.Tags))
		for _, t := range sr.Tags {
			tags = append(tags, string(t))
		}
		traders = append(traders, bootstrap.TraderRecord{
			ID:           sr.Row.ID,
			DisplayName:  sr.Row.DisplayName,
			Score:        sr.Score,
			Tags:         tags,
			AccountValue: sr.Row.AccountValue.InexactFloat64(),
			Windows:      windows,
		})
	}

	records := make([]bootstrap.PositionRecord, 0, len(positions))
	for _, doc := range positions {
		records = append(records, bootstrap.PositionRecord{
			Address: doc.Eth,
			Coin:    doc.Coin,
			Szi:     doc.Szi,
			Ep:      doc.Ep,
			Mp:      doc.Mp,
			Upnl:    doc.Upnl,
			Lev:     doc.Lev,
			T:       doc.T,
		})
	}

	return &bootstrap.RegistrySnapshot{
		Traders:     traders,
		Positions:   records,
		GeneratedAt: time.Now(),
	}, nil
}

// runHealthReporter periodically reports the ingest pipeline's health: degraded if no
// traders are currently tracked after startup has had time to complete an initial
// poll, unhealthy is never set here (transport-level degradation is reported directly
// by the WS managers via RecordReject/degraded tracking, §4.1, §7).
func runHealthReporter(ctx context.Context, reg *health.Registry, posManager *position.Manager, tracked *trader.TrackedSet, interval time.Duration) {
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
			ids := tracked.CurrentIDs()
			degraded := 0
			for _, id := range ids {
				if posManager.IsDegraded(id) {
					degraded++
				}
			}
			switch {
			case len(ids) == 0:
				reg.Report("ingest", health.StatusDegraded, nil)
			case degraded > len(ids)/2:
				reg.Report("ingest", health.StatusDegraded, nil)
			default:
				reg.Report("ingest", health.StatusHealthy, nil)
			}
		}
	}
}

// runReaper periodically deletes rows past each collection's TTL (§6).
func runReaper(ctx context.Context, db *store.Store, logger zerolog.Logger) {
	ticker := time.NewTicker(time.Hour)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := db.ReapExpired(ctx); err != nil {
				logger.Warn().Err(err).Msg("ttl reap failed")
			}
		}
	}
}
