// Package candle implements the Candle WS Manager (§4.1): a live subscription to
// the venue's per-(coin, interval) candle channel, with bucket-aligned
// upsert-in-progress semantics so a closed bar is finalized exactly once. Grounded
// on the same venue.WSManager core as internal/position, mirroring
// market/websocket_client.go's candle branch.
package candle

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"hlpulse/internal/eventbus"
	"hlpulse/internal/venue"
)

const wsURL = "wss://api.hyperliquid.xyz/ws"

// Bar is the in-process OHLCV representation of one candle bucket (§3).
type Bar struct {
	Symbol   string
	Interval string
	Start    time.Time
	O, H, L, C, V string
}

func subKey(coin, interval string) string {
	return coin + ":" + interval
}

// PersistFunc writes one (possibly still in-progress) bar to the store.
type PersistFunc func(ctx context.Context, symbol, interval string, bar Bar)

// Manager is the Candle WS Manager.
type Manager struct {
	ws      *venue.WSManager
	publish func(ctx context.Context, topic eventbus.Topic, payload interface{}) error
	persist PersistFunc
	log     zerolog.Logger

	mu      sync.Mutex
	current map[string]Bar // subKey -> latest bucket seen
}

// NewManager builds a Candle WS Manager.
func NewManager(publish func(ctx context.Context, topic eventbus.Topic, payload interface{}) error, persist PersistFunc, log zerolog.Logger) *Manager {
	m := &Manager{
		publish: publish,
		persist: persist,
		log:     log.With().Str("component", "candle.manager").Logger(),
		current: make(map[string]Bar),
	}
	m.ws = venue.NewWSManager(wsURL, "candle", m.buildFrame, m.route, m.log)
	return m
}

// Run starts the underlying WS reader task (§5).
func (m *Manager) Run(ctx context.Context) {
	m.ws.Run(ctx)
}

// Stop implements §4.1 Cancellation.
func (m *Manager) Stop() {
	m.ws.Stop()
}

// Subscribe bulk-subscribes to (coin, interval) pairs at startup.
func (m *Manager) Subscribe(coin string, intervals []string) {
	keys := make([]string, 0, len(intervals))
	for _, iv := range intervals {
		keys = append(keys, subKey(coin, iv))
	}
	m.ws.Subscribe(keys)
}

// Latest returns the most recently observed bucket for (symbol, interval), whether
// or not it has closed yet.
func (m *Manager) Latest(symbol, interval string) (Bar, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	bar, ok := m.current[subKey(symbol, interval)]
	return bar, ok
}

func (m *Manager) buildFrame(key string, subscribe bool) venue.SubscribeFrame {
	coin, interval := splitKey(key)
	method := "subscribe"
	if !subscribe {
		method = "unsubscribe"
	}
	return venue.SubscribeFrame{
		Method: method,
		Subscription: venue.CandleSubscription{
			Type:     "candle",
			Coin:     coin,
			Interval: interval,
		},
	}
}

func splitKey(key string) (coin, interval string) {
	for i := len(key) - 1; i >= 0; i-- {
		if key[i] == ':' {
			return key[:i], key[i+1:]
		}
	}
	return key, ""
}

func (m *Manager) route(msg venue.WSMessage) {
	if msg.Channel != "candle" {
		return
	}

	raw, err := json.Marshal(msg.Data)
	if err != nil {
		return
	}
	var data venue.CandleWSData
	if err := json.Unmarshal(raw, &data); err != nil {
		m.log.Warn().Err(err).Msg("malformed candle payload")
		return
	}

	bucketStart := venue.BucketStart(time.UnixMilli(data.T), data.Interval)
	bar := Bar{
		Symbol:   data.Symbol,
		Interval: data.Interval,
		Start:    bucketStart,
		O:        data.O,
		H:        data.H,
		L:        data.L,
		C:        data.C,
		V:        data.V,
	}

	key := subKey(data.Symbol, data.Interval)

	m.mu.Lock()
	prev, hadPrev := m.current[key]
	closedPrev := hadPrev && prev.Start.Before(bucketStart)
	m.current[key] = bar
	m.mu.Unlock()

	// A new bucket start means the previous bucket just closed; persist it as final
	// before emitting the new in-progress bucket, matching the upsert-by-bucket
	// invariant of §3 (the store key is (symbol, interval, bucket_start), so both
	// writes are idempotent upserts regardless of ordering).
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if closedPrev && m.persist != nil {
		m.persist(ctx, prev.Symbol, prev.Interval, prev)
	}
	if m.persist != nil {
		m.persist(ctx, bar.Symbol, bar.Interval, bar)
	}

	evt := eventbus.CandleEvent{
		Symbol:   bar.Symbol,
		Interval: bar.Interval,
		T:        bar.Start.UnixMilli(),
		O:        bar.O,
		H:        bar.H,
		L:        bar.L,
		C:        bar.C,
		V:        bar.V,
	}
	if m.publish != nil {
		if err := m.publish(ctx, eventbus.TopicCandles, evt); err != nil {
			m.log.Warn().Err(err).Str("symbol", bar.Symbol).Msg("failed to publish candle event")
		}
	}
}
