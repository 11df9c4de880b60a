// Package position implements the Position Subscription Manager (§4.1): a live
// per-trader WebSocket subscription over the venue's webData2 channel, event-driven
// persistence, and degraded-trader tracking. Grounded on the generalized
// venue.WSManager core, itself adapted from market/websocket_client.go.
package position

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"hlpulse/internal/eventbus"
	"hlpulse/internal/metrics"
	"hlpulse/internal/venue"
)

const wsURL = "wss://api.hyperliquid.xyz/ws"

const degradedRejectThreshold = 5

// Position is the in-process representation of one (trader, coin) entry (§3).
type Position struct {
	Coin          string
	Szi           decimal.Decimal
	EntryPrice    decimal.Decimal
	MarkPrice     decimal.Decimal
	UnrealizedPnL decimal.Decimal
	Leverage      int
	ReceivedAt    time.Time // monotonic-ish wall clock of receipt, for persistence
}

// changeKey is the (szi, leverage, entryPrice) tuple compared for the event-driven
// persistence invariant (§4.1: "the 85% reduction invariant").
type changeKey struct {
	szi      string
	leverage int
	entry    string
}

func (p Position) changeKey() changeKey {
	return changeKey{szi: p.Szi.String(), leverage: p.Leverage, entry: p.EntryPrice.String()}
}

// PersistFunc writes one changed position to the store.
type PersistFunc func(ctx context.Context, trader, coin string, pos Position)

// Manager is the Position Subscription Manager.
type Manager struct {
	ws      *venue.WSManager
	publish func(ctx context.Context, topic eventbus.Topic, payload interface{}) error
	persist PersistFunc
	log     zerolog.Logger

	mu       sync.Mutex
	last     map[string]map[string]changeKey // trader -> coin -> last persisted key
	buffered map[string]map[string]Position   // trader -> coin -> current snapshot

	degradedMu sync.Mutex
	degraded   map[string]bool
}

// NewManager builds a Position Subscription Manager. publish sends positions.raw
// events to the bus; persist performs the event-driven store write.
func NewManager(publish func(ctx context.Context, topic eventbus.Topic, payload interface{}) error, persist PersistFunc, log zerolog.Logger) *Manager {
	m := &Manager{
		publish:  publish,
		persist:  persist,
		log:      log.With().Str("component", "position.manager").Logger(),
		last:     make(map[string]map[string]changeKey),
		buffered: make(map[string]map[string]Position),
		degraded: make(map[string]bool),
	}
	m.ws = venue.NewWSManager(wsURL, "position", m.buildFrame, m.route, m.log)
	return m
}

// Run starts the underlying WS reader task (§5).
func (m *Manager) Run(ctx context.Context) {
	m.ws.Run(ctx)
}

// Stop implements §4.1 Cancellation: unsubscribe, drain with deadline, close.
func (m *Manager) Stop() {
	m.ws.Stop()
}

// Subscribe bulk-subscribes at startup; idempotent per id.
func (m *Manager) Subscribe(ids []string) {
	m.ws.Subscribe(ids)
}

// OnAdded implements trader.DeltaSink.
func (m *Manager) OnAdded(id string) {
	m.ws.Add(id)
}

// OnRemoved implements trader.DeltaSink.
func (m *Manager) OnRemoved(id string) {
	m.ws.Remove(id)

	m.mu.Lock()
	delete(m.last, id)
	delete(m.buffered, id)
	m.mu.Unlock()
}

// Snapshot returns the current buffered position set for a trader.
func (m *Manager) Snapshot(id string) map[string]Position {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make(map[string]Position, len(m.buffered[id]))
	for coin, pos := range m.buffered[id] {
		out[coin] = pos
	}
	return out
}

// IsDegraded reports whether id has exceeded the reject threshold (§4.1, exposed via
// the health endpoint); rejects are counted with no time window.
func (m *Manager) IsDegraded(id string) bool {
	m.degradedMu.Lock()
	defer m.degradedMu.Unlock()
	return m.degraded[id]
}

func (m *Manager) buildFrame(key string, subscribe bool) venue.SubscribeFrame {
	method := "subscribe"
	if !subscribe {
		method = "unsubscribe"
	}
	return venue.SubscribeFrame{
		Method: method,
		Subscription: venue.PositionSubscription{
			Type: "webData2",
			User: key,
		},
	}
}

func (m *Manager) route(msg venue.WSMessage) {
	if msg.Channel != "webData2" {
		return
	}

	raw, err := json.Marshal(msg.Data)
	if err != nil {
		return
	}
	var data venue.WebData2Data
	if err := json.Unmarshal(raw, &data); err != nil {
		m.log.Warn().Err(err).Msg("malformed webData2 payload")
		return
	}

	receivedAt := time.Now()

	for _, ap := range data.AssetPositions {
		wp := ap.Position
		pos := Position{
			Coin:          wp.Coin,
			Szi:           parseDec(wp.Szi),
			EntryPrice:    parseDec(wp.EntryPx),
			MarkPrice:     parseDec(wp.MarkPx),
			UnrealizedPnL: parseDec(wp.UnrealizedPnl),
			Leverage:      wp.Leverage,
			ReceivedAt:    receivedAt,
		}
		m.applyPosition(data.User, pos, receivedAt)
	}
}

// applyPosition implements the event-driven persistence rule: a snapshot is written
// only if (szi, leverage, entryPrice) changed from the previously stored tuple for
// that (trader, coin); simultaneous snapshots collapse to the latest by wall clock.
func (m *Manager) applyPosition(traderID string, pos Position, receivedAt time.Time) {
	m.mu.Lock()
	if m.last[traderID] == nil {
		m.last[traderID] = make(map[string]changeKey)
	}
	if m.buffered[traderID] == nil {
		m.buffered[traderID] = make(map[string]Position)
	}

	prevKey, hadPrev := m.last[traderID][pos.Coin]
	newKey := pos.changeKey()
	m.buffered[traderID][pos.Coin] = pos

	changed := !hadPrev || prevKey != newKey
	if changed {
		m.last[traderID][pos.Coin] = newKey
	}
	m.mu.Unlock()

	if !changed {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if m.persist != nil {
		m.persist(ctx, traderID, pos.Coin, pos)
	}

	evt := eventbus.PositionRawEvent{
		Address: traderID,
		Coin:    pos.Coin,
		Szi:     pos.Szi.String(),
		Ep:      pos.EntryPrice.String(),
		Mp:      pos.MarkPrice.String(),
		Upnl:    pos.UnrealizedPnL.String(),
		Lev:     pos.Leverage,
		T:       receivedAt.UnixMilli(),
	}
	if m.publish != nil {
		if err := m.publish(ctx, eventbus.TopicPositionsRaw, evt); err != nil {
			m.log.Warn().Err(err).Str("trader", traderID).Msg("failed to publish positions.raw")
		}
	}
}

// RecordReject marks a WS-level rejection for a trader, flipping to "degraded" after
// degradedRejectThreshold rejects in the current rolling window (§4.1).
func (m *Manager) RecordReject(id string) {
	count := m.ws.RecordReject(id)
	if count >= degradedRejectThreshold {
		m.degradedMu.Lock()
		m.degraded[id] = true
		total := len(m.degraded)
		m.degradedMu.Unlock()
		metrics.WSDegradedSubscriptions.WithLabelValues("position").Set(float64(total))
	}
}

// ClearDegraded resets a trader's degraded flag, e.g. after a successful reconnect
// cycle subscribes it cleanly again.
func (m *Manager) ClearDegraded(id string) {
	m.ws.ResetRejects(id)
	m.degradedMu.Lock()
	delete(m.degraded, id)
	total := len(m.degraded)
	m.degradedMu.Unlock()
	metrics.WSDegradedSubscriptions.WithLabelValues("position").Set(float64(total))
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
