package venue

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"hlpulse/internal/errs"
	"hlpulse/internal/metrics"
)

const (
	wsConnectDeadline = 10 * time.Second
	wsDrainDeadline    = 5 * time.Second
)

// FrameBuilder constructs the subscribe/unsubscribe wire frame for one subscription
// key. Position and candle managers each supply their own implementation (user id vs.
// coin+interval) over the same reconnect/resubscribe core.
type FrameBuilder func(key string, subscribe bool) SubscribeFrame

// MessageRouter dispatches one decoded inbound frame to its handler.
type MessageRouter func(msg WSMessage)

// WSManager is the generalized per-subscription-set WebSocket core shared by the
// Position Subscription Manager and the Candle WS Manager (§4.1): a single long-lived
// connection, a maintained `subscribed: set<key>`, full resubscribe on every
// (re)connect before any inbound frame is routed, and exponential-backoff-with-full-
// jitter reconnect.
type WSManager struct {
	url     string
	manager string // metric label: "position" or "candle"
	builder FrameBuilder
	router  MessageRouter
	log     zerolog.Logger

	mu            sync.Mutex
	conn          *websocket.Conn
	subscribed    map[string]struct{}
	connected     bool
	everConnected bool

	rejectCounts map[string]int

	stopOnce sync.Once
	stopCh   chan struct{}
	doneCh   chan struct{}
}

// NewWSManager builds a manager bound to url; builder and router are supplied by the
// caller-specific wrapper (position or candle manager). manager labels the ws_* metrics
// emitted by this instance ("position" or "candle").
func NewWSManager(url, manager string, builder FrameBuilder, router MessageRouter, log zerolog.Logger) *WSManager {
	return &WSManager{
		url:          url,
		manager:      manager,
		builder:      builder,
		router:       router,
		log:          log,
		subscribed:   make(map[string]struct{}),
		rejectCounts: make(map[string]int),
		stopCh:       make(chan struct{}),
		doneCh:       make(chan struct{}),
	}
}

// Run connects and services the read loop until ctx is cancelled or Stop is called.
// It blocks; callers run it in its own goroutine (the "position WS reader" / "candle
// WS reader" tasks of §5).
func (m *WSManager) Run(ctx context.Context) {
	defer close(m.doneCh)

	attempt := 0
	for {
		select {
		case <-ctx.Done():
			return
		case <-m.stopCh:
			return
		default:
		}

		if err := m.connectAndResubscribe(ctx); err != nil {
			m.log.Warn().Err(err).Int("attempt", attempt).Msg("ws connect failed")
			if !m.sleepBackoff(ctx, attempt) {
				return
			}
			attempt++
			continue
		}

		attempt = 0
		m.readLoop(ctx)

		if !m.sleepBackoff(ctx, 0) {
			return
		}
	}
}

func (m *WSManager) sleepBackoff(ctx context.Context, attempt int) bool {
	wait := backoffDelay(attempt)
	select {
	case <-ctx.Done():
		return false
	case <-m.stopCh:
		return false
	case <-time.After(wait):
		return true
	}
}

func (m *WSManager) connectAndResubscribe(ctx context.Context) error {
	dialCtx, cancel := context.WithTimeout(ctx, wsConnectDeadline)
	defer cancel()

	dialer := websocket.Dialer{HandshakeTimeout: wsConnectDeadline}
	conn, _, err := dialer.DialContext(dialCtx, m.url, nil)
	if err != nil {
		metrics.WSConnectsTotal.WithLabelValues(m.manager, "failed").Inc()
		return &errs.TransportError{Component: "venue.ws", Err: err}
	}
	metrics.WSConnectsTotal.WithLabelValues(m.manager, "success").Inc()

	m.mu.Lock()
	if m.everConnected {
		metrics.WSReconnectsTotal.WithLabelValues(m.manager).Inc()
	}
	m.everConnected = true
	m.conn = conn
	m.connected = true
	keys := make([]string, 0, len(m.subscribed))
	for k := range m.subscribed {
		keys = append(keys, k)
	}
	m.mu.Unlock()

	// Re-subscribe the entire current set before emitting any events; the read loop
	// only starts after every frame below is written.
	for _, key := range keys {
		frame := m.builder(key, true)
		if err := conn.WriteJSON(frame); err != nil {
			return &errs.TransportError{Component: "venue.ws", Err: err}
		}
	}

	return nil
}

func (m *WSManager) readLoop(ctx context.Context) {
	for {
		m.mu.Lock()
		conn := m.conn
		m.mu.Unlock()
		if conn == nil {
			return
		}

		_, raw, err := conn.ReadMessage()
		if err != nil {
			m.log.Warn().Err(err).Msg("ws read failed, reconnecting")
			m.mu.Lock()
			m.conn = nil
			m.connected = false
			m.mu.Unlock()
			return
		}

		var msg WSMessage
		if err := json.Unmarshal(raw, &msg); err != nil {
			m.log.Warn().Err(err).Msg("ws protocol error, discarding frame")
			continue
		}

		metrics.WSMessagesTotal.WithLabelValues(m.manager).Inc()
		m.router(msg)

		select {
		case <-ctx.Done():
			return
		default:
		}
	}
}

// Subscribe bulk-subscribes at startup; idempotent per key.
func (m *WSManager) Subscribe(keys []string) {
	m.mu.Lock()
	for _, k := range keys {
		if _, ok := m.subscribed[k]; ok {
			continue
		}
		m.subscribed[k] = struct{}{}
		if m.connected && m.conn != nil {
			_ = m.conn.WriteJSON(m.builder(k, true))
		}
	}
	count := len(m.subscribed)
	m.mu.Unlock()

	metrics.WSSubscriptionsActive.WithLabelValues(m.manager).Set(float64(count))
}

// Add subscribes to a single new key (AddTrader / new candle stream).
func (m *WSManager) Add(key string) {
	m.Subscribe([]string{key})
}

// Remove unsubscribes a single key (RemoveTrader).
func (m *WSManager) Remove(key string) {
	m.mu.Lock()
	if _, ok := m.subscribed[key]; !ok {
		m.mu.Unlock()
		return
	}
	delete(m.subscribed, key)
	if m.connected && m.conn != nil {
		_ = m.conn.WriteJSON(m.builder(key, false))
	}
	count := len(m.subscribed)
	m.mu.Unlock()

	metrics.WSSubscriptionsActive.WithLabelValues(m.manager).Set(float64(count))
}

// RecordReject increments the reject counter for key and returns the new count; a
// caller (the position manager) uses this to mark a trader "degraded" after N rejects
// (§4.1). The count has no time window: it drops only when ResetRejects clears it.
func (m *WSManager) RecordReject(key string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rejectCounts[key]++
	return m.rejectCounts[key]
}

// ResetRejects clears the reject counter for key, called on a successful snapshot.
func (m *WSManager) ResetRejects(key string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.rejectCounts, key)
}

// CurrentSet returns a snapshot of the subscribed set, used by property tests to
// assert reconnect completeness (§8 property 6).
func (m *WSManager) CurrentSet() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, 0, len(m.subscribed))
	for k := range m.subscribed {
		out = append(out, k)
	}
	return out
}

// Stop writes an unsubscribe frame for every key under a bounded write deadline
// (wsDrainDeadline), closes the connection, then waits up to that deadline for Run to
// return (§4.1 Cancellation). Frames are written synchronously; there is no send queue.
func (m *WSManager) Stop() {
	m.stopOnce.Do(func() {
		close(m.stopCh)

		m.mu.Lock()
		conn := m.conn
		keys := make([]string, 0, len(m.subscribed))
		for k := range m.subscribed {
			keys = append(keys, k)
		}
		m.mu.Unlock()

		if conn != nil {
			_ = conn.SetWriteDeadline(time.Now().Add(wsDrainDeadline))
			for _, k := range keys {
				_ = conn.WriteJSON(m.builder(k, false))
			}
			_ = conn.Close()
		}
	})

	select {
	case <-m.doneCh:
	case <-time.After(wsDrainDeadline):
	}
}

