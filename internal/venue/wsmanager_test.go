package venue

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testFrameBuilder(key string, subscribe bool) SubscribeFrame {
	method := "unsubscribe"
	if subscribe {
		method = "subscribe"
	}
	return SubscribeFrame{Method: method, Subscription: PositionSubscription{Type: "webData2", User: key}}
}

// ============================================================
// Subscribe / Add / Remove — subscribed-set bookkeeping without a live connection
// ============================================================

func TestSubscribe_AddsKeysIdempotently(t *testing.T) {
	m := NewWSManager("ws://unused", "test", testFrameBuilder, func(WSMessage) {}, zerolog.Nop())
	m.Subscribe([]string{"0x1", "0x2"})
	m.Subscribe([]string{"0x1"})

	assert.ElementsMatch(t, []string{"0x1", "0x2"}, m.CurrentSet())
}

func TestAdd_AddsSingleKey(t *testing.T) {
	m := NewWSManager("ws://unused", "test", testFrameBuilder, func(WSMessage) {}, zerolog.Nop())
	m.Add("0x1")
	assert.Equal(t, []string{"0x1"}, m.CurrentSet())
}

func TestRemove_DropsKey(t *testing.T) {
	m := NewWSManager("ws://unused", "test", testFrameBuilder, func(WSMessage) {}, zerolog.Nop())
	m.Add("0x1")
	m.Remove("0x1")
	assert.Empty(t, m.CurrentSet())
}

func TestRemove_UnknownKey_NoOp(t *testing.T) {
	m := NewWSManager("ws://unused", "test", testFrameBuilder, func(WSMessage) {}, zerolog.Nop())
	assert.NotPanics(t, func() { m.Remove("0xnope") })
}

// ============================================================
// RecordReject / ResetRejects
// ============================================================

func TestRecordReject_IncrementsPerKey(t *testing.T) {
	m := NewWSManager("ws://unused", "test", testFrameBuilder, func(WSMessage) {}, zerolog.Nop())
	assert.Equal(t, 1, m.RecordReject("0x1"))
	assert.Equal(t, 2, m.RecordReject("0x1"))
	assert.Equal(t, 1, m.RecordReject("0x2"))
}

func TestResetRejects_ClearsCounter(t *testing.T) {
	m := NewWSManager("ws://unused", "test", testFrameBuilder, func(WSMessage) {}, zerolog.Nop())
	m.RecordReject("0x1")
	m.ResetRejects("0x1")
	assert.Equal(t, 1, m.RecordReject("0x1"))
}

// ============================================================
// Run — connects to a local WS server, resubscribes, routes inbound frames
// ============================================================

var upgrader = websocket.Upgrader{}

func TestRun_ConnectsAndResubscribesBeforeRouting(t *testing.T) {
	var mu sync.Mutex
	var subscribedFrames []string

	mux := http.NewServeMux()
	mux.HandleFunc("/ws", func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		require.NoError(t, err)
		defer conn.Close()

		for i := 0; i < 1; i++ {
			_, raw, err := conn.ReadMessage()
			if err != nil {
				return
			}
			mu.Lock()
			subscribedFrames = append(subscribedFrames, string(raw))
			mu.Unlock()
		}

		require.NoError(t, conn.WriteJSON(WSMessage{Channel: "webData2", Data: map[string]interface{}{"user": "0x1"}}))
		time.Sleep(50 * time.Millisecond)
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws"

	var routedMu sync.Mutex
	var routed []WSMessage
	m := NewWSManager(wsURL, "test", testFrameBuilder, func(msg WSMessage) {
		routedMu.Lock()
		routed = append(routed, msg)
		routedMu.Unlock()
	}, zerolog.Nop())
	m.Add("0x1")

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		m.Run(ctx)
		close(done)
	}()

	waitForCond(t, func() bool {
		routedMu.Lock()
		defer routedMu.Unlock()
		return len(routed) >= 1
	})

	mu.Lock()
	require.Len(t, subscribedFrames, 1)
	assert.Contains(t, subscribedFrames[0], "subscribe")
	mu.Unlock()

	routedMu.Lock()
	assert.Equal(t, "webData2", routed[0].Channel)
	routedMu.Unlock()

	cancel()
	<-done
}

func waitForCond(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	require.True(t, cond(), "condition never became true")
}

func TestStop_IsIdempotent(t *testing.T) {
	m := NewWSManager("ws://unused", "test", testFrameBuilder, func(WSMessage) {}, zerolog.Nop())
	assert.NotPanics(t, func() {
		m.Stop()
		m.Stop()
	})
}
