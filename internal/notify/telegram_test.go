package notify

import (
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"

	"hlpulse/internal/config"
	"hlpulse/internal/whale"
)

// ============================================================
// NewTelegramNotifier — disabled config is a no-op
// ============================================================

func TestNewTelegramNotifier_Disabled_ReturnsNilNotifier(t *testing.T) {
	n, err := NewTelegramNotifier(config.TelegramConfig{Enabled: false}, zerolog.Nop())
	assert.NoError(t, err)
	assert.Nil(t, n)
}

// ============================================================
// Notify — nil-receiver safety
// ============================================================

func TestNotify_NilReceiver_NoPanic(t *testing.T) {
	var n *TelegramNotifier
	assert.NotPanics(t, func() {
		n.Notify(whale.Alert{Priority: whale.PriorityCritical})
	})
}

// ============================================================
// Notify — priority gating (below threshold never touches the bot)
// ============================================================

func TestNotify_BelowMinPriority_SkipsSend(t *testing.T) {
	n := &TelegramNotifier{minPri: priorityOrder["HIGH"], log: zerolog.Nop()}
	assert.NotPanics(t, func() {
		n.Notify(whale.Alert{Priority: whale.PriorityLow})
	}, "a below-threshold alert must return before touching the nil bot client")
}

func TestNotify_BelowMinPriority_Medium_SkipsSend(t *testing.T) {
	n := &TelegramNotifier{minPri: priorityOrder["HIGH"], log: zerolog.Nop()}
	assert.NotPanics(t, func() {
		n.Notify(whale.Alert{Priority: whale.PriorityMedium})
	})
}

// ============================================================
// priorityOrder
// ============================================================

func TestPriorityOrder_Monotonic(t *testing.T) {
	assert.Less(t, priorityOrder["LOW"], priorityOrder["MEDIUM"])
	assert.Less(t, priorityOrder["MEDIUM"], priorityOrder["HIGH"])
	assert.Less(t, priorityOrder["HIGH"], priorityOrder["CRITICAL"])
}
