// Package notify implements the optional Telegram forwarding of CRITICAL/HIGH whale
// alerts (§4.6 Notification fan-out), built on go-telegram-bot-api/telegram-bot-api/v5.
package notify

import (
	"fmt"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/rs/zerolog"

	"hlpulse/internal/config"
	"hlpulse/internal/whale"
)

var priorityOrder = map[string]int{
	"LOW":      0,
	"MEDIUM":   1,
	"HIGH":     2,
	"CRITICAL": 3,
}

// TelegramNotifier forwards whale alerts at or above the configured minimum
// priority to a single Telegram chat. A failed send is logged and discarded; it is
// never retried and never blocks the caller (§4.6).
type TelegramNotifier struct {
	bot    *tgbotapi.BotAPI
	chatID int64
	minPri int
	log    zerolog.Logger
}

// NewTelegramNotifier builds a notifier from cfg, or returns (nil, nil) if
// telegram.enabled is false — the caller treats a nil notifier as "no-op".
func NewTelegramNotifier(cfg config.TelegramConfig, log zerolog.Logger) (*TelegramNotifier, error) {
	if !cfg.Enabled {
		return nil, nil
	}

	bot, err := tgbotapi.NewBotAPI(cfg.BotToken)
	if err != nil {
		return nil, fmt.Errorf("notify: telegram bot init: %w", err)
	}

	minPri, ok := priorityOrder[cfg.MinPriority]
	if !ok {
		minPri = priorityOrder["HIGH"]
	}

	return &TelegramNotifier{
		bot:    bot,
		chatID: cfg.ChatID,
		minPri: minPri,
		log:    log.With().Str("component", "notify.telegram").Logger(),
	}, nil
}

// Notify sends alert as a chat message if its priority clears the configured
// minimum. Intended to be called from its own goroutine by the whale detector so a
// slow or failing Telegram API never delays alert emission.
func (n *TelegramNotifier) Notify(alert whale.Alert) {
	if n == nil {
		return
	}
	if priorityOrder[string(alert.Priority)] < n.minPri {
		return
	}

	text := fmt.Sprintf(
		"[%s] %s: %s\n%s -> %s (%s)\n%s",
		alert.Priority, alert.ChangeType, alert.TraderID,
		alert.BeforeDirection, alert.AfterDirection, alert.Tier,
		alert.Recommendation,
	)

	msg := tgbotapi.NewMessage(n.chatID, text)
	if _, err := n.bot.Send(msg); err != nil {
		n.log.Warn().Err(err).Str("trader", alert.TraderID).Msg("telegram send failed, dropping")
	}
}
