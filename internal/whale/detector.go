// Package whale implements the Whale Alert Detector (§4.6): for whale/elite traders,
// compares each new position against the last observed one and raises an alert on a
// significant change. Grounded on the ring-buffer-with-dedup pattern used elsewhere
// in the pack for bounded event history, and on paper_trader.go's per-trader
// last-known-state map.
package whale

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"hlpulse/internal/config"
	"hlpulse/internal/eventbus"
	"hlpulse/internal/metrics"
	"hlpulse/internal/trader"
)

// Priority is the alert severity (§3, §4.6).
type Priority string

const (
	PriorityCritical Priority = "CRITICAL"
	PriorityHigh     Priority = "HIGH"
	PriorityMedium   Priority = "MEDIUM"
	PriorityLow      Priority = "LOW"
)

var priorityRank = map[Priority]int{
	PriorityLow:      0,
	PriorityMedium:   1,
	PriorityHigh:     2,
	PriorityCritical: 3,
}

// ChangeType classifies the transition between the previous and new position (§4.6).
type ChangeType string

const (
	ChangeReversal   ChangeType = "REVERSAL"
	ChangeEntry      ChangeType = "ENTRY"
	ChangeExit       ChangeType = "EXIT"
	ChangeSizeChange ChangeType = "SIZE_CHANGE"
)

// Alert is one WhaleAlert (§3).
type Alert struct {
	TraderID         string     `json:"trader_id"`
	Priority         Priority   `json:"priority"`
	ChangeType       ChangeType `json:"change_type"`
	BeforeDirection  string     `json:"before_direction"`
	AfterDirection   string     `json:"after_direction"`
	BeforeSize       string     `json:"before_size"`
	AfterSize        string     `json:"after_size"`
	Tier             string     `json:"tier"`
	WhaleBias        float64    `json:"whale_bias"`
	Recommendation   string     `json:"recommendation"`
	Timestamp        int64      `json:"t"`
}

type lastState struct {
	szi       decimal.Decimal
	direction string
}

func direction(szi decimal.Decimal) string {
	switch {
	case szi.IsPositive():
		return "long"
	case szi.IsNegative():
		return "short"
	default:
		return "neutral"
	}
}

// Detector tracks whale/elite traders' last-observed positions and raises alerts.
type Detector struct {
	cfg config.AlertsConfig

	mu        sync.Mutex
	last      map[string]lastState   // traderID -> last observed direction/size
	directions map[string]string     // traderID -> current direction, for whale_bias
	ring      []Alert
	seen      map[string]time.Time   // dedup key -> first-seen, pruned with ring

	publish func(ctx context.Context, topic eventbus.Topic, payload interface{}) error
	notify  func(alert Alert)
}

// NewDetector builds a whale alert detector.
func NewDetector(cfg config.AlertsConfig, publish func(ctx context.Context, topic eventbus.Topic, payload interface{}) error, notify func(alert Alert)) *Detector {
	return &Detector{
		cfg:        cfg,
		last:       make(map[string]lastState),
		directions: make(map[string]string),
		seen:       make(map[string]time.Time),
		publish:    publish,
		notify:     notify,
	}
}

// Eligible reports whether a trader qualifies for whale-alert monitoring (§4.6):
// account value at or above the whale threshold, or score at or above the elite
// threshold.
func (d *Detector) Eligible(accountValue decimal.Decimal, score float64) bool {
	return accountValue.InexactFloat64() >= d.cfg.WhaleThreshold || score >= d.cfg.EliteThreshold
}

// Observe compares a new position to the trader's last observed one and, if the
// change is significant, raises and emits an alert. row supplies account value and
// score for priority; tier is the trader's current weighting tier label.
func (d *Detector) Observe(ctx context.Context, traderID string, row trader.LeaderboardRow, score float64, tier string, newSzi decimal.Decimal, t int64) {
	if !d.Eligible(row.AccountValue, score) {
		return
	}

	d.mu.Lock()
	prev, hadPrev := d.last[traderID]
	d.last[traderID] = lastState{szi: newSzi, direction: direction(newSzi)}
	d.directions[traderID] = direction(newSzi)
	d.mu.Unlock()

	if !hadPrev {
		return // first observation establishes baseline, not a change
	}

	changeType, significant := classify(prev.szi, newSzi)
	if !significant {
		return
	}

	dedupKey := traderID + "|" + string(changeType) + "|" + time.UnixMilli(t).Truncate(time.Second).Format(time.RFC3339)
	d.mu.Lock()
	if _, dup := d.seen[dedupKey]; dup {
		d.mu.Unlock()
		return
	}
	d.seen[dedupKey] = time.Now()
	d.mu.Unlock()

	priority := priorityFor(row.AccountValue.InexactFloat64(), score, d.cfg)

	alert := Alert{
		TraderID:        traderID,
		Priority:        priority,
		ChangeType:      changeType,
		BeforeDirection: direction(prev.szi),
		AfterDirection:  direction(newSzi),
		BeforeSize:      prev.szi.String(),
		AfterSize:       newSzi.String(),
		Tier:            tier,
		WhaleBias:       d.whaleBias(),
		Recommendation:  recommendationFor(changeType, direction(newSzi)),
		Timestamp:       t,
	}

	d.appendRing(alert)
	metrics.WhaleAlertsTotal.WithLabelValues(string(priority), string(changeType)).Inc()

	if d.publish != nil {
		evt := eventbus.SignalOutEvent{Kind: "whale_alert", Alert: alert}
		_ = d.publish(ctx, eventbus.TopicSignalsOut, evt)
	}

	// Notification is best-effort, never blocking, never retried (§4.6).
	if d.notify != nil && (priority == PriorityCritical || priority == PriorityHigh) {
		go d.notify(alert)
	}
}

func classify(prev, next decimal.Decimal) (ChangeType, bool) {
	prevDir := direction(prev)
	nextDir := direction(next)

	if prevDir != "neutral" && nextDir != "neutral" && prevDir != nextDir {
		return ChangeReversal, true
	}
	if prevDir == "neutral" && nextDir != "neutral" {
		return ChangeEntry, true
	}
	if prevDir != "neutral" && nextDir == "neutral" {
		return ChangeExit, true
	}
	if prevDir == nextDir && !prev.IsZero() {
		pctChange := next.Sub(prev).Abs().Div(prev.Abs()).InexactFloat64()
		if pctChange >= 0.20 {
			return ChangeSizeChange, true
		}
	}
	return "", false
}

func priorityFor(accountValue, score float64, cfg config.AlertsConfig) Priority {
	switch {
	case accountValue >= cfg.AlphaWhaleThreshold:
		return PriorityCritical
	case accountValue >= cfg.WhaleThreshold:
		return PriorityHigh
	case score >= cfg.EliteThreshold:
		return PriorityMedium
	default:
		return PriorityLow
	}
}

func recommendationFor(changeType ChangeType, newDirection string) string {
	switch changeType {
	case ChangeReversal:
		return "Whale reversed position to " + strings.ToUpper(newDirection) + "; watch for momentum follow-through"
	case ChangeEntry:
		return "Whale entered " + strings.ToUpper(newDirection) + "; potential early signal"
	case ChangeExit:
		return "Whale exited to flat; reduced conviction"
	default:
		return "Whale changed " + strings.ToUpper(newDirection) + " position size materially"
	}
}

// whaleBias computes (whales_long - whales_short) / total_whales over all currently
// known whale directions (§3, §4.6). Takes d.mu itself; callers must not hold it.
func (d *Detector) whaleBias() float64 {
	d.mu.Lock()
	defer d.mu.Unlock()

	var long, short, total int
	for _, dir := range d.directions {
		switch dir {
		case "long":
			long++
			total++
		case "short":
			short++
			total++
		case "neutral":
			total++
		}
	}
	if total == 0 {
		return 0
	}
	return float64(long-short) / float64(total)
}

func (d *Detector) appendRing(alert Alert) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.ring = append(d.ring, alert)
}

// Recent returns the alerts within max_age_hours (default 24), pruning older entries
// (and their dedup keys) from the ring on read (§4.6).
func (d *Detector) Recent() []Alert {
	d.mu.Lock()
	defer d.mu.Unlock()

	cutoff := time.Now().Add(-time.Duration(d.cfg.MaxAgeHours) * time.Hour)
	kept := d.ring[:0:0]
	for _, a := range d.ring {
		if time.UnixMilli(a.Timestamp).Before(cutoff) {
			continue
		}
		kept = append(kept, a)
	}
	d.ring = kept

	for key, seenAt := range d.seen {
		if seenAt.Before(cutoff) {
			delete(d.seen, key)
		}
	}

	sort.Slice(kept, func(i, j int) bool {
		return priorityRank[kept[i].Priority] > priorityRank[kept[j].Priority]
	})

	out := make([]Alert, len(kept))
	copy(out, kept)
	return out
}
