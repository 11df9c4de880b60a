// Package bootstrap implements the Signal System's catch-up protocol (§4.3
// Bootstrap): fetch the current tracked-trader set and last-known positions via a
// single synchronous snapshot call, then let the caller subscribe to positions.scored
// and candles. While no snapshot has yet succeeded, the system stays in a "warming"
// state.
package bootstrap

import (
	"context"
	"math"
	"math/rand"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"hlpulse/internal/errs"
	"hlpulse/internal/metrics"
)

const (
	backoffBase = time.Second
	backoffCap  = 30 * time.Second
)

// WindowRecord is one (day/week/month/allTime) performance window, wire-compatible
// with trader.WindowPerformance but expressed in float64 to keep this package free of
// the decimal dependency.
type WindowRecord struct {
	PnL float64 `json:"pnl"`
	ROI float64 `json:"roi"`
	Vlm float64 `json:"vlm"`
}

// TraderRecord is one entry of RegistrySnapshot.Traders, carrying enough of the
// leaderboard row for the Signal System to rebuild weighting inputs without a second
// round trip to the leaderboard itself (§4.4, §4.5).
type TraderRecord struct {
	ID           string                  `json:"id"`
	DisplayName  string                  `json:"display_name"`
	Score        float64                 `json:"score"`
	Tags         []string                `json:"tags"`
	AccountValue float64                 `json:"account_value"`
	Windows      map[string]WindowRecord `json:"windows"`
}

// PositionRecord is one entry of RegistrySnapshot.Positions, wire-compatible with the
// positions.raw event shape (§3, §4.3).
type PositionRecord struct {
	Address string `json:"address"`
	Coin    string `json:"coin"`
	Szi     string `json:"szi"`
	Ep      string `json:"ep"`
	Mp      string `json:"mp"`
	Upnl    string `json:"upnl"`
	Lev     int    `json:"lev"`
	T       int64  `json:"t"`
}

// RegistrySnapshot is the synchronous bootstrap response body from the Scraper's
// snapshot endpoint (§3, §6).
type RegistrySnapshot struct {
	Traders     []TraderRecord   `json:"traders"`
	Positions   []PositionRecord `json:"positions"`
	GeneratedAt time.Time        `json:"generated_at"`
}

// Fetcher performs the single synchronous snapshot call.
type Fetcher interface {
	FetchSnapshot(ctx context.Context) (*RegistrySnapshot, error)
}

// Sink applies a fetched snapshot to the signal system's in-memory state.
type Sink interface {
	ApplySnapshot(snap *RegistrySnapshot)
}

// Coordinator drives the bootstrap protocol and tracks warming state.
type Coordinator struct {
	fetcher Fetcher
	sink    Sink
	log     zerolog.Logger
	warming atomic.Bool
}

// NewCoordinator builds a coordinator that starts in the warming state.
func NewCoordinator(fetcher Fetcher, sink Sink, log zerolog.Logger) *Coordinator {
	c := &Coordinator{fetcher: fetcher, sink: sink, log: log.With().Str("component", "bootstrap").Logger()}
	c.warming.Store(true)
	metrics.BootstrapWarming.Set(1)
	return c
}

// IsWarming reports whether no snapshot has yet succeeded; while true, the Signal
// Aggregator must emit NEUTRAL signals with confidence 0 (§4.3, §7).
func (c *Coordinator) IsWarming() bool {
	return c.warming.Load()
}

// Run retries the snapshot fetch with capped exponential backoff (full jitter) until
// it succeeds or ctx is cancelled, applying the result via Sink and clearing the
// warming flag on success.
func (c *Coordinator) Run(ctx context.Context) error {
	attempt := 0
	for {
		snap, err := c.fetcher.FetchSnapshot(ctx)
		if err == nil {
			c.sink.ApplySnapshot(snap)
			c.warming.Store(false)
			metrics.BootstrapWarming.Set(0)
			c.log.Info().Int("traders", len(snap.Traders)).Int("positions", len(snap.Positions)).
				Msg("bootstrap snapshot applied")
			return nil
		}

		c.log.Warn().Err(err).Int("attempt", attempt).Msg("bootstrap snapshot fetch failed, retrying")

		wait := backoffDelay(attempt)
		select {
		case <-ctx.Done():
			return &errs.TransportError{Component: "bootstrap", Err: ctx.Err()}
		case <-time.After(wait):
		}
		attempt++
	}
}

func backoffDelay(attempt int) time.Duration {
	exp := float64(backoffBase) * math.Pow(2, float64(attempt))
	capped := math.Min(exp, float64(backoffCap))
	return time.Duration(rand.Int63n(int64(capped) + 1))
}
