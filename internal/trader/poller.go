package trader

import (
	"context"
	"strconv"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"hlpulse/internal/config"
	"hlpulse/internal/metrics"
	"hlpulse/internal/venue"
)

// LeaderboardFetcher is the subset of venue.RESTClient the poller depends on.
type LeaderboardFetcher interface {
	FetchLeaderboard(ctx context.Context) (*venue.LeaderboardResponse, error)
}

// DeltaSink receives Add/Remove/Upsert notifications from a completed refresh; the
// Position Subscription Manager implements this to learn about new/removed traders
// (§4.2: "this delta is the only path by which the subscription manager learns of new
// traders").
type DeltaSink interface {
	OnAdded(id string)
	OnRemoved(id string)
}

// SnapshotWriter persists tracked-trader rows and leaderboard history; implemented by
// the store package.
type SnapshotWriter interface {
	UpsertTracked(ctx context.Context, rows []ScoredRow) error
	DeactivateTracked(ctx context.Context, ids []string) error
	SaveLeaderboardHistory(ctx context.Context, snap LeaderboardSnapshot) error
}

const maxRetries = 5

// retryBackoff returns the delay before retry attempt N+1, doubling from 500ms
// and capped at 8s (§4.2: "retried with capped exponential backoff").
func retryBackoff(attempt int) time.Duration {
	d := 500 * time.Millisecond
	for i := 0; i < attempt; i++ {
		d *= 2
		if d >= 8*time.Second {
			return 8 * time.Second
		}
	}
	return d
}

// Poller runs the leaderboard scheduler (§4.2, §5): on a fixed tick, fetch, score,
// diff against the tracked set, persist, and notify the sink. A failed fetch retries
// with capped backoff up to maxRetries; after exhaustion the previous tracked set
// remains untouched (no removals from a failed refresh).
type Poller struct {
	fetcher LeaderboardFetcher
	set     *TrackedSet
	sink    DeltaSink
	store   SnapshotWriter
	cfg     config.ScoringConfig
	symbol  string
	log     zerolog.Logger

	interval time.Duration
}

// NewPoller builds a poller for the given refresh interval.
func NewPoller(fetcher LeaderboardFetcher, set *TrackedSet, sink DeltaSink, store SnapshotWriter, cfg config.ScoringConfig, interval time.Duration, log zerolog.Logger) *Poller {
	return &Poller{
		fetcher:  fetcher,
		set:      set,
		sink:     sink,
		store:    store,
		cfg:      cfg,
		log:      log.With().Str("component", "trader.poller").Logger(),
		interval: interval,
	}
}

// Run ticks forever until ctx is cancelled (the "scheduler" task of §5).
func (p *Poller) Run(ctx context.Context) {
	if err := p.refresh(ctx); err != nil {
		p.log.Error().Err(err).Msg("initial leaderboard refresh failed")
	}

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := p.refresh(ctx); err != nil {
				p.log.Error().Err(err).Msg("leaderboard refresh failed, retaining previous tracked set")
			}
		}
	}
}

func (p *Poller) refresh(ctx context.Context) error {
	var resp *venue.LeaderboardResponse
	var err error
	for attempt := 0; attempt < maxRetries; attempt++ {
		resp, err = p.fetcher.FetchLeaderboard(ctx)
		if err == nil {
			break
		}
		p.log.Warn().Err(err).Int("attempt", attempt).Msg("leaderboard fetch attempt failed")

		if attempt < maxRetries-1 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(retryBackoff(attempt)):
			}
		}
	}
	if err != nil {
		metrics.LeaderboardFetchesTotal.WithLabelValues("failed").Inc()
		return err
	}
	metrics.LeaderboardFetchesTotal.WithLabelValues("success").Inc()

	snap := toSnapshot(resp, time.Now())
	scored := ScoreSnapshot(snap, p.cfg)
	filtered := Filter(scored, p.cfg)

	delta := p.set.Apply(filtered)
	metrics.TrackedTradersAddedTotal.Add(float64(len(delta.Added)))
	metrics.TrackedTradersRemovedTotal.Add(float64(len(delta.Removed)))
	metrics.TrackedTradersActive.Set(float64(len(delta.Added) + len(delta.Kept)))

	if p.store != nil {
		if len(delta.Added) > 0 || len(delta.Kept) > 0 {
			all := append(append([]ScoredRow{}, delta.Added...), delta.Kept...)
			if err := p.store.UpsertTracked(ctx, all); err != nil {
				p.log.Error().Err(err).Msg("failed to persist tracked rows")
			}
		}
		if len(delta.Removed) > 0 {
			if err := p.store.DeactivateTracked(ctx, delta.Removed); err != nil {
				p.log.Error().Err(err).Msg("failed to deactivate removed traders")
			}
		}
		if err := p.store.SaveLeaderboardHistory(ctx, snap); err != nil {
			p.log.Error().Err(err).Msg("failed to archive leaderboard history")
		}
	}

	if p.sink != nil {
		for _, sr := range delta.Added {
			p.sink.OnAdded(sr.Row.ID)
		}
		for _, id := range delta.Removed {
			p.sink.OnRemoved(id)
		}
	}

	p.log.Info().Int("added", len(delta.Added)).Int("removed", len(delta.Removed)).
		Int("kept", len(delta.Kept)).Msg("leaderboard refresh complete")

	return nil
}

func toSnapshot(resp *venue.LeaderboardResponse, fetchedAt time.Time) LeaderboardSnapshot {
	rows := make([]LeaderboardRow, 0, len(resp.LeaderboardRows))
	for _, r := range resp.LeaderboardRows {
		rows = append(rows, LeaderboardRow{
			ID:           r.EthAddress,
			DisplayName:  r.DisplayName,
			AccountValue: parseDecimal(r.AccountValue),
			PrizeUSD:     decimal.NewFromFloat(r.PrizeUSD),
			Windows:      windowsFromWire(r.WindowPerformances),
		})
	}
	return LeaderboardSnapshot{FetchedAt: fetchedAt, Rows: rows}
}

func windowsFromWire(wp []venue.WindowPerformance) map[Window]WindowPerformance {
	out := make(map[Window]WindowPerformance, len(wp))
	for _, w := range wp {
		out[Window(w.Window)] = WindowPerformance{
			PnL: parseDecimal(w.PnL),
			ROI: parseDecimal(w.ROI),
			Vlm: parseDecimal(w.Vlm),
		}
	}
	return out
}

func parseDecimal(s string) decimal.Decimal {
	if s == "" {
		return decimal.Zero
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		if f, ferr := strconv.ParseFloat(s, 64); ferr == nil {
			return decimal.NewFromFloat(f)
		}
		return decimal.Zero
	}
	return d
}
