// Package store implements the persistent document store (§6) over an embedded SQL
// engine: one table per named collection (all symbol/interval candle collections share
// a single candles table), each with the key columns named in §6 and a
// JSON payload column, TTL enforced by a periodic reaper rather than engine-native
// expiry (see DESIGN.md for why no Mongo driver is used), accessed through
// database/sql via modernc.org/sqlite.
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"hlpulse/internal/config"
	"hlpulse/internal/errs"
	"hlpulse/internal/metrics"
	"hlpulse/internal/trader"
)

// Store is the document-store handle shared by the Scraper's writer task and the
// snapshot HTTP handler.
type Store struct {
	db        *sql.DB
	retention config.RetentionConfig
}

const writeDeadline = 5 * time.Second

// Open opens (creating if absent) the embedded database at path and migrates the
// schema. The mongo_url/mongo_database config keys are not read here or by the
// scraper; the caller supplies path (the scraper's -db flag, default scraper.db) and
// no remote Mongo server is dialed.
func Open(path string, retention config.RetentionConfig) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, &errs.StorageError{Component: "store", Err: err}
	}
	db.SetMaxOpenConns(1) // modernc.org/sqlite: single-writer discipline

	s := &Store{db: db, retention: retention}
	if err := s.migrate(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *Store) migrate() error {
	ctx, cancel := context.WithTimeout(context.Background(), writeDeadline)
	defer cancel()

	for _, stmt := range schemaStatements {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return &errs.StorageError{Component: "store.migrate", Err: err}
		}
	}
	return nil
}

// Close releases the underlying connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// observeWrite records one write's outcome and duration against the given
// collection label, for the store_writes_total/store_write_duration_seconds
// metrics.
func observeWrite(collection string, start time.Time, err error) {
	status := "success"
	if err != nil {
		status = "failed"
	}
	metrics.StoreWritesTotal.WithLabelValues(collection, status).Inc()
	metrics.StoreWriteDuration.WithLabelValues(collection).Observe(time.Since(start).Seconds())
}

var schemaStatements = []string{
	`CREATE TABLE IF NOT EXISTS tracked_traders (
		eth TEXT PRIMARY KEY,
		score REAL NOT NULL,
		active INTEGER NOT NULL,
		payload TEXT NOT NULL,
		updated_at INTEGER NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_tracked_traders_score ON tracked_traders(score)`,
	`CREATE INDEX IF NOT EXISTS idx_tracked_traders_active ON tracked_traders(active)`,

	`CREATE TABLE IF NOT EXISTS trader_positions (
		eth TEXT NOT NULL,
		coin TEXT NOT NULL,
		t INTEGER NOT NULL,
		payload TEXT NOT NULL,
		PRIMARY KEY (eth, coin, t)
	)`,

	`CREATE TABLE IF NOT EXISTS trader_scores (
		eth TEXT NOT NULL,
		t INTEGER NOT NULL,
		payload TEXT NOT NULL,
		PRIMARY KEY (eth, t)
	)`,

	`CREATE TABLE IF NOT EXISTS candles (
		symbol TEXT NOT NULL,
		interval TEXT NOT NULL,
		t INTEGER NOT NULL,
		payload TEXT NOT NULL,
		PRIMARY KEY (symbol, interval, t)
	)`,

	`CREATE TABLE IF NOT EXISTS signals (
		symbol TEXT NOT NULL,
		t INTEGER NOT NULL,
		payload TEXT NOT NULL,
		PRIMARY KEY (symbol, t)
	)`,

	`CREATE TABLE IF NOT EXISTS trader_signals (
		eth TEXT NOT NULL,
		t INTEGER NOT NULL,
		payload TEXT NOT NULL,
		PRIMARY KEY (eth, t)
	)`,

	`CREATE TABLE IF NOT EXISTS leaderboard_history (
		t INTEGER PRIMARY KEY,
		payload TEXT NOT NULL
	)`,
}

// UpsertTracked persists added/kept tracked-trader rows (implements
// trader.SnapshotWriter).
func (s *Store) UpsertTracked(ctx context.Context, rows []trader.ScoredRow) (err error) {
	start := time.Now()
	defer func() { observeWrite("tracked_traders", start, err) }()

	ctx, cancel := context.WithTimeout(ctx, writeDeadline)
	defer cancel()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return &errs.StorageError{Component: "store.UpsertTracked", Err: err}
	}
	defer tx.Rollback()

	for _, sr := range rows {
		payload, err := json.Marshal(sr)
		if err != nil {
			return &errs.StorageError{Component: "store.UpsertTracked", Err: err}
		}
		_, err = tx.ExecContext(ctx, `
			INSERT INTO tracked_traders (eth, score, active, payload, updated_at)
			VALUES (?, ?, 1, ?, ?)
			ON CONFLICT(eth) DO UPDATE SET score=excluded.score, active=1, payload=excluded.payload, updated_at=excluded.updated_at
		`, sr.Row.ID, sr.Score, string(payload), time.Now().Unix())
		if err != nil {
			return &errs.StorageError{Component: "store.UpsertTracked", Err: err}
		}
	}

	if err := tx.Commit(); err != nil {
		return &errs.StorageError{Component: "store.UpsertTracked", Err: err}
	}
	return nil
}

// DeactivateTracked marks removed traders active=false, retaining history
// (implements trader.SnapshotWriter).
func (s *Store) DeactivateTracked(ctx context.Context, ids []string) (err error) {
	start := time.Now()
	defer func() { observeWrite("tracked_traders", start, err) }()

	ctx, cancel := context.WithTimeout(ctx, writeDeadline)
	defer cancel()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return &errs.StorageError{Component: "store.DeactivateTracked", Err: err}
	}
	defer tx.Rollback()

	for _, id := range ids {
		if _, err := tx.ExecContext(ctx, `UPDATE tracked_traders SET active=0, updated_at=? WHERE eth=?`, time.Now().Unix(), id); err != nil {
			return &errs.StorageError{Component: "store.DeactivateTracked", Err: err}
		}
	}

	if err := tx.Commit(); err != nil {
		return &errs.StorageError{Component: "store.DeactivateTracked", Err: err}
	}
	return nil
}

// SaveLeaderboardHistory archives one fetch's worth of rows keyed by fetch time
// (implements trader.SnapshotWriter).
func (s *Store) SaveLeaderboardHistory(ctx context.Context, snap trader.LeaderboardSnapshot) (err error) {
	start := time.Now()
	defer func() { observeWrite("leaderboard_history", start, err) }()

	ctx, cancel := context.WithTimeout(ctx, writeDeadline)
	defer cancel()

	payload, err := json.Marshal(snap)
	if err != nil {
		return &errs.StorageError{Component: "store.SaveLeaderboardHistory", Err: err}
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO leaderboard_history (t, payload) VALUES (?, ?)
		ON CONFLICT(t) DO UPDATE SET payload=excluded.payload
	`, snap.FetchedAt.UnixMilli(), string(payload))
	if err != nil {
		return &errs.StorageError{Component: "store.SaveLeaderboardHistory", Err: err}
	}
	return nil
}

// PositionDoc is the on-disk shape of one trader_positions row, matching the
// positions.raw wire fields (§3, §4.3).
type PositionDoc struct {
	Eth  string `json:"eth"`
	Coin string `json:"coin"`
	T    int64  `json:"t"`
	Szi  string `json:"szi"`
	Ep   string `json:"ep"`
	Mp   string `json:"mp"`
	Upnl string `json:"upnl"`
	Lev  int    `json:"lev"`
}

// SavePosition writes a single position snapshot, serialized by (eth, coin) at the
// call site (§5 ordering guarantee: "position persistence is serialized by the store
// writer").
func (s *Store) SavePosition(ctx context.Context, doc PositionDoc) (err error) {
	start := time.Now()
	defer func() { observeWrite("trader_positions", start, err) }()

	ctx, cancel := context.WithTimeout(ctx, writeDeadline)
	defer cancel()

	payload, err := json.Marshal(doc)
	if err != nil {
		return &errs.StorageError{Component: "store.SavePosition", Err: err}
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO trader_positions (eth, coin, t, payload) VALUES (?, ?, ?, ?)
		ON CONFLICT(eth, coin, t) DO UPDATE SET payload=excluded.payload
	`, doc.Eth, doc.Coin, doc.T, string(payload))
	if err != nil {
		return &errs.StorageError{Component: "store.SavePosition", Err: err}
	}
	return nil
}

// LatestPositions returns the most recent stored position per (eth, coin) for every
// trader with stored positions (tracked or not), used to build the bootstrap
// RegistrySnapshot.
func (s *Store) LatestPositions(ctx context.Context) ([]PositionDoc, error) {
	ctx, cancel := context.WithTimeout(ctx, writeDeadline)
	defer cancel()

	rows, err := s.db.QueryContext(ctx, `
		SELECT p.payload FROM trader_positions p
		INNER JOIN (
			SELECT eth, coin, MAX(t) AS max_t FROM trader_positions GROUP BY eth, coin
		) latest ON p.eth = latest.eth AND p.coin = latest.coin AND p.t = latest.max_t
	`)
	if err != nil {
		return nil, &errs.StorageError{Component: "store.LatestPositions", Err: err}
	}
	defer rows.Close()

	var out []PositionDoc
	for rows.Next() {
		var payload string
		if err := rows.Scan(&payload); err != nil {
			return nil, &errs.StorageError{Component: "store.LatestPositions", Err: err}
		}
		var doc PositionDoc
		if err := json.Unmarshal([]byte(payload), &doc); err != nil {
			return nil, &errs.StorageError{Component: "store.LatestPositions", Err: err}
		}
		out = append(out, doc)
	}
	return out, nil
}

// ActiveTracked returns every currently-active tracked trader row.
func (s *Store) ActiveTracked(ctx context.Context) ([]trader.ScoredRow, error) {
	ctx, cancel := context.WithTimeout(ctx, writeDeadline)
	defer cancel()

	rows, err := s.db.QueryContext(ctx, `SELECT payload FROM tracked_traders WHERE active=1`)
	if err != nil {
		return nil, &errs.StorageError{Component: "store.ActiveTracked", Err: err}
	}
	defer rows.Close()

	var out []trader.ScoredRow
	for rows.Next() {
		var payload string
		if err := rows.Scan(&payload); err != nil {
			return nil, &errs.StorageError{Component: "store.ActiveTracked", Err: err}
		}
		var sr trader.ScoredRow
		if err := json.Unmarshal([]byte(payload), &sr); err != nil {
			return nil, &errs.StorageError{Component: "store.ActiveTracked", Err: err}
		}
		out = append(out, sr)
	}
	return out, nil
}

// SaveCandle upserts one OHLCV bucket; later updates to an in-progress bucket
// overwrite the row (§3 Candle invariant).
func (s *Store) SaveCandle(ctx context.Context, symbol, interval string, t int64, payload []byte) (err error) {
	start := time.Now()
	defer func() { observeWrite("candles", start, err) }()

	ctx, cancel := context.WithTimeout(ctx, writeDeadline)
	defer cancel()

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO candles (symbol, interval, t, payload) VALUES (?, ?, ?, ?)
		ON CONFLICT(symbol, interval, t) DO UPDATE SET payload=excluded.payload
	`, symbol, interval, t, string(payload))
	if err != nil {
		return &errs.StorageError{Component: "store.SaveCandle", Err: err}
	}
	return nil
}

// SaveSignal persists an AggregateSignal with its symbol/time key (§6).
func (s *Store) SaveSignal(ctx context.Context, symbol string, t int64, payload []byte) (err error) {
	start := time.Now()
	defer func() { observeWrite("signals", start, err) }()

	ctx, cancel := context.WithTimeout(ctx, writeDeadline)
	defer cancel()

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO signals (symbol, t, payload) VALUES (?, ?, ?)
		ON CONFLICT(symbol, t) DO UPDATE SET payload=excluded.payload
	`, symbol, t, string(payload))
	if err != nil {
		return &errs.StorageError{Component: "store.SaveSignal", Err: err}
	}
	return nil
}

// SaveTraderSignal persists a per-trader whale-alert style event (§6).
func (s *Store) SaveTraderSignal(ctx context.Context, eth string, t int64, payload []byte) (err error) {
	start := time.Now()
	defer func() { observeWrite("trader_signals", start, err) }()

	ctx, cancel := context.WithTimeout(ctx, writeDeadline)
	defer cancel()

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO trader_signals (eth, t, payload) VALUES (?, ?, ?)
		ON CONFLICT(eth, t) DO UPDATE SET payload=excluded.payload
	`, eth, t, string(payload))
	if err != nil {
		return &errs.StorageError{Component: "store.SaveTraderSignal", Err: err}
	}
	return nil
}

// ReapExpired deletes rows past each collection's retention window (§6 TTL); run
// periodically by the composition root.
func (s *Store) ReapExpired(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, writeDeadline)
	defer cancel()

	now := time.Now()
	reaps := []struct {
		table   string
		keyCol  string
		days    int
		msScale bool
	}{
		{"trader_positions", "t", s.retention.TraderPositionsDays, true},
		{"trader_scores", "t", s.retention.TraderScoresDays, true},
		{"candles", "t", s.retention.CandlesDays, true},
		{"signals", "t", s.retention.SignalsDays, true},
		{"trader_signals", "t", s.retention.TraderSignalsDays, true},
		{"leaderboard_history", "t", s.retention.LeaderboardDays, true},
	}

	for _, r := range reaps {
		if r.days <= 0 {
			continue
		}
		cutoff := now.Add(-time.Duration(r.days) * 24 * time.Hour)
		cutoffMs := cutoff.UnixMilli()
		q := fmt.Sprintf("DELETE FROM %s WHERE %s < ?", r.table, r.keyCol)
		if _, err := s.db.ExecContext(ctx, q, cutoffMs); err != nil {
			return &errs.StorageError{Component: "store.ReapExpired", Err: err}
		}
	}
	return nil
}
