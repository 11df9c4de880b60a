// Package venue reproduces the Hyperliquid wire protocol bit-for-bit (§6): the /info
// REST request/response shapes, the WebSocket subscribe envelope, and the leaderboard
// JSON shape.
package venue

import (
	"encoding/json"
	"time"
)

// InfoRequest is the generic /info POST body. Req carries the kind-specific payload.
type InfoRequest struct {
	Type string      `json:"type"`
	Req  interface{} `json:"req,omitempty"`
}

// CandleSnapshotReq is the payload for type=candleSnapshot.
type CandleSnapshotReq struct {
	Coin      string `json:"coin"`
	Interval  string `json:"interval"`
	StartTime int64  `json:"startTime"`
	EndTime   int64  `json:"endTime"`
}

// Candle is a single OHLCV bar as returned by candleSnapshot.
type Candle struct {
	T int64   `json:"t"` // bucket start, ms
	O string  `json:"o"`
	H string  `json:"h"`
	L string  `json:"l"`
	C string  `json:"c"`
	V string  `json:"v"`
	N float64 `json:"n"`
}

// Meta describes the venue's tradable universe (type=metaAndAssetCtxs).
type Meta struct {
	Universe []Asset `json:"universe"`
}

// Asset is one entry of Meta.Universe.
type Asset struct {
	Name         string `json:"name"`
	SzDecimals   int    `json:"szDecimals"`
	MaxLeverage  int    `json:"maxLeverage"`
	OnlyIsolated bool   `json:"onlyIsolated"`
	IsDelisted   bool   `json:"isDelisted"`
}

// WSMessage is the outer envelope of every inbound WebSocket frame.
type WSMessage struct {
	Channel string      `json:"channel"`
	Data    interface{} `json:"data"`
}

// WebData2Position is one entry of a webData2 position snapshot.
type WebData2Position struct {
	Coin             string `json:"coin"`
	Szi              string `json:"szi"`
	EntryPx          string `json:"entryPx"`
	PositionValue    string `json:"positionValue"`
	UnrealizedPnl    string `json:"unrealizedPnl"`
	Leverage         int    `json:"leverage"`
	LiquidationPx    string `json:"liquidationPx,omitempty"`
	MarkPx           string `json:"markPx,omitempty"`
}

// WebData2Data is the payload of a webData2 channel message, keyed by user.
type WebData2Data struct {
	User         string             `json:"user"`
	AssetPositions []struct {
		Position WebData2Position `json:"position"`
	} `json:"assetPositions"`
}

// CandleWSData is the payload of a candle channel message.
type CandleWSData struct {
	Symbol   string `json:"s"`
	Interval string `json:"i"`
	T        int64  `json:"t"`
	O        string `json:"o"`
	H        string `json:"h"`
	L        string `json:"l"`
	C        string `json:"c"`
	V        string `json:"v"`
}

// LeaderboardRow is one entry of the CloudFront leaderboard JSON (§6).
type LeaderboardRow struct {
	EthAddress       string               `json:"ethAddress"`
	AccountValue     string               `json:"accountValue"`
	DisplayName      string               `json:"displayName,omitempty"`
	PrizeUSD         float64              `json:"prizeUsd,omitempty"`
	WindowPerformances []WindowPerformance `json:"windowPerformances"`
}

// WindowPerformance is a (window, {pnl, roi, vlm}) pair as returned on the wire; the
// leaderboard JSON represents windows as a list of [name, metrics] tuples, decoded
// into this struct by UnmarshalJSON when the rest client reads the response.
type WindowPerformance struct {
	Window string `json:"window"` // day, week, month, allTime
	PnL    string `json:"pnl"`
	ROI    string `json:"roi"`
	Vlm    string `json:"vlm"`
}

// UnmarshalJSON decodes one [name, {pnl, roi, vlm}] tuple.
func (w *WindowPerformance) UnmarshalJSON(b []byte) error {
	var tuple [2]json.RawMessage
	if err := json.Unmarshal(b, &tuple); err != nil {
		return err
	}
	var m struct{ PnL, ROI, Vlm string }
	if err := json.Unmarshal(tuple[1], &m); err != nil {
		return err
	}
	w.PnL, w.ROI, w.Vlm = m.PnL, m.ROI, m.Vlm
	return json.Unmarshal(tuple[0], &w.Window)
}

// LeaderboardResponse is the top-level CloudFront JSON shape.
type LeaderboardResponse struct {
	LeaderboardRows []LeaderboardRow `json:"leaderboardRows"`
}

// SubscribeFrame is the outbound WS subscribe envelope shared by both subscription
// kinds; BuildPositionSubscription and BuildCandleSubscription construct the
// type-specific Subscription payload.
type SubscribeFrame struct {
	Method       string      `json:"method"` // "subscribe" or "unsubscribe"
	Subscription interface{} `json:"subscription"`
}

// PositionSubscription subscribes to a single user's webData2 stream.
type PositionSubscription struct {
	Type string `json:"type"` // "webData2"
	User string `json:"user"`
}

// CandleSubscription subscribes to a single (coin, interval) candle stream.
type CandleSubscription struct {
	Type     string `json:"type"` // "candle"
	Coin     string `json:"coin"`
	Interval string `json:"interval"`
}

// SupportedIntervals is the fixed interval set from §3.
var SupportedIntervals = []string{"1m", "5m", "15m", "1h", "4h", "1d"}

// IntervalDuration returns the bucket width for a supported interval.
func IntervalDuration(interval string) time.Duration {
	switch interval {
	case "1m":
		return time.Minute
	case "5m":
		return 5 * time.Minute
	case "15m":
		return 15 * time.Minute
	case "1h":
		return time.Hour
	case "4h":
		return 4 * time.Hour
	case "1d":
		return 24 * time.Hour
	default:
		return time.Minute
	}
}

// StartTimeFor computes the candleSnapshot start time (ms) for fetching `limit`
// buckets ending now, mirroring CalculateHyperliquidStartTime.
func StartTimeFor(interval string, limit int) int64 {
	now := time.Now().UnixMilli()
	return now - int64(limit)*IntervalDuration(interval).Milliseconds()
}

// BucketStart aligns a wall-clock time to the start of its interval bucket.
func BucketStart(t time.Time, interval string) time.Time {
	d := IntervalDuration(interval)
	return t.Truncate(d)
}
