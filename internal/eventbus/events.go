// Package eventbus is the inter-service pub/sub abstraction and bootstrap protocol
// (§4.3). It replaces the source's duck-typed "standard event" envelope (§9 design
// note) with a closed, tagged variant over Topic; handlers are total functions over
// the decoded payload type for their topic.
package eventbus

// Topic is one of the flat-namespace channels from §4.3.
type Topic string

const (
	TopicPositionsRaw    Topic = "positions.raw"
	TopicPositionsScored Topic = "positions.scored"
	TopicCandles         Topic = "candles"
	TopicSignalsOut      Topic = "signals.out"
)

// PositionRawEvent is the positions.raw payload (§4.3).
type PositionRawEvent struct {
	Address string  `json:"address"`
	Coin    string  `json:"coin"`
	Szi     string  `json:"szi"`
	Ep      string  `json:"ep"`
	Mp      string  `json:"mp"`
	Upnl    string  `json:"upnl"`
	Lev     int     `json:"lev"`
	T       int64   `json:"t"`
}

// PositionScoredEvent enriches PositionRawEvent with the trader's score/tags at
// emission time (§4.3).
type PositionScoredEvent struct {
	PositionRawEvent
	Score float64  `json:"score"`
	Tags  []string `json:"tags"`
}

// CandleEvent is the candles payload (§4.3).
type CandleEvent struct {
	Symbol   string `json:"symbol"`
	Interval string `json:"interval"`
	T        int64  `json:"t"`
	O        string `json:"o"`
	H        string `json:"h"`
	L        string `json:"l"`
	C        string `json:"c"`
	V        string `json:"v"`
}

// SignalOutEvent carries either an AggregateSignal or a WhaleAlert back to the
// Scraper for persistence (§4.3); Kind discriminates the two within the single
// signals.out topic.
type SignalOutEvent struct {
	Kind   string      `json:"kind"` // "aggregate_signal" or "whale_alert"
	Symbol string      `json:"symbol,omitempty"`
	Signal interface{} `json:"signal,omitempty"`
	Alert  interface{} `json:"alert,omitempty"`
}
