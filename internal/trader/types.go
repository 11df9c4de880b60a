// Package trader holds the Trader/LeaderboardSnapshot entities and the leaderboard
// scoring + tracked-trader lifecycle (§3, §4.2).
package trader

import (
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
)

// Window names the four performance windows carried on every Trader and
// LeaderboardRow.
type Window string

const (
	WindowDay     Window = "day"
	WindowWeek    Window = "week"
	WindowMonth   Window = "month"
	WindowAllTime Window = "allTime"
)

// Windows enumerates the four recognized windows in a fixed order.
var Windows = []Window{WindowDay, WindowWeek, WindowMonth, WindowAllTime}

// WindowPerformance is the {pnl, roi, vlm} triple bound to one window (§GLOSSARY).
type WindowPerformance struct {
	PnL decimal.Decimal
	ROI decimal.Decimal
	Vlm decimal.Decimal
}

// Tag is one member of the closed tagging vocabulary (§4.2).
type Tag string

const (
	TagWhale         Tag = "whale"
	TagLarge         Tag = "large"
	TagElite         Tag = "elite"
	TagTopPerformer  Tag = "top_performer"
	TagConsistent    Tag = "consistent"
	TagHighPerformer Tag = "high_performer"
	TagHighVolume    Tag = "high_volume"
	TagMediumVolume  Tag = "medium_volume"
)

// Trader is the canonical per-address record the Scraper owns (§3).
type Trader struct {
	ID           string // 42-char hex, "0x"+40 hex
	DisplayName  string
	Score        float64
	Tags         []Tag
	Active       bool
	AddedAt      time.Time
	UpdatedAt    time.Time
	AccountValue decimal.Decimal
	Windows      map[Window]WindowPerformance
}

// ValidID reports whether id is a well-formed 42-char hex account identifier, using
// go-ethereum's canonical address validator rather than hand-rolled hex parsing.
func ValidID(id string) bool {
	return common.IsHexAddress(id)
}

// NormalizeID returns the 0x-prefixed EIP-55 checksummed (mixed-case) form of id if it
// is a valid hex address, otherwise returns it unchanged (callers should check ValidID
// first).
func NormalizeID(id string) string {
	if !common.IsHexAddress(id) {
		return id
	}
	return common.HexToAddress(id).Hex()
}

// LeaderboardRow is one row of a fetched LeaderboardSnapshot (§3).
type LeaderboardRow struct {
	ID           string
	DisplayName  string
	AccountValue decimal.Decimal
	PrizeUSD     decimal.Decimal
	Windows      map[Window]WindowPerformance
}

// LeaderboardSnapshot is the ordered sequence of rows from a single leaderboard fetch
// (§3); the upstream ordering is treated as opaque (§9 open question) and never relied
// upon for scoring order.
type LeaderboardSnapshot struct {
	FetchedAt time.Time
	Rows      []LeaderboardRow
}

func (w WindowPerformance) String() string {
	return fmt.Sprintf("{pnl:%s roi:%s vlm:%s}", w.PnL, w.ROI, w.Vlm)
}
