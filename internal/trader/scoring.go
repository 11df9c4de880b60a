package trader

import (
	"sort"

	"github.com/shopspring/decimal"

	"hlpulse/internal/config"
)

// accountValueTiers maps the account-value step function (§4.2): thresholds checked
// highest-first, first match wins.
var accountValueTiers = []struct {
	threshold float64
	points    float64
}{
	{10_000_000, 15},
	{5_000_000, 12},
	{1_000_000, 8},
	{100_000, 4},
}

// monthlyVolumeTiers maps the monthly-volume step function (§4.2).
var monthlyVolumeTiers = []struct {
	threshold float64
	points    float64
}{
	{100_000_000, 10},
	{50_000_000, 7},
	{10_000_000, 4},
	{1_000_000, 2},
}

func tieredPoints(value float64, tiers []struct {
	threshold float64
	points    float64
}) float64 {
	for _, t := range tiers {
		if value >= t.threshold {
			return t.points
		}
	}
	return 0
}

// Score computes the additive raw score for one leaderboard row (§4.2 table).
func Score(row LeaderboardRow, cfg config.ScoringConfig) float64 {
	score := 0.0

	allTime := row.Windows[WindowAllTime]
	month := row.Windows[WindowMonth]
	week := row.Windows[WindowWeek]

	score += allTime.ROI.InexactFloat64() * cfg.ROIMultipliers.AllTime
	score += month.ROI.InexactFloat64() * cfg.ROIMultipliers.Month
	score += week.ROI.InexactFloat64() * cfg.ROIMultipliers.Week

	accountValue := row.AccountValue.InexactFloat64()
	score += tieredPoints(accountValue, accountValueTiers)

	monthlyVolume := month.Vlm.InexactFloat64()
	score += tieredPoints(monthlyVolume, monthlyVolumeTiers)

	if allPositive(row) {
		score += cfg.ConsistencyBonus
	}

	return score
}

func allPositive(row LeaderboardRow) bool {
	for _, w := range Windows {
		perf, ok := row.Windows[w]
		if !ok || perf.ROI.Sign() <= 0 {
			return false
		}
	}
	return true
}

// Tags computes the closed tag vocabulary for a scored row (§4.2 tagging rules).
func Tags(row LeaderboardRow, score float64, cfg config.ScoringConfig) []Tag {
	var tags []Tag

	accountValue := row.AccountValue.InexactFloat64()
	if accountValue >= cfg.Tags.Whale.Threshold {
		tags = append(tags, TagWhale)
	}
	if accountValue >= cfg.Tags.Large.Threshold {
		tags = append(tags, TagLarge)
	}
	if score >= 80 {
		tags = append(tags, TagTopPerformer)
	}
	if score >= 90 {
		tags = append(tags, TagElite)
	}
	if consistentAcrossShortWindows(row) {
		tags = append(tags, TagConsistent)
	}
	if allTime, ok := row.Windows[WindowAllTime]; ok && allTime.ROI.GreaterThanOrEqual(decimal.NewFromInt(1)) {
		tags = append(tags, TagHighPerformer)
	}
	monthlyVolume := row.Windows[WindowMonth].Vlm.InexactFloat64()
	if monthlyVolume >= 100_000_000 {
		tags = append(tags, TagHighVolume)
	} else if monthlyVolume >= 10_000_000 {
		tags = append(tags, TagMediumVolume)
	}

	return tags
}

func consistentAcrossShortWindows(row LeaderboardRow) bool {
	for _, w := range []Window{WindowDay, WindowWeek, WindowMonth} {
		perf, ok := row.Windows[w]
		if !ok || perf.ROI.Sign() <= 0 {
			return false
		}
	}
	return true
}

// ScoredRow pairs a leaderboard row with its computed score and tags.
type ScoredRow struct {
	Row   LeaderboardRow
	Score float64
	Tags  []Tag
}

// ScoreSnapshot scores and tags every row of a snapshot.
func ScoreSnapshot(snap LeaderboardSnapshot, cfg config.ScoringConfig) []ScoredRow {
	out := make([]ScoredRow, 0, len(snap.Rows))
	for _, row := range snap.Rows {
		s := Score(row, cfg)
		out = append(out, ScoredRow{Row: row, Score: s, Tags: Tags(row, s, cfg)})
	}
	return out
}

// Filter applies the §4.2 filter pipeline: min_score, min_account_value,
// require_positive windows, exclusion lists, then clamps to max_count sorted by score
// descending (id tiebreak) — deterministic per §8 property 1.
func Filter(scored []ScoredRow, cfg config.ScoringConfig) []ScoredRow {
	excludedAddr := toSet(cfg.ExcludedAddresses)
	excludedTag := toSet(cfg.ExcludedTags)

	var kept []ScoredRow
	for _, sr := range scored {
		if sr.Score < cfg.MinScore {
			continue
		}
		if sr.Row.AccountValue.InexactFloat64() < cfg.MinAccountValue {
			continue
		}
		if _, excluded := excludedAddr[sr.Row.ID]; excluded {
			continue
		}
		if hasExcludedTag(sr.Tags, excludedTag) {
			continue
		}
		if !requirePositiveSatisfied(sr.Row, cfg.RequirePositive) {
			continue
		}
		kept = append(kept, sr)
	}

	sort.SliceStable(kept, func(i, j int) bool {
		if kept[i].Score != kept[j].Score {
			return kept[i].Score > kept[j].Score
		}
		return kept[i].Row.ID < kept[j].Row.ID
	})

	if cfg.MaxCount > 0 && len(kept) > cfg.MaxCount {
		kept = kept[:cfg.MaxCount]
	}
	return kept
}

func requirePositiveSatisfied(row LeaderboardRow, windows []string) bool {
	for _, w := range windows {
		perf, ok := row.Windows[Window(w)]
		if !ok || perf.ROI.Sign() <= 0 {
			return false
		}
	}
	return true
}

func hasExcludedTag(tags []Tag, excluded map[string]struct{}) bool {
	for _, t := range tags {
		if _, ok := excluded[string(t)]; ok {
			return true
		}
	}
	return false
}

func toSet(values []string) map[string]struct{} {
	out := make(map[string]struct{}, len(values))
	for _, v := range values {
		out[v] = struct{}{}
	}
	return out
}
