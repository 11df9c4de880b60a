package trader

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"

	"hlpulse/internal/config"
)

func testScoringCfg() config.ScoringConfig {
	return config.ScoringConfig{
		ROIMultipliers:   config.ROIMultipliers{AllTime: 10, Month: 20, Week: 30},
		Tags:             config.TagsConfig{Whale: config.TagThreshold{Threshold: 5_000_000}, Large: config.TagThreshold{Threshold: 1_000_000}},
		ConsistencyBonus: 5,
		MinScore:         0,
		MaxCount:         0,
		RequirePositive:  nil,
	}
}

func rowWith(windows map[Window]WindowPerformance, accountValue float64) LeaderboardRow {
	return LeaderboardRow{ID: "0xabc", AccountValue: decimal.NewFromFloat(accountValue), Windows: windows}
}

func perf(pnl, roi, vlm float64) WindowPerformance {
	return WindowPerformance{PnL: decimal.NewFromFloat(pnl), ROI: decimal.NewFromFloat(roi), Vlm: decimal.NewFromFloat(vlm)}
}

// ============================================================
// Score — additive components
// ============================================================

func TestScore_ROIComponentsAreAdditive(t *testing.T) {
	row := rowWith(map[Window]WindowPerformance{
		WindowAllTime: perf(0, 1.0, 0),
		WindowMonth:   perf(0, 0.5, 0),
		WindowWeek:    perf(0, 0.1, 0),
	}, 0)
	cfg := testScoringCfg()

	got := Score(row, cfg)
	want := 1.0*10 + 0.5*20 + 0.1*30
	assert.InDelta(t, want, got, 1e-9)
}

func TestScore_AccountValueTiers(t *testing.T) {
	cfg := testScoringCfg()
	row := rowWith(nil, 12_000_000)
	assert.InDelta(t, 15, Score(row, cfg), 1e-9)

	row = rowWith(nil, 500_000)
	assert.InDelta(t, 4, Score(row, cfg), 1e-9)

	row = rowWith(nil, 1_000)
	assert.InDelta(t, 0, Score(row, cfg), 1e-9)
}

func TestScore_MonthlyVolumeTiers(t *testing.T) {
	cfg := testScoringCfg()
	row := rowWith(map[Window]WindowPerformance{WindowMonth: perf(0, 0, 150_000_000)}, 0)
	assert.InDelta(t, 10, Score(row, cfg), 1e-9)
}

func TestScore_ConsistencyBonus_AllWindowsPositive(t *testing.T) {
	cfg := testScoringCfg()
	row := rowWith(map[Window]WindowPerformance{
		WindowDay: perf(0, 0.01, 0), WindowWeek: perf(0, 0.02, 0),
		WindowMonth: perf(0, 0.03, 0), WindowAllTime: perf(0, 0.04, 0),
	}, 0)
	got := Score(row, cfg)
	// allTime*10 + month*20 + week*30 + consistency bonus
	want := 0.04*10 + 0.03*20 + 0.02*30 + 5
	assert.InDelta(t, want, got, 1e-9)
}

func TestScore_NoConsistencyBonus_OneWindowNegative(t *testing.T) {
	cfg := testScoringCfg()
	row := rowWith(map[Window]WindowPerformance{
		WindowDay: perf(0, -0.01, 0), WindowWeek: perf(0, 0.02, 0),
		WindowMonth: perf(0, 0.03, 0), WindowAllTime: perf(0, 0.04, 0),
	}, 0)
	got := Score(row, cfg)
	want := 0.04*10 + 0.03*20 + 0.02*30
	assert.InDelta(t, want, got, 1e-9)
}

// ============================================================
// Tags
// ============================================================

func TestTags_WhaleAndLarge(t *testing.T) {
	cfg := testScoringCfg()
	row := rowWith(nil, 6_000_000)
	tags := Tags(row, 0, cfg)
	assert.Contains(t, tags, TagWhale)
	assert.Contains(t, tags, TagLarge)
}

func TestTags_TopPerformerAndElite(t *testing.T) {
	cfg := testScoringCfg()
	row := rowWith(nil, 0)
	assert.Contains(t, Tags(row, 85, cfg), TagTopPerformer)
	assert.Contains(t, Tags(row, 95, cfg), TagElite)
	assert.NotContains(t, Tags(row, 85, cfg), TagElite)
}

func TestTags_Consistent_RequiresShortWindowsPositive(t *testing.T) {
	cfg := testScoringCfg()
	row := rowWith(map[Window]WindowPerformance{
		WindowDay: perf(0, 0.1, 0), WindowWeek: perf(0, 0.1, 0), WindowMonth: perf(0, 0.1, 0),
	}, 0)
	assert.Contains(t, Tags(row, 0, cfg), TagConsistent)
}

func TestTags_HighPerformer_AllTimeROIAtLeastOne(t *testing.T) {
	cfg := testScoringCfg()
	row := rowWith(map[Window]WindowPerformance{WindowAllTime: perf(0, 1.0, 0)}, 0)
	assert.Contains(t, Tags(row, 0, cfg), TagHighPerformer)
}

func TestTags_VolumeTiers_MutuallyExclusive(t *testing.T) {
	cfg := testScoringCfg()
	high := rowWith(map[Window]WindowPerformance{WindowMonth: perf(0, 0, 150_000_000)}, 0)
	tags := Tags(high, 0, cfg)
	assert.Contains(t, tags, TagHighVolume)
	assert.NotContains(t, tags, TagMediumVolume)

	med := rowWith(map[Window]WindowPerformance{WindowMonth: perf(0, 0, 20_000_000)}, 0)
	tags = Tags(med, 0, cfg)
	assert.Contains(t, tags, TagMediumVolume)
	assert.NotContains(t, tags, TagHighVolume)
}

// ============================================================
// Filter — pipeline ordering and determinism
// ============================================================

func TestFilter_ExcludesBelowMinScore(t *testing.T) {
	cfg := testScoringCfg()
	cfg.MinScore = 10
	scored := []ScoredRow{{Row: LeaderboardRow{ID: "0x1"}, Score: 5}, {Row: LeaderboardRow{ID: "0x2"}, Score: 15}}

	got := Filter(scored, cfg)
	assert.Len(t, got, 1)
	assert.Equal(t, "0x2", got[0].Row.ID)
}

func TestFilter_ExcludesByAddress(t *testing.T) {
	cfg := testScoringCfg()
	cfg.ExcludedAddresses = []string{"0x1"}
	scored := []ScoredRow{{Row: LeaderboardRow{ID: "0x1"}, Score: 50}, {Row: LeaderboardRow{ID: "0x2"}, Score: 50}}

	got := Filter(scored, cfg)
	assert.Len(t, got, 1)
	assert.Equal(t, "0x2", got[0].Row.ID)
}

func TestFilter_ExcludesByTag(t *testing.T) {
	cfg := testScoringCfg()
	cfg.ExcludedTags = []string{"whale"}
	scored := []ScoredRow{
		{Row: LeaderboardRow{ID: "0x1"}, Score: 50, Tags: []Tag{TagWhale}},
		{Row: LeaderboardRow{ID: "0x2"}, Score: 50},
	}

	got := Filter(scored, cfg)
	assert.Len(t, got, 1)
	assert.Equal(t, "0x2", got[0].Row.ID)
}

func TestFilter_RequirePositiveWindows(t *testing.T) {
	cfg := testScoringCfg()
	cfg.RequirePositive = []string{"allTime"}
	scored := []ScoredRow{
		{Row: rowWith(map[Window]WindowPerformance{WindowAllTime: perf(0, -0.1, 0)}, 0), Score: 50},
		{Row: rowWith(map[Window]WindowPerformance{WindowAllTime: perf(0, 0.1, 0)}, 0), Score: 50},
	}
	scored[0].Row.ID, scored[1].Row.ID = "0x1", "0x2"

	got := Filter(scored, cfg)
	assert.Len(t, got, 1)
	assert.Equal(t, "0x2", got[0].Row.ID)
}

func TestFilter_SortedByScoreDescending_IDTiebreak(t *testing.T) {
	cfg := testScoringCfg()
	scored := []ScoredRow{
		{Row: LeaderboardRow{ID: "0xb"}, Score: 50},
		{Row: LeaderboardRow{ID: "0xa"}, Score: 50},
		{Row: LeaderboardRow{ID: "0xc"}, Score: 90},
	}

	got := Filter(scored, cfg)
	assert.Equal(t, []string{"0xc", "0xa", "0xb"}, []string{got[0].Row.ID, got[1].Row.ID, got[2].Row.ID})
}

func TestFilter_ClampsToMaxCount(t *testing.T) {
	cfg := testScoringCfg()
	cfg.MaxCount = 2
	scored := []ScoredRow{
		{Row: LeaderboardRow{ID: "0x1"}, Score: 10},
		{Row: LeaderboardRow{ID: "0x2"}, Score: 20},
		{Row: LeaderboardRow{ID: "0x3"}, Score: 30},
	}

	got := Filter(scored, cfg)
	assert.Len(t, got, 2)
	assert.Equal(t, "0x3", got[0].Row.ID)
	assert.Equal(t, "0x2", got[1].Row.ID)
}

// ============================================================
// ValidID / NormalizeID
// ============================================================

func TestValidID_RejectsMalformed(t *testing.T) {
	assert.False(t, ValidID("not-an-address"))
	assert.False(t, ValidID("0x123"))
}

func TestValidID_AcceptsWellFormed(t *testing.T) {
	assert.True(t, ValidID("0x0000000000000000000000000000000000000001"))
}

func TestNormalizeID_ChecksummedForValid(t *testing.T) {
	got := NormalizeID("0x0000000000000000000000000000000000000001")
	assert.Equal(t, "0x0000000000000000000000000000000000000001", got)
}

func TestNormalizeID_UnchangedForInvalid(t *testing.T) {
	assert.Equal(t, "garbage", NormalizeID("garbage"))
}
