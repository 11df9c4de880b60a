package trader

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func scoredRow(id string, score float64) ScoredRow {
	return ScoredRow{Row: LeaderboardRow{ID: id}, Score: score}
}

// ============================================================
// Apply — Add/Remove/Keep delta semantics
// ============================================================

func TestApply_FirstCall_AllAdded(t *testing.T) {
	ts := NewTrackedSet()
	delta := ts.Apply([]ScoredRow{scoredRow("0x1", 10), scoredRow("0x2", 20)})

	assert.Len(t, delta.Added, 2)
	assert.Empty(t, delta.Removed)
	assert.Empty(t, delta.Kept)
	assert.Equal(t, 2, ts.Len())
}

func TestApply_SecondCall_SameSet_AllKept(t *testing.T) {
	ts := NewTrackedSet()
	ts.Apply([]ScoredRow{scoredRow("0x1", 10), scoredRow("0x2", 20)})

	delta := ts.Apply([]ScoredRow{scoredRow("0x1", 15), scoredRow("0x2", 25)})
	assert.Empty(t, delta.Added)
	assert.Empty(t, delta.Removed)
	require.Len(t, delta.Kept, 2)
}

func TestApply_TraderDropsOut_Removed(t *testing.T) {
	ts := NewTrackedSet()
	ts.Apply([]ScoredRow{scoredRow("0x1", 10), scoredRow("0x2", 20)})

	delta := ts.Apply([]ScoredRow{scoredRow("0x1", 10)})
	assert.Equal(t, []string{"0x2"}, delta.Removed)
	assert.Empty(t, delta.Added)
}

func TestApply_MixedAddRemoveKeep(t *testing.T) {
	ts := NewTrackedSet()
	ts.Apply([]ScoredRow{scoredRow("0x1", 10), scoredRow("0x2", 20)})

	delta := ts.Apply([]ScoredRow{scoredRow("0x2", 20), scoredRow("0x3", 30)})
	assert.Equal(t, []string{"0x1"}, delta.Removed)
	require.Len(t, delta.Added, 1)
	assert.Equal(t, "0x3", delta.Added[0].Row.ID)
	require.Len(t, delta.Kept, 1)
	assert.Equal(t, "0x2", delta.Kept[0].Row.ID)
}

func TestApply_EmptyNext_RemovesAll(t *testing.T) {
	ts := NewTrackedSet()
	ts.Apply([]ScoredRow{scoredRow("0x1", 10)})

	delta := ts.Apply(nil)
	assert.Equal(t, []string{"0x1"}, delta.Removed)
	assert.Equal(t, 0, ts.Len())
}

// ============================================================
// Get / CurrentIDs reflect the most recent Apply
// ============================================================

func TestGet_ReturnsCurrentRow(t *testing.T) {
	ts := NewTrackedSet()
	ts.Apply([]ScoredRow{scoredRow("0x1", 10)})

	row, ok := ts.Get("0x1")
	require.True(t, ok)
	assert.Equal(t, 10.0, row.Score)
}

func TestGet_UnknownID_NotOK(t *testing.T) {
	ts := NewTrackedSet()
	_, ok := ts.Get("0xmissing")
	assert.False(t, ok)
}

func TestCurrentIDs_MatchesTrackedSet(t *testing.T) {
	ts := NewTrackedSet()
	ts.Apply([]ScoredRow{scoredRow("0x1", 10), scoredRow("0x2", 20)})

	ids := ts.CurrentIDs()
	assert.ElementsMatch(t, []string{"0x1", "0x2"}, ids)
}
