package venue

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

// ============================================================
// IntervalDuration
// ============================================================

func TestIntervalDuration_KnownIntervals(t *testing.T) {
	cases := map[string]time.Duration{
		"1m":  time.Minute,
		"5m":  5 * time.Minute,
		"15m": 15 * time.Minute,
		"1h":  time.Hour,
		"4h":  4 * time.Hour,
		"1d":  24 * time.Hour,
	}
	for interval, want := range cases {
		assert.Equal(t, want, IntervalDuration(interval), interval)
	}
}

func TestIntervalDuration_UnknownInterval_DefaultsToMinute(t *testing.T) {
	assert.Equal(t, time.Minute, IntervalDuration("bogus"))
}

// ============================================================
// BucketStart
// ============================================================

func TestBucketStart_AlignsToIntervalBoundary(t *testing.T) {
	ts := time.Date(2026, 7, 30, 14, 37, 22, 0, time.UTC)
	start := BucketStart(ts, "15m")
	assert.Equal(t, time.Date(2026, 7, 30, 14, 30, 0, 0, time.UTC), start)
}

func TestBucketStart_AlreadyAligned_Unchanged(t *testing.T) {
	ts := time.Date(2026, 7, 30, 14, 0, 0, 0, time.UTC)
	assert.Equal(t, ts, BucketStart(ts, "1h"))
}

// ============================================================
// StartTimeFor
// ============================================================

func TestStartTimeFor_SubtractsLimitBuckets(t *testing.T) {
	now := time.Now().UnixMilli()
	start := StartTimeFor("1m", 10)
	wantApprox := now - 10*time.Minute.Milliseconds()
	assert.InDelta(t, wantApprox, start, 1000)
}
