package trader

import "sync"

// Delta is the Add/Remove/Upsert diff between two qualifying sets (§4.2 Delta
// semantics).
type Delta struct {
	Added   []ScoredRow // next \ prev
	Removed []string    // prev \ next, by id
	Kept    []ScoredRow // next ∩ prev, upserted
}

// TrackedSet holds the current qualifying set and computes deltas against a new
// scored/filtered set. It is mutated only by the leaderboard scheduler (§5 Shared
// resources) and read by callers via CurrentIDs using a copy-on-read snapshot.
type TrackedSet struct {
	mu  sync.RWMutex
	cur map[string]ScoredRow
}

// NewTrackedSet builds an empty tracked set.
func NewTrackedSet() *TrackedSet {
	return &TrackedSet{cur: make(map[string]ScoredRow)}
}

// Apply computes the delta between the current set and next, then adopts next as the
// new current set. Safe for concurrent CurrentIDs callers.
func (t *TrackedSet) Apply(next []ScoredRow) Delta {
	t.mu.Lock()
	defer t.mu.Unlock()

	nextByID := make(map[string]ScoredRow, len(next))
	for _, sr := range next {
		nextByID[sr.Row.ID] = sr
	}

	var delta Delta
	for id, sr := range nextByID {
		if _, existed := t.cur[id]; existed {
			delta.Kept = append(delta.Kept, sr)
		} else {
			delta.Added = append(delta.Added, sr)
		}
	}
	for id := range t.cur {
		if _, stillPresent := nextByID[id]; !stillPresent {
			delta.Removed = append(delta.Removed, id)
		}
	}

	t.cur = nextByID
	return delta
}

// CurrentIDs returns a copy-on-read snapshot of the tracked id set.
func (t *TrackedSet) CurrentIDs() []string {
	t.mu.RLock()
	defer t.mu.RUnlock()
	ids := make([]string, 0, len(t.cur))
	for id := range t.cur {
		ids = append(ids, id)
	}
	return ids
}

// Get returns the current ScoredRow for id, if tracked.
func (t *TrackedSet) Get(id string) (ScoredRow, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	sr, ok := t.cur[id]
	return sr, ok
}

// Len reports the number of currently tracked traders.
func (t *TrackedSet) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.cur)
}
