package rank

import (
	"sort"
	"sync"

	"tributeboard/internal/model"
)

// Order sorts entries into the board's total order: descending by
// cumulative USD value, ties broken by earliest first-tribute timestamp
// (the earlier participant ranks higher on equal value), then by
// address so the order is strict even on identical timestamps. The
// input slice is not modified.
func Order(entries []model.LeaderboardEntry) []model.LeaderboardEntry {
	ordered := make([]model.LeaderboardEntry, len(entries))
	copy(ordered, entries)

	sort.SliceStable(ordered, func(i, j int) bool {
		a, b := ordered[i], ordered[j]
		if a.TotalUSD != b.TotalUSD {
			return a.TotalUSD > b.TotalUSD
		}
		if !a.FirstTributeAt.Equal(b.FirstTributeAt) {
			return a.FirstTributeAt.Before(b.FirstTributeAt)
		}
		return a.Address < b.Address
	})

	return ordered
}

// Tracker assigns dense ranks and classifies movement against the
// previously returned order. Classification is presentation metadata
// only; it never feeds back into the ordering.
type Tracker struct {
	mu   sync.Mutex
	prev map[string]int // address -> rank from the last refresh
}

func NewTracker() *Tracker {
	return &Tracker{prev: make(map[string]int)}
}

// Rank orders the entries, assigns dense ranks starting at 1 and tags
// each entry as new, up(n), down(n) or none relative to the previous
// refresh. The previous rank map is replaced wholesale.
func (t *Tracker) Rank(entries []model.LeaderboardEntry) []model.RankedEntry {
	ordered := Order(entries)

	t.mu.Lock()
	defer t.mu.Unlock()

	ranked := make([]model.RankedEntry, len(ordered))
	next := make(map[string]int, len(ordered))

	for i, entry := range ordered {
		r := i + 1
		next[entry.Address] = r

		change := model.RankChange{Direction: model.RankNone}
		prevRank, seen := t.prev[entry.Address]
		switch {
		case !seen:
			change = model.RankChange{Direction: model.RankNew}
		case prevRank > r:
			change = model.RankChange{Direction: model.RankUp, Places: prevRank - r}
		case prevRank < r:
			change = model.RankChange{Direction: model.RankDown, Places: r - prevRank}
		}

		ranked[i] = model.RankedEntry{
			LeaderboardEntry: entry,
			Rank:             r,
			Change:           change,
		}
	}

	t.prev = next
	return ranked
}
