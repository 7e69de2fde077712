// Package rubric scores merged occupant candidates against the target
// property. Scoring is a flat list of pure, order-independent signal
// emitters folded by a single reducer: adding a signal never requires
// touching an existing one, and each candidate is scored independently of
// the others given a fixed context.
package rubric

import (
	"sort"
	"time"

	"github.com/marcuswonder/marketoffer-services-sub000/internal/model"
	"github.com/marcuswonder/marketoffer-services-sub000/internal/occupant"
)

// Context is the shared, read-only state every emitter sees. It is computed
// once from the occupant pool and held fixed while scoring.
type Context struct {
	// ConfirmedKeys are name keys from the confirmed-match set.
	ConfirmedKeys map[string]bool
	// LatestSaleYear is the most recent known sale at the property.
	LatestSaleYear *int
	// CurrentYear anchors recency and age computations (injectable in tests).
	CurrentYear int
	// DistinctSurnames counts surnames across the whole occupant pool.
	DistinctSurnames int
}

// NewContext derives the scoring context from the merged occupant pool.
func NewContext(pool []model.OccupantCandidate, confirmed []string, latestSaleYear *int) Context {
	keys := make(map[string]bool, len(confirmed))
	for _, name := range confirmed {
		if key := occupant.NameKey(name); key != "" {
			keys[key] = true
		}
	}

	surnames := make(map[string]bool)
	for _, c := range pool {
		if s := occupant.Surname(c.FullName); s != "" {
			surnames[s] = true
		}
	}

	return Context{
		ConfirmedKeys:    keys,
		LatestSaleYear:   latestSaleYear,
		CurrentYear:      time.Now().UTC().Year(),
		DistinctSurnames: len(surnames),
	}
}

// Score computes per-candidate signals, totals, and dense ranks. Ranks
// descend by total; ties share a rank and keep stable input order.
func Score(pool []model.OccupantCandidate, ctx Context, cfg Config) []model.OccupantScore {
	scores := make([]model.OccupantScore, 0, len(pool))
	for _, c := range pool {
		score := model.OccupantScore{
			NameKey:  c.NameKey,
			FullName: c.FullName,
		}
		for _, emit := range emitters {
			sig := emit(c, ctx, cfg)
			if sig == nil {
				continue
			}
			sig.Value = clamp(sig.Value, -1, 1)
			if sig.Weight < 0 {
				sig.Weight = 0
			}
			sig.Contribution = sig.Weight * sig.Value
			score.Total += sig.Contribution
			score.Signals = append(score.Signals, *sig)
		}
		scores = append(scores, score)
	}

	rank(scores)
	return scores
}

// rank assigns dense ranks by descending total, stable on input order.
func rank(scores []model.OccupantScore) {
	idx := make([]int, len(scores))
	for i := range idx {
		idx[i] = i
	}
	sort.SliceStable(idx, func(a, b int) bool {
		return scores[idx[a]].Total > scores[idx[b]].Total
	})

	current := 0
	var prev float64
	for pos, i := range idx {
		if pos == 0 || scores[i].Total != prev {
			current++
			prev = scores[i].Total
		}
		scores[i].Rank = current
	}
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
