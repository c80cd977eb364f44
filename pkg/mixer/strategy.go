package mixer

import (
	"cmp"
	"slices"
)

// The selectors below work on a non-empty snapshot of enabled providers and
// return an index into it. None of them mutate the snapshot.

// selectRoundRobin picks ps[cursor mod n] and advances cursor whether or not
// the subsequent call succeeds.
func selectRoundRobin(n int, cursor *int) int {
	i := *cursor % n
	if i < 0 {
		i += n
	}
	*cursor++
	return i
}

// selectWeighted draws r uniformly from [0, totalWeight) and walks the list
// subtracting weights until the remainder drops to zero or below. rnd must
// return values in [0, 1).
func selectWeighted(ps []candidate, rnd func() float64) int {
	total := 0
	for _, c := range ps {
		total += c.provider.Weight
	}
	if total <= 0 || len(ps) == 1 {
		return 0
	}
	r := rnd() * float64(total)
	for i, c := range ps {
		r -= float64(c.provider.Weight)
		if r <= 0 {
			return i
		}
	}
	return 0
}

// selectPriority picks the highest priority; the first occurrence wins ties.
func selectPriority(ps []candidate) int {
	best := 0
	for i := 1; i < len(ps); i++ {
		if ps[i].provider.Priority > ps[best].provider.Priority {
			best = i
		}
	}
	return best
}

// failoverOrder returns ps sorted by descending priority. The sort is stable
// so equal priorities keep their list order.
func failoverOrder(ps []candidate) []candidate {
	out := slices.Clone(ps)
	slices.SortStableFunc(out, func(a, b candidate) int {
		return cmp.Compare(b.provider.Priority, a.provider.Priority)
	})
	return out
}

// loadScore rates a provider by success rate per millisecond of smoothed
// response time. Providers without attempts score 0.
func loadScore(p *Provider) float64 {
	rate := p.SuccessRate()
	if rate == 0 {
		return 0
	}
	return rate / max(p.AvgResponseTime, 1)
}

// selectLoadBalance picks the best loadScore; the first occurrence wins ties.
func selectLoadBalance(ps []candidate) int {
	best, bestScore := 0, loadScore(&ps[0].provider)
	for i := 1; i < len(ps); i++ {
		if s := loadScore(&ps[i].provider); s > bestScore {
			best, bestScore = i, s
		}
	}
	return best
}
