// Package fund turns a cycle's scores into a capital allocation.
package fund

import (
	"sort"

	"BasketPilot/internal/model"
)

// Allocator splits a fixed USD budget across scored symbols.
type Allocator struct {
	budget        float64
	fallbackCount int
}

// NewAllocator creates an Allocator. fallbackCount is the number of tracked
// symbols that share the budget when nothing could be scored.
func NewAllocator(budget float64, fallbackCount int) *Allocator {
	if budget < 0 {
		budget = 0
	}
	if fallbackCount <= 0 {
		fallbackCount = 5
	}
	return &Allocator{budget: budget, fallbackCount: fallbackCount}
}

// Budget returns the per-cycle budget.
func (a *Allocator) Budget() float64 { return a.budget }

// Allocate distributes the budget:
//   - no scored symbols: equal split across the first fallbackCount tracked symbols
//   - scores summing to <= 0: equal split across every scored symbol
//   - otherwise proportional to score
//
// Amounts are never negative. In the proportional branch, symbols with a
// negative score receive nothing and the rest share the whole budget.
func (a *Allocator) Allocate(scored []model.ScoredSymbol, tracked []string) model.Allocation {
	alloc := make(model.Allocation)

	if len(scored) == 0 {
		n := a.fallbackCount
		if n > len(tracked) {
			n = len(tracked)
		}
		for _, sym := range tracked[:n] {
			alloc[sym] = a.budget / float64(n)
		}
		return alloc
	}

	sum := 0.0
	for _, s := range scored {
		sum += s.Score
	}
	if sum <= 0 {
		each := a.budget / float64(len(scored))
		for _, s := range scored {
			alloc[s.Symbol] = each
		}
		return alloc
	}

	positive := 0.0
	for _, s := range scored {
		if s.Score > 0 {
			positive += s.Score
		}
	}
	for _, s := range scored {
		if s.Score > 0 {
			alloc[s.Symbol] = a.budget * s.Score / positive
		} else {
			alloc[s.Symbol] = 0
		}
	}
	return alloc
}

// Entry is one allocation row.
type Entry struct {
	Symbol string
	Amount float64
}

// Ranked returns the allocation ordered by amount, largest first, ties by
// symbol. Zero amounts are dropped.
func Ranked(alloc model.Allocation) []Entry {
	out := make([]Entry, 0, len(alloc))
	for sym, amt := range alloc {
		if amt > 0 {
			out = append(out, Entry{Symbol: sym, Amount: amt})
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Amount != out[j].Amount {
			return out[i].Amount > out[j].Amount
		}
		return out[i].Symbol < out[j].Symbol
	})
	return out
}

// ClampToBalance keeps allocations in rank order while they fit in the free
// quote balance; an entry that does not fit is skipped and smaller ones may
// still be kept.
func ClampToBalance(alloc model.Allocation, free float64) model.Allocation {
	out := make(model.Allocation)
	remaining := free
	for _, e := range Ranked(alloc) {
		if e.Amount > remaining {
			continue
		}
		out[e.Symbol] = e.Amount
		remaining -= e.Amount
	}
	return out
}
