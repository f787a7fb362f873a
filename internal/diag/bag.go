package diag

import (
	"fmt"
	"sort"
)

// Bag accumulates issues up to a limit.
type Bag struct {
	items []Issue
	max   int
}

// NewBag creates a bag capped at max issues.
func NewBag(max int) *Bag {
	return &Bag{
		items: make([]Issue, 0, max),
		max:   max,
	}
}

// Add appends the issue, honoring the limit.
// Returns false when the issue was dropped.
func (b *Bag) Add(i Issue) bool {
	if len(b.items) >= b.max {
		return false
	}
	b.items = append(b.items, i)
	return true
}

func (b *Bag) Cap() int {
	return b.max
}

// HasErrors reports whether at least one issue is LevelError.
func (b *Bag) HasErrors() bool {
	for i := range b.items {
		if b.items[i].Level >= LevelError {
			return true
		}
	}
	return false
}

// HasWarnings reports whether at least one issue is LevelWarning or worse.
func (b *Bag) HasWarnings() bool {
	for i := range b.items {
		if b.items[i].Level >= LevelWarning {
			return true
		}
	}
	return false
}

func (b *Bag) Len() int {
	return len(b.items)
}

// Items returns a read-only view of the collected issues.
// Callers must not modify the returned slice.
func (b *Bag) Items() []Issue {
	return b.items
}

// Merge appends issues from another bag, growing the limit when needed.
func (b *Bag) Merge(other *Bag) {
	newTotal := len(b.items) + len(other.items)
	if newTotal > b.max {
		b.max = newTotal
	}
	b.items = append(b.items, other.items...)
}

// Sort orders issues by (file, start, end, level desc, code) for a stable,
// deterministic output order.
func (b *Bag) Sort() {
	sort.SliceStable(b.items, func(i, j int) bool {
		pi, pj := b.items[i].Primary(), b.items[j].Primary()
		if pi.File != pj.File {
			return pi.File < pj.File
		}
		if pi.Start != pj.Start {
			return pi.Start < pj.Start
		}
		if pi.End != pj.End {
			return pi.End < pj.End
		}
		if b.items[i].Level != b.items[j].Level {
			return b.items[i].Level > b.items[j].Level
		}
		return b.items[i].Code < b.items[j].Code
	})
}

// Dedup removes duplicates keyed by (code, primary span).
func (b *Bag) Dedup() {
	seen := make(map[string]bool)
	newitems := make([]Issue, 0, len(b.items))
	for _, d := range b.items {
		key := fmt.Sprintf("%s:%s", d.Code, d.Primary().String())
		if seen[key] {
			continue
		}
		seen[key] = true
		newitems = append(newitems, d)
	}
	b.items = newitems
}
