package transform

import "sync/atomic"

// Table counts occurrences per byte value.
//
// Exactly one goroutine (the one running the owning transform) calls Add and
// Reset. Any goroutine may call Count, Distinct and Snapshot; they see each
// counter atomically but not the table as a single instant.
type Table struct {
	counts   [256]atomic.Uint32
	distinct atomic.Uint32
}

// Snapshot is a point-in-time copy of a Table.
type Snapshot struct {
	Counts   [256]uint32
	Distinct int
}

// Add records one occurrence of b and returns its new count.
func (t *Table) Add(b byte) uint32 {
	n := t.counts[b].Add(1)
	if n == 1 {
		t.distinct.Add(1)
	}
	return n
}

func (t *Table) Count(b byte) uint32 { return t.counts[b].Load() }

// Distinct is the number of byte values seen at least once.
func (t *Table) Distinct() int { return int(t.distinct.Load()) }

func (t *Table) Snapshot() Snapshot {
	var s Snapshot
	for i := range t.counts {
		s.Counts[i] = t.counts[i].Load()
	}
	s.Distinct = t.Distinct()
	return s
}

// Reset zeroes every counter. Owner only.
func (t *Table) Reset() {
	for i := range t.counts {
		t.counts[i].Store(0)
	}
	t.distinct.Store(0)
}
