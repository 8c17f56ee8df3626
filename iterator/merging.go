package iterator

import (
	"github.com/corekv/corekv/internal/base"
	"github.com/corekv/corekv/internal/status"
)

type direction int

const (
	forward direction = iota
	reverse
)

// MergingIterator presents a merged, deduplicated-by-nothing view over a
// fixed set of child iterators (memtable, immutable memtables, per-level
// table iterators): it always returns the entry with the smallest internal
// key across all valid children when iterating forward, or the largest
// when iterating in reverse. Internal-key ordering (descending sequence
// number on a tie) means, for identical user keys, the newest version is
// seen first in forward iteration.
//
// Unlike pebble's heap-based mergingIter, this is a direct linear scan over
// children on every step, matching the classic LevelDB MergingIterator: at
// the scale of a handful of per-level iterators, a heap buys nothing a
// linear scan over a small fixed slice doesn't already give for free.
type MergingIterator struct {
	cmp     base.Comparer
	iters   []Iterator
	current int
	dir     direction
	valid   bool
}

// NewMergingIterator returns a MergingIterator over children, comparing
// user keys with cmp. MergingIterator takes ownership of children: closing
// the MergingIterator closes each of them.
func NewMergingIterator(cmp base.Comparer, children ...Iterator) *MergingIterator {
	return &MergingIterator{cmp: cmp, iters: children, current: -1, dir: forward}
}

func (m *MergingIterator) ikeyCompare(a, b []byte) int {
	ikc := base.InternalKeyComparer{UserComparer: m.cmp}
	return ikc.Compare(a, b)
}

// SeekToFirst positions every child at its first entry and picks the
// smallest.
func (m *MergingIterator) SeekToFirst() {
	m.dir = forward
	for _, it := range m.iters {
		it.SeekToFirst()
	}
	m.findSmallest()
}

// SeekToLast positions every child at its last entry and picks the
// largest.
func (m *MergingIterator) SeekToLast() {
	m.dir = reverse
	for _, it := range m.iters {
		it.SeekToLast()
	}
	m.findLargest()
}

// Seek positions every child at its first entry >= target and picks the
// smallest.
func (m *MergingIterator) Seek(target []byte) {
	m.dir = forward
	for _, it := range m.iters {
		it.Seek(target)
	}
	m.findSmallest()
}

// Next advances to the next entry in key order.
func (m *MergingIterator) Next() {
	if !m.valid {
		return
	}
	if m.dir != forward {
		// Switching direction: every other child must be repositioned just
		// past the current key so the forward scan doesn't revisit it.
		key := m.iters[m.current].Key()
		for i, it := range m.iters {
			if i == m.current {
				continue
			}
			it.Seek(key)
			if it.Valid() && m.ikeyCompare(it.Key(), key) == 0 {
				it.Next()
			}
		}
		m.dir = forward
	}
	m.iters[m.current].Next()
	m.findSmallest()
}

// Prev moves to the previous entry in key order.
func (m *MergingIterator) Prev() {
	if !m.valid {
		return
	}
	if m.dir != reverse {
		key := m.iters[m.current].Key()
		for i, it := range m.iters {
			if i == m.current {
				continue
			}
			it.Seek(key)
			if it.Valid() {
				it.Prev()
			} else {
				it.SeekToLast()
			}
		}
		m.dir = reverse
	}
	m.iters[m.current].Prev()
	m.findLargest()
}

func (m *MergingIterator) findSmallest() {
	m.current = -1
	for i, it := range m.iters {
		if !it.Valid() {
			continue
		}
		if m.current < 0 || m.ikeyCompare(it.Key(), m.iters[m.current].Key()) < 0 {
			m.current = i
		}
	}
	m.valid = m.current >= 0
}

func (m *MergingIterator) findLargest() {
	m.current = -1
	for i, it := range m.iters {
		if !it.Valid() {
			continue
		}
		if m.current < 0 || m.ikeyCompare(it.Key(), m.iters[m.current].Key()) > 0 {
			m.current = i
		}
	}
	m.valid = m.current >= 0
}

// Valid reports whether the iterator is positioned at an entry.
func (m *MergingIterator) Valid() bool { return m.valid }

// Key returns the current entry's internal key.
func (m *MergingIterator) Key() []byte { return m.iters[m.current].Key() }

// Value returns the current entry's value.
func (m *MergingIterator) Value() []byte { return m.iters[m.current].Value() }

// Status returns the first non-OK status among the children.
func (m *MergingIterator) Status() status.Status {
	for _, it := range m.iters {
		if st := it.Status(); !st.OK() {
			return st
		}
	}
	return status.Status{}
}

// Close closes every child iterator, returning the first error.
func (m *MergingIterator) Close() error {
	var first error
	for _, it := range m.iters {
		if err := it.Close(); err != nil && first == nil {
			first = err
		}
	}
	return first
}
