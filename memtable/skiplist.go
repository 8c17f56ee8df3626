// Package memtable implements the engine's in-memory write buffer: an
// arena-backed skip list keyed by encoded internal keys, as described in
// §4.3. The skip list has exactly one writer at a time (enforced by its
// caller) and an unbounded number of concurrent readers; new nodes are
// published with a release store so a reader that observes a node through
// an acquire load always sees that node's tower fully initialized.
package memtable

import (
	"math/rand"
	"sync/atomic"

	"github.com/cockroachdb/errors"
	"github.com/corekv/corekv/arena"
	"github.com/corekv/corekv/internal/base"
	"github.com/corekv/corekv/internal/status"
)

// ErrRecordExists is returned by Add when key already compares equal to an
// existing entry in the list; the list itself never overwrites or
// deduplicates, that being higher layers' job via sequence numbers.
var ErrRecordExists = errors.New("corekv/memtable: record already exists")

const (
	maxHeight = 12
	// branching is the inverse probability of growing the tower by one more
	// level: p = 1/4.
	branching = 4
)

type node struct {
	// key is the fully encoded internal key (user key || trailer). Value is
	// nil for a deletion tombstone.
	key   []byte
	value []byte
	tower []atomic.Pointer[node]
}

func (n *node) next(level int) *node {
	return n.tower[level].Load()
}

func (n *node) setNext(level int, v *node) {
	n.tower[level].Store(v)
}

// Skiplist is a single-writer, multi-reader, arena-backed sorted list of
// internal keys.
type Skiplist struct {
	arena *arena.Arena
	cmp   base.Comparer // compares encoded internal keys
	head  *node
	rnd   *rand.Rand

	height atomic.Int32 // highest level currently in use, 1 <= height <= maxHeight
}

// NewSkiplist returns an empty skip list that allocates from a, ordering
// entries with cmp (typically a base.InternalKeyComparer).
func NewSkiplist(a *arena.Arena, cmp base.Comparer) *Skiplist {
	head := &node{tower: make([]atomic.Pointer[node], maxHeight)}
	s := &Skiplist{
		arena: a,
		cmp:   cmp,
		head:  head,
		rnd:   rand.New(rand.NewSource(0xdeadbeef)),
	}
	s.height.Store(1)
	return s
}

func (s *Skiplist) randomHeight() int {
	h := 1
	for h < maxHeight && s.rnd.Intn(branching) == 0 {
		h++
	}
	return h
}

// Add inserts key/value into the list, returning ErrRecordExists if an
// entry comparing equal to key is already present. Add must never be
// called concurrently with another Add.
func (s *Skiplist) Add(key base.InternalKey, value []byte) error {
	height := s.randomHeight()
	if cur := int(s.height.Load()); height > cur {
		s.height.Store(int32(height))
	}

	lookup := make([]byte, key.Size())
	key.Encode(lookup)

	prev := make([]*node, maxHeight)
	s.findSpliceForLevel(lookup, prev)

	if next := prev[0].next(0); next != nil && s.cmp.Compare(next.key, lookup) == 0 {
		return ErrRecordExists
	}

	encKey := s.arena.Alloc(key.Size())
	copy(encKey, lookup)
	var val []byte
	if value != nil {
		val = s.arena.Alloc(len(value))
		copy(val, value)
	}

	nd := &node{key: encKey, value: val, tower: make([]atomic.Pointer[node], height)}
	for level := 0; level < height; level++ {
		if prev[level] == nil {
			prev[level] = s.head
		}
		// Publish this level's forward pointer before splicing nd into the
		// list, so a reader that reaches nd through prev[level] via an
		// acquire load always observes a fully-linked node at every lower
		// level it might descend into.
		nd.setNext(level, prev[level].next(level))
		prev[level].setNext(level, nd)
	}
	return nil
}

// findSpliceForLevel walks down from the highest in-use level to level 0,
// recording in prev the last node at each level whose key is less than
// encKey.
func (s *Skiplist) findSpliceForLevel(encKey []byte, prev []*node) {
	x := s.head
	for level := int(s.height.Load()) - 1; level >= 0; level-- {
		for {
			next := x.next(level)
			if next == nil || s.cmp.Compare(next.key, encKey) >= 0 {
				break
			}
			x = next
		}
		prev[level] = x
	}
}

// Iterator returns a fresh, unpositioned iterator over the list.
func (s *Skiplist) Iterator() *Iterator {
	return &Iterator{list: s}
}

// Iterator walks a Skiplist in either direction. It is safe to use
// concurrently with Skiplist.Add, and with other Iterators over the same
// list, but a single Iterator is not safe for concurrent use.
type Iterator struct {
	list *Skiplist
	nd   *node
}

// Valid reports whether the iterator is positioned at an entry.
func (it *Iterator) Valid() bool { return it.nd != nil }

// Key returns the current entry's encoded internal key.
func (it *Iterator) Key() []byte { return it.nd.key }

// InternalKey decodes the current entry's internal key.
func (it *Iterator) InternalKey() base.InternalKey {
	return base.DecodeInternalKey(it.nd.key)
}

// Status implements iterator.Iterator: the skip list is entirely in
// memory, so iteration never fails.
func (it *Iterator) Status() status.Status { return status.Status{} }

// Close implements iterator.Iterator. A skip-list iterator holds no
// external resources.
func (it *Iterator) Close() error { return nil }

// Value returns the value at the iterator's current position.
func (it *Iterator) Value() []byte { return it.nd.value }

// SeekToFirst positions the iterator at the smallest entry.
func (it *Iterator) SeekToFirst() {
	it.nd = it.list.head.next(0)
}

// SeekToLast positions the iterator at the largest entry.
func (it *Iterator) SeekToLast() {
	x := it.list.head
	for level := int(it.list.height.Load()) - 1; level >= 0; level-- {
		for {
			next := x.next(level)
			if next == nil {
				break
			}
			x = next
		}
	}
	if x == it.list.head {
		it.nd = nil
		return
	}
	it.nd = x
}

// Seek positions the iterator at the first entry whose key is >= target.
func (it *Iterator) Seek(target []byte) {
	prev := make([]*node, maxHeight)
	it.list.findSpliceForLevel(target, prev)
	it.nd = prev[0].next(0)
}

// Next advances the iterator to the next entry.
func (it *Iterator) Next() {
	it.nd = it.nd.next(0)
}

// Prev moves the iterator to the previous entry by re-seeking from the
// head, since nodes carry no backward links.
func (it *Iterator) Prev() {
	cur := it.nd
	prev := make([]*node, maxHeight)
	it.list.findSpliceForLevel(cur.key, prev)
	if prev[0] == it.list.head {
		it.nd = nil
		return
	}
	it.nd = prev[0]
}
