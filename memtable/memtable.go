package memtable

import (
	"bytes"

	"github.com/corekv/corekv/arena"
	"github.com/corekv/corekv/internal/base"
	"github.com/corekv/corekv/internal/status"
)

// Memtable is an in-memory, append-only layer of the LSM tree: a skip list
// of internal keys backed by a single arena. Records are added but never
// removed; deletions are represented as tombstone entries, left for higher
// layers (the merging iterator, compaction) to reconcile.
//
// Add is not safe for concurrent use with itself; Get and new iterators may
// run concurrently with a single in-progress Add and with each other.
type Memtable struct {
	cmp base.Comparer
	ikc base.InternalKeyComparer
	skl *Skiplist
	a   *arena.Arena
}

// New returns an empty Memtable ordering user keys with cmp. If cmp is nil,
// base.DefaultComparer is used.
func New(cmp base.Comparer) *Memtable {
	if cmp == nil {
		cmp = base.DefaultComparer
	}
	ikc := base.InternalKeyComparer{UserComparer: cmp}
	a := arena.New()
	return &Memtable{
		cmp: cmp,
		ikc: ikc,
		skl: NewSkiplist(a, ikc),
		a:   a,
	}
}

// Add inserts a value for key at sequence number seq. A nil value with
// valueType base.TypeDeletion records a tombstone. It returns
// ErrRecordExists if this exact (key, seq) pair was already added, which
// should never happen in practice since sequence numbers are assigned
// once per batch entry and never reused.
func (m *Memtable) Add(seq base.SeqNum, valueType base.ValueType, key, value []byte) error {
	ik := base.MakeInternalKey(key, seq, valueType)
	return m.skl.Add(ik, value)
}

// Get returns the most recent value visible at or before seq for key. It
// reports status.NotFound if no entry for key exists at that sequence
// number at all, and status.Deleted if the most recent entry is a
// deletion tombstone — distinct outcomes, since a caller searching older
// layers (an immutable memtable, a sorted table) must stop on a tombstone
// rather than keep looking and resurrect a shadowed value.
func (m *Memtable) Get(key []byte, seq base.SeqNum) ([]byte, status.Status) {
	lk := base.NewLookupKey(key, seq)
	it := m.skl.Iterator()
	it.Seek(lk.InternalKey())
	if !it.Valid() {
		return nil, status.New(status.NotFound, "key not found")
	}
	ik := it.InternalKey()
	if !bytes.Equal(ik.UserKey, key) {
		return nil, status.New(status.NotFound, "key not found")
	}
	if ik.Trailer.ValueType() == base.TypeDeletion {
		return nil, status.New(status.Deleted, "key deleted")
	}
	return it.Value(), status.Status{}
}

// NewIterator returns a fresh iterator over the memtable's internal keys.
func (m *Memtable) NewIterator() *Iterator {
	return m.skl.Iterator()
}

// MemoryUsage reports the number of bytes the memtable's arena has carved
// from the heap.
func (m *Memtable) MemoryUsage() int64 {
	return m.a.MemoryUsage()
}
