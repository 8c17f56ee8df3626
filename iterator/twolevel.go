package iterator

import "github.com/corekv/corekv/internal/status"

// DataFactory builds the data iterator for the block referenced by an
// index entry's value (a sstable.BlockHandle-shaped encoding). It returns
// nil if the handle is malformed.
type DataFactory func(indexValue []byte) Iterator

// TwoLevelIterator pairs an index iterator, whose values identify data
// blocks, with a data iterator materialized lazily by a DataFactory each
// time the index moves to a different entry. This is a general-purpose
// combinator with no dependency on the sstable package's own concrete
// TableIterator; the version/compaction layer does not use it.
type TwoLevelIterator struct {
	index   Iterator
	factory DataFactory
	data    Iterator
	err     status.Status
}

// NewTwoLevelIterator returns a TwoLevelIterator over index, materializing
// data iterators with factory.
func NewTwoLevelIterator(index Iterator, factory DataFactory) *TwoLevelIterator {
	return &TwoLevelIterator{index: index, factory: factory}
}

func (t *TwoLevelIterator) loadData() bool {
	if !t.index.Valid() {
		t.data = nil
		return false
	}
	d := t.factory(t.index.Value())
	if d == nil {
		t.data = nil
		return false
	}
	t.data = d
	return true
}

// SeekToFirst positions the iterator at the first entry.
func (t *TwoLevelIterator) SeekToFirst() {
	t.index.SeekToFirst()
	if !t.loadData() {
		return
	}
	t.data.SeekToFirst()
}

// SeekToLast positions the iterator at the last entry.
func (t *TwoLevelIterator) SeekToLast() {
	t.index.SeekToLast()
	if !t.loadData() {
		return
	}
	t.data.SeekToLast()
}

// Seek positions the iterator at the first entry with key >= target.
func (t *TwoLevelIterator) Seek(target []byte) {
	t.index.Seek(target)
	if !t.loadData() {
		return
	}
	t.data.Seek(target)
	if !t.data.Valid() {
		t.index.Next()
		if t.loadData() {
			t.data.SeekToFirst()
		}
	}
}

// Next advances to the next entry, crossing into the next data block as
// needed.
func (t *TwoLevelIterator) Next() {
	t.data.Next()
	for !t.data.Valid() {
		t.index.Next()
		if !t.loadData() {
			return
		}
		t.data.SeekToFirst()
	}
}

// Prev moves to the previous entry, crossing into the previous data block
// as needed.
func (t *TwoLevelIterator) Prev() {
	t.data.Prev()
	for !t.data.Valid() {
		t.index.Prev()
		if !t.loadData() {
			return
		}
		t.data.SeekToLast()
	}
}

// Valid reports whether the iterator is positioned at an entry.
func (t *TwoLevelIterator) Valid() bool { return t.data != nil && t.data.Valid() }

// Key returns the current entry's encoded internal key.
func (t *TwoLevelIterator) Key() []byte { return t.data.Key() }

// Value returns the current entry's value.
func (t *TwoLevelIterator) Value() []byte { return t.data.Value() }

// Status returns the index iterator's status, or the data iterator's if
// the index is OK.
func (t *TwoLevelIterator) Status() status.Status {
	if st := t.index.Status(); !st.OK() {
		return st
	}
	if t.data != nil {
		return t.data.Status()
	}
	return t.err
}

// Close closes the index iterator and the current data iterator, if any.
func (t *TwoLevelIterator) Close() error {
	var first error
	if t.data != nil {
		if err := t.data.Close(); err != nil {
			first = err
		}
	}
	if err := t.index.Close(); err != nil && first == nil {
		first = err
	}
	return first
}
