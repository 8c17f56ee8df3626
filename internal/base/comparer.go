package base

import "bytes"

// Comparer defines a total ordering over the space of []byte keys, plus the
// two key-shortening hints used when building sorted-table index entries.
type Comparer interface {
	// Compare returns <0, 0, or >0 as a is less than, equal to, or greater
	// than b, exactly like bytes.Compare.
	Compare(a, b []byte) int

	// Name identifies the comparator. Sorted tables do not record it, so
	// opening a table does not check which comparator wrote it.
	Name() string

	// FindShortestSeparator returns a key, no greater than limit and no
	// smaller than start, that is as short as possible while remaining
	// between the two. It is used to minimize the size of index blocks.
	FindShortestSeparator(start, limit []byte) []byte

	// FindShortSuccessor returns a key >= key that is as short as possible.
	// It is used to build the index key for the last block in a table.
	FindShortSuccessor(key []byte) []byte
}

// DefaultComparer is the default byte-wise lexicographic comparator.
var DefaultComparer Comparer = bytewiseComparer{}

type bytewiseComparer struct{}

func (bytewiseComparer) Compare(a, b []byte) int { return bytes.Compare(a, b) }

func (bytewiseComparer) Name() string { return "leveldb.BytewiseComparator" }

func (bytewiseComparer) FindShortestSeparator(start, limit []byte) []byte {
	minLen := len(start)
	if len(limit) < minLen {
		minLen = len(limit)
	}
	diffIdx := 0
	for diffIdx < minLen && start[diffIdx] == limit[diffIdx] {
		diffIdx++
	}
	if diffIdx >= minLen {
		// One is a prefix of the other; no shortening is possible.
		return start
	}
	lastByte := start[diffIdx]
	if lastByte < 0xff && lastByte+1 < limit[diffIdx] {
		shortest := append([]byte(nil), start[:diffIdx+1]...)
		shortest[diffIdx]++
		return shortest
	}
	return start
}

func (bytewiseComparer) FindShortSuccessor(key []byte) []byte {
	for i := 0; i < len(key); i++ {
		if b := key[i]; b != 0xff {
			successor := append([]byte(nil), key[:i+1]...)
			successor[i]++
			return successor
		}
	}
	// key is all 0xff bytes; no shorter successor exists.
	return key
}
