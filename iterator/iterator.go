// Package iterator defines the common Iterator contract the storage engine
// uses for every level of its read path — memtable, sorted table, and the
// merged view the database façade hands back to callers — plus the
// MergingIterator and TwoLevelIterator combinators built on top of it.
package iterator

import "github.com/corekv/corekv/internal/status"

// Iterator walks a sequence of internal-key/value pairs in key order. All
// positioning methods leave the iterator either Valid (positioned on an
// entry) or not (exhausted or an error occurred, distinguishable via
// Status).
type Iterator interface {
	// SeekToFirst positions the iterator at the first key.
	SeekToFirst()
	// SeekToLast positions the iterator at the last key.
	SeekToLast()
	// Seek positions the iterator at the first key >= target.
	Seek(target []byte)
	// Next moves to the next key. Valid() must be true beforehand.
	Next()
	// Prev moves to the previous key. Valid() must be true beforehand.
	Prev()
	// Valid reports whether the iterator is positioned at an entry.
	Valid() bool
	// Key returns the current entry's encoded internal key.
	Key() []byte
	// Value returns the current entry's value.
	Value() []byte
	// Status returns any error encountered during iteration.
	Status() status.Status
	// Close releases resources held by the iterator, in LIFO order across
	// any cleanups registered with RegisterCleanup.
	Close() error
}

// CleanupRegistrar is implemented by iterators that hold external
// resources (e.g. block cache handles, open table descriptors) which must
// be released when the iterator is closed.
type CleanupRegistrar interface {
	// RegisterCleanup adds f to the set of functions run on Close, in
	// last-registered-first-run order.
	RegisterCleanup(f func() error)
}

// cleanupStack is embedded by iterators that need RegisterCleanup/Close
// support without reimplementing the LIFO bookkeeping each time.
type cleanupStack struct {
	fns []func() error
}

// RegisterCleanup implements CleanupRegistrar.
func (c *cleanupStack) RegisterCleanup(f func() error) {
	c.fns = append(c.fns, f)
}

// runCleanups runs registered cleanups in LIFO order, returning the first
// error encountered (but still running every cleanup).
func (c *cleanupStack) runCleanups() error {
	var first error
	for i := len(c.fns) - 1; i >= 0; i-- {
		if err := c.fns[i](); err != nil && first == nil {
			first = err
		}
	}
	c.fns = nil
	return first
}
