package sstable

import (
	"io"

	"github.com/corekv/corekv/bloom"
	"github.com/corekv/corekv/cache"
	"github.com/corekv/corekv/internal/base"
	"github.com/corekv/corekv/internal/status"
)

// ReaderAt is the random-access read interface a Reader needs from its
// backing file.
type ReaderAt interface {
	ReadAt(p []byte, off int64) (int, error)
	Size() (int64, error)
}

// ReaderOptions configures a Reader.
type ReaderOptions struct {
	Comparer     base.Comparer
	FilterPolicy bloom.FilterPolicy
	// Cache and FileNum identify this table's blocks in the shared block
	// cache. Cache may be nil to disable caching.
	Cache   *cache.Cache
	FileNum uint64
}

// Reader reads a table written by Writer. It is safe for concurrent use by
// multiple goroutines and multiple Iterators.
type Reader struct {
	file    ReaderAt
	opts    ReaderOptions
	ikc     base.InternalKeyComparer
	footer  Footer
	index   []byte
	filter  *FilterBlockReader
	fileNum uint64
}

// NewReader opens a table for reading.
func NewReader(file ReaderAt, opts ReaderOptions) (*Reader, status.Status) {
	if opts.Comparer == nil {
		opts.Comparer = base.DefaultComparer
	}
	size, err := file.Size()
	if err != nil {
		return nil, status.Wrap(status.IOError, err)
	}
	if size < FooterLen {
		return nil, status.CorruptionErrorf("corekv/sstable: file too small to be a table")
	}
	footerBuf := make([]byte, FooterLen)
	if _, err := file.ReadAt(footerBuf, size-FooterLen); err != nil {
		return nil, status.Wrap(status.IOError, err)
	}
	footer, st := DecodeFooter(footerBuf)
	if !st.OK() {
		return nil, st
	}

	r := &Reader{
		file:    file,
		opts:    opts,
		ikc:     base.InternalKeyComparer{UserComparer: opts.Comparer},
		footer:  footer,
		fileNum: opts.FileNum,
	}

	index, st := r.readBlockUncached(footer.IndexHandle)
	if !st.OK() {
		return nil, st
	}
	r.index = index

	if opts.FilterPolicy != nil {
		metaBlock, st := r.readBlockUncached(footer.MetaindexHandle)
		if !st.OK() {
			return nil, st
		}
		it := NewBlockIterator(base.DefaultComparer, block(metaBlock))
		wantName := "filter." + opts.FilterPolicy.Name()
		for it.SeekToFirst(); it.Valid(); it.Next() {
			if string(it.Key()) == wantName {
				h, n := DecodeBlockHandle(it.Value())
				if n > 0 {
					filterBlock, st := r.readBlockUncached(h)
					if st.OK() {
						r.filter = NewFilterBlockReader(opts.FilterPolicy, filterBlock)
					}
				}
				break
			}
		}
	}
	return r, status.Status{}
}

// readBlockUncached reads and decompresses a block, bypassing the cache.
// Used for the index, filter, and metaindex blocks, which a Reader keeps
// pinned in memory for its own lifetime rather than sharing through the
// block cache.
func (r *Reader) readBlockUncached(h BlockHandle) ([]byte, status.Status) {
	buf := make([]byte, h.Length+blockTrailerLen)
	if _, err := r.file.ReadAt(buf, int64(h.Offset)); err != nil && err != io.EOF {
		return nil, status.Wrap(status.IOError, err)
	}
	return r.decodeBlock(buf)
}

func (r *Reader) decodeBlock(buf []byte) ([]byte, status.Status) {
	data := buf[:len(buf)-blockTrailerLen]
	typ := buf[len(buf)-blockTrailerLen]
	wantCRC := base.DecodeFixed32(buf[len(buf)-blockTrailerLen+1:])
	gotCRC := base.MaskCRC(base.CRC32C(append([]byte{typ}, data...)))
	if gotCRC != wantCRC {
		return nil, status.CorruptionErrorf("corekv/sstable: block checksum mismatch")
	}
	return decompressBlock(typ, data)
}

// readDataBlock loads a data block through the shared block cache, if
// configured.
func (r *Reader) readDataBlock(h BlockHandle) ([]byte, *cache.Handle, status.Status) {
	if r.opts.Cache != nil {
		key := cache.Key{FileNum: r.fileNum, Offset: h.Offset}
		if hnd, ok := r.opts.Cache.Lookup(key); ok {
			return hnd.Value(), &hnd, status.Status{}
		}
	}
	data, st := r.readBlockUncached(h)
	if !st.OK() {
		return nil, nil, st
	}
	if r.opts.Cache != nil {
		key := cache.Key{FileNum: r.fileNum, Offset: h.Offset}
		hnd := r.opts.Cache.Insert(key, data)
		return data, &hnd, status.Status{}
	}
	return data, nil, status.Status{}
}

// Get returns the value for the exact internal key encoded in key (the
// caller is expected to have already resolved sequence-number visibility
// via a LookupKey-style search key). It reports status.Deleted, not
// status.NotFound, when the most recent entry for the key in this table is
// a deletion tombstone, so a multi-level caller (Version.Get) knows to
// stop rather than keep searching older levels.
func (r *Reader) Get(key []byte) ([]byte, status.Status) {
	ik := base.DecodeInternalKey(key)
	if r.filter != nil {
		indexIter := NewBlockIterator(r.ikc, r.index)
		indexIter.Seek(key)
		if !indexIter.Valid() {
			return nil, status.New(status.NotFound, "key not found")
		}
		h, n := DecodeBlockHandle(indexIter.Value())
		if n == 0 {
			return nil, status.CorruptionErrorf("corekv/sstable: bad index entry")
		}
		if !r.filter.KeyMayMatch(h.Offset, ik.UserKey) {
			return nil, status.New(status.NotFound, "key not found")
		}
	}

	it := r.NewIterator()
	it.Seek(key)
	if !it.Valid() {
		return nil, status.New(status.NotFound, "key not found")
	}
	gotKey := base.DecodeInternalKey(it.Key())
	if r.opts.Comparer.Compare(gotKey.UserKey, ik.UserKey) != 0 {
		return nil, status.New(status.NotFound, "key not found")
	}
	if gotKey.Trailer.ValueType() == base.TypeDeletion {
		return nil, status.New(status.Deleted, "key deleted")
	}
	return append([]byte(nil), it.Value()...), status.Status{}
}

// NewIterator returns a two-level iterator over the table's internal keys.
func (r *Reader) NewIterator() *TableIterator {
	return &TableIterator{r: r, indexIter: NewBlockIterator(r.ikc, r.index)}
}

// Close releases the underlying file, if it implements io.Closer.
func (r *Reader) Close() error {
	if c, ok := r.file.(io.Closer); ok {
		return c.Close()
	}
	return nil
}

// TableIterator is a two-level (index -> data) iterator over a table.
type TableIterator struct {
	r         *Reader
	indexIter *BlockIterator
	dataIter  *BlockIterator
	dataHnd   *cache.Handle
}

func (it *TableIterator) releaseData() {
	if it.dataHnd != nil {
		it.r.opts.Cache.Release(*it.dataHnd)
		it.dataHnd = nil
	}
	it.dataIter = nil
}

func (it *TableIterator) loadData(indexValue []byte) bool {
	h, n := DecodeBlockHandle(indexValue)
	if n == 0 {
		return false
	}
	data, hnd, st := it.r.readDataBlock(h)
	if !st.OK() {
		return false
	}
	it.releaseData()
	it.dataHnd = hnd
	it.dataIter = NewBlockIterator(it.r.ikc, data)
	return true
}

// SeekToFirst positions the iterator at the table's first entry.
func (it *TableIterator) SeekToFirst() {
	it.indexIter.SeekToFirst()
	if !it.indexIter.Valid() || !it.loadData(it.indexIter.Value()) {
		it.releaseData()
		return
	}
	it.dataIter.SeekToFirst()
}

// Seek positions the iterator at the first entry with key >= target.
func (it *TableIterator) Seek(target []byte) {
	it.indexIter.Seek(target)
	if !it.indexIter.Valid() || !it.loadData(it.indexIter.Value()) {
		it.releaseData()
		return
	}
	it.dataIter.Seek(target)
	if !it.dataIter.Valid() {
		// target falls after every key in this data block; advance to the
		// next block's first entry.
		it.indexIter.Next()
		if it.indexIter.Valid() && it.loadData(it.indexIter.Value()) {
			it.dataIter.SeekToFirst()
		} else {
			it.releaseData()
		}
	}
}

// SeekToLast positions the iterator at the table's last entry.
func (it *TableIterator) SeekToLast() {
	it.indexIter.SeekToLast()
	if !it.indexIter.Valid() || !it.loadData(it.indexIter.Value()) {
		it.releaseData()
		return
	}
	it.dataIter.SeekToLast()
}

// Prev moves to the preceding entry, crossing into the previous data block
// as needed.
func (it *TableIterator) Prev() {
	it.dataIter.Prev()
	for !it.dataIter.Valid() {
		it.indexIter.Prev()
		if !it.indexIter.Valid() || !it.loadData(it.indexIter.Value()) {
			it.releaseData()
			return
		}
		it.dataIter.SeekToLast()
	}
}

// Status returns any error encountered while reading the table's blocks.
func (it *TableIterator) Status() status.Status {
	if it.dataIter != nil {
		return it.dataIter.Status()
	}
	return status.Status{}
}

// Valid reports whether the iterator is positioned at an entry.
func (it *TableIterator) Valid() bool { return it.dataIter != nil && it.dataIter.Valid() }

// Key returns the current entry's encoded internal key.
func (it *TableIterator) Key() []byte { return it.dataIter.Key() }

// Value returns the current entry's value.
func (it *TableIterator) Value() []byte { return it.dataIter.Value() }

// Next advances to the following entry, crossing into the next data block
// as needed.
func (it *TableIterator) Next() {
	it.dataIter.Next()
	for !it.dataIter.Valid() {
		it.indexIter.Next()
		if !it.indexIter.Valid() || !it.loadData(it.indexIter.Value()) {
			it.releaseData()
			return
		}
		it.dataIter.SeekToFirst()
	}
}

// Close releases any block cache handle the iterator is holding.
func (it *TableIterator) Close() error {
	it.releaseData()
	return nil
}
