// Package sstable implements the sorted-table format described in §4.6: a
// sequence of prefix-compressed data blocks, an optional filter block, an
// index block, a metaindex block, and a fixed-size footer, closely
// following the classic LevelDB table layout the teacher's now-superseded
// legacy sstable/table.go documents in its package comment.
package sstable

import (
	"github.com/corekv/corekv/internal/base"
	"github.com/corekv/corekv/internal/status"
)

// DefaultRestartInterval is the number of entries between restart points in
// a data block. A smaller interval speeds up seeks within a block at the
// cost of more restart-point overhead.
const DefaultRestartInterval = 16

// blockTrailerLen is the width of the trailer appended after a block's
// (possibly compressed) contents: 1 byte of compression type, 4 bytes of
// masked CRC32C covering the compression byte and the block bytes as
// stored on disk.
const blockTrailerLen = 5

// BlockBuilder assembles one block's worth of key/value entries using
// shared-prefix compression, emitting a restart point every
// restartInterval entries.
type BlockBuilder struct {
	restartInterval int
	buf             []byte
	restarts        []uint32
	counter         int
	lastKey         []byte
	finished        bool
}

// NewBlockBuilder returns a BlockBuilder with the given restart interval.
func NewBlockBuilder(restartInterval int) *BlockBuilder {
	if restartInterval <= 0 {
		restartInterval = DefaultRestartInterval
	}
	return &BlockBuilder{
		restartInterval: restartInterval,
		restarts:        []uint32{0},
	}
}

// Add appends a key/value entry. Keys must be added in ascending order.
func (b *BlockBuilder) Add(key, value []byte) {
	var shared int
	if b.counter < b.restartInterval {
		shared = sharedPrefixLen(b.lastKey, key)
	} else {
		b.restarts = append(b.restarts, uint32(len(b.buf)))
		b.counter = 0
	}
	unshared := key[shared:]

	b.buf = base.PutVarint32(b.buf, uint32(shared))
	b.buf = base.PutVarint32(b.buf, uint32(len(unshared)))
	b.buf = base.PutVarint32(b.buf, uint32(len(value)))
	b.buf = append(b.buf, unshared...)
	b.buf = append(b.buf, value...)

	b.lastKey = append(b.lastKey[:0], key...)
	b.counter++
}

func sharedPrefixLen(a, b []byte) int {
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	i := 0
	for i < n && a[i] == b[i] {
		i++
	}
	return i
}

// CurrentSizeEstimate returns the number of bytes the block would occupy if
// Finish were called now.
func (b *BlockBuilder) CurrentSizeEstimate() int {
	return len(b.buf) + len(b.restarts)*4 + 4
}

// Empty reports whether no entries have been added since the last Reset.
func (b *BlockBuilder) Empty() bool { return len(b.buf) == 0 }

// Finish serializes the block: entries, restart-point offsets, and the
// restart-point count.
func (b *BlockBuilder) Finish() []byte {
	for _, r := range b.restarts {
		var tmp [4]byte
		base.PutFixed32(tmp[:], r)
		b.buf = append(b.buf, tmp[:]...)
	}
	var tmp [4]byte
	base.PutFixed32(tmp[:], uint32(len(b.restarts)))
	b.buf = append(b.buf, tmp[:]...)
	b.finished = true
	return b.buf
}

// Reset clears the builder so it can be reused for the next block.
func (b *BlockBuilder) Reset() {
	b.buf = b.buf[:0]
	b.restarts = b.restarts[:1]
	b.restarts[0] = 0
	b.counter = 0
	b.lastKey = b.lastKey[:0]
	b.finished = false
}

// block is the decoded, decompressed contents of a block, ready for
// BlockIterator use.
type block []byte

func (blk block) numRestarts() uint32 {
	return base.DecodeFixed32(blk[len(blk)-4:])
}

func (blk block) restartPoint(i uint32) uint32 {
	off := len(blk) - 4 - 4*int(blk.numRestarts()) + 4*int(i)
	return base.DecodeFixed32(blk[off : off+4])
}

// BlockIterator iterates the key/value entries of a single decoded block.
type BlockIterator struct {
	cmp        base.Comparer
	data       block
	restarts   uint32
	offset     uint32 // offset of the current entry
	nextOffset uint32 // offset just past the current entry
	key        []byte
	value      []byte
	valid      bool
	err        status.Status
}

// NewBlockIterator returns an iterator over data, an encoded block produced
// by BlockBuilder.Finish.
func NewBlockIterator(cmp base.Comparer, data []byte) *BlockIterator {
	blk := block(data)
	return &BlockIterator{cmp: cmp, data: blk, restarts: blk.numRestarts()}
}

func (i *BlockIterator) clear() {
	i.key = nil
	i.value = nil
	i.valid = false
}

// decodeEntryAt parses the entry at offset, returning the offset just past
// it. lastKey is used to reconstruct a key from its shared prefix.
func (i *BlockIterator) decodeEntryAt(offset uint32, lastKey []byte) (nextOffset uint32, key, value []byte, ok bool) {
	p := i.data[offset:]
	shared, p, ok1 := base.GetVarint32(p)
	unsharedLen, p, ok2 := base.GetVarint32(p)
	valueLen, p, ok3 := base.GetVarint32(p)
	if !ok1 || !ok2 || !ok3 {
		return 0, nil, nil, false
	}
	if uint64(len(p)) < uint64(unsharedLen)+uint64(valueLen) {
		return 0, nil, nil, false
	}
	unshared := p[:unsharedLen]
	value = p[unsharedLen : unsharedLen+valueLen]

	key = make([]byte, 0, int(shared)+len(unshared))
	if int(shared) > len(lastKey) {
		return 0, nil, nil, false
	}
	key = append(key, lastKey[:shared]...)
	key = append(key, unshared...)

	consumed := len(i.data[offset:]) - len(p) + int(unsharedLen) + int(valueLen)
	return offset + uint32(consumed), key, value, true
}

// SeekToFirst positions the iterator at the block's first entry.
func (i *BlockIterator) SeekToFirst() {
	i.seekToRestartPoint(0)
	i.parseNextKey(nil)
}

func (i *BlockIterator) seekToRestartPoint(index uint32) {
	i.offset = i.data.restartPoint(index)
}

// parseNextKey decodes the entry at i.offset using lastKey as the shared
// prefix source, advancing i.offset to the following entry.
func (i *BlockIterator) parseNextKey(lastKey []byte) {
	restartAreaStart := uint32(len(i.data)) - 4 - 4*i.restarts
	if i.offset >= restartAreaStart {
		i.clear()
		return
	}
	next, key, value, ok := i.decodeEntryAt(i.offset, lastKey)
	if !ok {
		i.clear()
		i.err = errCorruptBlock("malformed entry")
		return
	}
	i.key, i.value = key, value
	i.nextOffset = next
	i.valid = true
}

// Valid reports whether the iterator is positioned at an entry.
func (i *BlockIterator) Valid() bool { return i.valid }

// Key returns the current entry's key.
func (i *BlockIterator) Key() []byte { return i.key }

// Value returns the current entry's value.
func (i *BlockIterator) Value() []byte { return i.value }

// Next advances to the following entry in the block.
func (i *BlockIterator) Next() {
	prevKey := i.key
	i.offset = i.nextOffset
	i.parseNextKey(prevKey)
}

// Seek positions the iterator at the first entry with key >= target, using
// the block's restart points for an initial binary search.
func (i *BlockIterator) Seek(target []byte) {
	var left, right uint32 = 0, i.restarts - 1
	for left < right {
		mid := (left + right + 1) / 2
		off := i.data.restartPoint(mid)
		_, key, _, ok := i.decodeEntryAt(off, nil)
		if ok && i.cmp.Compare(key, target) <= 0 {
			left = mid
		} else {
			right = mid - 1
		}
	}
	i.seekToRestartPoint(left)
	i.parseNextKey(nil)
	for i.valid && i.cmp.Compare(i.key, target) < 0 {
		i.Next()
	}
}

// SeekToLast positions the iterator at the block's last entry, by scanning
// forward from the final restart point (entries within a restart run are
// only decodable in order, since later ones are prefix-compressed against
// earlier ones) until advancing one more would run past the end.
func (i *BlockIterator) SeekToLast() {
	if i.restarts == 0 {
		i.clear()
		return
	}
	i.seekToRestartPoint(i.restarts - 1)
	i.parseNextKey(nil)
	for i.valid {
		key, value, offset, nextOffset := i.key, i.value, i.offset, i.nextOffset
		i.Next()
		if !i.valid {
			i.key, i.value, i.offset, i.nextOffset, i.valid = key, value, offset, nextOffset, true
			break
		}
	}
}

// Prev moves to the preceding entry, following the classic LevelDB
// block-iterator algorithm: find the restart point before the current
// entry, then scan forward from there re-decoding entries (necessary
// because of prefix compression) until the entry just before the original
// position is reached.
func (i *BlockIterator) Prev() {
	original := i.offset
	var idx uint32
	for idx = 0; idx < i.restarts; idx++ {
		if i.data.restartPoint(idx) >= original {
			break
		}
	}
	if idx == 0 {
		i.clear()
		return
	}
	idx--
	i.seekToRestartPoint(idx)
	i.parseNextKey(nil)
	for i.valid && i.nextOffset < original {
		i.Next()
	}
}

// Status returns any error encountered while decoding the block.
func (i *BlockIterator) Status() status.Status { return i.err }

// Close is a no-op: a BlockIterator holds no resources beyond its backing
// byte slice.
func (i *BlockIterator) Close() error { return nil }

// errCorruptBlock converts a malformed-block condition into a Status.
func errCorruptBlock(reason string) status.Status {
	return status.CorruptionErrorf("corekv/sstable: corrupt block: %s", reason)
}
