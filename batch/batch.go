// Package batch implements WriteBatch: a sequence of Set/Delete operations
// that are applied atomically by being written to the WAL as a single
// record and inserted into the memtable under a single block of sequence
// numbers.
package batch

import (
	"encoding/binary"

	"github.com/corekv/corekv/internal/base"
	"github.com/corekv/corekv/internal/status"
)

// headerLen is the 8-byte sequence number of the batch's first entry
// followed by the 4-byte count of entries it contains.
const headerLen = 12

// Batch accumulates Set and Delete operations for atomic application. The
// zero value is an empty, usable batch.
type Batch struct {
	// data is the wire format described in headerLen's doc comment,
	// followed by count entries of:
	//   - one byte for the value type (TypeDeletion or TypeValue)
	//   - the varint-length-prefixed user key
	//   - the varint-length-prefixed value (TypeValue entries only)
	data []byte
}

// New returns an empty batch ready for use.
func New() *Batch {
	b := &Batch{}
	b.data = make([]byte, headerLen)
	return b
}

func (b *Batch) ensureInit() {
	if b.data == nil {
		b.data = make([]byte, headerLen)
	}
}

// Set appends a Set(key, value) operation to the batch.
func (b *Batch) Set(key, value []byte) {
	b.ensureInit()
	b.data = append(b.data, byte(base.TypeValue))
	b.data = appendVarintBytes(b.data, key)
	b.data = appendVarintBytes(b.data, value)
	b.incrementCount()
}

// Delete appends a Delete(key) operation to the batch.
func (b *Batch) Delete(key []byte) {
	b.ensureInit()
	b.data = append(b.data, byte(base.TypeDeletion))
	b.data = appendVarintBytes(b.data, key)
	b.incrementCount()
}

// Empty reports whether the batch has no operations.
func (b *Batch) Empty() bool {
	return len(b.data) <= headerLen
}

// Count returns the number of operations in the batch.
func (b *Batch) Count() uint32 {
	if len(b.data) < headerLen {
		return 0
	}
	return binary.LittleEndian.Uint32(b.data[8:12])
}

func (b *Batch) incrementCount() {
	n := b.Count() + 1
	binary.LittleEndian.PutUint32(b.data[8:12], n)
}

// SeqNum returns the sequence number assigned to the batch's first entry.
func (b *Batch) SeqNum() base.SeqNum {
	if len(b.data) < headerLen {
		return 0
	}
	return base.SeqNum(binary.LittleEndian.Uint64(b.data[:8]))
}

// SetSeqNum stamps the sequence number of the batch's first entry. The
// caller (the DB's write path) is responsible for reserving Count()
// contiguous sequence numbers starting here before making the batch
// visible to readers.
func (b *Batch) SetSeqNum(seq base.SeqNum) {
	b.ensureInit()
	binary.LittleEndian.PutUint64(b.data[:8], uint64(seq))
}

// Repr returns the batch's wire encoding, suitable for writing as a single
// WAL record. The caller must not retain or mutate the returned slice
// across further batch mutations.
func (b *Batch) Repr() []byte {
	b.ensureInit()
	return b.data
}

// SetRepr replaces the batch's contents with a previously captured
// encoding, as produced by Repr or read back from the WAL.
func (b *Batch) SetRepr(data []byte) status.Status {
	if len(data) < headerLen {
		return status.CorruptionErrorf("corekv/batch: batch too small")
	}
	b.data = data
	return status.Status{}
}

// Reset empties the batch for reuse, retaining its backing array.
func (b *Batch) Reset() {
	if b.data == nil {
		b.data = make([]byte, headerLen)
		return
	}
	for i := range b.data[:headerLen] {
		b.data[i] = 0
	}
	b.data = b.data[:headerLen]
}

// Reader returns an iterator over the batch's entries in insertion order.
func (b *Batch) Reader() Reader {
	if len(b.data) < headerLen {
		return Reader(nil)
	}
	return Reader(b.data[headerLen:])
}

// Reader iterates over a batch's encoded entries.
type Reader []byte

// Next returns the next operation in the batch. ok is false once the
// reader is exhausted or the encoding is corrupt.
func (r *Reader) Next() (valueType base.ValueType, key, value []byte, ok bool) {
	p := *r
	if len(p) == 0 {
		return 0, nil, nil, false
	}
	valueType, p = base.ValueType(p[0]), p[1:]
	if valueType != base.TypeValue && valueType != base.TypeDeletion {
		return 0, nil, nil, false
	}
	*r = p
	key, ok = r.nextStr()
	if !ok {
		return 0, nil, nil, false
	}
	if valueType == base.TypeValue {
		value, ok = r.nextStr()
		if !ok {
			return 0, nil, nil, false
		}
	}
	return valueType, key, value, true
}

func (r *Reader) nextStr() ([]byte, bool) {
	p := *r
	u, n := binary.Uvarint(p)
	if n <= 0 {
		return nil, false
	}
	p = p[n:]
	if u > uint64(len(p)) {
		return nil, false
	}
	s := p[:u]
	*r = p[u:]
	return s, true
}

func appendVarintBytes(dst []byte, s []byte) []byte {
	var buf [binary.MaxVarintLen64]byte
	n := binary.PutUvarint(buf[:], uint64(len(s)))
	dst = append(dst, buf[:n]...)
	dst = append(dst, s...)
	return dst
}
