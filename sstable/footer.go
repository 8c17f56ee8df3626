package sstable

import (
	"encoding/binary"

	"github.com/corekv/corekv/internal/status"
)

// BlockHandle is the file offset and length of a block. The length does
// not include the block's trailer.
type BlockHandle struct {
	Offset, Length uint64
}

// EncodeTo appends the varint-encoded handle to dst and returns the result.
func (h BlockHandle) EncodeTo(dst []byte) []byte {
	dst = appendUvarint(dst, h.Offset)
	dst = appendUvarint(dst, h.Length)
	return dst
}

func appendUvarint(dst []byte, v uint64) []byte {
	var tmp [binary.MaxVarintLen64]byte
	n := binary.PutUvarint(tmp[:], v)
	return append(dst, tmp[:n]...)
}

// DecodeBlockHandle decodes a handle from the front of src, returning the
// number of bytes consumed, or 0 on malformed input.
func DecodeBlockHandle(src []byte) (BlockHandle, int) {
	offset, n := binary.Uvarint(src)
	if n <= 0 {
		return BlockHandle{}, 0
	}
	length, m := binary.Uvarint(src[n:])
	if m <= 0 {
		return BlockHandle{}, 0
	}
	return BlockHandle{offset, length}, n + m
}

// FooterLen is the fixed on-disk size of a table's footer.
const FooterLen = 48

// magic is the trailing 8 bytes identifying a well-formed table, taken
// unchanged from the classic LevelDB format.
var magic = [8]byte{0x57, 0xfb, 0x80, 0x8b, 0x24, 0x75, 0x47, 0xdb}

// Footer is the fixed-size trailer at the end of every table: the
// metaindex and index block handles, padded with zero bytes out to
// FooterLen-8, followed by the 8-byte magic number.
type Footer struct {
	MetaindexHandle BlockHandle
	IndexHandle     BlockHandle
}

// Encode writes the footer into a FooterLen-byte buffer.
func (f Footer) Encode() []byte {
	buf := make([]byte, FooterLen)
	n := copy(buf, f.MetaindexHandle.EncodeTo(nil))
	n += copy(buf[n:], f.IndexHandle.EncodeTo(nil))
	copy(buf[FooterLen-8:], magic[:])
	return buf
}

// DecodeFooter parses a FooterLen-byte buffer read from the end of a table
// file.
func DecodeFooter(buf []byte) (Footer, status.Status) {
	if len(buf) != FooterLen {
		return Footer{}, status.CorruptionErrorf("corekv/sstable: footer has wrong length %d", len(buf))
	}
	if string(buf[FooterLen-8:]) != string(magic[:]) {
		return Footer{}, status.CorruptionErrorf("corekv/sstable: bad magic number")
	}
	metaindexBH, n := DecodeBlockHandle(buf)
	if n == 0 {
		return Footer{}, status.CorruptionErrorf("corekv/sstable: bad metaindex block handle")
	}
	indexBH, m := DecodeBlockHandle(buf[n:])
	if m == 0 {
		return Footer{}, status.CorruptionErrorf("corekv/sstable: bad index block handle")
	}
	return Footer{MetaindexHandle: metaindexBH, IndexHandle: indexBH}, status.Status{}
}
