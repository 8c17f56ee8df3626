// Package wal implements the write-ahead log framing described in §4.4: a
// stream of records packed into 32 KiB blocks, each chunk prefixed by a
// 7-byte header of a masked CRC32C checksum, a payload length, and a
// fragment type. Large records are split across multiple chunks (First,
// Middle, Last); small records fit in a single Full chunk. The wire format
// and block size mirror the legacy chunk format the teacher's record
// package documents, without that package's later recyclable/walSync
// extensions, which this engine does not need.
package wal

import "github.com/corekv/corekv/internal/base"

// blockSize is the size, in bytes, of each physical block a log file is
// divided into. Chunks never cross a block boundary; any unused tail of a
// block is left zeroed.
const blockSize = 32 * 1024

// headerSize is the width of a chunk header: 4-byte masked CRC32C, 2-byte
// little-endian length, 1-byte chunk type.
const headerSize = 7

type chunkType byte

const (
	chunkZero chunkType = iota // only ever appears in a zeroed block tail
	chunkFull
	chunkFirst
	chunkMiddle
	chunkLast
)

func (t chunkType) String() string {
	switch t {
	case chunkFull:
		return "full"
	case chunkFirst:
		return "first"
	case chunkMiddle:
		return "middle"
	case chunkLast:
		return "last"
	default:
		return "zero"
	}
}

func checksum(chunkTyp chunkType, data []byte) uint32 {
	// The checksum covers the type byte and the payload, matching the
	// classic LevelDB log format so that a corrupted type byte is caught
	// along with corrupted payload bytes.
	buf := make([]byte, 1+len(data))
	buf[0] = byte(chunkTyp)
	copy(buf[1:], data)
	return base.MaskCRC(base.CRC32C(buf))
}
