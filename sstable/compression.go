package sstable

import (
	"github.com/corekv/corekv/internal/status"
	"github.com/golang/snappy"
	"github.com/klauspost/compress/zstd"
)

// Compression identifies the per-block compression codec used when writing
// a table. Each block is compressed independently and tagged with its
// codec, so a reader never needs out-of-band configuration to decompress.
type Compression uint8

const (
	// NoCompression stores blocks verbatim.
	NoCompression Compression = iota
	// SnappyCompression uses github.com/golang/snappy, matching the
	// teacher's default block compressor.
	SnappyCompression
	// ZstdCompression uses github.com/klauspost/compress/zstd.
	ZstdCompression
)

// blockType tags the on-disk compression codec of a single block, matching
// the trailing byte of its trailer.
type blockType = byte

const (
	noCompressionBlockType     blockType = 0
	snappyCompressionBlockType blockType = 1
	zstdCompressionBlockType   blockType = 2
)

var zstdEncoder, _ = zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
var zstdDecoder, _ = zstd.NewReader(nil)

// compressBlock compresses b according to compression, returning the block
// type tag to store in the trailer and the bytes to write to disk.
func compressBlock(compression Compression, b []byte) (blockType, []byte) {
	switch compression {
	case SnappyCompression:
		return snappyCompressionBlockType, snappy.Encode(nil, b)
	case ZstdCompression:
		return zstdCompressionBlockType, zstdEncoder.EncodeAll(b, nil)
	default:
		return noCompressionBlockType, b
	}
}

// decompressBlock reverses compressBlock, given the block type tag read
// from the trailer.
func decompressBlock(typ blockType, b []byte) ([]byte, status.Status) {
	switch typ {
	case noCompressionBlockType:
		return b, status.Status{}
	case snappyCompressionBlockType:
		n, err := snappy.DecodedLen(b)
		if err != nil {
			return nil, status.CorruptionErrorf("corekv/sstable: bad snappy block: %v", err)
		}
		buf := make([]byte, n)
		decoded, err := snappy.Decode(buf, b)
		if err != nil {
			return nil, status.CorruptionErrorf("corekv/sstable: bad snappy block: %v", err)
		}
		return decoded, status.Status{}
	case zstdCompressionBlockType:
		decoded, err := zstdDecoder.DecodeAll(b, nil)
		if err != nil {
			return nil, status.CorruptionErrorf("corekv/sstable: bad zstd block: %v", err)
		}
		return decoded, status.Status{}
	default:
		return nil, status.CorruptionErrorf("corekv/sstable: unknown block compression %d", typ)
	}
}
