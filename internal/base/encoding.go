// Package base holds the foundational, dependency-free types shared by every
// layer of the storage engine: little-endian fixed-width and varint encoding,
// the masked CRC32C checksum, the byte-wise comparator, and the internal key
// format that threads a sequence number and value type through every key.
package base

import (
	"encoding/binary"
)

// PutFixed32 writes v to buf in little-endian order. buf must have length >= 4.
func PutFixed32(buf []byte, v uint32) {
	binary.LittleEndian.PutUint32(buf, v)
}

// PutFixed64 writes v to buf in little-endian order. buf must have length >= 8.
func PutFixed64(buf []byte, v uint64) {
	binary.LittleEndian.PutUint64(buf, v)
}

// DecodeFixed32 reads a little-endian uint32 from the front of buf.
func DecodeFixed32(buf []byte) uint32 {
	return binary.LittleEndian.Uint32(buf)
}

// DecodeFixed64 reads a little-endian uint64 from the front of buf.
func DecodeFixed64(buf []byte) uint64 {
	return binary.LittleEndian.Uint64(buf)
}

// MaxVarint32Len is the maximum number of bytes a 32-bit varint can occupy.
const MaxVarint32Len = 5

// MaxVarint64Len is the maximum number of bytes a 64-bit varint can occupy.
const MaxVarint64Len = 10

// VarintLength32 returns the number of bytes EncodeVarint32 would emit for v,
// without writing anything.
func VarintLength32(v uint32) int {
	return varintLength(uint64(v))
}

// VarintLength64 returns the number of bytes EncodeVarint64 would emit for v.
func VarintLength64(v uint64) int {
	return varintLength(v)
}

func varintLength(v uint64) int {
	n := 1
	for v >= 0x80 {
		v >>= 7
		n++
	}
	return n
}

// PutVarint32 appends the varint encoding of v to dst and returns the result.
func PutVarint32(dst []byte, v uint32) []byte {
	return PutVarint64(dst, uint64(v))
}

// PutVarint64 appends the varint encoding of v to dst and returns the result.
func PutVarint64(dst []byte, v uint64) []byte {
	for v >= 0x80 {
		dst = append(dst, byte(v)|0x80)
		v >>= 7
	}
	return append(dst, byte(v))
}

// GetVarint32 decodes a 32-bit varint from the front of buf, returning the
// value and the unconsumed remainder. ok is false if buf does not contain a
// complete, in-range varint.
func GetVarint32(buf []byte) (v uint32, rest []byte, ok bool) {
	u, rest, ok := GetVarint64(buf)
	if !ok || u > 0xffffffff {
		return 0, buf, false
	}
	return uint32(u), rest, true
}

// GetVarint64 decodes a 64-bit varint from the front of buf, returning the
// value and the unconsumed remainder.
func GetVarint64(buf []byte) (v uint64, rest []byte, ok bool) {
	var shift uint
	for i := 0; i < len(buf); i++ {
		b := buf[i]
		if shift >= 64 {
			return 0, buf, false
		}
		if b < 0x80 {
			v |= uint64(b) << shift
			return v, buf[i+1:], true
		}
		v |= uint64(b&0x7f) << shift
		shift += 7
	}
	return 0, buf, false
}

// PutLengthPrefixed appends a varint length prefix followed by b to dst.
func PutLengthPrefixed(dst, b []byte) []byte {
	dst = PutVarint32(dst, uint32(len(b)))
	return append(dst, b...)
}

// GetLengthPrefixed decodes a varint length prefix followed by that many
// bytes from the front of buf.
func GetLengthPrefixed(buf []byte) (s []byte, rest []byte, ok bool) {
	n, rest, ok := GetVarint32(buf)
	if !ok || uint64(len(rest)) < uint64(n) {
		return nil, buf, false
	}
	return rest[:n], rest[n:], true
}
