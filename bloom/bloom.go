// Package bloom implements the classic LevelDB double-hashing Bloom filter,
// as pinned by the engine's testable false-positive-rate property in §8.
// Unlike the teacher's cache-line-blocked modern filter, this format probes
// k arbitrary bit positions across the whole filter, trading some cache
// locality for an exactly reproducible false-positive curve.
package bloom

import "github.com/corekv/corekv/internal/base"

// FilterPolicy builds and probes a filter over a set of keys.
type FilterPolicy interface {
	Name() string
	// CreateFilter appends a filter summarizing keys to dst and returns it.
	CreateFilter(keys [][]byte, dst []byte) []byte
	// KeyMayMatch reports whether key may be a member of filter. False
	// negatives are never returned; false positives are possible.
	KeyMayMatch(key, filter []byte) bool
}

// bitsPerKeyPolicy is the classic LevelDB Bloom filter, parameterized by the
// number of filter bits budgeted per added key.
type bitsPerKeyPolicy struct {
	bitsPerKey int
	k          uint8
}

// NewPolicy returns a FilterPolicy that budgets bitsPerKey bits of filter
// data per key added. 10 bits per key yields roughly a 1% false-positive
// rate, matching LevelDB's usual default.
func NewPolicy(bitsPerKey int) FilterPolicy {
	if bitsPerKey < 0 {
		bitsPerKey = 0
	}
	// k = bitsPerKey * ln(2), rounded down and clamped to [1, 30].
	k := int(float64(bitsPerKey) * 0.69)
	if k < 1 {
		k = 1
	}
	if k > 30 {
		k = 30
	}
	return &bitsPerKeyPolicy{bitsPerKey: bitsPerKey, k: uint8(k)}
}

func (p *bitsPerKeyPolicy) Name() string { return "leveldb.BuiltinBloomFilter2" }

// bloomHash is LevelDB's Hash function specialized for filter construction:
// a Murmur-like hash using the fixed seed 0xbc9f1d34.
func bloomHash(data []byte) uint32 {
	const seed = 0xbc9f1d34
	const m = 0xc6a4a793
	const r = 24

	n := len(data)
	h := uint32(seed) ^ uint32(n)*m

	for len(data) >= 4 {
		w := base.DecodeFixed32(data)
		data = data[4:]
		h += w
		h *= m
		h ^= h >> 16
	}

	switch len(data) {
	case 3:
		h += uint32(data[2]) << 16
		fallthrough
	case 2:
		h += uint32(data[1]) << 8
		fallthrough
	case 1:
		h += uint32(data[0])
		h *= m
		h ^= h >> r
	}
	return h
}

// CreateFilter appends a Bloom filter summarizing keys to dst.
func (p *bitsPerKeyPolicy) CreateFilter(keys [][]byte, dst []byte) []byte {
	bits := len(keys) * p.bitsPerKey
	// Minimum filter size of 64 bits (8 bytes) avoids a high false-positive
	// rate for tiny key sets.
	if bits < 64 {
		bits = 64
	}
	bytes := (bits + 7) / 8
	bits = bytes * 8

	start := len(dst)
	dst = append(dst, make([]byte, bytes+1)...)
	filter := dst[start : start+bytes]
	dst[start+bytes] = byte(p.k)

	for _, key := range keys {
		h := bloomHash(key)
		// Rotate h right by 17 bits for the second probe, as in the
		// original LevelDB implementation's "double hashing" trick: this
		// derives k probe positions from one real hash plus one rotation,
		// rather than computing k independent hashes.
		delta := (h >> 17) | (h << 15)
		for j := uint8(0); j < p.k; j++ {
			bitPos := h % uint32(bits)
			filter[bitPos/8] |= 1 << (bitPos % 8)
			h += delta
		}
	}
	return dst
}

// KeyMayMatch reports whether key may be present, given a filter produced
// by CreateFilter (trailing k byte included).
func (p *bitsPerKeyPolicy) KeyMayMatch(key, filter []byte) bool {
	n := len(filter)
	if n < 1 {
		return false
	}
	bytes := n - 1
	bits := bytes * 8
	k := filter[bytes]
	if k > 30 {
		// A filter generated by a later format version we don't
		// understand; be conservative and say it may match.
		return true
	}

	h := bloomHash(key)
	delta := (h >> 17) | (h << 15)
	for j := byte(0); j < k; j++ {
		bitPos := h % uint32(bits)
		if filter[bitPos/8]&(1<<(bitPos%8)) == 0 {
			return false
		}
		h += delta
	}
	return true
}
