package base

import "fmt"

// SeqNum is a sequence number defining precedence among identical user keys.
// A key with a higher sequence number takes precedence over an otherwise
// identical key with a lower one.
type SeqNum uint64

// MaxSeqNum is the largest valid sequence number: 2^56 - 1. Sequence numbers
// are packed into the low 56 bits of a trailer alongside an 8-bit kind.
const MaxSeqNum SeqNum = 1<<56 - 1

// ValueType tags what kind of entry an internal key refers to.
type ValueType uint8

const (
	// TypeDeletion marks a key as having been removed (a tombstone).
	TypeDeletion ValueType = 0
	// TypeValue marks a key as carrying a live value.
	TypeValue ValueType = 1
)

// valueTypeForSeek is the highest-numbered value type. Lookup keys are built
// with this type so that, for a given user key and sequence number, the
// lookup key sorts before any real entry with the same user key and
// sequence number, regardless of that entry's type.
const valueTypeForSeek = TypeValue

func (t ValueType) String() string {
	switch t {
	case TypeDeletion:
		return "DEL"
	case TypeValue:
		return "SET"
	default:
		return fmt.Sprintf("UNKNOWN(%d)", uint8(t))
	}
}

// Trailer is the packed (sequence number, value type) tail appended to every
// user key to form an internal key: sequence in the upper 56 bits, type in
// the low 8 bits of a single little-endian uint64.
type Trailer uint64

// PackTrailer builds a trailer from a sequence number and value type.
func PackTrailer(seq SeqNum, t ValueType) Trailer {
	return Trailer(seq)<<8 | Trailer(t)
}

// SeqNum returns the sequence number component of the trailer.
func (tr Trailer) SeqNum() SeqNum { return SeqNum(tr >> 8) }

// ValueType returns the value-type component of the trailer.
func (tr Trailer) ValueType() ValueType { return ValueType(tr & 0xff) }

func (tr Trailer) String() string {
	return fmt.Sprintf("%d,%s", tr.SeqNum(), tr.ValueType())
}

// InternalKeyLen is the fixed width, in bytes, of the trailer appended to
// every internal key.
const InternalKeyLen = 8

// InternalKey is a user key tagged with a sequence number and value type:
// user_key || pack64(seq, type). Every key stored in a memtable or sorted
// table is an InternalKey.
type InternalKey struct {
	UserKey []byte
	Trailer Trailer
}

// MakeInternalKey builds an internal key from its parts.
func MakeInternalKey(userKey []byte, seq SeqNum, t ValueType) InternalKey {
	return InternalKey{UserKey: userKey, Trailer: PackTrailer(seq, t)}
}

// Size returns the number of bytes Encode will write.
func (k InternalKey) Size() int { return len(k.UserKey) + InternalKeyLen }

// Encode writes the internal key to buf, which must have length >= k.Size().
func (k InternalKey) Encode(buf []byte) {
	n := copy(buf, k.UserKey)
	PutFixed64(buf[n:], uint64(k.Trailer))
}

// DecodeInternalKey parses an encoded internal key. The returned UserKey
// aliases b.
func DecodeInternalKey(b []byte) InternalKey {
	n := len(b) - InternalKeyLen
	if n < 0 {
		// Malformed; treat as an (invalid) deletion with an empty user key so
		// callers see a deterministically-sorted, deterministically-invalid
		// key rather than panicking.
		return InternalKey{UserKey: nil, Trailer: PackTrailer(0, TypeDeletion)}
	}
	return InternalKey{
		UserKey: b[:n:n],
		Trailer: Trailer(DecodeFixed64(b[n:])),
	}
}

func (k InternalKey) String() string {
	return fmt.Sprintf("%s#%s", k.UserKey, k.Trailer)
}

// InternalKeyComparer wraps a user Comparer to compare internal keys: user
// key ascending, then Trailer descending (newer sequence numbers, and within
// a sequence number the Value kind, sort first).
type InternalKeyComparer struct {
	UserComparer Comparer
}

// Compare implements the internal-key ordering described in §3/§4.3.
func (c InternalKeyComparer) Compare(a, b []byte) int {
	ak, bk := DecodeInternalKey(a), DecodeInternalKey(b)
	if x := c.UserComparer.Compare(ak.UserKey, bk.UserKey); x != 0 {
		return x
	}
	switch {
	case ak.Trailer > bk.Trailer:
		return -1
	case ak.Trailer < bk.Trailer:
		return 1
	default:
		return 0
	}
}

// Name returns the name under which this comparator is persisted.
func (c InternalKeyComparer) Name() string { return c.UserComparer.Name() }

// FindShortestSeparator shortens the user-key prefix of start while leaving
// the trailer of start untouched, so that the shortened key still sorts
// correctly relative to any internal key with the same user key.
func (c InternalKeyComparer) FindShortestSeparator(start, limit []byte) []byte {
	startIK := DecodeInternalKey(start)
	limitIK := DecodeInternalKey(limit)
	sep := c.UserComparer.FindShortestSeparator(startIK.UserKey, limitIK.UserKey)
	if len(sep) < len(startIK.UserKey) && c.UserComparer.Compare(startIK.UserKey, sep) < 0 {
		// A strictly shorter separator was found; tag it with the maximal
		// trailer so it sorts before any real entry with that user key.
		out := make([]byte, 0, len(sep)+InternalKeyLen)
		out = append(out, sep...)
		return PutFixed64Trailer(out, PackTrailer(MaxSeqNum, valueTypeForSeek))
	}
	return start
}

// FindShortSuccessor shortens the user-key prefix of key while leaving its
// trailer untouched where no shortening was possible.
func (c InternalKeyComparer) FindShortSuccessor(key []byte) []byte {
	ik := DecodeInternalKey(key)
	succ := c.UserComparer.FindShortSuccessor(ik.UserKey)
	if len(succ) < len(ik.UserKey) && c.UserComparer.Compare(ik.UserKey, succ) < 0 {
		out := make([]byte, 0, len(succ)+InternalKeyLen)
		out = append(out, succ...)
		return PutFixed64Trailer(out, PackTrailer(MaxSeqNum, valueTypeForSeek))
	}
	return key
}

// PutFixed64Trailer appends the little-endian encoding of trailer to dst.
func PutFixed64Trailer(dst []byte, trailer Trailer) []byte {
	var buf [8]byte
	PutFixed64(buf[:], uint64(trailer))
	return append(dst, buf[:]...)
}

// LookupKey is the convenience layout built once per point query:
// varint32(user_key.len + 8) || user_key || pack64(seq, valueTypeForSeek).
// It exposes three views: the full memtable key, the internal key (varint
// stripped), and the bare user key.
type LookupKey struct {
	buf []byte
	// keyStart marks where the internal-key slice (user key + trailer)
	// begins within buf, i.e. buf[keyStart:] == varint-stripped internal key.
	keyStart int
}

// NewLookupKey builds a LookupKey for userKey at the given sequence number.
func NewLookupKey(userKey []byte, seq SeqNum) LookupKey {
	size := len(userKey) + InternalKeyLen
	buf := make([]byte, 0, MaxVarint32Len+size)
	buf = PutVarint32(buf, uint32(size))
	keyStart := len(buf)
	buf = append(buf, userKey...)
	buf = PutFixed64Trailer(buf, PackTrailer(seq, valueTypeForSeek))
	return LookupKey{buf: buf, keyStart: keyStart}
}

// MemtableKey returns the full varint-prefixed memtable search key.
func (lk LookupKey) MemtableKey() []byte { return lk.buf }

// InternalKey returns the internal key view (varint prefix stripped).
func (lk LookupKey) InternalKey() []byte { return lk.buf[lk.keyStart:] }

// UserKey returns the bare user key (varint prefix and trailer stripped).
func (lk LookupKey) UserKey() []byte {
	ik := lk.buf[lk.keyStart:]
	return ik[:len(ik)-InternalKeyLen]
}
