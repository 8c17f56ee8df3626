package sstable

import (
	"github.com/corekv/corekv/bloom"
	"github.com/corekv/corekv/internal/base"
)

// filterBaseLg is the log2 of the byte range of data each filter covers:
// a new filter is generated for every 2 KiB (1<<11) of data-block bytes
// written, matching the classic LevelDB filter block layout.
const filterBaseLg = 11
const filterBase = 1 << filterBaseLg

// FilterBlockBuilder accumulates per-key filter data as a table is written
// and periodically emits a filter covering the data blocks written since
// the last one, so a reader can load only the filters relevant to the
// blocks it actually probes.
type FilterBlockBuilder struct {
	policy bloom.FilterPolicy

	keys       [][]byte
	keyData    []byte // backing storage, since keys alias into this
	result     []byte // filter data emitted so far
	filterOffs []uint32
}

// NewFilterBlockBuilder returns a builder using policy to construct filters.
func NewFilterBlockBuilder(policy bloom.FilterPolicy) *FilterBlockBuilder {
	return &FilterBlockBuilder{policy: policy}
}

// AddKey records a key seen in the data block currently being written.
func (b *FilterBlockBuilder) AddKey(key []byte) {
	start := len(b.keyData)
	b.keyData = append(b.keyData, key...)
	b.keys = append(b.keys, b.keyData[start:len(b.keyData):len(b.keyData)])
}

// StartBlock is called with the offset of the data block about to be
// written, generating any filters that block's byte range has now reached.
func (b *FilterBlockBuilder) StartBlock(blockOffset uint64) {
	filterIndex := blockOffset / filterBase
	for uint64(len(b.filterOffs)) < filterIndex {
		b.generateFilter()
	}
}

func (b *FilterBlockBuilder) generateFilter() {
	b.filterOffs = append(b.filterOffs, uint32(len(b.result)))
	if len(b.keys) == 0 {
		return
	}
	b.result = b.policy.CreateFilter(b.keys, b.result)
	b.keys = b.keys[:0]
	b.keyData = b.keyData[:0]
}

// Finish serializes the filter block: concatenated filters, their offsets,
// the offset array's own offset, and the base_lg byte.
func (b *FilterBlockBuilder) Finish() []byte {
	if len(b.keys) > 0 {
		b.generateFilter()
	}
	arrayOffset := uint32(len(b.result))
	buf := append([]byte(nil), b.result...)
	for _, off := range b.filterOffs {
		var tmp [4]byte
		base.PutFixed32(tmp[:], off)
		buf = append(buf, tmp[:]...)
	}
	var tmp [4]byte
	base.PutFixed32(tmp[:], arrayOffset)
	buf = append(buf, tmp[:]...)
	buf = append(buf, filterBaseLg)
	return buf
}

// FilterBlockReader answers key-may-match queries against a serialized
// filter block.
type FilterBlockReader struct {
	policy      bloom.FilterPolicy
	data        []byte
	offsetsBase int
	numFilters  int
	baseLg      byte
}

// NewFilterBlockReader parses a serialized filter block.
func NewFilterBlockReader(policy bloom.FilterPolicy, data []byte) *FilterBlockReader {
	if len(data) < 5 {
		return &FilterBlockReader{policy: policy}
	}
	baseLg := data[len(data)-1]
	arrayOffset := base.DecodeFixed32(data[len(data)-5:])
	if int(arrayOffset) > len(data)-5 {
		return &FilterBlockReader{policy: policy}
	}
	numFilters := (len(data) - 5 - int(arrayOffset)) / 4
	return &FilterBlockReader{
		policy:      policy,
		data:        data,
		offsetsBase: int(arrayOffset),
		numFilters:  numFilters,
		baseLg:      baseLg,
	}
}

// KeyMayMatch reports whether key may be present in the data block starting
// at blockOffset.
func (r *FilterBlockReader) KeyMayMatch(blockOffset uint64, key []byte) bool {
	if r.data == nil {
		// No filter data: be conservative and say it may match.
		return true
	}
	index := int(blockOffset >> r.baseLg)
	if index >= r.numFilters {
		return true
	}
	startOff := base.DecodeFixed32(r.data[r.offsetsBase+4*index:])
	limitOff := base.DecodeFixed32(r.data[r.offsetsBase+4*index+4:])
	if startOff > limitOff || int(limitOff) > r.offsetsBase {
		return true
	}
	filter := r.data[startOff:limitOff]
	if len(filter) == 0 {
		// An empty filter for this range means no keys were added to it,
		// so nothing in the range can match.
		return false
	}
	return r.policy.KeyMayMatch(key, filter)
}
