package sstable

import (
	"io"

	"github.com/corekv/corekv/internal/base"
	"github.com/corekv/corekv/internal/status"
)

// WriterOptions configures a Writer.
type WriterOptions struct {
	Comparer        base.Comparer
	Compression     Compression
	BlockSize       int
	RestartInterval int
	FilterPolicy    interface {
		Name() string
		CreateFilter(keys [][]byte, dst []byte) []byte
		KeyMayMatch(key, filter []byte) bool
	}
}

// EnsureDefaults fills in zero-valued fields with the engine's defaults.
func (o WriterOptions) EnsureDefaults() WriterOptions {
	if o.Comparer == nil {
		o.Comparer = base.DefaultComparer
	}
	if o.BlockSize <= 0 {
		o.BlockSize = 4096
	}
	if o.RestartInterval <= 0 {
		o.RestartInterval = DefaultRestartInterval
	}
	return o
}

// Writer builds a sorted table. Keys must be added in strictly ascending
// internal-key order; the caller is responsible for enforcing this (the
// compaction and flush paths always feed a Writer from a merging
// iterator). A Writer cannot be used concurrently with itself.
type Writer struct {
	w    io.Writer
	opts WriterOptions
	ikc  base.InternalKeyComparer

	dataBlock  *BlockBuilder
	indexBlock *BlockBuilder
	filter     *FilterBlockBuilder

	offset uint64

	// pendingIndexEntry defers writing the separator key for the just-closed
	// data block until the first key of the next block is known, so the
	// separator can be the shortest key that still distinguishes the two
	// blocks (see base.Comparer.FindShortestSeparator).
	pendingIndexEntry bool
	pendingHandle     BlockHandle

	lastKey  []byte
	numEntries int
	closed   bool
	err      status.Status
}

// NewWriter returns a Writer that writes a table to w.
func NewWriter(w io.Writer, opts WriterOptions) *Writer {
	opts = opts.EnsureDefaults()
	tw := &Writer{
		w:          w,
		opts:       opts,
		ikc:        base.InternalKeyComparer{UserComparer: opts.Comparer},
		dataBlock:  NewBlockBuilder(opts.RestartInterval),
		indexBlock: NewBlockBuilder(1), // every index entry is a restart point
	}
	if opts.FilterPolicy != nil {
		tw.filter = NewFilterBlockBuilder(opts.FilterPolicy)
		tw.filter.StartBlock(0)
	}
	return tw
}

// Add appends a key/value pair. key is a fully encoded internal key.
func (w *Writer) Add(key base.InternalKey, value []byte) status.Status {
	if !w.err.OK() {
		return w.err
	}
	encKey := make([]byte, key.Size())
	key.Encode(encKey)

	if w.pendingIndexEntry {
		sep := w.ikc.FindShortestSeparator(w.lastKey, encKey)
		var handle [2 * base.MaxVarint64Len]byte
		h := w.pendingHandle.EncodeTo(handle[:0])
		w.indexBlock.Add(sep, h)
		w.pendingIndexEntry = false
	}

	if w.filter != nil {
		w.filter.AddKey(key.UserKey)
	}

	w.lastKey = append(w.lastKey[:0], encKey...)
	w.dataBlock.Add(encKey, value)
	w.numEntries++

	if w.dataBlock.CurrentSizeEstimate() >= w.opts.BlockSize {
		w.flushDataBlock()
	}
	return w.err
}

func (w *Writer) flushDataBlock() {
	if w.dataBlock.Empty() {
		return
	}
	handle, err := w.writeBlock(w.dataBlock.Finish(), w.opts.Compression)
	w.dataBlock.Reset()
	if !err.OK() {
		w.err = err
		return
	}
	w.pendingHandle = handle
	w.pendingIndexEntry = true
	if w.filter != nil {
		w.filter.StartBlock(w.offset)
	}
}

// writeBlock compresses and writes a single block plus its trailer,
// returning the handle a reader would use to fetch it.
func (w *Writer) writeBlock(data []byte, compression Compression) (BlockHandle, status.Status) {
	typ, compressed := compressBlock(compression, data)
	trailer := make([]byte, blockTrailerLen)
	trailer[0] = typ
	crc := base.MaskCRC(base.CRC32C(append([]byte{typ}, compressed...)))
	base.PutFixed32(trailer[1:], crc)

	handle := BlockHandle{Offset: w.offset, Length: uint64(len(compressed))}
	if _, err := w.w.Write(compressed); err != nil {
		return BlockHandle{}, status.Wrap(status.IOError, err)
	}
	if _, err := w.w.Write(trailer); err != nil {
		return BlockHandle{}, status.Wrap(status.IOError, err)
	}
	w.offset += uint64(len(compressed) + blockTrailerLen)
	return handle, status.Status{}
}

// Close finishes writing the table: the final data block, filter block,
// metaindex block, index block, and footer.
func (w *Writer) Close() status.Status {
	if w.closed {
		return w.err
	}
	w.closed = true
	if !w.err.OK() {
		return w.err
	}

	w.flushDataBlock()
	if !w.err.OK() {
		return w.err
	}
	if w.pendingIndexEntry {
		succ := w.ikc.FindShortSuccessor(w.lastKey)
		var handle [2 * base.MaxVarint64Len]byte
		h := w.pendingHandle.EncodeTo(handle[:0])
		w.indexBlock.Add(succ, h)
		w.pendingIndexEntry = false
	}

	var filterHandle BlockHandle
	haveFilter := w.filter != nil
	if haveFilter {
		fh, err := w.writeBlock(w.filter.Finish(), NoCompression)
		if !err.OK() {
			return err
		}
		filterHandle = fh
	}

	metaBlock := NewBlockBuilder(DefaultRestartInterval)
	if haveFilter {
		var handle [2 * base.MaxVarint64Len]byte
		h := filterHandle.EncodeTo(handle[:0])
		metaBlock.Add([]byte("filter."+w.opts.FilterPolicy.Name()), h)
	}
	metaindexHandle, err := w.writeBlock(metaBlock.Finish(), NoCompression)
	if !err.OK() {
		return err
	}

	indexHandle, err := w.writeBlock(w.indexBlock.Finish(), NoCompression)
	if !err.OK() {
		return err
	}

	footer := Footer{MetaindexHandle: metaindexHandle, IndexHandle: indexHandle}
	footerBuf := footer.Encode()
	if _, ioErr := w.w.Write(footerBuf); ioErr != nil {
		return status.Wrap(status.IOError, ioErr)
	}
	w.offset += uint64(len(footerBuf))
	return status.Status{}
}

// EntryCount returns the number of key/value pairs added so far.
func (w *Writer) EntryCount() int { return w.numEntries }

// Size returns the number of bytes written to the underlying writer so
// far, not counting the as-yet-unflushed current data block. Callers
// driving a compaction use this to decide when to roll over to a new
// output file.
func (w *Writer) Size() uint64 { return w.offset }
