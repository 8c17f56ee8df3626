package wal

import (
	"io"

	"github.com/cockroachdb/errors"
	"github.com/corekv/corekv/internal/base"
)

// ErrInvalidChunk indicates a chunk's checksum did not match its claimed
// length and type, or its length/type fields make no sense.
var ErrInvalidChunk = errors.New("corekv/wal: invalid chunk")

// Reporter is notified of framing errors a Reader recovers from by skipping
// to the next block. Both bytes and reason describe the skipped region, for
// logging; it is never called for expected end-of-file conditions.
type Reporter interface {
	Corruption(bytes int64, reason string)
}

// noopReporter silently discards corruption notifications.
type noopReporter struct{}

func (noopReporter) Corruption(int64, string) {}

// Reader reads the sequence of records framed by a Writer. A single
// corrupted chunk does not abort the whole stream: the Reader skips forward
// to the start of the next block and continues, after notifying its
// Reporter.
type Reader struct {
	r          io.Reader
	reporter   Reporter
	buf        [blockSize]byte
	begin, end int // buf[begin:end] are unconsumed bytes of the current chunk
	n          int // buf[:n] are the valid bytes read from r for this block
	blockNum   int64
	last       bool // current chunk is a Full or Last chunk
	first      bool // no chunk has yet been returned for the current record
	err        error

	// initialOffset is the byte offset Reader was asked to start at; reads
	// before the first block boundary at or before it are skipped.
	initialOffset  int64
	resyncing      bool
	skippedInitial bool
}

// NewReader returns a Reader over r, starting from the beginning of the
// stream.
func NewReader(r io.Reader, reporter Reporter) *Reader {
	if reporter == nil {
		reporter = noopReporter{}
	}
	return &Reader{r: r, reporter: reporter, last: true}
}

// NewReaderWithOffset returns a Reader that skips forward to the block
// containing initialOffset before returning its first record, resynchronizing
// to the first chunk that looks like the start of a record (a Full or First
// chunk) at or after that block, as SeekRecord-style recovery does.
func NewReaderWithOffset(r io.Reader, reporter Reporter, initialOffset int64) *Reader {
	rr := NewReader(r, reporter)
	rr.initialOffset = initialOffset
	if initialOffset > 0 {
		rr.resyncing = true
	}
	return rr
}

// nextChunk reads the next chunk into r.buf[r.begin:r.end], skipping a
// truncated or corrupt block on error. It returns the chunk's type.
func (r *Reader) nextChunk(wantFirst bool) (chunkType, error) {
	for {
		if r.n-r.end >= headerSize {
			checksumField := base.DecodeFixed32(r.buf[r.end : r.end+4])
			length := int(r.buf[r.end+4]) | int(r.buf[r.end+5])<<8
			typ := chunkType(r.buf[r.end+6])
			unmasked := base.UnmaskCRC(checksumField)
			if r.end+headerSize+length > r.n {
				// The length field is corrupt or we hit a truncated write;
				// treat the rest of the block as unusable.
				if !r.last {
					return 0, errors.Wrap(io.ErrUnexpectedEOF, "corekv/wal: truncated chunk")
				}
				r.skipToNextBlock("truncated chunk header")
				continue
			}
			payload := r.buf[r.end+headerSize : r.end+headerSize+length]
			if base.CRC32C(append([]byte{byte(typ)}, payload...)) != unmasked {
				r.skipToNextBlock("checksum mismatch")
				continue
			}
			r.begin = r.end + headerSize
			r.end = r.begin + length
			if wantFirst && typ != chunkFull && typ != chunkFirst {
				// A Middle or Last chunk where a record should start means
				// its First chunk was lost or skipped; report it and keep
				// scanning for the next record start rather than returning
				// a truncated record.
				r.reporter.Corruption(int64(r.end-r.begin), "missing start of fragmented record")
				r.begin = r.end
				continue
			}
			return typ, nil
		}
		if r.n < blockSize && r.blockNum > 0 {
			// Short block: only valid as the last block of the file.
			if r.n != 0 {
				r.reporter.Corruption(int64(r.n), "partial block at end of file")
			}
			return 0, io.EOF
		}
		if err := r.readNextBlock(); err != nil {
			return 0, err
		}
	}
}

func (r *Reader) readNextBlock() error {
	n, err := io.ReadFull(r.r, r.buf[:])
	r.n = n
	r.begin, r.end = 0, 0
	r.last = false
	r.blockNum++
	if err != nil && err != io.ErrUnexpectedEOF {
		if err == io.EOF && n == 0 {
			return io.EOF
		}
		return err
	}
	return nil
}

func (r *Reader) skipToNextBlock(reason string) {
	r.reporter.Corruption(int64(r.n-r.end), reason)
	r.end = r.n
}

// Next returns an io.Reader for the next record, or io.EOF when the stream
// is exhausted. The returned reader becomes stale on the next call to Next.
func (r *Reader) Next() (io.Reader, error) {
	r.begin = r.end
	if r.err != nil {
		return nil, r.err
	}
	if r.resyncing && !r.skippedInitial {
		r.skippedInitial = true
		numBlocks := r.initialOffset / blockSize
		if numBlocks > 0 {
			if _, err := io.CopyN(io.Discard, r.r, numBlocks*blockSize); err != nil {
				r.err = err
				return nil, err
			}
			r.blockNum += numBlocks
		}
	}
	wantFirst := true
	var typ chunkType
	for {
		var err error
		typ, err = r.nextChunk(wantFirst)
		if err != nil {
			r.err = err
			return nil, err
		}
		wantFirst = false
		if typ == chunkFull || typ == chunkFirst {
			break
		}
	}
	return &singleRecordReader{r: r, done: typ == chunkFull}, nil
}

// singleRecordReader surfaces one logical record, transparently following
// First/Middle/Last continuation chunks.
type singleRecordReader struct {
	r    *Reader
	done bool
}

func (s *singleRecordReader) Read(p []byte) (int, error) {
	r := s.r
	for r.begin == r.end {
		if s.done {
			return 0, io.EOF
		}
		typ, err := r.nextChunk(false)
		if err != nil {
			return 0, err
		}
		if typ == chunkFull || typ == chunkLast {
			s.done = true
		}
	}
	n := copy(p, r.buf[r.begin:r.end])
	r.begin += n
	return n, nil
}
