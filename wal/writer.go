package wal

import (
	"io"

	"github.com/cockroachdb/errors"
	"github.com/corekv/corekv/internal/base"
)

// ErrClosedWriter is returned by any Writer method called after Close.
var ErrClosedWriter = errors.New("corekv/wal: closed writer")

// flusher is implemented by underlying writers that buffer (e.g. bufio.Writer
// or an *os.File needing an explicit durability barrier).
type flusher interface {
	Flush() error
}

// Writer packs records into 32 KiB blocks of framed, checksummed chunks.
// Neither Writer nor the io.Writer returned by Next is safe for concurrent
// use.
type Writer struct {
	w   io.Writer
	f   flusher
	buf [blockSize]byte
	// i, j mark the pending chunk's header start and write cursor within buf.
	i, j        int
	blockNumber int64
	written     int
	first       bool
	pending     bool
	err         error
}

// NewWriter returns a Writer that frames records onto w.
func NewWriter(w io.Writer) *Writer {
	f, _ := w.(flusher)
	return &Writer{w: w, f: f}
}

func (w *Writer) fillHeader(last bool) {
	if w.i+headerSize > w.j || w.j > blockSize {
		panic("corekv/wal: inconsistent writer state")
	}
	var typ chunkType
	switch {
	case w.first && last:
		typ = chunkFull
	case w.first && !last:
		typ = chunkFirst
	case !w.first && last:
		typ = chunkLast
	default:
		typ = chunkMiddle
	}
	w.buf[w.i+6] = byte(typ)
	crc := checksum(typ, w.buf[w.i+headerSize:w.j])
	base.PutFixed32(w.buf[w.i:w.i+4], crc)
	length := w.j - w.i - headerSize
	w.buf[w.i+4] = byte(length)
	w.buf[w.i+5] = byte(length >> 8)
}

func (w *Writer) writeBlock() {
	_, w.err = w.w.Write(w.buf[w.written:])
	w.i = 0
	w.j = headerSize
	w.written = 0
	w.blockNumber++
}

func (w *Writer) writePending() {
	if w.err != nil {
		return
	}
	if w.pending {
		w.fillHeader(true)
		w.pending = false
	}
	_, w.err = w.w.Write(w.buf[w.written:w.j])
	w.written = w.j
}

// Next returns an io.Writer for the next record. It becomes stale after the
// next call to Next, Flush, WriteRecord or Close.
func (w *Writer) Next() (io.Writer, error) {
	if w.err != nil {
		return nil, w.err
	}
	if w.pending {
		w.fillHeader(true)
	}
	w.i = w.j
	w.j = w.j + headerSize
	if w.j > blockSize {
		for k := w.i; k < len(w.buf); k++ {
			w.buf[k] = 0
		}
		w.writeBlock()
		if w.err != nil {
			return nil, w.err
		}
	}
	w.first = true
	w.pending = true
	return recordWriter{w}, nil
}

// WriteRecord writes a complete record in one call.
func (w *Writer) WriteRecord(p []byte) error {
	rw, err := w.Next()
	if err != nil {
		return err
	}
	if _, err := rw.Write(p); err != nil {
		return err
	}
	w.writePending()
	return w.err
}

// Flush finishes the current record, flushing any buffered bytes to the
// underlying writer, and calls Flush on it if it supports that.
func (w *Writer) Flush() error {
	w.writePending()
	if w.err != nil {
		return w.err
	}
	if w.f != nil {
		w.err = w.f.Flush()
	}
	return w.err
}

// Close finishes the current record and marks the writer closed.
func (w *Writer) Close() error {
	w.writePending()
	err := w.err
	w.err = ErrClosedWriter
	return err
}

// Size reports the number of bytes written so far, including the current
// unflushed block.
func (w *Writer) Size() int64 {
	if w == nil {
		return 0
	}
	return w.blockNumber*blockSize + int64(w.j)
}

// recordWriter is the io.Writer handed back by Next; it splits a record's
// payload across as many chunks as the block layout requires.
type recordWriter struct{ w *Writer }

func (rw recordWriter) Write(p []byte) (int, error) {
	w := rw.w
	n0 := len(p)
	for len(p) > 0 {
		if w.j == blockSize {
			w.fillHeader(false)
			w.writeBlock()
			if w.err != nil {
				return 0, w.err
			}
			w.first = false
			w.j = headerSize
			w.i = 0
		}
		n := copy(w.buf[w.j:], p)
		w.j += n
		p = p[n:]
	}
	return n0, nil
}
