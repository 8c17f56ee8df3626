package sstable

import (
	"bytes"
	"fmt"
	"testing"

	"github.com/corekv/corekv/bloom"
	"github.com/corekv/corekv/internal/base"
	"github.com/stretchr/testify/require"
)

type memFile struct {
	buf []byte
}

func (f *memFile) ReadAt(p []byte, off int64) (int, error) {
	if off >= int64(len(f.buf)) {
		return 0, fmt.Errorf("read past end of file")
	}
	n := copy(p, f.buf[off:])
	return n, nil
}

func (f *memFile) Size() (int64, error) { return int64(len(f.buf)), nil }

func buildTable(t *testing.T, n int, compression Compression, filter bloom.FilterPolicy) *memFile {
	t.Helper()
	var buf bytes.Buffer
	w := NewWriter(&buf, WriterOptions{
		Compression:  compression,
		FilterPolicy: filter,
		BlockSize:    256, // force multiple data blocks
	})
	for i := 0; i < n; i++ {
		key := base.MakeInternalKey([]byte(fmt.Sprintf("key%05d", i)), base.SeqNum(i+1), base.TypeValue)
		require.True(t, w.Add(key, []byte(fmt.Sprintf("value-%d", i))).OK())
	}
	require.True(t, w.Close().OK())
	return &memFile{buf: buf.Bytes()}
}

func TestWriterReaderRoundTrip(t *testing.T) {
	for _, compression := range []Compression{NoCompression, SnappyCompression, ZstdCompression} {
		f := buildTable(t, 500, compression, nil)
		r, st := NewReader(f, ReaderOptions{})
		require.True(t, st.OK())

		it := r.NewIterator()
		it.SeekToFirst()
		count := 0
		for it.Valid() {
			ik := base.DecodeInternalKey(it.Key())
			want := fmt.Sprintf("key%05d", count)
			require.Equal(t, want, string(ik.UserKey))
			count++
			it.Next()
		}
		require.Equal(t, 500, count)
	}
}

func TestReaderGet(t *testing.T) {
	f := buildTable(t, 200, SnappyCompression, nil)
	r, st := NewReader(f, ReaderOptions{})
	require.True(t, st.OK())

	lk := base.NewLookupKey([]byte("key00042"), base.MaxSeqNum)
	v, st := r.Get(lk.InternalKey())
	require.True(t, st.OK())
	require.Equal(t, "value-42", string(v))

	lk = base.NewLookupKey([]byte("missing"), base.MaxSeqNum)
	_, st = r.Get(lk.InternalKey())
	require.True(t, st.IsNotFound())
}

func TestReaderGetTombstone(t *testing.T) {
	var buf bytes.Buffer
	w := NewWriter(&buf, WriterOptions{})
	require.True(t, w.Add(base.MakeInternalKey([]byte("k"), 2, base.TypeDeletion), nil).OK())
	require.True(t, w.Add(base.MakeInternalKey([]byte("k"), 1, base.TypeValue), []byte("v1")).OK())
	require.True(t, w.Close().OK())

	r, st := NewReader(&memFile{buf: buf.Bytes()}, ReaderOptions{})
	require.True(t, st.OK())

	lk := base.NewLookupKey([]byte("k"), base.MaxSeqNum)
	_, st = r.Get(lk.InternalKey())
	require.True(t, st.IsDeleted())
}

func TestReaderGetWithFilter(t *testing.T) {
	policy := bloom.NewPolicy(10)
	f := buildTable(t, 300, NoCompression, policy)
	r, st := NewReader(f, ReaderOptions{FilterPolicy: policy})
	require.True(t, st.OK())

	lk := base.NewLookupKey([]byte("key00150"), base.MaxSeqNum)
	v, st := r.Get(lk.InternalKey())
	require.True(t, st.OK())
	require.Equal(t, "value-150", string(v))

	lk = base.NewLookupKey([]byte("definitely-absent"), base.MaxSeqNum)
	_, st = r.Get(lk.InternalKey())
	require.True(t, st.IsNotFound())
}

func TestSeekMidTable(t *testing.T) {
	f := buildTable(t, 500, NoCompression, nil)
	r, st := NewReader(f, ReaderOptions{})
	require.True(t, st.OK())

	it := r.NewIterator()
	lk := base.NewLookupKey([]byte("key00250"), base.MaxSeqNum)
	it.Seek(lk.InternalKey())
	require.True(t, it.Valid())
	ik := base.DecodeInternalKey(it.Key())
	require.Equal(t, "key00250", string(ik.UserKey))
}
