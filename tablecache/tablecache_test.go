package tablecache

import (
	"fmt"
	"testing"

	"github.com/corekv/corekv/filenames"
	"github.com/corekv/corekv/internal/base"
	"github.com/corekv/corekv/sstable"
	"github.com/corekv/corekv/vfs"
	"github.com/stretchr/testify/require"
)

func writeTestTable(t *testing.T, fs vfs.FS, dirname string, fileNum uint64, n int) {
	t.Helper()
	require.NoError(t, fs.MkdirAll(dirname, 0755))
	path := filenames.MakeFilepath(fs, dirname, filenames.FileTypeTable, fileNum)
	f, err := fs.Create(path)
	require.NoError(t, err)

	w := sstable.NewWriter(f, sstable.WriterOptions{})
	for i := 0; i < n; i++ {
		key := base.MakeInternalKey([]byte(fmt.Sprintf("key%03d", i)), base.SeqNum(i+1), base.TypeValue)
		require.True(t, w.Add(key, []byte(fmt.Sprintf("val%03d", i))).OK())
	}
	require.True(t, w.Close().OK())
	require.NoError(t, f.Close())
}

func TestCacheGetLoadsAndReusesReader(t *testing.T) {
	fs := vfs.NewMem()
	writeTestTable(t, fs, "/db", 1, 10)

	c := New("/db", fs, sstable.ReaderOptions{}, 0)
	defer c.Close()

	lk := base.NewLookupKey([]byte("key005"), base.MaxSeqNum)
	v, st := c.Get(1, lk.InternalKey())
	require.True(t, st.OK())
	require.Equal(t, "val005", string(v))

	// A second lookup should hit the same cached node rather than re-open.
	v, st = c.Get(1, lk.InternalKey())
	require.True(t, st.OK())
	require.Equal(t, "val005", string(v))
}

func TestCacheNewIteratorWalksTable(t *testing.T) {
	fs := vfs.NewMem()
	writeTestTable(t, fs, "/db", 2, 5)

	c := New("/db", fs, sstable.ReaderOptions{}, 0)
	defer c.Close()

	it, hnd, st := c.NewIterator(2)
	require.True(t, st.OK())
	defer hnd.Close()

	it.SeekToFirst()
	count := 0
	for it.Valid() {
		count++
		it.Next()
	}
	require.Equal(t, 5, count)
}

func TestCacheEvictRemovesEntry(t *testing.T) {
	fs := vfs.NewMem()
	writeTestTable(t, fs, "/db", 3, 3)

	c := New("/db", fs, sstable.ReaderOptions{}, 0)
	defer c.Close()

	lk := base.NewLookupKey([]byte("key000"), base.MaxSeqNum)
	_, st := c.Get(3, lk.InternalKey())
	require.True(t, st.OK())

	c.Evict(3)
	require.Empty(t, c.nodes)
}

func TestCacheMissingFileReturnsIOError(t *testing.T) {
	fs := vfs.NewMem()
	require.NoError(t, fs.MkdirAll("/db", 0755))
	c := New("/db", fs, sstable.ReaderOptions{}, 0)
	defer c.Close()

	_, st := c.Get(99, []byte("x"))
	require.False(t, st.OK())
}
