package version

import (
	"fmt"
	"io"
	"testing"

	"github.com/corekv/corekv/internal/base"
	"github.com/corekv/corekv/internal/status"
	"github.com/corekv/corekv/sstable"
	"github.com/corekv/corekv/tablecache"
	"github.com/corekv/corekv/vfs"
	"github.com/stretchr/testify/require"
)

// tableOpenerAdapter narrows tablecache.Cache's *Handle return value to the
// io.Closer interface RunCompaction depends on, the way the database
// façade would when wiring the two packages together.
type tableOpenerAdapter struct{ c *tablecache.Cache }

func (a tableOpenerAdapter) NewIterator(fileNum uint64) (*sstable.TableIterator, io.Closer, status.Status) {
	return a.c.NewIterator(fileNum)
}

// memOutputFile hands out sequential file numbers and creates the
// corresponding table file on fs, mimicking the façade's file-number
// allocator without needing the not-yet-built façade package.
type memOutputFile struct {
	fs      vfs.FS
	dirname string
	next    uint64
}

func (o *memOutputFile) Create() (uint64, WriteSyncCloser, error) {
	o.next++
	fileNum := o.next
	name := o.fs.PathJoin(o.dirname, fmt.Sprintf("%06d.ldb", fileNum))
	f, err := o.fs.Create(name)
	if err != nil {
		return 0, nil, err
	}
	return fileNum, f, nil
}

func writeInputTable(t *testing.T, fs vfs.FS, dirname string, fileNum uint64, entries map[string]string) FileMetadata {
	t.Helper()
	require.NoError(t, fs.MkdirAll(dirname, 0755))
	name := fs.PathJoin(dirname, fmt.Sprintf("%06d.ldb", fileNum))
	f, err := fs.Create(name)
	require.NoError(t, err)

	w := sstable.NewWriter(f, sstable.WriterOptions{})
	keys := make([]string, 0, len(entries))
	for k := range entries {
		keys = append(keys, k)
	}
	// sstable.Writer requires ascending internal-key order.
	for i := 0; i < len(keys); i++ {
		for j := i + 1; j < len(keys); j++ {
			if keys[j] < keys[i] {
				keys[i], keys[j] = keys[j], keys[i]
			}
		}
	}
	var smallest, largest base.InternalKey
	for i, k := range keys {
		ik := base.MakeInternalKey([]byte(k), base.SeqNum(fileNum*100+uint64(i)), base.TypeValue)
		require.True(t, w.Add(ik, []byte(entries[k])).OK())
		if i == 0 {
			smallest = ik
		}
		largest = ik
	}
	require.True(t, w.Close().OK())
	require.NoError(t, f.Close())

	return FileMetadata{FileNum: fileNum, Size: w.Size(), Smallest: smallest, Largest: largest}
}

func TestRunCompactionMergesInputsIntoOutput(t *testing.T) {
	fs := vfs.NewMem()
	m1 := writeInputTable(t, fs, "/db", 1, map[string]string{"a": "1", "c": "3"})
	m2 := writeInputTable(t, fs, "/db", 2, map[string]string{"b": "2", "d": "4"})

	cache := tablecache.New("/db", fs, sstable.ReaderOptions{}, 0)
	defer cache.Close()

	v := &Version{}
	v.Files[0] = []FileMetadata{m1, m2}
	c := &Compaction{Version: v, Level: 0, Inputs: [3][]FileMetadata{{m1, m2}, nil, nil}}

	out := &memOutputFile{fs: fs, dirname: "/db", next: 2}
	edit, st := RunCompaction(c, icmp, tableOpenerAdapter{cache}, out, sstable.WriterOptions{})
	require.True(t, st.OK())
	require.Len(t, edit.NewFiles, 1)
	require.Len(t, edit.DeletedFiles, 2)

	outMeta := edit.NewFiles[0].Meta
	require.Equal(t, 1, edit.NewFiles[0].Level)

	outCache := tablecache.New("/db", fs, sstable.ReaderOptions{}, 0)
	defer outCache.Close()
	it, hnd, st := outCache.NewIterator(outMeta.FileNum)
	require.True(t, st.OK())
	defer hnd.Close()

	var got []string
	for it.SeekToFirst(); it.Valid(); it.Next() {
		ik := base.DecodeInternalKey(it.Key())
		got = append(got, string(ik.UserKey))
	}
	require.Equal(t, []string{"a", "b", "c", "d"}, got)
}

func writeInputTableRaw(t *testing.T, fs vfs.FS, dirname string, fileNum uint64, entries []struct {
	key   string
	seq   uint64
	kind  base.ValueType
	value string
}) FileMetadata {
	t.Helper()
	require.NoError(t, fs.MkdirAll(dirname, 0755))
	name := fs.PathJoin(dirname, fmt.Sprintf("%06d.ldb", fileNum))
	f, err := fs.Create(name)
	require.NoError(t, err)

	w := sstable.NewWriter(f, sstable.WriterOptions{})
	var smallest, largest base.InternalKey
	for i, e := range entries {
		ik := base.MakeInternalKey([]byte(e.key), base.SeqNum(e.seq), e.kind)
		require.True(t, w.Add(ik, []byte(e.value)).OK())
		if i == 0 {
			smallest = ik
		}
		largest = ik
	}
	require.True(t, w.Close().OK())
	require.NoError(t, f.Close())

	return FileMetadata{FileNum: fileNum, Size: w.Size(), Smallest: smallest, Largest: largest}
}

func TestRunCompactionDropsObsoleteVersionsAndTombstones(t *testing.T) {
	fs := vfs.NewMem()
	// Same internal-key order the merging iterator produces: "a" newest
	// first (a tombstone shadowing an older value), then a lone "b".
	m1 := writeInputTableRaw(t, fs, "/db", 1, []struct {
		key   string
		seq   uint64
		kind  base.ValueType
		value string
	}{
		{"a", 2, base.TypeDeletion, ""},
		{"a", 1, base.TypeValue, "old-a"},
		{"b", 1, base.TypeValue, "b"},
	})

	cache := tablecache.New("/db", fs, sstable.ReaderOptions{}, 0)
	defer cache.Close()

	// An empty Version (no files at Level+2 or deeper) makes this
	// compaction the base level for every key, so the "a" tombstone is
	// safe to drop outright rather than carry forward.
	v := &Version{}
	v.Files[0] = []FileMetadata{m1}
	c := &Compaction{Version: v, Level: 0, Inputs: [3][]FileMetadata{{m1}, nil, nil}}

	out := &memOutputFile{fs: fs, dirname: "/db", next: 1}
	edit, st := RunCompaction(c, icmp, tableOpenerAdapter{cache}, out, sstable.WriterOptions{})
	require.True(t, st.OK())
	require.Len(t, edit.NewFiles, 1)

	outMeta := edit.NewFiles[0].Meta
	outCache := tablecache.New("/db", fs, sstable.ReaderOptions{}, 0)
	defer outCache.Close()
	it, hnd, st := outCache.NewIterator(outMeta.FileNum)
	require.True(t, st.OK())
	defer hnd.Close()

	var got []string
	for it.SeekToFirst(); it.Valid(); it.Next() {
		ik := base.DecodeInternalKey(it.Key())
		got = append(got, string(ik.UserKey))
	}
	// Neither the "a" tombstone nor the older "old-a" value survives;
	// only "b" does.
	require.Equal(t, []string{"b"}, got)
}

func TestRunCompactionSplitsOnTargetFileSize(t *testing.T) {
	fs := vfs.NewMem()
	entries := map[string]string{}
	big := make([]byte, 4096)
	for i := 0; i < 600; i++ {
		entries[fmt.Sprintf("key%04d", i)] = string(big)
	}
	m1 := writeInputTable(t, fs, "/db", 1, entries)

	cache := tablecache.New("/db", fs, sstable.ReaderOptions{}, 0)
	defer cache.Close()

	v := &Version{}
	v.Files[0] = []FileMetadata{m1}
	c := &Compaction{Version: v, Level: 0, Inputs: [3][]FileMetadata{{m1}, nil, nil}}

	out := &memOutputFile{fs: fs, dirname: "/db", next: 1}
	edit, st := RunCompaction(c, icmp, tableOpenerAdapter{cache}, out, sstable.WriterOptions{})
	require.True(t, st.OK())
	require.Greater(t, len(edit.NewFiles), 1)
}
