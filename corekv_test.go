package corekv

import (
	"testing"

	"github.com/corekv/corekv/batch"
	"github.com/corekv/corekv/internal/base"
	"github.com/corekv/corekv/vfs"
	"github.com/stretchr/testify/require"
)

func testOptions() *Options {
	return &Options{FS: vfs.NewMem()}
}

func batchOf(entries map[string]string) *batch.Batch {
	b := batch.New()
	for k, v := range entries {
		b.Set([]byte(k), []byte(v))
	}
	return b
}

func TestSetGetDelete(t *testing.T) {
	db, err := Open("/db", testOptions())
	require.NoError(t, err)
	defer db.Close()

	require.NoError(t, db.Set([]byte("a"), []byte("1")))
	require.NoError(t, db.Set([]byte("b"), []byte("2")))

	v, err := db.Get([]byte("a"))
	require.NoError(t, err)
	require.Equal(t, []byte("1"), v)

	require.NoError(t, db.Delete([]byte("a")))
	_, err = db.Get([]byte("a"))
	require.Error(t, err)

	v, err = db.Get([]byte("b"))
	require.NoError(t, err)
	require.Equal(t, []byte("2"), v)
}

func TestWriteBatchIsAtomic(t *testing.T) {
	db, err := Open("/db", testOptions())
	require.NoError(t, err)
	defer db.Close()

	require.NoError(t, db.Write(batchOf(map[string]string{"x": "1", "y": "2", "z": "3"})))

	for k, want := range map[string]string{"x": "1", "y": "2", "z": "3"} {
		v, err := db.Get([]byte(k))
		require.NoError(t, err)
		require.Equal(t, want, string(v))
	}
}

func TestReopenRecoversFromLog(t *testing.T) {
	fs := vfs.NewMem()
	db, err := Open("/db", &Options{FS: fs})
	require.NoError(t, err)
	require.NoError(t, db.Set([]byte("k"), []byte("v")))
	require.NoError(t, db.Close())

	db2, err := Open("/db", &Options{FS: fs})
	require.NoError(t, err)
	defer db2.Close()

	v, err := db2.Get([]byte("k"))
	require.NoError(t, err)
	require.Equal(t, []byte("v"), v)
}

func TestFlushMovesDataToSortedTable(t *testing.T) {
	db, err := Open("/db", testOptions())
	require.NoError(t, err)
	defer db.Close()

	require.NoError(t, db.Set([]byte("k1"), []byte("v1")))
	require.NoError(t, db.Set([]byte("k2"), []byte("v2")))
	require.NoError(t, db.Flush())

	require.Len(t, db.current.Files[0], 1)

	v, err := db.Get([]byte("k1"))
	require.NoError(t, err)
	require.Equal(t, []byte("v1"), v)
}

func TestCompactMergesLevelZeroFiles(t *testing.T) {
	db, err := Open("/db", testOptions())
	require.NoError(t, err)
	defer db.Close()

	for i := 0; i < 5; i++ {
		require.NoError(t, db.Set([]byte{byte('a' + i)}, []byte{byte('0' + i)}))
		require.NoError(t, db.Flush())
	}
	require.GreaterOrEqual(t, len(db.current.Files[0]), 4)

	require.NoError(t, db.Compact(0))
	require.Empty(t, db.current.Files[0])
	require.NotEmpty(t, db.current.Files[1])

	for i := 0; i < 5; i++ {
		v, err := db.Get([]byte{byte('a' + i)})
		require.NoError(t, err)
		require.Equal(t, []byte{byte('0' + i)}, v)
	}
}

func TestNewIteratorWalksMemtableAndTables(t *testing.T) {
	db, err := Open("/db", testOptions())
	require.NoError(t, err)
	defer db.Close()

	require.NoError(t, db.Set([]byte("a"), []byte("1")))
	require.NoError(t, db.Set([]byte("b"), []byte("2")))
	require.NoError(t, db.Flush())
	require.NoError(t, db.Set([]byte("c"), []byte("3")))

	it := db.NewIterator()
	defer it.Close()

	var keys []string
	for it.SeekToFirst(); it.Valid(); it.Next() {
		keys = append(keys, string(base.DecodeInternalKey(it.Key()).UserKey))
	}
	require.NoError(t, it.Status().Unwrap())
	require.Equal(t, []string{"a", "b", "c"}, keys)
}
