package vfs

import (
	"io"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestMemFSCreateWriteRead(t *testing.T) {
	fs := NewMem()
	f, err := fs.Create("a.txt")
	require.NoError(t, err)
	_, err = f.Write([]byte("hello"))
	require.NoError(t, err)
	require.NoError(t, f.Close())

	f, err = fs.Open("a.txt")
	require.NoError(t, err)
	defer f.Close()
	buf := make([]byte, 5)
	_, err = io.ReadFull(f, buf)
	require.NoError(t, err)
	require.Equal(t, "hello", string(buf))
}

func TestMemFSMkdirAllAndList(t *testing.T) {
	fs := NewMem()
	require.NoError(t, fs.MkdirAll("a/b/c", 0755))
	_, err := fs.Create("a/b/c/file")
	require.NoError(t, err)

	names, err := fs.List("a/b/c")
	require.NoError(t, err)
	require.Equal(t, []string{"file"}, names)
}

func TestMemFSRenameAndRemove(t *testing.T) {
	fs := NewMem()
	_, err := fs.Create("old")
	require.NoError(t, err)
	require.NoError(t, fs.Rename("old", "new"))

	_, err = fs.Open("old")
	require.Error(t, err)
	_, err = fs.Open("new")
	require.NoError(t, err)

	require.NoError(t, fs.Remove("new"))
	_, err = fs.Open("new")
	require.Error(t, err)
}

func TestMemFSLockExcludesSecondAcquire(t *testing.T) {
	fs := NewMem()
	closer, err := fs.Lock("LOCK")
	require.NoError(t, err)

	_, err = fs.Lock("LOCK")
	require.Error(t, err)

	require.NoError(t, closer.Close())
	closer2, err := fs.Lock("LOCK")
	require.NoError(t, err)
	require.NoError(t, closer2.Close())
}

func TestMemFSStatReportsSize(t *testing.T) {
	fs := NewMem()
	f, err := fs.Create("sized")
	require.NoError(t, err)
	_, err = f.Write([]byte("0123456789"))
	require.NoError(t, err)
	require.NoError(t, f.Close())

	fi, err := fs.Stat("sized")
	require.NoError(t, err)
	require.Equal(t, int64(10), fi.Size())
}
