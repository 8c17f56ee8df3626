package filenames

import (
	"testing"

	"github.com/corekv/corekv/vfs"
	"github.com/stretchr/testify/require"
)

func TestMakeAndParseFilenameRoundTrip(t *testing.T) {
	cases := []struct {
		typ FileType
		num uint64
	}{
		{FileTypeLog, 7},
		{FileTypeTable, 42},
		{FileTypeManifest, 3},
		{FileTypeTemp, 9},
	}
	for _, c := range cases {
		name := MakeFilename(c.typ, c.num)
		gotTyp, gotNum, ok := ParseFilename(name)
		require.True(t, ok, name)
		require.Equal(t, c.typ, gotTyp)
		require.Equal(t, c.num, gotNum)
	}
}

func TestParseFilenameAcceptsSstSuffix(t *testing.T) {
	typ, num, ok := ParseFilename("000123.sst")
	require.True(t, ok)
	require.Equal(t, FileTypeTable, typ)
	require.Equal(t, uint64(123), num)
}

func TestParseFilenameRejectsLogHeaderFiles(t *testing.T) {
	_, _, ok := ParseFilename("LOG")
	require.False(t, ok)
	_, _, ok = ParseFilename("LOG.old")
	require.False(t, ok)
}

func TestParseFilenameStaticNames(t *testing.T) {
	typ, _, ok := ParseFilename("CURRENT")
	require.True(t, ok)
	require.Equal(t, FileTypeCurrent, typ)

	typ, _, ok = ParseFilename("LOCK")
	require.True(t, ok)
	require.Equal(t, FileTypeLock, typ)
}

func TestSetCurrentFileWritesManifestReference(t *testing.T) {
	fs := vfs.NewMem()
	require.NoError(t, fs.MkdirAll("/db", 0755))
	require.NoError(t, SetCurrentFile(fs, "/db", 5))

	f, err := fs.Open(MakeFilepath(fs, "/db", FileTypeCurrent, 0))
	require.NoError(t, err)
	defer f.Close()
	buf := make([]byte, 64)
	n, _ := f.Read(buf)
	require.Equal(t, "MANIFEST-000005\n", string(buf[:n]))
}
