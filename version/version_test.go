package version

import (
	"testing"

	"github.com/corekv/corekv/internal/base"
	"github.com/corekv/corekv/internal/status"
	"github.com/stretchr/testify/require"
)

var icmp = base.InternalKeyComparer{UserComparer: base.DefaultComparer}

func meta(fileNum uint64, smallest, largest string, size uint64) FileMetadata {
	return FileMetadata{
		FileNum:  fileNum,
		Size:     size,
		Smallest: base.MakeInternalKey([]byte(smallest), 1, base.TypeValue),
		Largest:  base.MakeInternalKey([]byte(largest), 1, base.TypeValue),
	}
}

func TestVersionEditApplyAddsAndSortsFiles(t *testing.T) {
	v := &Version{}
	edit := &VersionEdit{}
	edit.AddFile(0, meta(3, "d", "f", 100))
	edit.AddFile(0, meta(1, "a", "c", 100))
	edit.AddFile(1, meta(2, "m", "z", 200))

	v2, err := edit.Apply(v, icmp)
	require.NoError(t, err)
	require.Len(t, v2.Files[0], 2)
	require.Equal(t, uint64(1), v2.Files[0][0].FileNum)
	require.Equal(t, uint64(3), v2.Files[0][1].FileNum)
	require.Len(t, v2.Files[1], 1)
}

func TestVersionEditApplyDeletesFiles(t *testing.T) {
	v := &Version{}
	v.Files[0] = []FileMetadata{meta(1, "a", "b", 10), meta(2, "c", "d", 10)}

	edit := &VersionEdit{}
	edit.DeleteFile(0, 1)
	v2, err := edit.Apply(v, icmp)
	require.NoError(t, err)
	require.Len(t, v2.Files[0], 1)
	require.Equal(t, uint64(2), v2.Files[0][0].FileNum)
}

func TestVersionEditApplyRejectsOverlappingNonZeroLevelFiles(t *testing.T) {
	v := &Version{}
	edit := &VersionEdit{}
	// Two files at a non-zero level whose key ranges overlap violate the
	// disjoint-and-sorted invariant CheckOrdering enforces.
	edit.AddFile(1, meta(1, "a", "m", 10))
	edit.AddFile(1, meta(2, "g", "z", 10))

	_, err := edit.Apply(v, icmp)
	require.Error(t, err)
}

func TestVersionOverlapsExpandsAtLevelZero(t *testing.T) {
	v := &Version{}
	v.Files[0] = []FileMetadata{
		meta(1, "a", "e", 10),
		meta(2, "d", "h", 10),
		meta(3, "z", "z", 10),
	}
	got := v.Overlaps(0, base.DefaultComparer, []byte("c"), []byte("d"))
	require.Len(t, got, 2)
}

func TestVersionOverlapsAtHigherLevelIsExact(t *testing.T) {
	v := &Version{}
	v.Files[1] = []FileMetadata{meta(1, "a", "c", 10), meta(2, "d", "f", 10)}
	got := v.Overlaps(1, base.DefaultComparer, []byte("e"), []byte("e"))
	require.Len(t, got, 1)
	require.Equal(t, uint64(2), got[0].FileNum)
}

func TestUpdateCompactionScoreFlagsLevelZero(t *testing.T) {
	v := &Version{}
	v.Files[0] = []FileMetadata{meta(1, "a", "a", 1), meta(2, "b", "b", 1), meta(3, "c", "c", 1), meta(4, "d", "d", 1)}
	v.UpdateCompactionScore()
	require.Equal(t, 0, v.CompactionLevel)
	require.GreaterOrEqual(t, v.CompactionScore, 1.0)
}

func TestPickCompactionExpandsLevelZeroOverlap(t *testing.T) {
	v := &Version{}
	v.Files[0] = []FileMetadata{
		meta(1, "a", "e", 1),
		meta(2, "d", "h", 1),
		meta(3, "x", "y", 1),
		meta(4, "z", "z", 1),
	}
	v.UpdateCompactionScore()

	c := PickCompaction(v, icmp)
	require.NotNil(t, c)
	require.Equal(t, 0, c.Level)
	// File 1's range [a,e] overlaps file 2's [d,h]; file 3 doesn't touch
	// either. c.Inputs[0] must include both overlapping files.
	nums := map[uint64]bool{}
	for _, f := range c.Inputs[0] {
		nums[f.FileNum] = true
	}
	require.True(t, nums[1])
	require.True(t, nums[2])
}

func TestPickCompactionReturnsNilBelowThreshold(t *testing.T) {
	v := &Version{}
	v.Files[0] = []FileMetadata{meta(1, "a", "a", 1)}
	v.UpdateCompactionScore()
	require.Nil(t, PickCompaction(v, icmp))
}

func TestIsBaseLevelForUkey(t *testing.T) {
	v := &Version{}
	v.Files[2] = []FileMetadata{meta(1, "m", "p", 10)}
	c := &Compaction{Version: v, Level: 0}

	require.False(t, c.IsBaseLevelForUkey(base.DefaultComparer, []byte("n")))
	require.True(t, c.IsBaseLevelForUkey(base.DefaultComparer, []byte("z")))
}

type fakeTableReader struct {
	tables  map[uint64]map[string]string
	deleted map[uint64]map[string]bool
}

func (f fakeTableReader) Get(fileNum uint64, key []byte) ([]byte, status.Status) {
	ik := base.DecodeInternalKey(key)
	if tomb, ok := f.deleted[fileNum]; ok && tomb[string(ik.UserKey)] {
		return nil, status.New(status.Deleted, "key deleted")
	}
	table, ok := f.tables[fileNum]
	if !ok {
		return nil, status.New(status.NotFound, "no such table")
	}
	v, ok := table[string(ik.UserKey)]
	if !ok {
		return nil, status.New(status.NotFound, "key not found")
	}
	return []byte(v), status.Status{}
}

func TestVersionGetPrefersNewestLevelZeroFile(t *testing.T) {
	v := &Version{}
	v.Files[0] = []FileMetadata{
		meta(1, "k", "k", 1),
		meta(2, "k", "k", 1),
	}
	tr := fakeTableReader{tables: map[uint64]map[string]string{
		1: {"k": "old"},
		2: {"k": "new"},
	}}

	lk := base.NewLookupKey([]byte("k"), base.MaxSeqNum)
	val, st := v.Get(icmp, tr, lk.InternalKey())
	require.True(t, st.OK())
	require.Equal(t, "new", string(val))
}

func TestVersionGetFallsThroughToDeeperLevel(t *testing.T) {
	v := &Version{}
	v.Files[1] = []FileMetadata{meta(1, "a", "z", 1)}
	tr := fakeTableReader{tables: map[uint64]map[string]string{
		1: {"m": "deep"},
	}}

	lk := base.NewLookupKey([]byte("m"), base.MaxSeqNum)
	val, st := v.Get(icmp, tr, lk.InternalKey())
	require.True(t, st.OK())
	require.Equal(t, "deep", string(val))
}

func TestVersionGetStopsAtTombstone(t *testing.T) {
	v := &Version{}
	v.Files[0] = []FileMetadata{meta(2, "k", "k", 1)}
	v.Files[1] = []FileMetadata{meta(1, "a", "z", 1)}
	tr := fakeTableReader{
		tables:  map[uint64]map[string]string{1: {"k": "old"}},
		deleted: map[uint64]map[string]bool{2: {"k": true}},
	}

	lk := base.NewLookupKey([]byte("k"), base.MaxSeqNum)
	_, st := v.Get(icmp, tr, lk.InternalKey())
	require.True(t, st.IsNotFound())
}

func TestVersionGetReturnsNotFound(t *testing.T) {
	v := &Version{}
	tr := fakeTableReader{tables: map[uint64]map[string]string{}}
	lk := base.NewLookupKey([]byte("missing"), base.MaxSeqNum)
	_, st := v.Get(icmp, tr, lk.InternalKey())
	require.False(t, st.OK())
	require.True(t, st.IsNotFound())
}
