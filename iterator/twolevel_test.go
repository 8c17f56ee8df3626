package iterator

import (
	"fmt"
	"testing"

	"github.com/corekv/corekv/internal/base"
	"github.com/corekv/corekv/sstable"
	"github.com/stretchr/testify/require"
)

// buildTwoLevel constructs an index block pointing at n separately encoded
// data blocks, each holding one key, to exercise cross-block positioning
// without depending on the sstable package's own reader/writer.
func buildTwoLevel(t *testing.T, n int) (index []byte, blocks map[string][]byte) {
	t.Helper()
	blocks = make(map[string][]byte)
	indexBuilder := sstable.NewBlockBuilder(1)
	for i := 0; i < n; i++ {
		key := fmt.Sprintf("key%03d", i)
		b := sstable.NewBlockBuilder(1)
		ik := base.MakeInternalKey([]byte(key), base.SeqNum(i+1), base.TypeValue)
		enc := make([]byte, ik.Size())
		ik.Encode(enc)
		b.Add(enc, []byte(fmt.Sprintf("val%03d", i)))
		blocks[key] = b.Finish()
		indexBuilder.Add(enc, []byte(key))
	}
	return indexBuilder.Finish(), blocks
}

func TestTwoLevelIteratorForward(t *testing.T) {
	index, blocks := buildTwoLevel(t, 5)
	indexIter := sstable.NewBlockIterator(base.InternalKeyComparer{UserComparer: base.DefaultComparer}, index)
	factory := func(indexValue []byte) Iterator {
		return sstable.NewBlockIterator(base.InternalKeyComparer{UserComparer: base.DefaultComparer}, blocks[string(indexValue)])
	}

	it := NewTwoLevelIterator(indexIter, factory)
	it.SeekToFirst()

	var got []string
	for it.Valid() {
		ik := base.DecodeInternalKey(it.Key())
		got = append(got, string(ik.UserKey))
		it.Next()
	}
	require.Equal(t, []string{"key000", "key001", "key002", "key003", "key004"}, got)
}

func TestTwoLevelIteratorSeekMidway(t *testing.T) {
	index, blocks := buildTwoLevel(t, 5)
	indexIter := sstable.NewBlockIterator(base.InternalKeyComparer{UserComparer: base.DefaultComparer}, index)
	factory := func(indexValue []byte) Iterator {
		return sstable.NewBlockIterator(base.InternalKeyComparer{UserComparer: base.DefaultComparer}, blocks[string(indexValue)])
	}

	it := NewTwoLevelIterator(indexIter, factory)
	lk := base.NewLookupKey([]byte("key002"), base.MaxSeqNum)
	it.Seek(lk.InternalKey())
	require.True(t, it.Valid())
	ik := base.DecodeInternalKey(it.Key())
	require.Equal(t, "key002", string(ik.UserKey))
}

func TestTwoLevelIteratorReverse(t *testing.T) {
	index, blocks := buildTwoLevel(t, 3)
	indexIter := sstable.NewBlockIterator(base.InternalKeyComparer{UserComparer: base.DefaultComparer}, index)
	factory := func(indexValue []byte) Iterator {
		return sstable.NewBlockIterator(base.InternalKeyComparer{UserComparer: base.DefaultComparer}, blocks[string(indexValue)])
	}

	it := NewTwoLevelIterator(indexIter, factory)
	it.SeekToLast()
	var got []string
	for it.Valid() {
		ik := base.DecodeInternalKey(it.Key())
		got = append(got, string(ik.UserKey))
		it.Prev()
	}
	require.Equal(t, []string{"key002", "key001", "key000"}, got)
}
