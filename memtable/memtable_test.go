package memtable

import (
	"testing"

	"github.com/corekv/corekv/internal/base"
	"github.com/stretchr/testify/require"
)

func TestMemtableGetSetDelete(t *testing.T) {
	m := New(nil)
	require.NoError(t, m.Add(1, base.TypeValue, []byte("a"), []byte("apple")))
	require.NoError(t, m.Add(2, base.TypeValue, []byte("b"), []byte("banana")))

	v, st := m.Get([]byte("a"), base.MaxSeqNum)
	require.True(t, st.OK())
	require.Equal(t, []byte("apple"), v)

	_, st = m.Get([]byte("missing"), base.MaxSeqNum)
	require.True(t, st.IsNotFound())

	require.NoError(t, m.Add(3, base.TypeDeletion, []byte("a"), nil))
	_, st = m.Get([]byte("a"), base.MaxSeqNum)
	require.True(t, st.IsDeleted())

	// A read at a sequence number before the deletion still sees the value.
	v, st = m.Get([]byte("a"), 1)
	require.True(t, st.OK())
	require.Equal(t, []byte("apple"), v)
}

func TestMemtableIteratorOrdering(t *testing.T) {
	m := New(nil)
	require.NoError(t, m.Add(1, base.TypeValue, []byte("c"), []byte("3")))
	require.NoError(t, m.Add(1, base.TypeValue, []byte("a"), []byte("1")))
	require.NoError(t, m.Add(1, base.TypeValue, []byte("b"), []byte("2")))

	it := m.NewIterator()
	it.SeekToFirst()
	var keys []string
	for it.Valid() {
		keys = append(keys, string(it.InternalKey().UserKey))
		it.Next()
	}
	require.Equal(t, []string{"a", "b", "c"}, keys)
}

func TestMemtableMemoryUsageGrows(t *testing.T) {
	m := New(nil)
	before := m.MemoryUsage()
	require.NoError(t, m.Add(1, base.TypeValue, []byte("k"), make([]byte, 4096)))
	require.Greater(t, m.MemoryUsage(), before)
}
