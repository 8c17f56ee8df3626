package iterator

import (
	"fmt"
	"testing"

	"github.com/corekv/corekv/arena"
	"github.com/corekv/corekv/internal/base"
	"github.com/corekv/corekv/memtable"
	"github.com/stretchr/testify/require"
)

func newSkiplistWithKeys(t *testing.T, keys ...string) *memtable.Skiplist {
	t.Helper()
	ikc := base.InternalKeyComparer{UserComparer: base.DefaultComparer}
	s := memtable.NewSkiplist(arena.New(), ikc)
	for i, k := range keys {
		require.NoError(t, s.Add(base.MakeInternalKey([]byte(k), base.SeqNum(i+1), base.TypeValue), []byte(fmt.Sprintf("v%d", i))))
	}
	return s
}

func TestMergingIteratorForwardInterleaves(t *testing.T) {
	a := newSkiplistWithKeys(t, "a", "c", "e")
	b := newSkiplistWithKeys(t, "b", "d", "f")

	m := NewMergingIterator(base.DefaultComparer, a.Iterator(), b.Iterator())
	m.SeekToFirst()

	var got []string
	for m.Valid() {
		ik := base.DecodeInternalKey(m.Key())
		got = append(got, string(ik.UserKey))
		m.Next()
	}
	require.Equal(t, []string{"a", "b", "c", "d", "e", "f"}, got)
}

func TestMergingIteratorReverse(t *testing.T) {
	a := newSkiplistWithKeys(t, "a", "c", "e")
	b := newSkiplistWithKeys(t, "b", "d", "f")

	m := NewMergingIterator(base.DefaultComparer, a.Iterator(), b.Iterator())
	m.SeekToLast()

	var got []string
	for m.Valid() {
		ik := base.DecodeInternalKey(m.Key())
		got = append(got, string(ik.UserKey))
		m.Prev()
	}
	require.Equal(t, []string{"f", "e", "d", "c", "b", "a"}, got)
}

func TestMergingIteratorDirectionSwitch(t *testing.T) {
	a := newSkiplistWithKeys(t, "a", "b", "c")

	m := NewMergingIterator(base.DefaultComparer, a.Iterator())
	m.SeekToFirst()
	m.Next() // now on "b"
	m.Prev() // back to "a"
	require.True(t, m.Valid())
	ik := base.DecodeInternalKey(m.Key())
	require.Equal(t, "a", string(ik.UserKey))
}

func TestMergingIteratorSeek(t *testing.T) {
	a := newSkiplistWithKeys(t, "a", "c", "e")
	b := newSkiplistWithKeys(t, "b", "d", "f")
	m := NewMergingIterator(base.DefaultComparer, a.Iterator(), b.Iterator())

	target := base.NewLookupKey([]byte("c"), base.MaxSeqNum)
	m.Seek(target.InternalKey())
	require.True(t, m.Valid())
	ik := base.DecodeInternalKey(m.Key())
	require.Equal(t, "c", string(ik.UserKey))
}
