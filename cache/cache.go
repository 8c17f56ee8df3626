// Package cache implements the block cache described in §4.10: a
// reference-counted LRU cache of decompressed sstable blocks, sharded 16
// ways to reduce lock contention between concurrent readers, following the
// classic LevelDB ShardedLRUCache design. Shard selection hashes the cache
// key with xxhash, one of the domain hash functions this codebase's example
// corpus reaches for elsewhere (sstable block checksumming, value blocks).
package cache

import (
	"container/list"
	"sync"

	"github.com/cespare/xxhash/v2"
)

const numShards = 16

// Key identifies a cached block: the numbered sstable file it came from and
// the block's offset within that file.
type Key struct {
	FileNum uint64
	Offset  uint64
}

func (k Key) hash() uint64 {
	var buf [16]byte
	for i := 0; i < 8; i++ {
		buf[i] = byte(k.FileNum >> (8 * i))
		buf[8+i] = byte(k.Offset >> (8 * i))
	}
	return xxhash.Sum64(buf[:])
}

// Handle is a reference to a cached value. The caller must call Release
// exactly once when done with it.
type Handle struct {
	entry *entry
}

// Value returns the cached bytes. It is not valid to use the returned slice
// after calling Release.
func (h Handle) Value() []byte {
	if h.entry == nil {
		return nil
	}
	return h.entry.value
}

// entry is one cached block. entries live simultaneously in a shard's hash
// table and in one of its two lists: lru (refs==0, evictable) or inUse
// (refs>0, pinned by at least one live Handle).
type entry struct {
	key     Key
	value   []byte
	refs    int
	inUse   bool
	element *list.Element
}

type shard struct {
	mu    sync.Mutex
	table map[Key]*entry
	lru   *list.List // entries with refs == 0, ordered least- to most-recently-used
	inUse *list.List // entries with refs > 0
	usage int64
	capacity int64
}

// Cache is a sharded, reference-counted LRU cache of sstable blocks.
type Cache struct {
	shards [numShards]shard
}

// New returns a Cache with the given total capacity in bytes, split evenly
// across its shards.
func New(capacity int64) *Cache {
	c := &Cache{}
	perShard := capacity / numShards
	for i := range c.shards {
		c.shards[i].table = make(map[Key]*entry)
		c.shards[i].lru = list.New()
		c.shards[i].inUse = list.New()
		c.shards[i].capacity = perShard
	}
	return c
}

func (c *Cache) shardFor(key Key) *shard {
	return &c.shards[key.hash()>>60]
}

// Lookup returns the cached value for key, if present, pinning it until the
// returned Handle is released.
func (c *Cache) Lookup(key Key) (Handle, bool) {
	s := c.shardFor(key)
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.table[key]
	if !ok {
		return Handle{}, false
	}
	s.ref(e)
	return Handle{entry: e}, true
}

// Insert adds value to the cache under key, evicting older entries as
// needed to stay within capacity, and returns a pinned Handle to it. If key
// is already present, the existing entry is replaced.
func (c *Cache) Insert(key Key, value []byte) Handle {
	s := c.shardFor(key)
	s.mu.Lock()
	defer s.mu.Unlock()

	if old, ok := s.table[key]; ok {
		s.unlink(old)
		delete(s.table, key)
		s.usage -= int64(len(old.value))
	}

	e := &entry{key: key, value: value}
	s.table[key] = e
	s.usage += int64(len(value))
	s.ref(e)

	for s.usage > s.capacity && s.lru.Len() > 0 {
		victim := s.lru.Front().Value.(*entry)
		s.lru.Remove(victim.element)
		delete(s.table, victim.key)
		s.usage -= int64(len(victim.value))
	}
	return Handle{entry: e}
}

// Erase removes key from the cache, if present. Any outstanding Handles
// remain valid until released.
func (c *Cache) Erase(key Key) {
	s := c.shardFor(key)
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.table[key]
	if !ok {
		return
	}
	delete(s.table, key)
	s.usage -= int64(len(e.value))
	if !e.inUse {
		s.lru.Remove(e.element)
	}
	// If e is pinned (inUse), it stays in the inUse list and is dropped
	// from bookkeeping only when its last Handle is released.
}

// Release returns h's reference. Once every Handle to an entry has been
// released, the entry becomes evictable.
func (c *Cache) Release(h Handle) {
	if h.entry == nil {
		return
	}
	e := h.entry
	s := c.shardFor(e.key)
	s.mu.Lock()
	defer s.mu.Unlock()

	e.refs--
	if e.refs > 0 {
		return
	}
	s.inUse.Remove(e.element)
	e.inUse = false
	if _, present := s.table[e.key]; present {
		e.element = s.lru.PushBack(e)
	}
}

func (s *shard) ref(e *entry) {
	e.refs++
	if e.refs == 1 {
		if e.inUse {
			panic("corekv/cache: inconsistent entry state")
		}
		e.inUse = true
		e.element = s.inUse.PushBack(e)
		return
	}
	if e.inUse {
		s.inUse.MoveToBack(e.element)
	}
}

func (s *shard) unlink(e *entry) {
	if e.inUse {
		s.inUse.Remove(e.element)
	} else if e.element != nil {
		s.lru.Remove(e.element)
	}
}

// Prune evicts every currently-unreferenced entry across all shards.
func (c *Cache) Prune() {
	for i := range c.shards {
		s := &c.shards[i]
		s.mu.Lock()
		for s.lru.Len() > 0 {
			victim := s.lru.Front().Value.(*entry)
			s.lru.Remove(victim.element)
			delete(s.table, victim.key)
			s.usage -= int64(len(victim.value))
		}
		s.mu.Unlock()
	}
}
