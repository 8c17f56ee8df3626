// Package tablecache implements a bounded cache of open sorted-table
// readers, keyed by file number, following the teacher's tableCacheNode
// design: a doubly-linked LRU list of nodes, each of which loads its
// reader exactly once via a goroutine that publishes a (reader, error)
// pair on a buffered channel, so concurrent callers for the same file
// number block on the same load instead of racing to open the file twice.
package tablecache

import (
	"os"

	"github.com/corekv/corekv/filenames"
	"github.com/corekv/corekv/internal/status"
	"github.com/corekv/corekv/sstable"
	"github.com/corekv/corekv/vfs"
	"sync"
)

// DefaultCapacity is the number of open table readers kept resident
// before the least-recently-used one is evicted.
const DefaultCapacity = 990

// Cache is a bounded, reference-counted LRU of sstable.Reader, one per
// file number.
type Cache struct {
	dirname string
	fs      vfs.FS
	opts    sstable.ReaderOptions
	size    int

	mu    sync.Mutex
	nodes map[uint64]*node
	dummy node // sentinel head/tail of the LRU list
}

// New returns a Cache that opens tables from dirname using fs, with the
// given capacity (DefaultCapacity if capacity <= 0).
func New(dirname string, fs vfs.FS, opts sstable.ReaderOptions, capacity int) *Cache {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	c := &Cache{
		dirname: dirname,
		fs:      fs,
		opts:    opts,
		size:    capacity,
		nodes:   make(map[uint64]*node),
	}
	c.dummy.next = &c.dummy
	c.dummy.prev = &c.dummy
	return c
}

type readerOrError struct {
	reader *sstable.Reader
	st     status.Status
}

// node is one cached table. The result channel is written to exactly once,
// by the goroutine n.load spawns, and is read by every caller wanting the
// reader.
type node struct {
	fileNum uint64
	result  chan readerOrError

	// The remaining fields are protected by Cache.mu.
	next, prev *node
	refCount   int
}

func (n *node) load(c *Cache) {
	name := filenames.MakeFilepath(c.fs, c.dirname, filenames.FileTypeTable, n.fileNum)
	f, err := c.fs.Open(name)
	if os.IsNotExist(err) {
		// Fall back to the legacy .sst suffix some LevelDB-family databases
		// still use on disk.
		legacy := c.fs.PathJoin(c.dirname, sstSuffixName(n.fileNum))
		f, err = c.fs.Open(legacy)
	}
	if err != nil {
		n.result <- readerOrError{st: status.Wrap(status.IOError, err)}
		return
	}
	opts := c.opts
	opts.FileNum = n.fileNum
	r, st := sstable.NewReader(fileSizer{f}, opts)
	n.result <- readerOrError{reader: r, st: st}
}

func sstSuffixName(fileNum uint64) string {
	name := filenames.MakeFilename(filenames.FileTypeTable, fileNum)
	return name[:len(name)-len(".ldb")] + ".sst"
}

// fileSizer adapts a vfs.File to sstable.ReaderAt by computing Size from
// Stat, since vfs.File has no Size method of its own.
type fileSizer struct {
	vfs.File
}

func (f fileSizer) Size() (int64, error) {
	fi, err := f.Stat()
	if err != nil {
		return 0, err
	}
	return fi.Size(), nil
}

func (n *node) release() {
	x := <-n.result
	if !x.st.OK() {
		return
	}
	x.reader.Close()
}

// releaseNode removes n from the LRU list and the lookup map. c.mu must be
// held.
func (c *Cache) releaseNode(n *node) {
	delete(c.nodes, n.fileNum)
	n.next.prev = n.prev
	n.prev.next = n.next
	n.refCount--
	if n.refCount == 0 {
		go n.release()
	}
}

// findNode returns the node for fileNum, creating and loading it if
// necessary, and moves it to the front of the LRU list. The caller is
// responsible for decrementing the returned node's refCount (via Evict or
// by closing a handle obtained from Get/NewIterator).
func (c *Cache) findNode(fileNum uint64) *node {
	c.mu.Lock()
	defer c.mu.Unlock()

	n := c.nodes[fileNum]
	if n == nil {
		n = &node{fileNum: fileNum, refCount: 1, result: make(chan readerOrError, 1)}
		c.nodes[fileNum] = n
		if len(c.nodes) > c.size {
			c.releaseNode(c.dummy.prev)
		}
		go n.load(c)
	} else {
		n.next.prev = n.prev
		n.prev.next = n.next
	}
	n.next = c.dummy.next
	n.prev = &c.dummy
	n.next.prev = n
	n.prev.next = n
	n.refCount++
	return n
}

func (c *Cache) unref(n *node) {
	c.mu.Lock()
	n.refCount--
	if n.refCount == 0 {
		go n.release()
	}
	c.mu.Unlock()
}

// Get looks up key in the table identified by fileNum without materializing
// an iterator.
func (c *Cache) Get(fileNum uint64, key []byte) ([]byte, status.Status) {
	n := c.findNode(fileNum)
	defer c.unref(n)

	x := <-n.result
	n.result <- x
	if !x.st.OK() {
		return nil, x.st
	}
	return x.reader.Get(key)
}

// Handle is an open reference to a cached table, released by calling
// Close.
type Handle struct {
	cache  *Cache
	node   *node
	reader *sstable.Reader
}

// NewIterator returns a table iterator for fileNum, together with a Handle
// the caller must Close once done iterating to release the cache's
// reference.
func (c *Cache) NewIterator(fileNum uint64) (*sstable.TableIterator, *Handle, status.Status) {
	n := c.findNode(fileNum)
	x := <-n.result
	n.result <- x
	if !x.st.OK() {
		c.unref(n)
		return nil, nil, x.st
	}
	return x.reader.NewIterator(), &Handle{cache: c, node: n, reader: x.reader}, status.Status{}
}

// Close releases the handle's reference on the underlying cache node.
func (h *Handle) Close() error {
	if h == nil {
		return nil
	}
	h.cache.unref(h.node)
	return nil
}

// Evict removes fileNum from the cache so a deleted file's descriptor can
// be released promptly, even if other handles are still outstanding.
func (c *Cache) Evict(fileNum uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if n := c.nodes[fileNum]; n != nil {
		c.releaseNode(n)
	}
}

// Close releases every cached reader.
func (c *Cache) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	for n := c.dummy.next; n != &c.dummy; n = n.next {
		n.refCount--
		if n.refCount == 0 {
			go n.release()
		}
	}
	c.nodes = nil
	c.dummy.next = nil
	c.dummy.prev = nil
	return nil
}
