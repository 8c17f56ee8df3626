// Package corekv assembles the write-ahead log, memtable, sorted-table, and
// version packages into a single embedded key/value store: Open recovers
// (or creates) a database directory, Get/Set/Delete/Write operate on it,
// NewIterator exposes an ordered view across every level, and Flush/Compact
// drive the LSM-tree's background maintenance manually (there is no
// scheduler goroutine, matching the teacher's own "BUG: This package is
// incomplete" leveldb.DB, which also leaves compaction scheduling as a
// TODO left to the caller).
package corekv

import (
	"fmt"
	"io"
	"sort"
	"sync"

	"github.com/corekv/corekv/batch"
	"github.com/corekv/corekv/cache"
	"github.com/corekv/corekv/filenames"
	"github.com/corekv/corekv/internal/base"
	"github.com/corekv/corekv/internal/status"
	"github.com/corekv/corekv/iterator"
	"github.com/corekv/corekv/memtable"
	"github.com/corekv/corekv/metrics"
	"github.com/corekv/corekv/sstable"
	"github.com/corekv/corekv/tablecache"
	"github.com/corekv/corekv/version"
	"github.com/corekv/corekv/vfs"
	"github.com/corekv/corekv/wal"
	"golang.org/x/sync/errgroup"
)

// writeBufferSize is the memtable size, in bytes, at which Set/Delete
// triggers an automatic rotation to an immutable memtable awaiting flush.
const writeBufferSize = 4 * 1024 * 1024

// tableCacheSize is the number of open sstable.Reader handles the table
// cache is allowed to hold at once.
const tableCacheSize = 500

// blockCacheSize is the capacity, in bytes, of the shared block cache
// every sstable.Reader opened by the table cache reads through.
const blockCacheSize = 8 * 1024 * 1024

// Options configures Open.
type Options struct {
	// Comparer orders user keys. Defaults to base.DefaultComparer.
	Comparer base.Comparer
	// FS is the filesystem the database directory lives on. Defaults to
	// vfs.Default.
	FS vfs.FS
	// Logger receives diagnostic messages. Defaults to base.DefaultLogger.
	Logger base.Logger
	// Metrics receives counters and latency observations. May be nil, in
	// which case a private, unregistered Metrics is used.
	Metrics *metrics.Metrics
	// ErrorIfExists causes Open to fail if the database directory already
	// contains a database.
	ErrorIfExists bool
}

func (o *Options) ensureDefaults() *Options {
	if o == nil {
		o = &Options{}
	}
	out := *o
	if out.Comparer == nil {
		out.Comparer = base.DefaultComparer
	}
	if out.FS == nil {
		out.FS = vfs.Default
	}
	if out.Logger == nil {
		out.Logger = base.DefaultLogger{}
	}
	if out.Metrics == nil {
		out.Metrics = metrics.New(nil)
	}
	return &out
}

// DB is an open key/value database backed by a directory of write-ahead
// logs and sorted tables.
type DB struct {
	dirname string
	opts    *Options
	fs      vfs.FS
	icmp    base.InternalKeyComparer

	mu sync.Mutex

	fileLock io.Closer

	logNumber uint64
	logFile   vfs.File
	log       *wal.Writer

	mem, imm *memtable.Memtable

	tc *tablecache.Cache

	current *version.Version

	nextFileNum uint64
	lastSeq     base.SeqNum

	pendingOutputs map[uint64]struct{}

	closed bool
}

// nextFile allocates and returns the next unused file number.
func (d *DB) nextFile() uint64 {
	n := d.nextFileNum
	d.nextFileNum++
	return n
}

// Open creates or recovers the database directory dirname: it acquires
// the LOCK file, replays any existing NNNNNN.log files into a fresh
// memtable, and opens a new active WAL, following the teacher's own
// Open in cockroachdb-pebble/leveldb/leveldb.go.
func Open(dirname string, opts *Options) (*DB, error) {
	opts = opts.ensureDefaults()
	fs := opts.FS

	if err := fs.MkdirAll(dirname, 0755); err != nil {
		return nil, fmt.Errorf("corekv: create directory %q: %w", dirname, err)
	}

	lockPath := filenames.MakeFilepath(fs, dirname, filenames.FileTypeLock, 0)
	fileLock, err := fs.Lock(lockPath)
	if err != nil {
		return nil, fmt.Errorf("corekv: lock %q: %w", lockPath, err)
	}
	closeLockOnErr := true
	defer func() {
		if closeLockOnErr {
			fileLock.Close()
		}
	}()

	currentPath := filenames.MakeFilepath(fs, dirname, filenames.FileTypeCurrent, 0)
	_, statErr := fs.Stat(currentPath)
	exists := statErr == nil
	if exists && opts.ErrorIfExists {
		return nil, fmt.Errorf("corekv: database %q already exists", dirname)
	}

	icmp := base.InternalKeyComparer{UserComparer: opts.Comparer}
	blockCache := cache.New(blockCacheSize)
	d := &DB{
		dirname:        dirname,
		opts:           opts,
		fs:             fs,
		icmp:           icmp,
		fileLock:       fileLock,
		mem:            memtable.New(opts.Comparer),
		current:        &version.Version{},
		nextFileNum:    1,
		pendingOutputs: make(map[uint64]struct{}),
		tc: tablecache.New(dirname, fs, sstable.ReaderOptions{
			Comparer: opts.Comparer,
			Cache:    blockCache,
		}, tableCacheSize),
	}

	if !exists {
		// CURRENT is written for on-disk convention (a directory listing or
		// external tool should still recognize this as a database), but
		// unlike the teacher, Open never reads it back: version.Version is
		// an in-memory structure rebuilt by replaying log files, not a
		// MANIFEST descriptor, so there is no manifest file number to name.
		if err := filenames.SetCurrentFile(fs, dirname, 0); err != nil {
			return nil, fmt.Errorf("corekv: initialize %q: %w", dirname, err)
		}
	}

	entries, err := fs.List(dirname)
	if err != nil {
		return nil, fmt.Errorf("corekv: list %q: %w", dirname, err)
	}
	var logFileNums, tableFileNums []uint64
	for _, name := range entries {
		ft, num, ok := filenames.ParseFilename(name)
		if !ok {
			continue
		}
		if num >= d.nextFileNum {
			d.nextFileNum = num + 1
		}
		switch ft {
		case filenames.FileTypeLog:
			logFileNums = append(logFileNums, num)
		case filenames.FileTypeTable:
			tableFileNums = append(tableFileNums, num)
		}
	}

	// version.Version is rebuilt, not read off a MANIFEST (see the version
	// package's doc comment), so any sorted table already on disk from a
	// prior session's flush or compaction is re-adopted here. Its original
	// level isn't recorded anywhere, so it is conservatively re-adopted
	// into level 0, where PickCompaction will naturally push it back down
	// again once enough level-0 files accumulate.
	if len(tableFileNums) > 0 {
		edit := &version.VersionEdit{}
		for _, num := range tableFileNums {
			meta, err := d.readTableMetadata(num)
			if err != nil {
				return nil, fmt.Errorf("corekv: read table %06d: %w", num, err)
			}
			edit.AddFile(0, meta)
		}
		v, err := edit.Apply(d.current, d.icmp)
		if err != nil {
			return nil, err
		}
		d.current = v
	}

	sort.Slice(logFileNums, func(i, j int) bool { return logFileNums[i] < logFileNums[j] })
	for _, num := range logFileNums {
		opts.Logger.Infof("corekv: replaying log %06d", num)
		if err := d.replayLogFile(num); err != nil {
			return nil, fmt.Errorf("corekv: replay log %06d: %w", num, err)
		}
	}

	newLogNum := d.nextFile()
	logPath := filenames.MakeFilepath(fs, dirname, filenames.FileTypeLog, newLogNum)
	logFile, err := fs.Create(logPath)
	if err != nil {
		return nil, fmt.Errorf("corekv: create log %q: %w", logPath, err)
	}
	d.logNumber = newLogNum
	d.logFile = logFile
	d.log = wal.NewWriter(logFile)

	closeLockOnErr = false
	return d, nil
}

// fileSizer adapts a vfs.File to sstable.ReaderAt by computing Size from
// Stat, since vfs.File has no Size method of its own (mirroring
// tablecache's identical private adapter).
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

// readTableMetadata opens the sorted table fileNum and walks it end to end
// to recover the FileMetadata (size, smallest, largest key) a MANIFEST
// would otherwise have recorded.
func (d *DB) readTableMetadata(fileNum uint64) (version.FileMetadata, error) {
	path := filenames.MakeFilepath(d.fs, d.dirname, filenames.FileTypeTable, fileNum)
	f, err := d.fs.Open(path)
	if err != nil {
		return version.FileMetadata{}, err
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return version.FileMetadata{}, err
	}

	r, st := sstable.NewReader(fileSizer{f}, sstable.ReaderOptions{Comparer: d.opts.Comparer, FileNum: fileNum})
	if !st.OK() {
		return version.FileMetadata{}, st
	}
	defer r.Close()

	it := r.NewIterator()
	defer it.Close()

	var smallest, largest base.InternalKey
	have := false
	for it.SeekToFirst(); it.Valid(); it.Next() {
		ik := base.DecodeInternalKey(it.Key())
		if !have {
			smallest = ik
			have = true
		}
		largest = ik
	}
	if st := it.Status(); !st.OK() {
		return version.FileMetadata{}, st
	}

	return version.FileMetadata{
		FileNum:  fileNum,
		Size:     uint64(info.Size()),
		Smallest: smallest,
		Largest:  largest,
	}, nil
}

// replayLogFile replays every batch recorded in the given log file number
// into d.mem, following the teacher's replayLogFile.
func (d *DB) replayLogFile(fileNum uint64) error {
	path := filenames.MakeFilepath(d.fs, d.dirname, filenames.FileTypeLog, fileNum)
	f, err := d.fs.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	r := wal.NewReader(f, nil)
	for {
		rec, err := r.Next()
		if err != nil {
			if err == io.EOF {
				break
			}
			return err
		}
		data, err := io.ReadAll(rec)
		if err != nil {
			return err
		}
		b := batch.New()
		if st := b.SetRepr(data); !st.OK() {
			return st
		}
		if err := d.applyBatchToMemtable(b, d.mem); err != nil {
			return err
		}
		if seq := b.SeqNum() + base.SeqNum(b.Count()) - 1; seq > d.lastSeq {
			d.lastSeq = seq
		}
	}
	return nil
}

// applyBatchToMemtable replays every entry of b, in order, against mem at
// successive sequence numbers starting at b.SeqNum().
func (d *DB) applyBatchToMemtable(b *batch.Batch, mem *memtable.Memtable) error {
	seq := b.SeqNum()
	br := b.Reader()
	for {
		vt, key, value, ok := br.Next()
		if !ok {
			break
		}
		if err := mem.Add(seq, vt, key, value); err != nil {
			return err
		}
		seq++
	}
	return nil
}

// Metrics returns the counters and latency histograms this database has
// been accumulating since Open, for tools like the corekv CLI's stats
// command to report.
func (d *DB) Metrics() *metrics.Metrics {
	return d.opts.Metrics
}

// Get returns the value most recently set for key, or a status.NotFound
// status if no live entry exists.
func (d *DB) Get(key []byte) ([]byte, error) {
	d.mu.Lock()
	seq := d.lastSeq
	mem, imm := d.mem, d.imm
	current := d.current
	d.mu.Unlock()

	for _, m := range [2]*memtable.Memtable{mem, imm} {
		if m == nil {
			continue
		}
		v, st := m.Get(key, seq)
		if st.OK() {
			return v, nil
		}
		if st.IsDeleted() {
			// A tombstone here is conclusive: it shadows anything older,
			// whether that's the other memtable or an on-disk table, so the
			// search must stop rather than fall through and resurrect a
			// stale value.
			return nil, status.New(status.NotFound, "key not found")
		}
		if !st.IsNotFound() {
			return nil, st
		}
	}

	lk := base.NewLookupKey(key, seq)
	v, st := current.Get(d.icmp, &tableReaderAdapter{c: d.tc}, lk.InternalKey())
	if !st.OK() {
		return nil, st
	}
	return v, nil
}

// Set stores value for key.
func (d *DB) Set(key, value []byte) error {
	b := batch.New()
	b.Set(key, value)
	return d.Write(b)
}

// Delete removes any entry for key.
func (d *DB) Delete(key []byte) error {
	b := batch.New()
	b.Delete(key)
	return d.Write(b)
}

// Write atomically applies every entry of batch to the database: the
// batch is assigned the next block of sequence numbers, appended to the
// write-ahead log, and then applied to the active memtable, following the
// teacher's Apply.
func (d *DB) Write(b *batch.Batch) error {
	if b.Empty() {
		return nil
	}

	stop := d.opts.Metrics.WriteLatency.Timer()
	defer stop()

	d.mu.Lock()
	defer d.mu.Unlock()

	if d.closed {
		return fmt.Errorf("corekv: database closed")
	}

	if err := d.makeRoomForWrite(); err != nil {
		return err
	}

	seq := d.lastSeq + 1
	b.SetSeqNum(seq)
	d.lastSeq += base.SeqNum(b.Count())

	if err := d.log.WriteRecord(b.Repr()); err != nil {
		return fmt.Errorf("corekv: write log record: %w", err)
	}
	if err := d.log.Flush(); err != nil {
		return fmt.Errorf("corekv: flush log: %w", err)
	}
	stopSync := d.opts.Metrics.WALSyncLatency.Timer()
	err := d.logFile.Sync()
	stopSync()
	if err != nil {
		return fmt.Errorf("corekv: sync log: %w", err)
	}

	return d.applyBatchToMemtable(b, d.mem)
}

// makeRoomForWrite rotates the active memtable to immutable and flushes
// it if the active memtable has grown past writeBufferSize, following the
// teacher's makeRoomForWrite (without its write-stall machinery: writes are
// never delayed or throttled here).
func (d *DB) makeRoomForWrite() error {
	if d.mem.MemoryUsage() < writeBufferSize {
		return nil
	}
	if d.imm != nil {
		if err := d.flushLocked(); err != nil {
			return err
		}
	}

	newLogNum := d.nextFile()
	logPath := filenames.MakeFilepath(d.fs, d.dirname, filenames.FileTypeLog, newLogNum)
	newLogFile, err := d.fs.Create(logPath)
	if err != nil {
		return fmt.Errorf("corekv: create log %q: %w", logPath, err)
	}
	if err := d.log.Close(); err != nil {
		newLogFile.Close()
		return err
	}
	if err := d.logFile.Close(); err != nil {
		return err
	}
	d.logNumber, d.logFile = newLogNum, newLogFile
	d.log = wal.NewWriter(newLogFile)
	d.imm, d.mem = d.mem, memtable.New(d.opts.Comparer)

	return d.flushLocked()
}

// Flush rotates the active memtable to immutable (if it isn't already)
// and writes it out as a new level-0 sorted table.
func (d *DB) Flush() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.imm == nil {
		if d.mem.MemoryUsage() == 0 {
			return nil
		}
		d.imm, d.mem = d.mem, memtable.New(d.opts.Comparer)
	}
	return d.flushLocked()
}

// flushLocked writes d.imm out as a new level-0 table and installs the
// result into d.current. d.mu must be held.
func (d *DB) flushLocked() error {
	if d.imm == nil {
		return nil
	}
	stop := d.opts.Metrics.FlushLatency.Timer()
	defer stop()

	fileNum := d.nextFile()
	d.pendingOutputs[fileNum] = struct{}{}
	defer delete(d.pendingOutputs, fileNum)

	tablePath := filenames.MakeFilepath(d.fs, d.dirname, filenames.FileTypeTable, fileNum)
	f, err := d.fs.Create(tablePath)
	if err != nil {
		return fmt.Errorf("corekv: create table %q: %w", tablePath, err)
	}

	w := sstable.NewWriter(f, sstable.WriterOptions{Comparer: d.opts.Comparer})
	it := d.imm.NewIterator()
	var smallest, largest base.InternalKey
	have := false
	for it.SeekToFirst(); it.Valid(); it.Next() {
		ik := it.InternalKey()
		if !have {
			smallest = ik
			have = true
		}
		largest = ik
		if st := w.Add(ik, it.Value()); !st.OK() {
			f.Close()
			return st
		}
	}
	if !have {
		f.Close()
		d.fs.Remove(tablePath)
		d.imm = nil
		return nil
	}
	if st := w.Close(); !st.OK() {
		return st
	}
	size := w.Size()
	if err := f.Sync(); err != nil {
		return err
	}
	if err := f.Close(); err != nil {
		return err
	}

	edit := &version.VersionEdit{}
	edit.AddFile(0, version.FileMetadata{
		FileNum:  fileNum,
		Size:     size,
		Smallest: smallest,
		Largest:  largest,
	})
	v, err := edit.Apply(d.current, d.icmp)
	if err != nil {
		return err
	}
	d.current = v
	d.opts.Metrics.FlushCount.Inc()
	d.imm = nil
	return nil
}

// Compact runs one manual compaction step for level, using version's
// PickCompaction/RunCompaction mechanics. There is no background
// scheduler loop; callers drive compaction explicitly, matching
// SPEC_FULL.md's description of the façade as synchronous/manual.
func (d *DB) Compact(level int) error {
	d.mu.Lock()
	current := d.current
	d.mu.Unlock()

	c := version.PickCompaction(current, d.icmp)
	if c == nil || c.Level != level {
		return nil
	}

	d.opts.Logger.Infof("corekv: compacting level %d (%d + %d inputs)", c.Level, len(c.Inputs[0]), len(c.Inputs[1]))
	stop := d.opts.Metrics.CompactionLatency.Timer()
	defer stop()

	outFiles := &compactionOutputFiles{d: d}
	edit, st := version.RunCompaction(c, d.icmp, &tableOpenerAdapter{c: d.tc}, outFiles, sstable.WriterOptions{Comparer: d.opts.Comparer})
	if !st.OK() {
		return st
	}

	d.mu.Lock()
	v, err := edit.Apply(d.current, d.icmp)
	if err != nil {
		d.mu.Unlock()
		return err
	}
	d.current = v
	d.mu.Unlock()

	d.opts.Metrics.CompactionCount.Inc()
	for _, group := range c.Inputs[:2] {
		for _, f := range group {
			d.opts.Metrics.CompactionBytesRead.Add(float64(f.Size))
		}
	}
	for _, nf := range edit.NewFiles {
		d.opts.Metrics.CompactionBytesWritten.Add(float64(nf.Meta.Size))
	}
	for def := range edit.DeletedFiles {
		d.tc.Evict(def.FileNum)
		path := filenames.MakeFilepath(d.fs, d.dirname, filenames.FileTypeTable, def.FileNum)
		d.fs.Remove(path)
	}
	return nil
}

// NewIterator returns an iterator over every live entry in the database:
// the active memtable, the immutable memtable (if any), and every
// on-disk sorted table, merged into a single ordered view. Opening each
// sorted-table iterator is I/O (it may fault a reader into the table
// cache), so the per-file opens fan out across an errgroup rather than
// running one at a time.
func (d *DB) NewIterator() iterator.Iterator {
	d.mu.Lock()
	defer d.mu.Unlock()

	children := []iterator.Iterator{d.mem.NewIterator()}
	if d.imm != nil {
		children = append(children, d.imm.NewIterator())
	}

	var fileNums []uint64
	for _, files := range d.current.Files {
		for _, f := range files {
			fileNums = append(fileNums, f.FileNum)
		}
	}
	tableIters := make([]*cleanupIterator, len(fileNums))

	var g errgroup.Group
	for i, fileNum := range fileNums {
		i, fileNum := i, fileNum
		g.Go(func() error {
			it, handle, st := d.tc.NewIterator(fileNum)
			if !st.OK() {
				return nil
			}
			tableIters[i] = &cleanupIterator{TableIterator: it, handle: handle}
			return nil
		})
	}
	_ = g.Wait()

	for _, ti := range tableIters {
		if ti != nil {
			children = append(children, ti)
		}
	}
	return iterator.NewMergingIterator(d.opts.Comparer, children...)
}

// cleanupIterator wraps a *sstable.TableIterator so that closing it also
// releases the tablecache.Handle backing its reader.
type cleanupIterator struct {
	*sstable.TableIterator
	handle *tablecache.Handle
}

func (c *cleanupIterator) Close() error {
	err := c.TableIterator.Close()
	if cerr := c.handle.Close(); cerr != nil && err == nil {
		err = cerr
	}
	return err
}

// Close flushes any unflushed data, closes every open file, and releases
// the directory lock.
func (d *DB) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return nil
	}
	d.closed = true

	var firstErr error
	record := func(err error) {
		if err != nil && firstErr == nil {
			firstErr = err
		}
	}

	if d.mem.MemoryUsage() > 0 || d.imm != nil {
		if d.imm == nil {
			d.imm, d.mem = d.mem, memtable.New(d.opts.Comparer)
		}
		record(d.flushLocked())
	}
	record(d.log.Close())
	record(d.logFile.Close())
	record(d.tc.Close())
	record(d.fileLock.Close())
	return firstErr
}

// tableReaderAdapter adapts *tablecache.Cache to version.TableReader.
type tableReaderAdapter struct {
	c *tablecache.Cache
}

func (a *tableReaderAdapter) Get(fileNum uint64, key []byte) ([]byte, status.Status) {
	return a.c.Get(fileNum, key)
}

// tableOpenerAdapter adapts *tablecache.Cache to version.TableOpener: the
// cache's NewIterator returns a concrete *tablecache.Handle, which
// satisfies io.Closer but does not structurally match the interface
// signature version.TableOpener declares, so this one-line adapter method
// performs the widening at its return statement (the same pattern
// version/compaction_test.go's tableOpenerAdapter demonstrates).
type tableOpenerAdapter struct {
	c *tablecache.Cache
}

func (a *tableOpenerAdapter) NewIterator(fileNum uint64) (*sstable.TableIterator, io.Closer, status.Status) {
	return a.c.NewIterator(fileNum)
}

// compactionOutputFiles implements version.OutputFile by creating
// successively numbered sorted tables in the database directory.
type compactionOutputFiles struct {
	d *DB
}

func (o *compactionOutputFiles) Create() (fileNum uint64, w version.WriteSyncCloser, err error) {
	o.d.mu.Lock()
	fileNum = o.d.nextFile()
	o.d.pendingOutputs[fileNum] = struct{}{}
	o.d.mu.Unlock()

	path := filenames.MakeFilepath(o.d.fs, o.d.dirname, filenames.FileTypeTable, fileNum)
	f, err := o.d.fs.Create(path)
	if err != nil {
		return 0, nil, err
	}
	return fileNum, &pendingOutputFile{d: o.d, File: f, fileNum: fileNum}, nil
}

// pendingOutputFile clears its file number from d.pendingOutputs once
// closed, mirroring the teacher's writeLevel0Table bookkeeping. It embeds
// only vfs.File, not *DB, so its promoted method set stays unambiguous
// and satisfies version.WriteSyncCloser.
type pendingOutputFile struct {
	vfs.File
	d       *DB
	fileNum uint64
}

func (p *pendingOutputFile) Close() error {
	err := p.File.Close()
	p.d.mu.Lock()
	delete(p.d.pendingOutputs, p.fileNum)
	p.d.mu.Unlock()
	return err
}
