package version

import (
	"io"

	"github.com/corekv/corekv/internal/base"
	"github.com/corekv/corekv/internal/status"
	"github.com/corekv/corekv/iterator"
	"github.com/corekv/corekv/sstable"
)

// TargetFileSize is the size, in bytes, a compaction output file is allowed
// to reach before RunCompaction rolls over to a new output file.
const TargetFileSize = 2 * 1024 * 1024

// expandedCompactionByteSizeLimit bounds how far Compaction.grow will widen
// a compaction's level inputs, following the teacher's compaction.go.
const expandedCompactionByteSizeLimit = 25 * TargetFileSize

// Compaction describes one table compaction: inputs from Level and
// Level+1 are merged to produce a set of Level+1 output files.
type Compaction struct {
	Version *Version
	Level   int

	// Inputs[0] are the Level files being compacted, Inputs[1] the
	// overlapping Level+1 files, and Inputs[2] the overlapping Level+2
	// files (used only by IsBaseLevelForUkey).
	Inputs [3][]FileMetadata
}

// PickCompaction chooses the best compaction for v, or nil if v's
// compaction score indicates none is needed, following the teacher's
// pickCompaction.
func PickCompaction(v *Version, icmp base.InternalKeyComparer) *Compaction {
	if v.CompactionScore < 1 {
		return nil
	}
	level := v.CompactionLevel
	if len(v.Files[level]) == 0 {
		return nil
	}
	c := &Compaction{Version: v, Level: level}
	c.Inputs[0] = []FileMetadata{v.Files[level][0]}

	if level == 0 {
		smallest, largest := IkeyRange(icmp, c.Inputs[0], nil)
		c.Inputs[0] = v.Overlaps(0, icmp.UserComparer, smallest.UserKey, largest.UserKey)
		if len(c.Inputs[0]) == 0 {
			panic("corekv/version: empty compaction")
		}
	}

	c.setupOtherInputs(icmp)
	return c
}

// setupOtherInputs fills in Inputs[1] and Inputs[2], following the
// teacher's compaction.setupOtherInputs.
func (c *Compaction) setupOtherInputs(icmp base.InternalKeyComparer) {
	ucmp := icmp.UserComparer
	smallest0, largest0 := IkeyRange(icmp, c.Inputs[0], nil)
	c.Inputs[1] = c.Version.Overlaps(c.Level+1, ucmp, smallest0.UserKey, largest0.UserKey)
	smallest01, largest01 := IkeyRange(icmp, c.Inputs[0], c.Inputs[1])

	if c.grow(icmp, smallest01, largest01) {
		smallest01, largest01 = IkeyRange(icmp, c.Inputs[0], c.Inputs[1])
	}

	if c.Level+2 < NumLevels {
		c.Inputs[2] = c.Version.Overlaps(c.Level+2, ucmp, smallest01.UserKey, largest01.UserKey)
	}
}

// grow widens Inputs[0] without changing the number of Inputs[1] files,
// returning whether it did. sm/la bound every key across the current
// inputs. Mirrors the teacher's compaction.grow.
func (c *Compaction) grow(icmp base.InternalKeyComparer, sm, la base.InternalKey) bool {
	if len(c.Inputs[1]) == 0 {
		return false
	}
	ucmp := icmp.UserComparer
	grow0 := c.Version.Overlaps(c.Level, ucmp, sm.UserKey, la.UserKey)
	if len(grow0) <= len(c.Inputs[0]) {
		return false
	}
	if TotalSize(grow0)+TotalSize(c.Inputs[1]) >= expandedCompactionByteSizeLimit {
		return false
	}
	sm1, la1 := IkeyRange(icmp, grow0, nil)
	grow1 := c.Version.Overlaps(c.Level+1, ucmp, sm1.UserKey, la1.UserKey)
	if len(grow1) != len(c.Inputs[1]) {
		return false
	}
	c.Inputs[0] = grow0
	c.Inputs[1] = grow1
	return true
}

// IsBaseLevelForUkey reports whether no key/value pair for ukey can exist
// at c.Level+2 or deeper, so a compaction writing to c.Level+1 may drop a
// tombstone for ukey outright. Mirrors the teacher's
// compaction.isBaseLevelForUkey.
func (c *Compaction) IsBaseLevelForUkey(ucmp base.Comparer, ukey []byte) bool {
	for level := c.Level + 2; level < NumLevels; level++ {
		for _, f := range c.Version.Files[level] {
			if ucmp.Compare(ukey, f.Largest.UserKey) <= 0 {
				if ucmp.Compare(ukey, f.Smallest.UserKey) >= 0 {
					return false
				}
				break
			}
		}
	}
	return true
}

// TableOpener opens an iterator over one input table by file number. It is
// satisfied by *tablecache.Cache (whose *Handle return value implements
// io.Closer).
type TableOpener interface {
	NewIterator(fileNum uint64) (*sstable.TableIterator, io.Closer, status.Status)
}

// OutputFile is the destination half of RunCompaction: Create opens a new
// table file for the next output, returning its file number and an
// io.Writer to build it with a sstable.Writer. It is satisfied by a thin
// adapter over vfs.FS + filenames in the database façade.
type OutputFile interface {
	Create() (fileNum uint64, w WriteSyncCloser, err error)
}

// WriteSyncCloser is the subset of vfs.File a compaction output needs.
type WriteSyncCloser interface {
	Write(p []byte) (int, error)
	Sync() error
	Close() error
}

// RunCompaction merges c's input files through a MergingIterator and
// writes the result out as a sequence of sorted tables via out, splitting
// to a new output file whenever the current one's size reaches
// TargetFileSize. It returns a VersionEdit recording the new files (to add
// at c.Level+1) and the consumed input files (to delete from c.Level and
// c.Level+1). No background thread decides when to call this: the
// façade calls it synchronously, exactly as SPEC_FULL.md's §4.13 describes.
func RunCompaction(c *Compaction, icmp base.InternalKeyComparer, opener TableOpener, out OutputFile, writerOpts sstable.WriterOptions) (*VersionEdit, status.Status) {
	var children []iterator.Iterator
	var handles []io.Closer
	closeAll := func() {
		for _, h := range handles {
			if h != nil {
				h.Close()
			}
		}
	}

	for _, group := range c.Inputs[:2] {
		for _, f := range group {
			it, handle, st := opener.NewIterator(f.FileNum)
			if !st.OK() {
				closeAll()
				return nil, st
			}
			children = append(children, it)
			handles = append(handles, handle)
		}
	}
	defer closeAll()

	merged := iterator.NewMergingIterator(icmp.UserComparer, children...)
	edit := &VersionEdit{}

	var w *sstable.Writer
	var curFileNum uint64
	var curFile WriteSyncCloser
	var curSmallest, curLast base.InternalKey
	haveCur := false

	finishOutput := func() status.Status {
		if w == nil {
			return status.Status{}
		}
		if st := w.Close(); !st.OK() {
			return st
		}
		if err := curFile.Sync(); err != nil {
			return status.Wrap(status.IOError, err)
		}
		if err := curFile.Close(); err != nil {
			return status.Wrap(status.IOError, err)
		}
		edit.AddFile(c.Level+1, FileMetadata{
			FileNum:  curFileNum,
			Size:     w.Size(),
			Smallest: curSmallest,
			Largest:  curLast,
		})
		w = nil
		haveCur = false
		return status.Status{}
	}

	ucmp := icmp.UserComparer
	var lastUserKey []byte
	haveLastUserKey := false

	for merged.SeekToFirst(); merged.Valid(); merged.Next() {
		ik := base.DecodeInternalKey(merged.Key())

		// The merged iterator walks every version of every key across the
		// input tables, newest first for a given user key (internal-key
		// order is user key ascending, trailer descending). Once the
		// newest version of a user key has been resolved, every older
		// version behind it in the scan is obsolete and must be dropped,
		// mirroring the teacher's DoCompactionWork.
		if haveLastUserKey && ucmp.Compare(ik.UserKey, lastUserKey) == 0 {
			continue
		}
		lastUserKey = append(lastUserKey[:0], ik.UserKey...)
		haveLastUserKey = true

		if ik.Trailer.ValueType() == base.TypeDeletion && c.IsBaseLevelForUkey(ucmp, ik.UserKey) {
			// No key/value pair for this user key can exist at c.Level+2 or
			// deeper, so the tombstone itself has nothing left to shadow.
			continue
		}

		if w == nil {
			fileNum, wsc, err := out.Create()
			if err != nil {
				return nil, status.Wrap(status.IOError, err)
			}
			w = sstable.NewWriter(wsc, writerOpts)
			curFileNum = fileNum
			curFile = wsc
			haveCur = false
		}

		if !haveCur {
			curSmallest = ik
			haveCur = true
		}
		curLast = ik

		value := append([]byte(nil), merged.Value()...)
		if st := w.Add(ik, value); !st.OK() {
			return nil, st
		}

		if w.Size() >= TargetFileSize {
			if st := finishOutput(); !st.OK() {
				return nil, st
			}
		}
	}
	if st := merged.Status(); !st.OK() {
		return nil, st
	}
	if st := finishOutput(); !st.OK() {
		return nil, st
	}

	for level, group := range c.Inputs[:2] {
		for _, f := range group {
			edit.DeleteFile(c.Level+level, f.FileNum)
		}
	}
	return edit, status.Status{}
}
