// Package version tracks, in memory, which sorted tables make up the
// database at each level, following the teacher's leveldb/version.go: a
// Version is an immutable snapshot of per-level file lists, VersionEdit is
// a diff applied to produce the next Version, and Compaction (in
// compaction.go) picks and runs the work that turns one Version into the
// next. Unlike the teacher, this package does not persist a MANIFEST log;
// building and applying edits is the out-of-scope database façade's job,
// done in memory only here so the façade has something real to drive.
package version

import (
	"fmt"
	"sort"

	"github.com/corekv/corekv/internal/base"
	"github.com/corekv/corekv/internal/status"
)

// NumLevels is the number of levels a Version tracks, level 0 through
// NumLevels-1.
const NumLevels = 7

// L0CompactionTrigger is the number of level-0 files that drives
// Version.updateCompactionScore to flag level 0 for compaction.
const L0CompactionTrigger = 4

// FileMetadata describes one on-disk sorted table.
type FileMetadata struct {
	FileNum  uint64
	Size     uint64
	Smallest base.InternalKey
	Largest  base.InternalKey
}

// TotalSize sums the Size field of every file in files.
func TotalSize(files []FileMetadata) (size uint64) {
	for _, f := range files {
		size += f.Size
	}
	return size
}

// IkeyRange returns the minimum Smallest and maximum Largest internal key
// across f0 and f1 combined.
func IkeyRange(icmp base.InternalKeyComparer, f0, f1 []FileMetadata) (smallest, largest base.InternalKey) {
	first := true
	for _, files := range [2][]FileMetadata{f0, f1} {
		for _, f := range files {
			if first {
				first = false
				smallest, largest = f.Smallest, f.Largest
				continue
			}
			if encCompare(icmp, f.Smallest, smallest) < 0 {
				smallest = f.Smallest
			}
			if encCompare(icmp, f.Largest, largest) > 0 {
				largest = f.Largest
			}
		}
	}
	return smallest, largest
}

func encCompare(icmp base.InternalKeyComparer, a, b base.InternalKey) int {
	abuf := make([]byte, a.Size())
	a.Encode(abuf)
	bbuf := make([]byte, b.Size())
	b.Encode(bbuf)
	return icmp.Compare(abuf, bbuf)
}

// Version is a collection of file metadata for on-disk tables at each
// level. Level-0 files are sorted by increasing FileNum (equivalently,
// increasing recency) and may overlap in user-key range. Files at any
// other level are sorted by key range and are pairwise disjoint.
type Version struct {
	Files [NumLevels][]FileMetadata

	CompactionScore float64
	CompactionLevel int
}

// UpdateCompactionScore recomputes v's compaction score and level, following
// the teacher's version.updateCompactionScore: level 0 is scored by file
// count (to bound how many tables a read must merge), every other level by
// total bytes against a size target that grows by 10x per level.
func (v *Version) UpdateCompactionScore() {
	v.CompactionScore = float64(len(v.Files[0])) / L0CompactionTrigger
	v.CompactionLevel = 0

	maxBytes := float64(10 * 1024 * 1024)
	for level := 1; level < NumLevels-1; level++ {
		score := float64(TotalSize(v.Files[level])) / maxBytes
		if score > v.CompactionScore {
			v.CompactionScore = score
			v.CompactionLevel = level
		}
		maxBytes *= 10
	}
}

// Overlaps returns every file at level whose user-key range intersects
// [ukey0, ukey1]. At level 0, where ranges may overlap each other, the
// search range is expanded to cover every matching file's range and
// repeated until it stabilizes.
func (v *Version) Overlaps(level int, ucmp base.Comparer, ukey0, ukey1 []byte) (ret []FileMetadata) {
	for {
		ret = ret[:0]
		restarted := false
		for _, f := range v.Files[level] {
			m0, m1 := f.Smallest.UserKey, f.Largest.UserKey
			if ucmp.Compare(m1, ukey0) < 0 {
				continue
			}
			if ucmp.Compare(m0, ukey1) > 0 {
				continue
			}
			ret = append(ret, f)
			if level == 0 {
				if ucmp.Compare(m0, ukey0) < 0 {
					ukey0 = m0
					restarted = true
				}
				if ucmp.Compare(m1, ukey1) > 0 {
					ukey1 = m1
					restarted = true
				}
			}
		}
		if !restarted {
			return ret
		}
	}
}

// CheckOrdering verifies level 0 is sorted by increasing FileNum and every
// other level is sorted by increasing, non-overlapping key range.
func (v *Version) CheckOrdering(icmp base.InternalKeyComparer) error {
	for level, files := range v.Files {
		if level == 0 {
			var prevFileNum uint64
			for i, f := range files {
				if i != 0 && prevFileNum >= f.FileNum {
					return fmt.Errorf("corekv/version: level 0 files out of fileNum order: %d, %d", prevFileNum, f.FileNum)
				}
				prevFileNum = f.FileNum
			}
			continue
		}
		var prevLargest base.InternalKey
		for i, f := range files {
			if i != 0 && encCompare(icmp, prevLargest, f.Smallest) >= 0 {
				return fmt.Errorf("corekv/version: level %d files out of key order: %q, %q", level, prevLargest.UserKey, f.Smallest.UserKey)
			}
			if encCompare(icmp, f.Smallest, f.Largest) > 0 {
				return fmt.Errorf("corekv/version: level %d file has inverted bounds: %q, %q", level, f.Smallest.UserKey, f.Largest.UserKey)
			}
			prevLargest = f.Largest
		}
	}
	return nil
}

// TableReader resolves a file number to the value for an exact internal
// key. It is satisfied by *tablecache.Cache.
type TableReader interface {
	Get(fileNum uint64, key []byte) ([]byte, status.Status)
}

// FindFile returns the index of the earliest file at level whose Largest
// key is >= ikey, or len(files) if none qualifies. Only meaningful for
// level != 0, where files are sorted and disjoint.
func FindFile(icmp base.InternalKeyComparer, files []FileMetadata, ikey []byte) int {
	return sort.Search(len(files), func(i int) bool {
		buf := make([]byte, files[i].Largest.Size())
		files[i].Largest.Encode(buf)
		return icmp.Compare(buf, ikey) >= 0
	})
}

// Get looks up ikey (a fully encoded internal key) across every level of v,
// following the teacher's version.get: level 0 is searched newest-file
// first since its files may overlap and are not sequence-ordered relative
// to each other except by FileNum; every other level is binary-searched
// since its files are disjoint and sorted. A tombstone found at any level
// stops the walk immediately and is reported as status.NotFound to the
// caller: an older, shadowed value in a lower level must never resurface.
func (v *Version) Get(icmp base.InternalKeyComparer, tr TableReader, ikey []byte) ([]byte, status.Status) {
	ik := base.DecodeInternalKey(ikey)
	ucmp := icmp.UserComparer

	for i := len(v.Files[0]) - 1; i >= 0; i-- {
		f := v.Files[0][i]
		if ucmp.Compare(ik.UserKey, f.Smallest.UserKey) < 0 {
			continue
		}
		largestBuf := make([]byte, f.Largest.Size())
		f.Largest.Encode(largestBuf)
		if icmp.Compare(ikey, largestBuf) > 0 {
			continue
		}
		if v, st := tr.Get(f.FileNum, ikey); st.OK() || st.IsCorruption() {
			return v, st
		} else if st.IsDeleted() {
			return nil, status.New(status.NotFound, "key not found")
		}
	}

	for level := 1; level < NumLevels; level++ {
		files := v.Files[level]
		if len(files) == 0 {
			continue
		}
		idx := FindFile(icmp, files, ikey)
		if idx == len(files) {
			continue
		}
		f := files[idx]
		if ucmp.Compare(ik.UserKey, f.Smallest.UserKey) < 0 {
			continue
		}
		if v, st := tr.Get(f.FileNum, ikey); st.OK() || st.IsCorruption() {
			return v, st
		} else if st.IsDeleted() {
			return nil, status.New(status.NotFound, "key not found")
		}
	}
	return nil, status.New(status.NotFound, "key not found")
}
