package version

import (
	"fmt"
	"sort"

	"github.com/corekv/corekv/internal/base"
)

// VersionEdit is a diff between two Versions: files added at a level,
// files removed at a level, and the bookkeeping counters (log number, next
// file number) that travel alongside a compaction or flush. It mirrors the
// teacher's leveldb/version_edit.go in shape, but this package never
// serializes an edit to a MANIFEST file — persistence is the out-of-scope
// database façade's job; here a VersionEdit only ever exists in memory,
// built by a flush or compaction and immediately applied.
type VersionEdit struct {
	LogNumber      uint64
	NextFileNumber uint64
	LastSequence   base.SeqNum

	DeletedFiles map[DeletedFileEntry]bool
	NewFiles     []NewFileEntry
}

// DeletedFileEntry identifies one file removed from a level by an edit.
type DeletedFileEntry struct {
	Level   int
	FileNum uint64
}

// NewFileEntry identifies one file added to a level by an edit.
type NewFileEntry struct {
	Level int
	Meta  FileMetadata
}

// AddFile records that Meta should be added to Level once the edit is
// applied.
func (e *VersionEdit) AddFile(level int, meta FileMetadata) {
	e.NewFiles = append(e.NewFiles, NewFileEntry{Level: level, Meta: meta})
}

// DeleteFile records that the file fileNum at level should be removed once
// the edit is applied.
func (e *VersionEdit) DeleteFile(level int, fileNum uint64) {
	if e.DeletedFiles == nil {
		e.DeletedFiles = make(map[DeletedFileEntry]bool)
	}
	e.DeletedFiles[DeletedFileEntry{Level: level, FileNum: fileNum}] = true
}

// Apply returns a new Version equal to from with e's additions and
// removals applied, then re-sorted and re-scored. from is left unmodified.
// Before returning, the result is run through CheckOrdering: a violation
// means a bug in the caller's edit (overlapping level files, an inverted
// file bound), not a condition the engine can recover from at this layer,
// following the teacher's version_edit.go bulk.apply wrapping the same
// check as an "internal error".
func (e *VersionEdit) Apply(from *Version, icmp base.InternalKeyComparer) (*Version, error) {
	v := &Version{}
	for level, files := range from.Files {
		for _, f := range files {
			if e.DeletedFiles[DeletedFileEntry{Level: level, FileNum: f.FileNum}] {
				continue
			}
			v.Files[level] = append(v.Files[level], f)
		}
	}
	for _, nf := range e.NewFiles {
		v.Files[nf.Level] = append(v.Files[nf.Level], nf.Meta)
	}
	for level := range v.Files {
		sortFiles(v.Files[level], level, icmp)
	}
	if err := v.CheckOrdering(icmp); err != nil {
		return nil, fmt.Errorf("corekv/version: internal error: %w", err)
	}
	v.UpdateCompactionScore()
	return v, nil
}

// sortFiles orders level 0 by increasing FileNum (the teacher's byFileNum)
// and every other level by increasing key range (bySmallest).
func sortFiles(files []FileMetadata, level int, icmp base.InternalKeyComparer) {
	if level == 0 {
		sort.Slice(files, func(i, j int) bool { return files[i].FileNum < files[j].FileNum })
		return
	}
	sort.Slice(files, func(i, j int) bool {
		return encCompare(icmp, files[i].Smallest, files[j].Smallest) < 0
	})
}
