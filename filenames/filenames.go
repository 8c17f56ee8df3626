// Package filenames centralizes the naming convention for the files that
// make up a database directory: CURRENT, LOCK, LOG/LOG.old, numbered write-
// ahead logs, numbered sorted tables, the MANIFEST descriptor, and the
// .dbtmp staging suffix used when atomically replacing CURRENT.
package filenames

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/corekv/corekv/vfs"
)

// FileType enumerates the kinds of file found in a database directory.
type FileType int

// The FileType enumeration.
const (
	FileTypeLog FileType = iota
	FileTypeLock
	FileTypeTable
	FileTypeManifest
	FileTypeCurrent
	FileTypeTemp
)

var fileTypeStrings = [...]string{
	FileTypeLog:      "log",
	FileTypeLock:     "lock",
	FileTypeTable:    "table",
	FileTypeManifest: "manifest",
	FileTypeCurrent:  "current",
	FileTypeTemp:     "temp",
}

// String implements fmt.Stringer.
func (ft FileType) String() string {
	if ft < 0 || int(ft) >= len(fileTypeStrings) {
		return "unknown"
	}
	return fileTypeStrings[ft]
}

// MakeFilename builds the filename (no directory) for the given type and
// file number. FileTypeLock and FileTypeCurrent ignore fileNum.
func MakeFilename(fileType FileType, fileNum uint64) string {
	switch fileType {
	case FileTypeLog:
		return fmt.Sprintf("%06d.log", fileNum)
	case FileTypeLock:
		return "LOCK"
	case FileTypeTable:
		return fmt.Sprintf("%06d.ldb", fileNum)
	case FileTypeManifest:
		return fmt.Sprintf("MANIFEST-%06d", fileNum)
	case FileTypeCurrent:
		return "CURRENT"
	case FileTypeTemp:
		return fmt.Sprintf("%06d.dbtmp", fileNum)
	}
	panic("corekv/filenames: unknown file type")
}

// MakeFilepath builds a full path from components.
func MakeFilepath(fs vfs.FS, dirname string, fileType FileType, fileNum uint64) string {
	return fs.PathJoin(dirname, MakeFilename(fileType, fileNum))
}

// ParseFilename parses the components out of a bare filename (as returned
// by FS.List), reporting ok=false if filename doesn't match any known
// convention.
func ParseFilename(filename string) (fileType FileType, fileNum uint64, ok bool) {
	switch {
	case filename == "CURRENT":
		return FileTypeCurrent, 0, true
	case filename == "LOCK":
		return FileTypeLock, 0, true
	case filename == "LOG" || filename == "LOG.old":
		return 0, 0, false
	case strings.HasPrefix(filename, "MANIFEST-"):
		n, err := strconv.ParseUint(filename[len("MANIFEST-"):], 10, 64)
		if err != nil {
			return 0, 0, false
		}
		return FileTypeManifest, n, true
	case strings.HasSuffix(filename, ".dbtmp"):
		n, err := strconv.ParseUint(strings.TrimSuffix(filename, ".dbtmp"), 10, 64)
		if err != nil {
			return 0, 0, false
		}
		return FileTypeTemp, n, true
	case strings.HasSuffix(filename, ".log"):
		n, err := strconv.ParseUint(strings.TrimSuffix(filename, ".log"), 10, 64)
		if err != nil {
			return 0, 0, false
		}
		return FileTypeLog, n, true
	case strings.HasSuffix(filename, ".ldb"), strings.HasSuffix(filename, ".sst"):
		// Both suffixes are accepted on read for backward compatibility with
		// older LevelDB-family databases; only .ldb is ever written.
		base := strings.TrimSuffix(strings.TrimSuffix(filename, ".ldb"), ".sst")
		n, err := strconv.ParseUint(base, 10, 64)
		if err != nil {
			return 0, 0, false
		}
		return FileTypeTable, n, true
	}
	return 0, 0, false
}

// SetCurrentFile atomically rewrites CURRENT to point at the given
// manifest file number: it writes the new content to a temp file, syncs
// it, then renames it over CURRENT so a crash never leaves CURRENT
// referencing a manifest that doesn't exist.
func SetCurrentFile(fs vfs.FS, dirname string, manifestFileNum uint64) error {
	tmpPath := MakeFilepath(fs, dirname, FileTypeTemp, manifestFileNum)
	_ = fs.Remove(tmpPath)

	f, err := fs.Create(tmpPath)
	if err != nil {
		return err
	}
	manifestName := MakeFilename(FileTypeManifest, manifestFileNum)
	if _, err := f.Write([]byte(manifestName + "\n")); err != nil {
		f.Close()
		return err
	}
	if err := f.Sync(); err != nil {
		f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return err
	}
	return fs.Rename(tmpPath, MakeFilepath(fs, dirname, FileTypeCurrent, 0))
}
