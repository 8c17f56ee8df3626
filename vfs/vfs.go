// Package vfs is the environment interface the storage engine talks to
// instead of the os package directly: sequential and random-access reads,
// writable files, directory listing/creation, rename/remove, and advisory
// locking. It exists so tests can swap the OS-backed FS for MemFS and run
// the same code against an in-memory filesystem.
package vfs

import (
	"io"
	"os"
	"path/filepath"
)

// File is a readable, writable sequence of bytes. Typically it is an
// *os.File, but MemFS substitutes a memory-backed implementation.
type File interface {
	io.Closer
	io.Reader
	io.ReaderAt
	io.Writer
	Stat() (os.FileInfo, error)
	Sync() error
}

// FS is a namespace for files. Names are forward-slash separated paths
// relative to an implementation-defined root.
type FS interface {
	// Create creates the named file for writing, truncating it if it
	// already exists.
	Create(name string) (File, error)

	// Open opens the named file for reading.
	Open(name string) (File, error)

	// OpenDir opens the named directory, for the sole purpose of calling
	// Sync on it to durably persist directory entries created by Create,
	// Rename, or Remove.
	OpenDir(name string) (File, error)

	// Remove removes the named file or empty directory.
	Remove(name string) error

	// Rename renames oldname to newname, overwriting newname if it
	// already exists.
	Rename(oldname, newname string) error

	// MkdirAll creates dir and any necessary parents. It is a no-op if
	// dir already exists.
	MkdirAll(dir string, perm os.FileMode) error

	// Lock acquires an exclusive advisory lock on name, creating it if
	// necessary. The lock is released by closing the returned Closer.
	// Attempting to lock an already-locked file returns an error.
	Lock(name string) (io.Closer, error)

	// List returns the names of entries in dir, relative to dir.
	List(dir string) ([]string, error)

	// Stat returns file metadata for name.
	Stat(name string) (os.FileInfo, error)

	// PathJoin joins path elements using the FS's separator.
	PathJoin(elem ...string) string

	// PathBase returns the last element of path.
	PathBase(path string) string
}

// Default is the FS backed by the operating system's filesystem.
var Default FS = defaultFS{}

type defaultFS struct{}

func (defaultFS) Create(name string) (File, error) {
	return os.OpenFile(name, os.O_RDWR|os.O_CREATE|os.O_TRUNC, 0666)
}

func (defaultFS) Open(name string) (File, error) {
	return os.OpenFile(name, os.O_RDONLY, 0)
}

func (defaultFS) OpenDir(name string) (File, error) {
	return os.Open(name)
}

func (defaultFS) Remove(name string) error {
	return os.Remove(name)
}

func (defaultFS) Rename(oldname, newname string) error {
	return os.Rename(oldname, newname)
}

func (defaultFS) MkdirAll(dir string, perm os.FileMode) error {
	return os.MkdirAll(dir, perm)
}

func (defaultFS) List(dir string) ([]string, error) {
	f, err := os.Open(dir)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return f.Readdirnames(-1)
}

func (defaultFS) Stat(name string) (os.FileInfo, error) {
	return os.Stat(name)
}

func (defaultFS) PathJoin(elem ...string) string {
	return filepath.Join(elem...)
}

func (defaultFS) PathBase(path string) string {
	return filepath.Base(path)
}
