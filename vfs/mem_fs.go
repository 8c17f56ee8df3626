package vfs

import (
	"io"
	"os"
	"path"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"
)

// MemFS is an in-memory FS, for tests that want to exercise the storage
// engine without touching the real filesystem.
type MemFS struct {
	mu          sync.Mutex
	root        *memNode
	lockedFiles map[string]bool
}

var _ FS = (*MemFS)(nil)

// NewMem returns a new, empty in-memory filesystem.
func NewMem() *MemFS {
	return &MemFS{
		root:        &memNode{isDir: true, children: make(map[string]*memNode)},
		lockedFiles: make(map[string]bool),
	}
}

// memNode holds a file's data or a directory's children. A node is shared
// between every open memFile referencing it.
type memNode struct {
	isDir bool
	refs  atomic.Int32

	mu struct {
		sync.Mutex
		data    []byte
		modTime time.Time
	}

	children map[string]*memNode
}

// walk resolves fullname to its parent directory and final path component,
// calling f once per path segment. The final call has final=true.
func (y *MemFS) walk(fullname string, f func(dir *memNode, frag string, final bool) error) error {
	y.mu.Lock()
	defer y.mu.Unlock()

	fullname = strings.TrimPrefix(fullname, sep)
	if fullname == "." {
		fullname = ""
	}
	dir := y.root
	for {
		frag, remaining := fullname, ""
		if i := strings.IndexByte(fullname, sep[0]); i >= 0 {
			frag, remaining = fullname[:i], strings.TrimPrefix(fullname[i+1:], sep)
		}
		final := frag == fullname
		if err := f(dir, frag, final); err != nil {
			return err
		}
		if final {
			return nil
		}
		child, ok := dir.children[frag]
		if !ok {
			return &os.PathError{Op: "open", Path: fullname, Err: os.ErrNotExist}
		}
		if !child.isDir {
			return &os.PathError{Op: "open", Path: fullname, Err: os.ErrInvalid}
		}
		dir, fullname = child, remaining
	}
}

const sep = "/"

// Create implements FS.
func (y *MemFS) Create(fullname string) (File, error) {
	var ret *memFile
	err := y.walk(fullname, func(dir *memNode, frag string, final bool) error {
		if !final {
			return nil
		}
		if frag == "" {
			return &os.PathError{Op: "create", Path: fullname, Err: os.ErrInvalid}
		}
		n := &memNode{}
		n.mu.modTime = time.Now()
		dir.children[frag] = n
		ret = &memFile{name: frag, n: n, read: true, write: true}
		return nil
	})
	if err != nil {
		return nil, err
	}
	ret.n.refs.Add(1)
	return ret, nil
}

func (y *MemFS) open(fullname string) (File, error) {
	var ret *memFile
	err := y.walk(fullname, func(dir *memNode, frag string, final bool) error {
		if !final {
			return nil
		}
		if frag == "" {
			ret = &memFile{name: sep, n: dir, read: true}
			return nil
		}
		if n, ok := dir.children[frag]; ok {
			ret = &memFile{name: frag, n: n, read: true}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	if ret == nil {
		return nil, &os.PathError{Op: "open", Path: fullname, Err: os.ErrNotExist}
	}
	ret.n.refs.Add(1)
	return ret, nil
}

// Open implements FS.
func (y *MemFS) Open(fullname string) (File, error) { return y.open(fullname) }

// OpenDir implements FS.
func (y *MemFS) OpenDir(fullname string) (File, error) { return y.open(fullname) }

// Remove implements FS.
func (y *MemFS) Remove(fullname string) error {
	return y.walk(fullname, func(dir *memNode, frag string, final bool) error {
		if !final {
			return nil
		}
		if frag == "" {
			return &os.PathError{Op: "remove", Path: fullname, Err: os.ErrInvalid}
		}
		child, ok := dir.children[frag]
		if !ok {
			return os.ErrNotExist
		}
		if len(child.children) > 0 {
			return &os.PathError{Op: "remove", Path: fullname, Err: os.ErrInvalid}
		}
		delete(dir.children, frag)
		return nil
	})
}

// Rename implements FS.
func (y *MemFS) Rename(oldname, newname string) error {
	var n *memNode
	err := y.walk(oldname, func(dir *memNode, frag string, final bool) error {
		if !final {
			return nil
		}
		if frag == "" {
			return &os.PathError{Op: "rename", Path: oldname, Err: os.ErrInvalid}
		}
		n = dir.children[frag]
		delete(dir.children, frag)
		return nil
	})
	if err != nil {
		return err
	}
	if n == nil {
		return &os.PathError{Op: "rename", Path: oldname, Err: os.ErrNotExist}
	}
	return y.walk(newname, func(dir *memNode, frag string, final bool) error {
		if !final {
			return nil
		}
		if frag == "" {
			return &os.PathError{Op: "rename", Path: newname, Err: os.ErrInvalid}
		}
		dir.children[frag] = n
		return nil
	})
}

// MkdirAll implements FS.
func (y *MemFS) MkdirAll(dirname string, perm os.FileMode) error {
	return y.walk(dirname, func(dir *memNode, frag string, final bool) error {
		if frag == "" {
			return nil
		}
		child, ok := dir.children[frag]
		if !ok {
			dir.children[frag] = &memNode{isDir: true, children: make(map[string]*memNode)}
			return nil
		}
		if !child.isDir {
			return &os.PathError{Op: "mkdir", Path: dirname, Err: os.ErrInvalid}
		}
		return nil
	})
}

// Lock implements FS. Locks are visible only within this MemFS: two
// separate MemFS instances never contend.
func (y *MemFS) Lock(fullname string) (io.Closer, error) {
	y.mu.Lock()
	if y.lockedFiles[fullname] {
		y.mu.Unlock()
		return nil, os.ErrExist
	}
	y.lockedFiles[fullname] = true
	y.mu.Unlock()

	if _, err := y.Create(fullname); err != nil {
		y.mu.Lock()
		delete(y.lockedFiles, fullname)
		y.mu.Unlock()
		return nil, err
	}
	return &memFileLock{fs: y, name: fullname}, nil
}

// List implements FS.
func (y *MemFS) List(dirname string) ([]string, error) {
	if !strings.HasSuffix(dirname, sep) {
		dirname += sep
	}
	var ret []string
	err := y.walk(dirname, func(dir *memNode, frag string, final bool) error {
		if !final {
			return nil
		}
		ret = make([]string, 0, len(dir.children))
		for name := range dir.children {
			ret = append(ret, name)
		}
		sort.Strings(ret)
		return nil
	})
	return ret, err
}

// Stat implements FS.
func (y *MemFS) Stat(name string) (os.FileInfo, error) {
	f, err := y.Open(name)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return f.Stat()
}

// PathJoin implements FS. MemFS always uses forward slashes.
func (y *MemFS) PathJoin(elem ...string) string { return path.Join(elem...) }

// PathBase implements FS.
func (y *MemFS) PathBase(p string) string { return path.Base(p) }

// memFile is an open handle onto a memNode.
type memFile struct {
	name        string
	n           *memNode
	pos         int
	read, write bool
}

var _ File = (*memFile)(nil)

func (f *memFile) Close() error {
	f.n.refs.Add(-1)
	return nil
}

func (f *memFile) Read(p []byte) (int, error) {
	if !f.read {
		return 0, &os.PathError{Op: "read", Path: f.name, Err: os.ErrInvalid}
	}
	f.n.mu.Lock()
	defer f.n.mu.Unlock()
	if f.pos >= len(f.n.mu.data) {
		return 0, io.EOF
	}
	n := copy(p, f.n.mu.data[f.pos:])
	f.pos += n
	return n, nil
}

func (f *memFile) ReadAt(p []byte, off int64) (int, error) {
	if !f.read {
		return 0, &os.PathError{Op: "read", Path: f.name, Err: os.ErrInvalid}
	}
	f.n.mu.Lock()
	defer f.n.mu.Unlock()
	if off >= int64(len(f.n.mu.data)) {
		return 0, io.EOF
	}
	n := copy(p, f.n.mu.data[off:])
	if n < len(p) {
		return n, io.EOF
	}
	return n, nil
}

func (f *memFile) Write(p []byte) (int, error) {
	if !f.write {
		return 0, &os.PathError{Op: "write", Path: f.name, Err: os.ErrInvalid}
	}
	f.n.mu.Lock()
	defer f.n.mu.Unlock()
	f.n.mu.modTime = time.Now()
	if f.pos+len(p) <= len(f.n.mu.data) {
		copy(f.n.mu.data[f.pos:f.pos+len(p)], p)
	} else {
		f.n.mu.data = append(f.n.mu.data[:f.pos], p...)
	}
	f.pos += len(p)
	return len(p), nil
}

func (f *memFile) Stat() (os.FileInfo, error) {
	f.n.mu.Lock()
	defer f.n.mu.Unlock()
	return &memFileInfo{
		name:    f.name,
		size:    int64(len(f.n.mu.data)),
		modTime: f.n.mu.modTime,
		isDir:   f.n.isDir,
	}, nil
}

// Sync is a no-op: MemFS has no backing storage to flush.
func (f *memFile) Sync() error { return nil }

type memFileInfo struct {
	name    string
	size    int64
	modTime time.Time
	isDir   bool
}

var _ os.FileInfo = (*memFileInfo)(nil)

func (fi *memFileInfo) Name() string       { return fi.name }
func (fi *memFileInfo) Size() int64        { return fi.size }
func (fi *memFileInfo) ModTime() time.Time { return fi.modTime }
func (fi *memFileInfo) IsDir() bool        { return fi.isDir }
func (fi *memFileInfo) Sys() interface{}   { return nil }
func (fi *memFileInfo) Mode() os.FileMode {
	if fi.isDir {
		return os.ModeDir | 0755
	}
	return 0644
}

type memFileLock struct {
	fs   *MemFS
	name string
}

func (l *memFileLock) Close() error {
	l.fs.mu.Lock()
	delete(l.fs.lockedFiles, l.name)
	l.fs.mu.Unlock()
	return nil
}
