//go:build windows

package vfs

import (
	"fmt"
	"io"
	"runtime"
)

func (defaultFS) Lock(name string) (io.Closer, error) {
	return nil, fmt.Errorf("corekv/vfs: file locking is not implemented on %s/%s", runtime.GOOS, runtime.GOARCH)
}
