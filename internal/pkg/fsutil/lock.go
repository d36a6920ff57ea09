package fsutil

import (
	"errors"
	"os"
	"path/filepath"
)

// ErrLocked is returned when another process holds the data directory lock.
var ErrLocked = errors.New("data directory is locked by another process")

// DirLock is an exclusive advisory lock on a data directory.
type DirLock struct {
	file *os.File
}

// LockDir takes the exclusive lock file name inside dir without blocking.
func LockDir(dir, name string) (*DirLock, error) {
	if err := os.MkdirAll(dir, DirPerm); err != nil {
		return nil, err
	}
	f, err := os.OpenFile(filepath.Join(dir, name), os.O_CREATE|os.O_RDWR, FilePerm)
	if err != nil {
		return nil, err
	}
	if err := lockFile(f); err != nil {
		f.Close()
		return nil, err
	}
	return &DirLock{file: f}, nil
}

// Release drops the lock.
func (l *DirLock) Release() error {
	if l == nil || l.file == nil {
		return nil
	}
	unlockFile(l.file)
	err := l.file.Close()
	l.file = nil
	return err
}
