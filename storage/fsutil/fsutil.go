// Package fsutil holds the filesystem collaborators used by the shard store:
// an idempotent directory creator, a subtree remover, and a wrapper that
// makes non thread-safe billy filesystems safe for concurrent use.
package fsutil

import (
	"os"
	"sync"

	"github.com/go-git/go-billy/v5"
	"github.com/go-git/go-billy/v5/util"
	"github.com/pkg/errors"
)

const (
	// DirMode is the permission used for created directories.
	DirMode os.FileMode = 0755
	// FileMode is the permission used for created files.
	FileMode os.FileMode = 0644
)

// EnsureDir creates dir and any missing parents. Calling it on an existing
// directory is a no-op.
func EnsureDir(fs billy.Filesystem, dir string) error {
	if dir == "" {
		dir = "."
	}
	if err := fs.MkdirAll(dir, DirMode); err != nil {
		return errors.Wrapf(err, "failed to create directory %s", dir)
	}
	return nil
}

// RemoveAll deletes path and everything below it. A missing path is not an
// error.
func RemoveAll(fs billy.Filesystem, path string) error {
	if err := util.RemoveAll(fs, path); err != nil {
		return errors.Wrapf(err, "failed to remove %s", path)
	}
	return nil
}

// Exists reports whether path exists on fs.
func Exists(fs billy.Filesystem, path string) (bool, error) {
	_, err := fs.Stat(path)
	if err == nil {
		return true, nil
	}
	if errors.Is(err, os.ErrNotExist) {
		return false, nil
	}
	return false, err
}

// Synchronized wraps fs so that metadata operations are serialized. memfs
// keeps its directory tree in plain maps and must be wrapped before shards
// on different paths are accessed in parallel.
func Synchronized(fs billy.Filesystem) billy.Filesystem {
	return &syncFS{Filesystem: fs}
}

type syncFS struct {
	billy.Filesystem
	mu sync.Mutex
}

func (s *syncFS) Create(filename string) (billy.File, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.Filesystem.Create(filename)
}

func (s *syncFS) Open(filename string) (billy.File, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.Filesystem.Open(filename)
}

func (s *syncFS) OpenFile(filename string, flag int, perm os.FileMode) (billy.File, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.Filesystem.OpenFile(filename, flag, perm)
}

func (s *syncFS) Stat(filename string) (os.FileInfo, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.Filesystem.Stat(filename)
}

func (s *syncFS) Lstat(filename string) (os.FileInfo, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.Filesystem.Lstat(filename)
}

func (s *syncFS) Rename(from, to string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.Filesystem.Rename(from, to)
}

func (s *syncFS) Remove(filename string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.Filesystem.Remove(filename)
}

func (s *syncFS) ReadDir(path string) ([]os.FileInfo, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.Filesystem.ReadDir(path)
}

func (s *syncFS) MkdirAll(filename string, perm os.FileMode) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.Filesystem.MkdirAll(filename, perm)
}

func (s *syncFS) TempFile(dir, prefix string) (billy.File, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.Filesystem.TempFile(dir, prefix)
}
