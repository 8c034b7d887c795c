package kvstore

import (
	"os"
	"path/filepath"

	"github.com/go-git/go-billy/v5/osfs"

	"github.com/aqua777/go-friendkv/storage/fsutil"
)

// NewFileKVStore creates a store rooted at the directory root on the local
// filesystem. The directory is created if needed and the persisted key
// index, if any, is loaded.
func NewFileKVStore(root string, opts ...Option) (*ShardedKVStore, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, &IOError{Op: "mkdir", Path: root, Err: err}
	}

	// Ensure directory exists
	if err := os.MkdirAll(abs, fsutil.DirMode); err != nil {
		return nil, &IOError{Op: "mkdir", Path: abs, Err: err}
	}

	return New(osfs.New(abs), abs, opts...)
}
