package kvstore

import (
	"github.com/go-git/go-billy/v5/memfs"

	"github.com/aqua777/go-friendkv/storage/fsutil"
)

// NewSimpleKVStore creates a store backed by an in-memory filesystem.
// Nothing survives the process; it is meant for tests and scratch data.
func NewSimpleKVStore(opts ...Option) (*ShardedKVStore, error) {
	return New(fsutil.Synchronized(memfs.New()), "memory", opts...)
}
