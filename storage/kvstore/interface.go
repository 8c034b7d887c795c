// Package kvstore provides the sharded key-value store: dot-delimited keys
// mapped onto small JSON shard files, with per-shard locking and an optional
// index of known keys.
package kvstore

import (
	"context"

	"github.com/aqua777/go-friendkv/storage/shard"
)

// KVStore is the interface for key-value stores.
type KVStore interface {
	// Get returns the value for key, or an absent Value if it is not set.
	Get(ctx context.Context, key string) (shard.Value, error)

	// Set stores value under key. Passing shard.Absent() deletes the key.
	Set(ctx context.Context, key string, value any) error

	// Unset deletes key from its shard and from the key index.
	Unset(ctx context.Context, key string) error

	// Clear removes the shard file holding key, including any other keys
	// stored in the same shard.
	Clear(ctx context.Context, key string) error

	// Keys lists indexed keys containing filter. It is empty when the index
	// is disabled.
	Keys(filter string) []string
}

// PersistableKVStore extends KVStore with control over index persistence.
type PersistableKVStore interface {
	KVStore

	// SyncIndex writes the key index and waits for the result.
	SyncIndex(ctx context.Context) error

	// WaitIndex waits for background index writes to finish.
	WaitIndex(ctx context.Context) error
}
