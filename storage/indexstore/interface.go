// Package indexstore keeps the key index: the ordered set of every key that
// holds a defined value, mirrored to a shard through the store itself.
package indexstore

import "context"

// DefaultIndexKey is the reserved key under which the index is persisted.
const DefaultIndexKey = "_keys"

// Backend loads and stores the persisted key list.
type Backend interface {
	// LoadKeys returns the persisted keys, or nil if none were persisted.
	LoadKeys(ctx context.Context) ([]string, error)

	// StoreKeys replaces the persisted keys.
	StoreKeys(ctx context.Context, keys []string) error
}

// IndexStore is the interface for key indexes.
type IndexStore interface {
	// Record appends key if it is not present. Returns true if it was added.
	Record(key string) bool

	// Forget removes key. Returns true if it was present.
	Forget(key string) bool

	// Contains reports whether key is indexed.
	Contains(key string) bool

	// List returns a copy of the indexed keys in insertion order, restricted
	// to keys containing filter when filter is not empty.
	List(filter string) []string

	// Persist writes the current keys in the background.
	Persist(ctx context.Context) *Task
}
