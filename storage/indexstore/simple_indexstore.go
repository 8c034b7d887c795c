package indexstore

import (
	"context"
	"sync"
)

// SimpleBackend keeps the persisted key list in memory.
type SimpleBackend struct {
	mu     sync.Mutex
	keys   []string
	writes int
}

// NewSimpleBackend creates a SimpleBackend holding keys.
func NewSimpleBackend(keys ...string) *SimpleBackend {
	return &SimpleBackend{keys: append([]string(nil), keys...)}
}

// LoadKeys returns a copy of the stored keys.
func (b *SimpleBackend) LoadKeys(ctx context.Context) ([]string, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]string(nil), b.keys...), nil
}

// StoreKeys replaces the stored keys.
func (b *SimpleBackend) StoreKeys(ctx context.Context, keys []string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.keys = append([]string(nil), keys...)
	b.writes++
	return nil
}

// Writes returns the number of StoreKeys calls.
func (b *SimpleBackend) Writes() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.writes
}

// Ensure SimpleBackend implements Backend.
var _ Backend = (*SimpleBackend)(nil)
