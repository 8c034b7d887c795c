package indexstore

import (
	"context"
	"log/slog"
	"os"
	"strings"
	"sync"
)

// DefaultErrorBuffer is the capacity of the Errors channel.
const DefaultErrorBuffer = 16

// KeyIndex is an in-memory ordered set of keys mirrored to a Backend.
//
// Persist does not block the caller: the write runs on its own goroutine and
// its failure is reported through the returned Task, the Errors channel and
// the optional error handler, never to the operation that triggered it.
// Concurrent persists race on the backend and the last one to write wins.
type KeyIndex struct {
	mu      sync.RWMutex
	keys    []string
	present map[string]struct{}

	backend Backend
	logger  *slog.Logger
	onError func(error)
	errs    chan error

	tasksMu  sync.Mutex
	inflight map[*Task]struct{}
}

// KeyIndexOption is a functional option for KeyIndex.
type KeyIndexOption func(*KeyIndex)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) KeyIndexOption {
	return func(ix *KeyIndex) {
		if logger != nil {
			ix.logger = logger
		}
	}
}

// WithErrorHandler registers a callback invoked with every failed persist.
func WithErrorHandler(fn func(error)) KeyIndexOption {
	return func(ix *KeyIndex) {
		ix.onError = fn
	}
}

// WithErrorBuffer sets the capacity of the Errors channel.
func WithErrorBuffer(n int) KeyIndexOption {
	return func(ix *KeyIndex) {
		if n > 0 {
			ix.errs = make(chan error, n)
		}
	}
}

// NewKeyIndex creates an empty KeyIndex over backend. Call Load to restore
// previously persisted keys.
func NewKeyIndex(backend Backend, opts ...KeyIndexOption) *KeyIndex {
	ix := &KeyIndex{
		present: make(map[string]struct{}),
		backend: backend,
		logger:  slog.New(slog.NewJSONHandler(os.Stderr, nil)),
		errs:    make(chan error, DefaultErrorBuffer),

		inflight: make(map[*Task]struct{}),
	}
	for _, opt := range opts {
		opt(ix)
	}
	return ix
}

// Load replaces the in-memory keys with the persisted ones. It is best
// effort: if the backend fails the index starts empty and the failure is
// only logged.
func (ix *KeyIndex) Load(ctx context.Context) {
	keys, err := ix.backend.LoadKeys(ctx)
	if err != nil {
		ix.logger.Warn("Failed to load key index, starting empty", "error", err)
		keys = nil
	}

	ix.mu.Lock()
	defer ix.mu.Unlock()

	ix.keys = ix.keys[:0]
	ix.present = make(map[string]struct{}, len(keys))
	for _, k := range keys {
		if _, dup := ix.present[k]; dup || k == "" {
			continue
		}
		ix.present[k] = struct{}{}
		ix.keys = append(ix.keys, k)
	}
	ix.logger.Debug("Loaded key index", "keys", len(ix.keys))
}

// Record appends key if it is not already indexed.
func (ix *KeyIndex) Record(key string) bool {
	ix.mu.Lock()
	defer ix.mu.Unlock()

	if _, ok := ix.present[key]; ok {
		return false
	}
	ix.present[key] = struct{}{}
	ix.keys = append(ix.keys, key)
	return true
}

// Forget removes key if indexed.
func (ix *KeyIndex) Forget(key string) bool {
	ix.mu.Lock()
	defer ix.mu.Unlock()

	if _, ok := ix.present[key]; !ok {
		return false
	}
	delete(ix.present, key)
	for i, k := range ix.keys {
		if k == key {
			ix.keys = append(ix.keys[:i], ix.keys[i+1:]...)
			break
		}
	}
	return true
}

// Contains reports whether key is indexed.
func (ix *KeyIndex) Contains(key string) bool {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	_, ok := ix.present[key]
	return ok
}

// Len returns the number of indexed keys.
func (ix *KeyIndex) Len() int {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	return len(ix.keys)
}

// List returns a copy of the keys in insertion order. A non-empty filter
// keeps only keys containing it.
func (ix *KeyIndex) List(filter string) []string {
	ix.mu.RLock()
	defer ix.mu.RUnlock()

	result := make([]string, 0, len(ix.keys))
	for _, k := range ix.keys {
		if filter == "" || strings.Contains(k, filter) {
			result = append(result, k)
		}
	}
	return result
}

// Persist snapshots the keys and writes them in the background. The write
// is detached from ctx cancellation.
func (ix *KeyIndex) Persist(ctx context.Context) *Task {
	snapshot := ix.List("")
	task := newTask()

	ix.tasksMu.Lock()
	ix.inflight[task] = struct{}{}
	ix.tasksMu.Unlock()

	go func() {
		err := ix.backend.StoreKeys(context.WithoutCancel(ctx), snapshot)
		if err != nil {
			ix.report(err)
		} else {
			ix.logger.Debug("Persisted key index", "keys", len(snapshot))
		}

		ix.tasksMu.Lock()
		delete(ix.inflight, task)
		ix.tasksMu.Unlock()
		task.finish(err)
	}()

	return task
}

// Sync writes the current keys and waits for the result.
func (ix *KeyIndex) Sync(ctx context.Context) error {
	return ix.backend.StoreKeys(ctx, ix.List(""))
}

// Wait blocks until every persist started before the call has finished, or
// ctx ends. Persists started while waiting are not waited for.
func (ix *KeyIndex) Wait(ctx context.Context) error {
	ix.tasksMu.Lock()
	pending := make([]*Task, 0, len(ix.inflight))
	for task := range ix.inflight {
		pending = append(pending, task)
	}
	ix.tasksMu.Unlock()

	for _, task := range pending {
		select {
		case <-task.Done():
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return nil
}

// Errors delivers failed background persists. When nobody drains it and the
// buffer is full, further errors are logged and dropped.
func (ix *KeyIndex) Errors() <-chan error {
	return ix.errs
}

func (ix *KeyIndex) report(err error) {
	ix.logger.Error("Failed to persist key index", "error", err)
	if ix.onError != nil {
		ix.onError(err)
	}
	select {
	case ix.errs <- err:
	default:
		ix.logger.Warn("Dropped key index error, channel full", "error", err)
	}
}

// Ensure KeyIndex implements IndexStore.
var _ IndexStore = (*KeyIndex)(nil)
