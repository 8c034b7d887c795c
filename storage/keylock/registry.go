// Package keylock provides a registry of mutual-exclusion guards keyed by an
// arbitrary resource identifier.
package keylock

import (
	"context"
	"fmt"
	"sync"

	"github.com/pkg/errors"
	"golang.org/x/sync/semaphore"
)

// LockError reports that the registry could not run a unit of work, either
// because the context ended while waiting for the guard or because the unit
// panicked.
type LockError struct {
	ID  string
	Err error
}

func (e *LockError) Error() string {
	return fmt.Sprintf("lock %q: %v", e.ID, e.Err)
}

func (e *LockError) Unwrap() error {
	return e.Err
}

// guard is a weight-one semaphore so that acquisition can observe ctx.
type guard struct {
	sem  *semaphore.Weighted
	refs int
}

// Registry hands out per-identifier guards. Units sharing an identifier never
// run concurrently; units with different identifiers may. Guards are created
// on first use and dropped once no caller holds or waits on them.
type Registry struct {
	mu     sync.Mutex
	guards map[string]*guard
}

// NewRegistry creates an empty Registry.
func NewRegistry() *Registry {
	return &Registry{guards: make(map[string]*guard)}
}

func (r *Registry) ref(id string) *guard {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.guards == nil {
		r.guards = make(map[string]*guard)
	}
	g, ok := r.guards[id]
	if !ok {
		g = &guard{sem: semaphore.NewWeighted(1)}
		r.guards[id] = g
	}
	g.refs++
	return g
}

func (r *Registry) unref(id string, g *guard) {
	r.mu.Lock()
	defer r.mu.Unlock()

	g.refs--
	if g.refs == 0 {
		delete(r.guards, id)
	}
}

// WithLock runs fn while holding the guard for id and returns fn's error.
// The guard is released on every exit path, including a panic in fn, which
// is reported as a *LockError.
func (r *Registry) WithLock(ctx context.Context, id string, fn func(ctx context.Context) error) (err error) {
	g := r.ref(id)
	defer r.unref(id, g)

	if err := g.sem.Acquire(ctx, 1); err != nil {
		return &LockError{ID: id, Err: errors.Wrap(err, "waiting for lock")}
	}
	defer g.sem.Release(1)

	defer func() {
		if rec := recover(); rec != nil {
			err = &LockError{ID: id, Err: errors.Errorf("unit of work panicked: %v", rec)}
		}
	}()

	return fn(ctx)
}

// Len returns the number of identifiers currently held or waited on.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.guards)
}
