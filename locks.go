package coorddb

import (
	"context"
	"sync"

	"github.com/unkn0wn-root/coorddb/store"
)

type ownerKey struct{}

// WithLockOwner tags ctx with an owner token for reentrant locking. Acquires
// carrying the same token (compared with ==) nest: the lock is taken once
// and released when Release has been called as many times as Acquire.
// Contexts without a token get a unique owner per acquire, so plain calls
// are mutually exclusive even within one goroutine.
func WithLockOwner(ctx context.Context, owner any) context.Context {
	return context.WithValue(ctx, ownerKey{}, owner)
}

func lockOwner(ctx context.Context) any {
	return ctx.Value(ownerKey{})
}

// PathLock is a reentrant in-process guard in front of the store's
// cross-process lock for one path. The first acquire by an owner takes the
// store lock; nested acquires only bump the depth. Other owners, in this
// process or any other, block until the depth drains back to zero.
type PathLock struct {
	path  string
	inter store.Lock

	mu    sync.Mutex
	owner any
	depth int
	held  bool          // store lock acquired, not just claimed
	wake  chan struct{} // replaced on every state change that unblocks waiters
}

func newPathLock(path string, inter store.Lock) *PathLock {
	return &PathLock{path: path, inter: inter, wake: make(chan struct{})}
}

// acquire blocks until the lock is held by owner or ctx is done. A nil
// owner never matches the current holder, so it cannot nest. A same-owner
// acquire racing the first one waits until the store lock is actually held
// before nesting; it must never get in ahead of another process.
// Reports whether the caller had to wait.
func (l *PathLock) acquire(ctx context.Context, owner any) (waited bool, err error) {
	for {
		l.mu.Lock()
		switch {
		case l.depth == 0:
			l.owner = owner
			l.depth = 1
			l.mu.Unlock()
			if err := l.inter.Acquire(ctx); err != nil {
				l.abandon()
				return waited, err
			}
			l.mu.Lock()
			l.held = true
			close(l.wake)
			l.wake = make(chan struct{})
			l.mu.Unlock()
			return waited, nil
		case owner != nil && owner == l.owner && l.held:
			l.depth++
			l.mu.Unlock()
			return waited, nil
		}
		ch := l.wake
		l.mu.Unlock()
		waited = true
		select {
		case <-ctx.Done():
			return waited, ctx.Err()
		case <-ch:
		}
	}
}

// abandon undoes a local claim whose store acquire failed.
func (l *PathLock) abandon() {
	l.mu.Lock()
	l.owner = nil
	l.depth = 0
	l.held = false
	close(l.wake)
	l.wake = make(chan struct{})
	l.mu.Unlock()
}

// Release undoes one acquire. The outermost release drops the store lock and
// wakes local waiters. Acquire and Release calls must balance.
func (l *PathLock) Release() error {
	l.mu.Lock()
	if l.depth == 0 {
		l.mu.Unlock()
		return ErrNotLocked
	}
	l.depth--
	if l.depth > 0 {
		l.mu.Unlock()
		return nil
	}
	l.owner = nil
	l.held = false
	close(l.wake)
	l.wake = make(chan struct{})
	l.mu.Unlock()
	return l.inter.Release()
}

// lockRegistry lazily creates one PathLock per distinct path and keeps it
// for the lifetime of the DB. This grows with the number of distinct paths
// ever locked, which is expected to be far too slow to matter.
type lockRegistry struct {
	st store.Store

	mu    sync.Mutex
	locks map[string]*PathLock
}

func newLockRegistry(st store.Store) *lockRegistry {
	return &lockRegistry{st: st, locks: make(map[string]*PathLock)}
}

// getOrCreate returns the shared lock for path, creating it on first touch.
// Racing first touches all end up with the same instance.
func (r *lockRegistry) getOrCreate(path string) *PathLock {
	r.mu.Lock()
	defer r.mu.Unlock()
	l, ok := r.locks[path]
	if !ok {
		l = newPathLock(path, r.st.NewLock(path))
		r.locks[path] = l
	}
	return l
}
