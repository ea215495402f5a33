package coorddb

import (
	"context"
	"errors"

	"github.com/unkn0wn-root/coorddb/store"
)

// DB serves reads of a coordination store from an in-memory view that is
// invalidated by a global, shared change counter, and wraps writes so that
// a mutation and the counter increment commit together.
//
// One DB is meant to be shared by all readers and writers in the process;
// all methods are safe for concurrent use.
type DB struct {
	st      store.Store
	counter store.Counter
	holder  *viewHolder
	locks   *lockRegistry
	log     Logger
	hooks   Hooks
	caching bool
}

// Caching reports whether reads may be served from the in-memory view.
func (db *DB) Caching() bool { return db.caching }

// Generation returns the change counter as of a fresh read. Mostly useful
// for diagnostics; reads consult the counter themselves.
func (db *DB) Generation(ctx context.Context) (uint64, error) {
	return db.counter.Get(ctx)
}

// Close releases the underlying store client.
func (db *DB) Close(ctx context.Context) error {
	return db.st.Close(ctx)
}

// GetChildren returns the immediate child names under path, in lexicographic
// order. Served from the current view when possible; on a miss the store is
// read and the result added to the view. A missing node simply has no
// children.
func (db *DB) GetChildren(ctx context.Context, path string) ([]string, error) {
	v, err := db.holder.current(ctx)
	if err != nil {
		return nil, err
	}
	if names, ok := v.children(path); ok {
		db.hooks.SnapshotHit(KindChildren)
		return names, nil
	}
	db.hooks.SnapshotMiss(KindChildren)
	names, err := db.st.Children(ctx, path)
	if err != nil {
		return nil, err
	}
	if err := v.addChildren(path, names); err != nil {
		if !db.lostPopulate(err, path, KindChildren) {
			return nil, err
		}
	}
	// Return what we fetched, never a re-read of the view: a concurrent
	// populate may have won, but its value is for the same (generation,
	// path) and therefore equivalent.
	return names, nil
}

// GetData returns the blob stored at path. ok is false when the node does
// not exist or holds no data; absence is a normal result, not an error.
func (db *DB) GetData(ctx context.Context, path string) ([]byte, bool, error) {
	v, err := db.holder.current(ctx)
	if err != nil {
		return nil, false, err
	}
	if d, ok := v.data(path); ok {
		db.hooks.SnapshotHit(KindData)
		return d.b, d.ok, nil
	}
	db.hooks.SnapshotMiss(KindData)
	b, ok, err := db.st.Data(ctx, path)
	if err != nil {
		return nil, false, err
	}
	if err := v.addData(path, blob{b: b, ok: ok}); err != nil {
		if !db.lostPopulate(err, path, KindData) {
			return nil, false, err
		}
	}
	return b, ok, nil
}

// lostPopulate reports whether err is the benign outcome of losing a
// populate race to a concurrent reader of the same path. Anything else is a
// real fault and must propagate.
func (db *DB) lostPopulate(err error, path, kind string) bool {
	var ac *AlreadyCachedError
	if !errors.As(err, &ac) {
		return false
	}
	db.hooks.PopulateLost(path, kind)
	db.log.Debug("populate lost to concurrent reader", Fields{"path": path, "kind": kind})
	return true
}

// Create makes the node at path and any missing ancestors. Idempotent, and
// deliberately does not touch the change counter: an empty node is not
// observable through GetChildren or GetData of its content until something
// writes under it, so racing or repeating this is harmless.
func (db *DB) Create(ctx context.Context, path string) error {
	return db.st.Create(ctx, path)
}

// Lock blocks until the reentrant lock for path is held, then returns it for
// the caller to Release. Reentrancy follows the owner token in ctx (see
// WithLockOwner). There is no timeout; cancel ctx to give up.
func (db *DB) Lock(ctx context.Context, path string) (*PathLock, error) {
	l := db.locks.getOrCreate(path)
	waited, err := l.acquire(ctx, lockOwner(ctx))
	if waited {
		db.hooks.LockContended(path)
	}
	if err != nil {
		return nil, err
	}
	return l, nil
}

// NewTxnIn creates a store transaction for the caller to queue mutations
// into and adds it to outer, with a counter increment in front of everything
// queued so far. Commit outer, never the returned transaction directly:
// committing it directly detaches the mutation from its invalidation signal
// and from any sibling parts sharing the outer commit.
func (db *DB) NewTxnIn(outer *NestedTx) store.Txn {
	outer.prepend(countingTx{counter: db.counter})
	inner := db.st.NewTxn()
	outer.Add(inner)
	return inner
}
