// Package store defines the coordination-store contract consumed by coorddb.
//
// A Store is a hierarchical, slash-delimited namespace of nodes, each holding
// an optional byte blob, plus three primitives coorddb builds on: an atomic
// multi-operation transaction, a shared distributed counter, and a blocking
// cross-process lock.
//
// Implementations MUST be safe for concurrent use. Children MUST return names
// in lexicographic order, and both Children and Data MUST treat an absent
// node as a normal miss, never as an error.
package store

import "context"

// Store is a minimal client for a hierarchical coordination service
// (ZooKeeper or a stand-in with compatible semantics).
type Store interface {
	// Create makes the node at path, and any missing ancestors, with no
	// data. Creating an existing node is a no-op.
	Create(ctx context.Context, path string) error

	// Children returns the immediate child names of path in lexicographic
	// order. A missing node has no children.
	Children(ctx context.Context, path string) ([]string, error)

	// Data returns the blob stored at path. ok is false when the node does
	// not exist or holds no data.
	Data(ctx context.Context, path string) ([]byte, bool, error)

	// NewTxn returns an empty transaction against this store.
	NewTxn() Txn

	// Counter returns a handle to the shared counter node at path. The
	// counter reads as 0 until first incremented.
	Counter(path string) Counter

	// NewLock returns an unacquired cross-process lock for path.
	NewLock(path string) Lock

	// Close releases client resources.
	Close(ctx context.Context) error
}

// Txn is an ordered list of queued operations committed all-or-nothing.
// Queueing never touches the store; only Commit does. A Txn must be
// committed at most once.
//
// Operation semantics follow ZooKeeper multi-ops: Create fails the commit if
// the node exists, Put fails it if the node is missing, Delete fails it if
// the node is missing or has children.
type Txn interface {
	Create(path string)
	Put(path string, data []byte)
	Delete(path string)
	Commit(ctx context.Context) error
}

// Counter is a shared, strictly non-decreasing integer persisted in the
// store. Get always performs a fresh read; it must never be served from any
// local cache.
type Counter interface {
	Get(ctx context.Context) (uint64, error)
	Increment(ctx context.Context) error
}

// Lock is a cross-process mutual-exclusion primitive bound to one path.
// Acquire blocks until the lock is held or ctx is done. Release must only be
// called by the holder.
type Lock interface {
	Acquire(ctx context.Context) error
	Release() error
}
