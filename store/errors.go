package store

import "errors"

// Errors shared by backends that implement the Txn semantics natively.
// Network backends may surface their client library's own errors instead;
// coorddb passes either through unmodified.
var (
	ErrNodeExists = errors.New("store: node already exists")
	ErrNoNode     = errors.New("store: node does not exist")
	ErrNotEmpty   = errors.New("store: node has children")
	ErrTxnDone    = errors.New("store: transaction already committed")
	ErrNotHeld    = errors.New("store: lock is not held")
)
