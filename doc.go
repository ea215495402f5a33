// Package coorddb is a generation-versioned cache in front of a hierarchical
// coordination store (ZooKeeper or a compatible stand-in). Reads are served
// from an in-memory partial mirror of the store; a global, shared change
// counter invalidates that mirror whenever any process writes, because every
// write transaction carries a counter increment.
//
// Components:
//   - store.Store: the coordination client (store/zk, store/redis,
//     store/bolt, store/mem).
//   - DB: the facade. Cached GetChildren/GetData, idempotent Create,
//     reentrant per-path Lock, and transaction composition via NewTxnIn.
//   - NestedTx: the outer commit unit. The caller commits it; coorddb makes
//     sure a counter increment sits in front of every data part.
//
// Write pattern:
//
//	var outer coorddb.NestedTx
//	txn := db.NewTxnIn(&outer)     // counter increment is now queued first
//	txn.Put("/nodes/n1", payload)  // queue mutations on the inner txn
//	err := outer.Commit(ctx)       // commit outer, never txn directly
//
// Reads check the counter on every call. When it has advanced, the current
// mirror is dropped wholesale and an empty one installed at the new
// generation, so the next read of each path refetches; invalidation is
// global per write, not per path.
package coorddb
