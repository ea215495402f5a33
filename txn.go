package coorddb

import (
	"context"

	"github.com/unkn0wn-root/coorddb/store"
)

// Transaction is anything committable as one member of a NestedTx. A
// store.Txn satisfies it.
type Transaction interface {
	Commit(ctx context.Context) error
}

// NestedTx composes independently built transactions into one commit,
// executed front to back. It is how a mutation and its cache-invalidation
// signal land together: DB.NewTxnIn puts a counter increment in front of
// every store transaction it hands out, so by the time any data part
// commits, the counter bump for this nested commit has already landed.
//
// A NestedTx is not safe for concurrent use; build it and commit it from one
// goroutine.
type NestedTx struct {
	parts     []Transaction
	committed bool
}

// Add appends t to the commit order.
func (n *NestedTx) Add(t Transaction) {
	n.parts = append(n.parts, t)
}

// prepend puts t in front of every part added so far.
func (n *NestedTx) prepend(t Transaction) {
	n.parts = append([]Transaction{t}, n.parts...)
}

// Commit commits all parts in order. The first failure stops the commit and
// is returned as a *CommitError; parts already committed stay committed.
// Atomicity within a part is whatever the part's own commit guarantees.
func (n *NestedTx) Commit(ctx context.Context) error {
	if n.committed {
		return ErrCommitted
	}
	n.committed = true
	for i, p := range n.parts {
		if err := p.Commit(ctx); err != nil {
			return &CommitError{Part: i, Err: err}
		}
	}
	return nil
}

// countingTx increments the change counter when committed. It sits in front
// of data parts in a NestedTx: an increment without a paired mutation costs
// one benign cache rebuild, a mutation without an increment would serve
// stale reads forever.
type countingTx struct {
	counter store.Counter
}

func (t countingTx) Commit(ctx context.Context) error {
	return t.counter.Increment(ctx)
}
