package coorddb

import (
	"context"
	"fmt"

	"github.com/unkn0wn-root/coorddb/codec"
	"github.com/unkn0wn-root/coorddb/store"
)

// Record is a typed view over DB for one record type: cached decoded reads,
// encoded writes queued into transactions. Construct one per type and codec
// pair and share it freely; it holds no state of its own.
type Record[V any] struct {
	db *DB
	c  codec.Codec[V]
}

func NewRecord[V any](db *DB, c codec.Codec[V]) Record[V] {
	return Record[V]{db: db, c: c}
}

// Get reads and decodes the record at path. ok is false when the node does
// not exist or holds no data.
func (r Record[V]) Get(ctx context.Context, path string) (v V, ok bool, err error) {
	b, ok, err := r.db.GetData(ctx, path)
	if err != nil || !ok {
		return v, false, err
	}
	v, err = r.c.Decode(b)
	if err != nil {
		return v, false, fmt.Errorf("coorddb: decode record at %q: %w", path, err)
	}
	return v, true, nil
}

// Put encodes v and queues a set of path's data on txn. The node must exist
// by commit time (see DB.Create).
func (r Record[V]) Put(txn store.Txn, path string, v V) error {
	b, err := r.c.Encode(v)
	if err != nil {
		return fmt.Errorf("coorddb: encode record for %q: %w", path, err)
	}
	txn.Put(path, b)
	return nil
}
