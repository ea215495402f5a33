// Package bolt adapts a bbolt database to store.Store for single-process
// deployments that want the tree persisted without running a coordination
// service. Nested buckets mirror the path hierarchy; bbolt's write
// transaction makes Commit all-or-nothing.
//
// Locks are in-process only: there is no other process to exclude when the
// store is an exclusively opened local file.
package bolt

import (
	"context"
	"encoding/binary"
	"fmt"
	"sync"

	"go.etcd.io/bbolt"

	"github.com/unkn0wn-root/coorddb/store"
)

var (
	treeBucket = []byte("tree")
	metaBucket = []byte("meta")

	// dataKey cannot collide with child bucket names: path segments never
	// contain NUL.
	dataKey = []byte("\x00data")
)

type Store struct {
	db      *bbolt.DB
	closeDB bool

	semMu sync.Mutex
	sems  map[string]chan struct{}
}

var _ store.Store = (*Store)(nil)

// New wraps an already open bbolt database. Set closeDB only if the store
// exclusively owns it.
func New(db *bbolt.DB, closeDB bool) (*Store, error) {
	err := db.Update(func(tx *bbolt.Tx) error {
		if _, err := tx.CreateBucketIfNotExists(treeBucket); err != nil {
			return err
		}
		_, err := tx.CreateBucketIfNotExists(metaBucket)
		return err
	})
	if err != nil {
		return nil, err
	}
	return &Store{db: db, closeDB: closeDB, sems: make(map[string]chan struct{})}, nil
}

// Open opens (or creates) the database file at file and wraps it.
func Open(file string) (*Store, error) {
	db, err := bbolt.Open(file, 0o600, nil)
	if err != nil {
		return nil, err
	}
	return New(db, true)
}

// bucketFor walks the nested buckets down to path. Returns nil if any
// segment is missing.
func bucketFor(tx *bbolt.Tx, path string) *bbolt.Bucket {
	b := tx.Bucket(treeBucket)
	for _, seg := range store.SplitPath(path) {
		if b = b.Bucket([]byte(seg)); b == nil {
			return nil
		}
	}
	return b
}

// ensureBucket creates the bucket chain down to path.
func ensureBucket(tx *bbolt.Tx, path string) (*bbolt.Bucket, error) {
	b := tx.Bucket(treeBucket)
	var err error
	for _, seg := range store.SplitPath(path) {
		if b, err = b.CreateBucketIfNotExists([]byte(seg)); err != nil {
			return nil, err
		}
	}
	return b, nil
}

func (s *Store) Create(_ context.Context, path string) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		_, err := ensureBucket(tx, path)
		return err
	})
}

func (s *Store) Children(_ context.Context, path string) ([]string, error) {
	var names []string
	err := s.db.View(func(tx *bbolt.Tx) error {
		b := bucketFor(tx, path)
		if b == nil {
			return nil
		}
		return b.ForEach(func(k, v []byte) error {
			if v == nil { // sub-buckets only; keys hold node data
				names = append(names, string(k))
			}
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	return names, nil // cursor order is already lexicographic
}

func (s *Store) Data(_ context.Context, path string) ([]byte, bool, error) {
	var out []byte
	var ok bool
	err := s.db.View(func(tx *bbolt.Tx) error {
		b := bucketFor(tx, path)
		if b == nil {
			return nil
		}
		if v := b.Get(dataKey); v != nil {
			out = make([]byte, len(v))
			copy(out, v)
			ok = true
		}
		return nil
	})
	if err != nil {
		return nil, false, err
	}
	return out, ok, nil
}

func (s *Store) NewTxn() store.Txn {
	return &txn{s: s}
}

func (s *Store) Counter(path string) store.Counter {
	return &counter{s: s, key: []byte(store.CleanPath(path))}
}

func (s *Store) NewLock(path string) store.Lock {
	return &lock{s: s, path: store.CleanPath(path)}
}

func (s *Store) Close(context.Context) error {
	if s.closeDB {
		return s.db.Close()
	}
	return nil
}

func (s *Store) sem(path string) chan struct{} {
	s.semMu.Lock()
	defer s.semMu.Unlock()
	c, ok := s.sems[path]
	if !ok {
		c = make(chan struct{}, 1)
		s.sems[path] = c
	}
	return c
}

type opKind int

const (
	opCreate opKind = iota
	opPut
	opDelete
)

type op struct {
	kind opKind
	path string
	data []byte
}

type txn struct {
	s    *Store
	ops  []op
	done bool
}

func (t *txn) Create(path string) {
	t.ops = append(t.ops, op{kind: opCreate, path: store.CleanPath(path)})
}

func (t *txn) Put(path string, data []byte) {
	d := make([]byte, len(data))
	copy(d, data)
	t.ops = append(t.ops, op{kind: opPut, path: store.CleanPath(path), data: d})
}

func (t *txn) Delete(path string) {
	t.ops = append(t.ops, op{kind: opDelete, path: store.CleanPath(path)})
}

// Commit applies all ops inside one bbolt write transaction; any op error
// rolls the whole batch back.
func (t *txn) Commit(_ context.Context) error {
	if t.done {
		return store.ErrTxnDone
	}
	t.done = true
	return t.s.db.Update(func(tx *bbolt.Tx) error {
		for i, o := range t.ops {
			if err := apply(tx, o); err != nil {
				return fmt.Errorf("op %d %q: %w", i, o.path, err)
			}
		}
		return nil
	})
}

func apply(tx *bbolt.Tx, o op) error {
	switch o.kind {
	case opCreate:
		parent := bucketFor(tx, store.ParentPath(o.path))
		if parent == nil {
			return store.ErrNoNode
		}
		name := []byte(store.BaseName(o.path))
		if parent.Bucket(name) != nil {
			return store.ErrNodeExists
		}
		_, err := parent.CreateBucket(name)
		return err
	case opPut:
		b := bucketFor(tx, o.path)
		if b == nil {
			return store.ErrNoNode
		}
		return b.Put(dataKey, o.data)
	case opDelete:
		parent := bucketFor(tx, store.ParentPath(o.path))
		if parent == nil {
			return store.ErrNoNode
		}
		name := []byte(store.BaseName(o.path))
		b := parent.Bucket(name)
		if b == nil {
			return store.ErrNoNode
		}
		empty := true
		_ = b.ForEach(func(k, v []byte) error {
			if v == nil {
				empty = false
			}
			return nil
		})
		if !empty {
			return store.ErrNotEmpty
		}
		return parent.DeleteBucket(name)
	}
	return nil
}

type counter struct {
	s   *Store
	key []byte
}

func (c *counter) Get(_ context.Context) (uint64, error) {
	var v uint64
	err := c.s.db.View(func(tx *bbolt.Tx) error {
		if b := tx.Bucket(metaBucket).Get(c.key); len(b) == 8 {
			v = binary.BigEndian.Uint64(b)
		}
		return nil
	})
	return v, err
}

func (c *counter) Increment(_ context.Context) error {
	return c.s.db.Update(func(tx *bbolt.Tx) error {
		meta := tx.Bucket(metaBucket)
		var v uint64
		if b := meta.Get(c.key); len(b) == 8 {
			v = binary.BigEndian.Uint64(b)
		}
		buf := make([]byte, 8)
		binary.BigEndian.PutUint64(buf, v+1)
		return meta.Put(c.key, buf)
	})
}

type lock struct {
	s    *Store
	path string
	held bool
}

func (l *lock) Acquire(ctx context.Context) error {
	select {
	case l.s.sem(l.path) <- struct{}{}:
		l.held = true
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (l *lock) Release() error {
	if !l.held {
		return store.ErrNotHeld
	}
	l.held = false
	<-l.s.sem(l.path)
	return nil
}
