// Package zk adapts github.com/go-zookeeper/zk to store.Store. This is the
// backend the layer is designed around: Multi gives all-or-nothing
// transactions and zk.Lock gives cross-process blocking locks.
package zk

import (
	"context"
	"encoding/binary"
	"errors"
	"sort"

	gozk "github.com/go-zookeeper/zk"

	"github.com/unkn0wn-root/coorddb/store"
)

var ErrNilConn = errors.New("zk store: nil connection")

type Store struct {
	conn      *gozk.Conn
	acl       []gozk.ACL
	closeConn bool
}

var _ store.Store = (*Store)(nil)

type Config struct {
	Conn *gozk.Conn
	// CloseConn: set true only if this store exclusively owns the
	// connection.
	CloseConn bool
	// ACL for nodes this store creates. Defaults to world-anyone.
	ACL []gozk.ACL
}

func New(cfg Config) (*Store, error) {
	if cfg.Conn == nil {
		return nil, ErrNilConn
	}
	acl := cfg.ACL
	if acl == nil {
		acl = gozk.WorldACL(gozk.PermAll)
	}
	return &Store{conn: cfg.Conn, acl: acl, closeConn: cfg.CloseConn}, nil
}

func (s *Store) Create(_ context.Context, path string) error {
	for _, p := range store.Ancestry(path) {
		_, err := s.conn.Create(p, nil, 0, s.acl)
		if err != nil && !errors.Is(err, gozk.ErrNodeExists) {
			return err
		}
	}
	return nil
}

func (s *Store) Children(_ context.Context, path string) ([]string, error) {
	names, _, err := s.conn.Children(store.CleanPath(path))
	if errors.Is(err, gozk.ErrNoNode) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	sort.Strings(names)
	return names, nil
}

func (s *Store) Data(_ context.Context, path string) ([]byte, bool, error) {
	b, _, err := s.conn.Get(store.CleanPath(path))
	if errors.Is(err, gozk.ErrNoNode) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	if len(b) == 0 {
		// zk does not distinguish nil from empty data; treat a bare
		// node as holding nothing, like the other backends.
		return nil, false, nil
	}
	return b, true, nil
}

func (s *Store) NewTxn() store.Txn {
	return &txn{s: s}
}

func (s *Store) Counter(path string) store.Counter {
	return &counter{s: s, path: store.CleanPath(path)}
}

func (s *Store) NewLock(path string) store.Lock {
	return &lock{zl: gozk.NewLock(s.conn, store.CleanPath(path), s.acl)}
}

func (s *Store) Close(context.Context) error {
	if s.closeConn {
		s.conn.Close()
	}
	return nil
}

type txn struct {
	s    *Store
	ops  []any
	done bool
}

func (t *txn) Create(path string) {
	t.ops = append(t.ops, &gozk.CreateRequest{
		Path: store.CleanPath(path),
		Acl:  t.s.acl,
	})
}

func (t *txn) Put(path string, data []byte) {
	d := make([]byte, len(data))
	copy(d, data)
	t.ops = append(t.ops, &gozk.SetDataRequest{
		Path:    store.CleanPath(path),
		Data:    d,
		Version: -1,
	})
}

func (t *txn) Delete(path string) {
	t.ops = append(t.ops, &gozk.DeleteRequest{
		Path:    store.CleanPath(path),
		Version: -1,
	})
}

func (t *txn) Commit(_ context.Context) error {
	if t.done {
		return store.ErrTxnDone
	}
	t.done = true
	if len(t.ops) == 0 {
		return nil
	}
	_, err := t.s.conn.Multi(t.ops...)
	return err
}

// counter keeps its value as 8 big-endian bytes in the counter znode and
// increments with a version compare-and-set. The CAS loop retries only on
// version conflicts with concurrent incrementers; real failures return.
type counter struct {
	s    *Store
	path string
}

func (c *counter) Get(_ context.Context) (uint64, error) {
	b, _, err := c.s.conn.Get(c.path)
	if errors.Is(err, gozk.ErrNoNode) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	if len(b) != 8 {
		return 0, nil
	}
	return binary.BigEndian.Uint64(b), nil
}

func (c *counter) Increment(ctx context.Context) error {
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		b, stat, err := c.s.conn.Get(c.path)
		if errors.Is(err, gozk.ErrNoNode) {
			if err := c.s.Create(ctx, store.ParentPath(c.path)); err != nil {
				return err
			}
			_, err = c.s.conn.Create(c.path, encode(1), 0, c.s.acl)
			if errors.Is(err, gozk.ErrNodeExists) {
				continue // lost the creation race
			}
			return err
		}
		if err != nil {
			return err
		}
		var v uint64
		if len(b) == 8 {
			v = binary.BigEndian.Uint64(b)
		}
		_, err = c.s.conn.Set(c.path, encode(v+1), stat.Version)
		if errors.Is(err, gozk.ErrBadVersion) {
			continue
		}
		return err
	}
}

func encode(v uint64) []byte {
	b := make([]byte, 8)
	binary.BigEndian.PutUint64(b, v)
	return b
}

// lock adapts zk.Lock, which blocks without a context. Acquire runs it in a
// goroutine; on cancellation the in-flight acquire is disowned and undone if
// it later succeeds.
type lock struct {
	zl *gozk.Lock
}

func (l *lock) Acquire(ctx context.Context) error {
	done := make(chan error, 1)
	go func() { done <- l.zl.Lock() }()
	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		go func() {
			if err := <-done; err == nil {
				_ = l.zl.Unlock()
			}
		}()
		return ctx.Err()
	}
}

func (l *lock) Release() error {
	return l.zl.Unlock()
}
