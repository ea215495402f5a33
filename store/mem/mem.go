// Package mem is an in-process store.Store with ZooKeeper-like transaction
// semantics. It backs tests and single-process embeddings; all state is lost
// when the process exits.
package mem

import (
	"context"
	"encoding/binary"
	"fmt"
	"sort"
	"sync"

	"github.com/unkn0wn-root/coorddb/store"
)

type node struct {
	data []byte
	has  bool
	kids map[string]struct{}
}

// Store keeps the whole tree under one mutex; transactions validate and
// apply while holding it, which makes Commit genuinely all-or-nothing.
type Store struct {
	mu    sync.Mutex
	nodes map[string]*node

	semMu sync.Mutex
	sems  map[string]chan struct{}
}

var _ store.Store = (*Store)(nil)

func New() *Store {
	return &Store{
		nodes: map[string]*node{"/": {kids: make(map[string]struct{})}},
		sems:  make(map[string]chan struct{}),
	}
}

func (s *Store) Create(_ context.Context, path string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ensure(path)
	return nil
}

// ensure creates path and missing ancestors. Caller holds mu.
func (s *Store) ensure(path string) *node {
	var n *node
	for _, p := range store.Ancestry(path) {
		if existing, ok := s.nodes[p]; ok {
			n = existing
			continue
		}
		n = &node{kids: make(map[string]struct{})}
		s.nodes[p] = n
		s.nodes[store.ParentPath(p)].kids[store.BaseName(p)] = struct{}{}
	}
	if n == nil { // path was the root
		n = s.nodes["/"]
	}
	return n
}

func (s *Store) Children(_ context.Context, path string) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n, ok := s.nodes[store.CleanPath(path)]
	if !ok {
		return nil, nil
	}
	names := make([]string, 0, len(n.kids))
	for name := range n.kids {
		names = append(names, name)
	}
	sort.Strings(names)
	return names, nil
}

func (s *Store) Data(_ context.Context, path string) ([]byte, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n, ok := s.nodes[store.CleanPath(path)]
	if !ok || !n.has {
		return nil, false, nil
	}
	out := make([]byte, len(n.data))
	copy(out, n.data)
	return out, true, nil
}

func (s *Store) NewTxn() store.Txn {
	return &txn{s: s}
}

func (s *Store) Counter(path string) store.Counter {
	return &counter{s: s, path: store.CleanPath(path)}
}

func (s *Store) NewLock(path string) store.Lock {
	return &lock{s: s, path: store.CleanPath(path)}
}

func (s *Store) Close(context.Context) error { return nil }

// sem returns the capacity-1 semaphore shared by all locks for path.
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

// Commit validates every op against the tree plus earlier ops in this txn,
// then applies them. Validation failure applies nothing.
func (t *txn) Commit(_ context.Context) error {
	if t.done {
		return store.ErrTxnDone
	}
	t.done = true

	t.s.mu.Lock()
	defer t.s.mu.Unlock()

	// overlay: +1 created by this txn, -1 deleted by this txn
	overlay := make(map[string]int)
	exists := func(p string) bool {
		if d, ok := overlay[p]; ok {
			return d > 0
		}
		_, ok := t.s.nodes[p]
		return ok
	}
	childless := func(p string) bool {
		n, ok := t.s.nodes[p]
		live := 0
		if ok {
			live = len(n.kids)
		}
		for q, d := range overlay {
			if store.ParentPath(q) != p {
				continue
			}
			if ok {
				if _, had := n.kids[store.BaseName(q)]; had {
					if d < 0 {
						live--
					}
					continue
				}
			}
			if d > 0 {
				live++
			}
		}
		return live == 0
	}

	for i, o := range t.ops {
		switch o.kind {
		case opCreate:
			if exists(o.path) {
				return fmt.Errorf("op %d create %q: %w", i, o.path, store.ErrNodeExists)
			}
			if o.path != "/" && !exists(store.ParentPath(o.path)) {
				return fmt.Errorf("op %d create %q: parent: %w", i, o.path, store.ErrNoNode)
			}
			overlay[o.path] = 1
		case opPut:
			if !exists(o.path) {
				return fmt.Errorf("op %d put %q: %w", i, o.path, store.ErrNoNode)
			}
		case opDelete:
			if !exists(o.path) {
				return fmt.Errorf("op %d delete %q: %w", i, o.path, store.ErrNoNode)
			}
			if !childless(o.path) {
				return fmt.Errorf("op %d delete %q: %w", i, o.path, store.ErrNotEmpty)
			}
			overlay[o.path] = -1
		}
	}

	for _, o := range t.ops {
		switch o.kind {
		case opCreate:
			n := &node{kids: make(map[string]struct{})}
			t.s.nodes[o.path] = n
			t.s.nodes[store.ParentPath(o.path)].kids[store.BaseName(o.path)] = struct{}{}
		case opPut:
			n := t.s.nodes[o.path]
			n.data = o.data
			n.has = true
		case opDelete:
			delete(t.s.nodes, o.path)
			if p, ok := t.s.nodes[store.ParentPath(o.path)]; ok {
				delete(p.kids, store.BaseName(o.path))
			}
		}
	}
	return nil
}

// counter persists its value as 8 big-endian bytes at the counter node,
// matching the zk backend's layout.
type counter struct {
	s    *Store
	path string
}

func (c *counter) Get(_ context.Context) (uint64, error) {
	c.s.mu.Lock()
	defer c.s.mu.Unlock()
	n, ok := c.s.nodes[c.path]
	if !ok || !n.has || len(n.data) != 8 {
		return 0, nil
	}
	return binary.BigEndian.Uint64(n.data), nil
}

func (c *counter) Increment(_ context.Context) error {
	c.s.mu.Lock()
	defer c.s.mu.Unlock()
	n := c.s.ensure(c.path)
	var v uint64
	if n.has && len(n.data) == 8 {
		v = binary.BigEndian.Uint64(n.data)
	}
	buf := make([]byte, 8)
	binary.BigEndian.PutUint64(buf, v+1)
	n.data = buf
	n.has = true
	return nil
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
