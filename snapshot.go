package coorddb

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/unkn0wn-root/coorddb/store"
)

// blob is a cached data lookup result. ok is false when the node existed
// without data (or not at all) when it was read.
type blob struct {
	b  []byte
	ok bool
}

// view is the capability set of one generation's cache. Lookups report
// cached=false for paths never visited in this generation, which is distinct
// from a cached empty result. Adds are check-and-insert, atomic per key.
//
// Two implementations exist: snapshot (caching) and passthrough (caching
// disabled). Which one is used is decided once, at DB construction.
type view interface {
	generation() uint64
	children(path string) (names []string, cached bool)
	data(path string) (d blob, cached bool)
	addChildren(path string, names []string) error
	addData(path string, d blob) error
}

// snapshot is a thread safe partial mirror of the store content at a given
// generation. It is not necessarily a consistent cut of the store; it is
// what the store returned at various points in time while the change counter
// stood at this generation. Consistency across writers is handled by locking
// in the layers above.
type snapshot struct {
	gen uint64

	// The mirrored content. It only ever grows, possibly from multiple
	// goroutines; a value, once present for a key, never changes.
	mu   sync.RWMutex
	kids map[string][]string
	blbs map[string]blob
}

func newSnapshot(gen uint64) *snapshot {
	return &snapshot{
		gen:  gen,
		kids: make(map[string][]string),
		blbs: make(map[string]blob),
	}
}

func (s *snapshot) generation() uint64 { return s.gen }

func (s *snapshot) children(path string) ([]string, bool) {
	s.mu.RLock()
	names, ok := s.kids[path]
	s.mu.RUnlock()
	if !ok {
		return nil, false
	}
	return copyNames(names), true
}

func (s *snapshot) addChildren(path string, names []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.kids[path]; ok {
		return &AlreadyCachedError{Kind: KindChildren, Path: path, Generation: s.gen}
	}
	s.kids[path] = copyNames(names)
	return nil
}

func (s *snapshot) data(path string) (blob, bool) {
	s.mu.RLock()
	d, ok := s.blbs[path]
	s.mu.RUnlock()
	if !ok {
		return blob{}, false
	}
	return blob{b: copyBytes(d.b), ok: d.ok}, true
}

func (s *snapshot) addData(path string, d blob) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.blbs[path]; ok {
		return &AlreadyCachedError{Kind: KindData, Path: path, Generation: s.gen}
	}
	s.blbs[path] = blob{b: copyBytes(d.b), ok: d.ok}
	return nil
}

// passthrough is the deactivated cache: it never holds anything, so every
// read goes to the store. It still carries the generation so the holder's
// refresh logic is identical in both modes.
type passthrough struct {
	gen uint64
}

func (p passthrough) generation() uint64                  { return p.gen }
func (p passthrough) children(string) ([]string, bool)    { return nil, false }
func (p passthrough) data(string) (blob, bool)            { return blob{}, false }
func (p passthrough) addChildren(string, []string) error  { return nil }
func (p passthrough) addData(string, blob) error          { return nil }

func copyNames(names []string) []string {
	out := make([]string, len(names))
	copy(out, names)
	return out
}

func copyBytes(b []byte) []byte {
	if b == nil {
		return nil
	}
	out := make([]byte, len(b))
	copy(out, b)
	return out
}

// viewHolder owns the one active view behind an atomically swappable
// reference and replaces it whenever the change counter has moved past the
// held generation. Superseded views become unreferenced and are collected
// normally; readers that still hold one see a self-consistent (if older)
// partial mirror.
type viewHolder struct {
	counter store.Counter
	newView func(gen uint64) view
	hooks   Hooks
	log     Logger

	active atomic.Value // view; concrete type fixed by newView
}

func newViewHolder(counter store.Counter, caching bool, hooks Hooks, log Logger, initialGen uint64) *viewHolder {
	h := &viewHolder{counter: counter, hooks: hooks, log: log}
	if caching {
		h.newView = func(gen uint64) view { return newSnapshot(gen) }
	} else {
		h.newView = func(gen uint64) view { return passthrough{gen: gen} }
	}
	h.active.Store(h.newView(initialGen))
	return h
}

// current returns a view whose generation matches a fresh counter read,
// installing a new empty one on mismatch. The swap is lock free; when two
// readers race to install, the loser's discarded view was empty, so at worst
// some redundant store reads happen.
func (h *viewHolder) current(ctx context.Context) (view, error) {
	gen, err := h.counter.Get(ctx)
	if err != nil {
		h.hooks.CounterReadError(err)
		return nil, err
	}
	cur := h.active.Load().(view)
	if cur.generation() == gen {
		return cur, nil
	}

	fresh := h.newView(gen)
	if h.active.CompareAndSwap(cur, fresh) {
		h.hooks.GenerationChange(cur.generation(), gen)
		h.log.Debug("cache generation advanced", Fields{"from": cur.generation(), "to": gen})
		return fresh, nil
	}
	if cur = h.active.Load().(view); cur.generation() == gen {
		return cur, nil
	}
	// The installed view is for yet another generation; our empty view is
	// still a valid partial mirror for gen, just unpublished.
	return fresh, nil
}
