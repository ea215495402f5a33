// Package asynchook decouples hook sinks from coorddb's hot paths: events
// are queued to worker goroutines and dropped when the queue is full, so a
// slow sink can never stall a read.
//
// Typical wiring:
//
//	raw := sloghooks.New(slog.Default(), sloghooks.Options{})
//	hooks := asynchook.New(raw, 1, 1000)
//	defer hooks.Close()
package asynchook

import (
	"sync"

	"github.com/unkn0wn-root/coorddb"
)

type Hooks struct {
	inner coorddb.Hooks
	q     chan func()
	wg    sync.WaitGroup
	once  sync.Once
}

var _ coorddb.Hooks = (*Hooks)(nil)

func New(inner coorddb.Hooks, workers, qlen int) *Hooks {
	if workers <= 0 {
		workers = 1
	}
	if qlen <= 0 {
		qlen = 1024
	}

	h := &Hooks{inner: inner, q: make(chan func(), qlen)}
	h.wg.Add(workers)
	for i := 0; i < workers; i++ {
		go func() {
			defer h.wg.Done()
			for f := range h.q {
				f()
			}
		}()
	}
	return h
}

func (h *Hooks) Close() {
	h.once.Do(func() {
		close(h.q)
		h.wg.Wait()
	})
}

func (h *Hooks) try(f func()) {
	select {
	case h.q <- f:
	default: // drop
	}
}

func (h *Hooks) GenerationChange(prev, next uint64) {
	h.try(func() { h.inner.GenerationChange(prev, next) })
}
func (h *Hooks) SnapshotHit(kind string)  { h.try(func() { h.inner.SnapshotHit(kind) }) }
func (h *Hooks) SnapshotMiss(kind string) { h.try(func() { h.inner.SnapshotMiss(kind) }) }
func (h *Hooks) PopulateLost(path, kind string) {
	h.try(func() { h.inner.PopulateLost(path, kind) })
}
func (h *Hooks) CounterReadError(err error) { h.try(func() { h.inner.CounterReadError(err) }) }
func (h *Hooks) LockContended(path string)  { h.try(func() { h.inner.LockContended(path) }) }
