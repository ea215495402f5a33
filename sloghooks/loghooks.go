// Package sloghooks logs coorddb hook events through log/slog, with
// sampling on the chatty ones so a busy cluster does not flood the log.
package sloghooks

import (
	"log/slog"
	"sync/atomic"

	"github.com/unkn0wn-root/coorddb"
)

type Options struct {
	// Sampling to avoid floods; 0/1 = log all.
	HitEvery  uint64 // snapshot hits
	MissEvery uint64 // snapshot misses
}

type Hooks struct {
	l    *slog.Logger
	opts Options

	hitCtr  atomic.Uint64
	missCtr atomic.Uint64
}

var _ coorddb.Hooks = (*Hooks)(nil)

func New(l *slog.Logger, opts Options) *Hooks {
	return &Hooks{l: l, opts: opts}
}

func sample(n uint64, ctr *atomic.Uint64) bool {
	if n == 0 || n == 1 {
		return true
	}
	return ctr.Add(1)%n == 0
}

func (h *Hooks) GenerationChange(prev, next uint64) {
	if h.l == nil {
		return
	}
	h.l.Debug("coorddb.generation_change", "prev", prev, "next", next)
}

func (h *Hooks) SnapshotHit(kind string) {
	if h.l == nil || !sample(h.opts.HitEvery, &h.hitCtr) {
		return
	}
	h.l.Debug("coorddb.snapshot_hit", "kind", kind)
}

func (h *Hooks) SnapshotMiss(kind string) {
	if h.l == nil || !sample(h.opts.MissEvery, &h.missCtr) {
		return
	}
	h.l.Debug("coorddb.snapshot_miss", "kind", kind)
}

func (h *Hooks) PopulateLost(path, kind string) {
	if h.l == nil {
		return
	}
	h.l.Debug("coorddb.populate_lost", "path", path, "kind", kind)
}

func (h *Hooks) CounterReadError(err error) {
	if h.l == nil {
		return
	}
	h.l.Error("coorddb.counter_read_error", "err", err)
}

func (h *Hooks) LockContended(path string) {
	if h.l == nil {
		return
	}
	h.l.Debug("coorddb.lock_contended", "path", path)
}
