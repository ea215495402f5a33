// Package prom exposes coorddb hook events as Prometheus metrics. Register
// the Hooks with a registry and pass it (usually behind hooks/async) to
// coorddb.Options.
package prom

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/unkn0wn-root/coorddb"
)

type Hooks struct {
	generationChanges prometheus.Counter
	snapshotReads     *prometheus.CounterVec // outcome x kind
	populateLost      *prometheus.CounterVec // kind
	counterReadErrors prometheus.Counter
	lockContention    prometheus.Counter
}

var _ coorddb.Hooks = (*Hooks)(nil)

// New builds the hook set. namespace prefixes all metric names, e.g.
// "noderepo" yields noderepo_coorddb_snapshot_reads_total.
func New(namespace string) *Hooks {
	return &Hooks{
		generationChanges: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "coorddb",
			Name:      "generation_changes_total",
			Help:      "Times the change counter advanced and the cache was rebuilt.",
		}),
		snapshotReads: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "coorddb",
			Name:      "snapshot_reads_total",
			Help:      "Reads by outcome (hit or miss) and kind (children or data).",
		}, []string{"outcome", "kind"}),
		populateLost: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "coorddb",
			Name:      "populate_lost_total",
			Help:      "Populates discarded after losing to a concurrent reader.",
		}, []string{"kind"}),
		counterReadErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "coorddb",
			Name:      "counter_read_errors_total",
			Help:      "Failed change counter reads.",
		}),
		lockContention: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "coorddb",
			Name:      "lock_contention_total",
			Help:      "Lock acquisitions that had to wait.",
		}),
	}
}

// Register adds all metrics to reg.
func (h *Hooks) Register(reg prometheus.Registerer) error {
	for _, c := range []prometheus.Collector{
		h.generationChanges, h.snapshotReads, h.populateLost,
		h.counterReadErrors, h.lockContention,
	} {
		if err := reg.Register(c); err != nil {
			return err
		}
	}
	return nil
}

func (h *Hooks) GenerationChange(uint64, uint64) { h.generationChanges.Inc() }

func (h *Hooks) SnapshotHit(kind string) {
	h.snapshotReads.WithLabelValues("hit", kind).Inc()
}

func (h *Hooks) SnapshotMiss(kind string) {
	h.snapshotReads.WithLabelValues("miss", kind).Inc()
}

func (h *Hooks) PopulateLost(_, kind string) {
	h.populateLost.WithLabelValues(kind).Inc()
}

func (h *Hooks) CounterReadError(error) { h.counterReadErrors.Inc() }

func (h *Hooks) LockContended(string) { h.lockContention.Inc() }
