package coorddb

// Hooks are lightweight callbacks for high-signal events. Implementations
// MUST be cheap and non-blocking; the facade calls them on hot paths. Wrap
// with hooks/async if the sink can stall.
type Hooks interface {
	// The change counter moved and a fresh empty view was installed.
	GenerationChange(prev, next uint64)

	// A read was served from the current view without a store round trip.
	// kind is KindChildren or KindData.
	SnapshotHit(kind string)

	// A read missed the current view and went to the store.
	SnapshotMiss(kind string)

	// A populate after a miss found the slot already filled by a
	// concurrent reader; the fetched value was returned but discarded
	// from the cache.
	PopulateLost(path, kind string)

	// A fresh counter read failed; the read that needed it failed with it.
	CounterReadError(err error)

	// Lock acquisition did not succeed immediately and the caller blocked.
	LockContended(path string)
}

// NopHooks is the default no-op.
type NopHooks struct{}

func (NopHooks) GenerationChange(uint64, uint64) {}
func (NopHooks) SnapshotHit(string)              {}
func (NopHooks) SnapshotMiss(string)             {}
func (NopHooks) PopulateLost(string, string)     {}
func (NopHooks) CounterReadError(error)          {}
func (NopHooks) LockContended(string)            {}
