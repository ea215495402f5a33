package coorddb

import (
	"context"
	"fmt"

	"github.com/unkn0wn-root/coorddb/store"
)

// DefaultCounterPath is where the change counter lives unless Options says
// otherwise. All processes sharing a database root must agree on it.
const DefaultCounterPath = "/changeCounter"

// Options configure a DB. Only Store is required; others have sensible
// defaults.
type Options struct {
	// Required. The coordination client everything runs against.
	Store store.Store

	// CounterPath is the store path of the shared change counter.
	// Defaults to DefaultCounterPath.
	CounterPath string

	Logger Logger // if nil, NopLogger is used
	Hooks  Hooks  // if nil, NopHooks is used

	// Disabled turns caching off: every read goes to the store. Use for
	// deployments that require always-fresh reads.
	Disabled bool
}

// New reads the counter once to seed the first empty view, then returns a
// ready DB. ctx bounds that initial read.
func New(ctx context.Context, opts Options) (*DB, error) {
	if opts.Store == nil {
		return nil, fmt.Errorf("coorddb: store is required")
	}

	counter := opts.Store.Counter(coalesce(opts.CounterPath, DefaultCounterPath))
	log := coalesce[Logger](opts.Logger, NopLogger{})
	hooks := coalesce[Hooks](opts.Hooks, NopHooks{})

	gen, err := counter.Get(ctx)
	if err != nil {
		return nil, fmt.Errorf("coorddb: initial counter read: %w", err)
	}

	return &DB{
		st:      opts.Store,
		counter: counter,
		holder:  newViewHolder(counter, !opts.Disabled, hooks, log, gen),
		locks:   newLockRegistry(opts.Store),
		log:     log,
		hooks:   hooks,
		caching: !opts.Disabled,
	}, nil
}
