package coorddb

import (
	"errors"
	"fmt"
)

// Cache entry kinds, used in faults and hooks.
const (
	KindChildren = "children"
	KindData     = "data"
)

// AlreadyCachedError is a fail-fast programming fault: an add hit a
// (generation, path) slot that already holds a value. Entries are immutable
// once written, so under correct use this only happens when two populates of
// the same slot race, which the facade resolves by discarding the loser's
// fetch. Seeing this error escape the facade means invalidation tracking is
// broken somewhere; do not retry it.
type AlreadyCachedError struct {
	Kind       string // KindChildren or KindData
	Path       string
	Generation uint64
}

func (e *AlreadyCachedError) Error() string {
	return fmt.Sprintf("coorddb: %s for %q already cached at generation %d", e.Kind, e.Path, e.Generation)
}

// CommitError reports which member of a nested transaction failed. Members
// before Part committed; members after it were never attempted.
type CommitError struct {
	Part int
	Err  error
}

func (e *CommitError) Error() string {
	return fmt.Sprintf("coorddb: nested transaction part %d failed: %v", e.Part, e.Err)
}

func (e *CommitError) Unwrap() error { return e.Err }

// ErrCommitted is returned when a nested transaction is committed twice.
var ErrCommitted = errors.New("coorddb: nested transaction already committed")

// ErrNotLocked is returned by an unbalanced Release.
var ErrNotLocked = errors.New("coorddb: release of a lock that is not held")
