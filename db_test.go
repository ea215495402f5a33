package coorddb

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/unkn0wn-root/coorddb/store"
	"github.com/unkn0wn-root/coorddb/store/mem"
)

// countingStore wraps a store and counts read round trips, so tests can
// assert which reads were served from the cache.
type countingStore struct {
	store.Store
	children atomic.Int64
	data     atomic.Int64
}

func (c *countingStore) Children(ctx context.Context, path string) ([]string, error) {
	c.children.Add(1)
	return c.Store.Children(ctx, path)
}

func (c *countingStore) Data(ctx context.Context, path string) ([]byte, bool, error) {
	c.data.Add(1)
	return c.Store.Data(ctx, path)
}

// recordingHooks counts hook events of interest.
type recordingHooks struct {
	NopHooks
	refreshes    atomic.Int64
	populateLost atomic.Int64
}

func (h *recordingHooks) GenerationChange(uint64, uint64) { h.refreshes.Add(1) }
func (h *recordingHooks) PopulateLost(string, string)     { h.populateLost.Add(1) }

func newTestDB(t *testing.T, optFn func(*Options)) (*DB, *countingStore, *recordingHooks) {
	t.Helper()
	cs := &countingStore{Store: mem.New()}
	hooks := &recordingHooks{}
	opts := Options{Store: cs, Hooks: hooks}
	if optFn != nil {
		optFn(&opts)
	}
	db, err := New(context.Background(), opts)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(func() { _ = db.Close(context.Background()) })
	return db, cs, hooks
}

func equalNames(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// Two consecutive reads within one generation: identical results, and the
// second incurs no store round trip.
func TestIdempotentRead(t *testing.T) {
	ctx := context.Background()
	db, cs, _ := newTestDB(t, nil)

	if err := db.Create(ctx, "/a/x"); err != nil {
		t.Fatalf("Create: %v", err)
	}
	if err := db.Create(ctx, "/a/y"); err != nil {
		t.Fatalf("Create: %v", err)
	}

	first, err := db.GetChildren(ctx, "/a")
	if err != nil {
		t.Fatalf("GetChildren: %v", err)
	}
	if !equalNames(first, []string{"x", "y"}) {
		t.Fatalf("GetChildren = %v, want [x y]", first)
	}

	before := cs.children.Load()
	second, err := db.GetChildren(ctx, "/a")
	if err != nil {
		t.Fatalf("GetChildren (cached): %v", err)
	}
	if !equalNames(first, second) {
		t.Fatalf("cached read differs: %v vs %v", first, second)
	}
	if got := cs.children.Load(); got != before {
		t.Fatalf("cached read hit the store: %d round trips", got-before)
	}
}

func TestGetDataAbsenceIsCachedAsAbsence(t *testing.T) {
	ctx := context.Background()
	db, cs, _ := newTestDB(t, nil)

	if err := db.Create(ctx, "/node"); err != nil {
		t.Fatalf("Create: %v", err)
	}

	// First read: node exists, no data.
	if _, ok, err := db.GetData(ctx, "/node"); err != nil || ok {
		t.Fatalf("GetData = ok=%v err=%v, want absent, no error", ok, err)
	}
	// Missing node reads the same way.
	if _, ok, err := db.GetData(ctx, "/missing"); err != nil || ok {
		t.Fatalf("GetData missing = ok=%v err=%v, want absent, no error", ok, err)
	}

	// Both absences are cached.
	before := cs.data.Load()
	_, _, _ = db.GetData(ctx, "/node")
	_, _, _ = db.GetData(ctx, "/missing")
	if got := cs.data.Load(); got != before {
		t.Fatalf("cached absence hit the store: %d round trips", got-before)
	}
}

// The walkthrough from the design: read caches under generation 0, a write
// commits a counter increment, the next read rebuilds under generation 1.
func TestCoherenceAfterCommit(t *testing.T) {
	ctx := context.Background()
	db, cs, hooks := newTestDB(t, nil)

	for _, p := range []string{"/a/x", "/a/y"} {
		if err := db.Create(ctx, p); err != nil {
			t.Fatalf("Create: %v", err)
		}
	}
	names, err := db.GetChildren(ctx, "/a")
	if err != nil || !equalNames(names, []string{"x", "y"}) {
		t.Fatalf("GetChildren = %v, %v", names, err)
	}

	var outer NestedTx
	txn := db.NewTxnIn(&outer)
	txn.Create("/a/z")
	if err := outer.Commit(ctx); err != nil {
		t.Fatalf("Commit: %v", err)
	}

	gen, err := db.Generation(ctx)
	if err != nil || gen != 1 {
		t.Fatalf("Generation = %d, %v, want 1", gen, err)
	}

	before := cs.children.Load()
	names, err = db.GetChildren(ctx, "/a")
	if err != nil || !equalNames(names, []string{"x", "y", "z"}) {
		t.Fatalf("GetChildren after commit = %v, %v", names, err)
	}
	if cs.children.Load() == before {
		t.Fatal("post-commit read was served from the stale cache")
	}
	if hooks.refreshes.Load() == 0 {
		t.Fatal("expected a generation change event")
	}
}

// Invalidation is global: a write under one path drops cached state for all
// paths.
func TestInvalidationIsGlobal(t *testing.T) {
	ctx := context.Background()
	db, cs, _ := newTestDB(t, nil)

	if err := db.Create(ctx, "/a/x"); err != nil {
		t.Fatalf("Create: %v", err)
	}
	if err := db.Create(ctx, "/b/y"); err != nil {
		t.Fatalf("Create: %v", err)
	}
	if _, err := db.GetChildren(ctx, "/a"); err != nil {
		t.Fatalf("GetChildren: %v", err)
	}
	if _, err := db.GetChildren(ctx, "/b"); err != nil {
		t.Fatalf("GetChildren: %v", err)
	}

	var outer NestedTx
	db.NewTxnIn(&outer).Put("/a/x", []byte("v"))
	if err := outer.Commit(ctx); err != nil {
		t.Fatalf("Commit: %v", err)
	}

	before := cs.children.Load()
	if _, err := db.GetChildren(ctx, "/b"); err != nil {
		t.Fatalf("GetChildren: %v", err)
	}
	if cs.children.Load() == before {
		t.Fatal("write under /a did not invalidate cached /b")
	}
}

// Create does not bump the counter, so previously cached listings stay
// as they are until some write commits.
func TestCreateDoesNotInvalidate(t *testing.T) {
	ctx := context.Background()
	db, _, _ := newTestDB(t, nil)

	if err := db.Create(ctx, "/a/x"); err != nil {
		t.Fatalf("Create: %v", err)
	}
	names, err := db.GetChildren(ctx, "/a")
	if err != nil || !equalNames(names, []string{"x"}) {
		t.Fatalf("GetChildren = %v, %v", names, err)
	}

	if err := db.Create(ctx, "/a/later"); err != nil {
		t.Fatalf("Create: %v", err)
	}
	names, err = db.GetChildren(ctx, "/a")
	if err != nil || !equalNames(names, []string{"x"}) {
		t.Fatalf("GetChildren after create = %v, %v, want cached [x]", names, err)
	}
	if gen, err := db.Generation(ctx); err != nil || gen != 0 {
		t.Fatalf("Generation = %d, %v, want 0", gen, err)
	}
}

// N concurrent reads of an uncached path may each fetch, but exactly one
// populate wins, nobody faults, and everyone gets the same listing.
func TestConcurrentMissIsRaceSafe(t *testing.T) {
	ctx := context.Background()
	db, cs, hooks := newTestDB(t, nil)

	for _, p := range []string{"/a/x", "/a/y"} {
		if err := db.Create(ctx, p); err != nil {
			t.Fatalf("Create: %v", err)
		}
	}

	const n = 32
	var wg sync.WaitGroup
	errs := make(chan error, n)
	start := make(chan struct{})
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			names, err := db.GetChildren(ctx, "/a")
			if err != nil {
				errs <- err
				return
			}
			if !equalNames(names, []string{"x", "y"}) {
				errs <- errors.New("wrong listing")
			}
		}()
	}
	close(start)
	wg.Wait()
	close(errs)
	for err := range errs {
		t.Fatalf("concurrent read: %v", err)
	}

	// The slot is populated; one more read is a pure cache hit.
	before := cs.children.Load()
	if _, err := db.GetChildren(ctx, "/a"); err != nil {
		t.Fatalf("GetChildren: %v", err)
	}
	if cs.children.Load() != before {
		t.Fatal("read after concurrent misses still hit the store")
	}
	t.Logf("store fetches: %d, lost populates: %d", before, hooks.populateLost.Load())
}

// Disabled cache: every read goes to the store, so write-read sequences
// always observe the latest value.
func TestDisabledCacheReadsAreAlwaysFresh(t *testing.T) {
	ctx := context.Background()
	db, cs, _ := newTestDB(t, func(o *Options) { o.Disabled = true })

	if db.Caching() {
		t.Fatal("Caching() = true with Disabled set")
	}
	if err := db.Create(ctx, "/cfg"); err != nil {
		t.Fatalf("Create: %v", err)
	}

	for i, want := range []string{"one", "two"} {
		var outer NestedTx
		db.NewTxnIn(&outer).Put("/cfg", []byte(want))
		if err := outer.Commit(ctx); err != nil {
			t.Fatalf("Commit %d: %v", i, err)
		}
		before := cs.data.Load()
		b, ok, err := db.GetData(ctx, "/cfg")
		if err != nil || !ok || string(b) != want {
			t.Fatalf("GetData %d = %q ok=%v err=%v, want %q", i, b, ok, err, want)
		}
		if cs.data.Load() != before+1 {
			t.Fatalf("read %d skipped the store", i)
		}
	}

	// Repeat reads are not cached either.
	before := cs.data.Load()
	_, _, _ = db.GetData(ctx, "/cfg")
	if cs.data.Load() != before+1 {
		t.Fatal("deactivated cache served a read from memory")
	}
}

// The counter part commits first, so a failing data part still bumps the
// generation: one wasted rebuild, never a stale cache.
func TestFailedDataPartStillInvalidates(t *testing.T) {
	ctx := context.Background()
	db, _, _ := newTestDB(t, nil)

	var outer NestedTx
	txn := db.NewTxnIn(&outer)
	txn.Put("/nope", []byte("x")) // node does not exist; commit must fail

	err := outer.Commit(ctx)
	if err == nil {
		t.Fatal("Commit should fail")
	}
	var ce *CommitError
	if !errors.As(err, &ce) {
		t.Fatalf("expected *CommitError, got %T: %v", err, err)
	}
	if ce.Part != 1 {
		t.Fatalf("failing part = %d, want 1 (counter is part 0)", ce.Part)
	}
	if !errors.Is(err, store.ErrNoNode) {
		t.Fatalf("expected ErrNoNode in chain, got %v", err)
	}
	if gen, err := db.Generation(ctx); err != nil || gen != 1 {
		t.Fatalf("Generation = %d, %v, want 1 (increment committed first)", gen, err)
	}
}

func TestNestedTxCommitTwice(t *testing.T) {
	ctx := context.Background()
	db, _, _ := newTestDB(t, nil)

	var outer NestedTx
	db.NewTxnIn(&outer).Create("/once")
	if err := outer.Commit(ctx); err != nil {
		t.Fatalf("Commit: %v", err)
	}
	if err := outer.Commit(ctx); !errors.Is(err, ErrCommitted) {
		t.Fatalf("second Commit = %v, want ErrCommitted", err)
	}
}

func TestNewRequiresStore(t *testing.T) {
	if _, err := New(context.Background(), Options{}); err == nil {
		t.Fatal("New without a store should fail")
	}
}
