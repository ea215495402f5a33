package bolt

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/unkn0wn-root/coorddb/store"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "tree.db"))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { _ = s.Close(context.Background()) })
	return s
}

func TestTreeReadsAndWrites(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	if err := s.Create(ctx, "/a/b"); err != nil {
		t.Fatalf("Create: %v", err)
	}
	if err := s.Create(ctx, "/a/b"); err != nil {
		t.Fatalf("repeat Create: %v", err)
	}

	txn := s.NewTxn()
	txn.Create("/a/c")
	txn.Put("/a/b", []byte("payload"))
	if err := txn.Commit(ctx); err != nil {
		t.Fatalf("Commit: %v", err)
	}

	names, err := s.Children(ctx, "/a")
	if err != nil || len(names) != 2 || names[0] != "b" || names[1] != "c" {
		t.Fatalf("Children = %v, %v", names, err)
	}
	b, ok, err := s.Data(ctx, "/a/b")
	if err != nil || !ok || string(b) != "payload" {
		t.Fatalf("Data = %q ok=%v err=%v", b, ok, err)
	}

	// Data key must not surface as a child.
	names, err = s.Children(ctx, "/a/b")
	if err != nil || len(names) != 0 {
		t.Fatalf("Children of leaf = %v, %v", names, err)
	}
}

func TestTxnRollsBackOnFailure(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	if err := s.Create(ctx, "/a"); err != nil {
		t.Fatalf("Create: %v", err)
	}

	txn := s.NewTxn()
	txn.Create("/a/kept")
	txn.Put("/missing", []byte("x"))
	if err := txn.Commit(ctx); !errors.Is(err, store.ErrNoNode) {
		t.Fatalf("Commit = %v, want ErrNoNode", err)
	}
	if names, _ := s.Children(ctx, "/a"); len(names) != 0 {
		t.Fatalf("rolled back txn leaked state: %v", names)
	}
}

func TestDeleteSemantics(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	if err := s.Create(ctx, "/a/b"); err != nil {
		t.Fatalf("Create: %v", err)
	}

	txn := s.NewTxn()
	txn.Delete("/a")
	if err := txn.Commit(ctx); !errors.Is(err, store.ErrNotEmpty) {
		t.Fatalf("delete non-empty = %v, want ErrNotEmpty", err)
	}

	txn = s.NewTxn()
	txn.Delete("/a/b")
	txn.Delete("/a")
	if err := txn.Commit(ctx); err != nil {
		t.Fatalf("Commit: %v", err)
	}
	if names, _ := s.Children(ctx, "/"); len(names) != 0 {
		t.Fatalf("Children(/) = %v, want empty", names)
	}
}

func TestCounterSurvivesReopen(t *testing.T) {
	ctx := context.Background()
	file := filepath.Join(t.TempDir(), "tree.db")

	s, err := Open(file)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	c := s.Counter("/changeCounter")
	for i := 0; i < 2; i++ {
		if err := c.Increment(ctx); err != nil {
			t.Fatalf("Increment: %v", err)
		}
	}
	if err := s.Close(ctx); err != nil {
		t.Fatalf("Close: %v", err)
	}

	s, err = Open(file)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer s.Close(ctx)
	if v, err := s.Counter("/changeCounter").Get(ctx); err != nil || v != 2 {
		t.Fatalf("Get after reopen = %d, %v, want 2", v, err)
	}
}
