package coorddb

import (
	"context"
	"testing"

	"github.com/unkn0wn-root/coorddb/codec"
)

type nodeState struct {
	Hostname string `json:"hostname"`
	State    string `json:"state"`
}

func TestRecordRoundTrip(t *testing.T) {
	ctx := context.Background()
	db, _, _ := newTestDB(t, nil)
	rec := NewRecord[nodeState](db, codec.JSON[nodeState]{})

	if err := db.Create(ctx, "/nodes/n1"); err != nil {
		t.Fatalf("Create: %v", err)
	}

	// Nothing stored yet.
	if _, ok, err := rec.Get(ctx, "/nodes/n1"); err != nil || ok {
		t.Fatalf("Get = ok=%v err=%v, want absent", ok, err)
	}

	want := nodeState{Hostname: "n1.example", State: "active"}
	var outer NestedTx
	txn := db.NewTxnIn(&outer)
	if err := rec.Put(txn, "/nodes/n1", want); err != nil {
		t.Fatalf("Put: %v", err)
	}
	if err := outer.Commit(ctx); err != nil {
		t.Fatalf("Commit: %v", err)
	}

	got, ok, err := rec.Get(ctx, "/nodes/n1")
	if err != nil || !ok {
		t.Fatalf("Get = ok=%v err=%v", ok, err)
	}
	if got != want {
		t.Fatalf("Get = %+v, want %+v", got, want)
	}
}

func TestRecordDecodeErrorNamesPath(t *testing.T) {
	ctx := context.Background()
	db, _, _ := newTestDB(t, nil)
	rec := NewRecord[nodeState](db, codec.JSON[nodeState]{})

	if err := db.Create(ctx, "/nodes/bad"); err != nil {
		t.Fatalf("Create: %v", err)
	}
	var outer NestedTx
	db.NewTxnIn(&outer).Put("/nodes/bad", []byte("{not json"))
	if err := outer.Commit(ctx); err != nil {
		t.Fatalf("Commit: %v", err)
	}

	if _, _, err := rec.Get(ctx, "/nodes/bad"); err == nil {
		t.Fatal("Get of corrupt blob should fail")
	}
}
