package metadata

import (
	"context"
	"errors"
	"testing"
)

func TestMemoryStore_GetPut(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()

	res, err := s.Get(ctx, "/a")
	if err != nil || res.Exists {
		t.Fatalf("Get missing = %+v, %v", res, err)
	}

	v1, err := s.Put(ctx, "/a", []byte("one"))
	if err != nil {
		t.Fatalf("Put: %v", err)
	}
	v2, err := s.Put(ctx, "/a", []byte("two"))
	if err != nil {
		t.Fatalf("Put: %v", err)
	}
	if v2 <= v1 {
		t.Errorf("versions should increase: %d then %d", v1, v2)
	}

	res, _ = s.Get(ctx, "/a")
	if string(res.Value) != "two" || res.Version != v2 {
		t.Errorf("Get = %q@%d", res.Value, res.Version)
	}
}

func TestMemoryStore_CAS(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()

	v, err := s.Put(ctx, "/k", []byte("x"), WithExpectedVersion(0))
	if err != nil {
		t.Fatalf("create with version 0: %v", err)
	}
	if _, err := s.Put(ctx, "/k", []byte("y"), WithExpectedVersion(0)); !errors.Is(err, ErrVersionMismatch) {
		t.Errorf("expected ErrVersionMismatch, got %v", err)
	}
	if _, err := s.Put(ctx, "/k", []byte("y"), WithExpectedVersion(v)); err != nil {
		t.Errorf("update with current version: %v", err)
	}
}

func TestMemoryStore_List(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	for _, k := range []string{"/p/b", "/p/a", "/q/a", "/p/c"} {
		if _, err := s.Put(ctx, k, []byte(k)); err != nil {
			t.Fatal(err)
		}
	}

	kvs, err := s.List(ctx, "/p/", "", 0)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(kvs) != 3 || kvs[0].Key != "/p/a" || kvs[2].Key != "/p/c" {
		t.Errorf("prefix list = %+v", kvs)
	}

	kvs, _ = s.List(ctx, "/p/a", "/p/c", 0)
	if len(kvs) != 2 {
		t.Errorf("range list len = %d, want 2", len(kvs))
	}

	kvs, _ = s.List(ctx, "/p/", "", 1)
	if len(kvs) != 1 {
		t.Errorf("limited list len = %d, want 1", len(kvs))
	}
}

func TestMemoryStore_Txn(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	v, _ := s.Put(ctx, "/a", []byte("1"))

	err := s.Txn(ctx, func(txn Txn) error {
		if _, _, err := txn.Get("/missing"); !errors.Is(err, ErrKeyNotFound) {
			t.Errorf("txn Get missing = %v", err)
		}
		txn.PutWithVersion("/a", []byte("2"), v)
		txn.Put("/b", []byte("b"))
		return nil
	})
	if err != nil {
		t.Fatalf("Txn: %v", err)
	}
	if s.Len() != 2 {
		t.Errorf("Len = %d, want 2", s.Len())
	}

	// A stale version aborts the whole batch.
	err = s.Txn(ctx, func(txn Txn) error {
		txn.PutWithVersion("/a", []byte("3"), v)
		txn.Delete("/b")
		return nil
	})
	if !errors.Is(err, ErrVersionMismatch) {
		t.Fatalf("expected ErrVersionMismatch, got %v", err)
	}
	res, _ := s.Get(ctx, "/b")
	if !res.Exists {
		t.Error("aborted txn must not delete /b")
	}

	sentinel := errors.New("abort")
	if err := s.Txn(ctx, func(Txn) error { return sentinel }); !errors.Is(err, sentinel) {
		t.Errorf("Txn error = %v, want sentinel", err)
	}
}

func TestMemoryStore_Closed(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	_ = s.Close()

	if _, err := s.Get(ctx, "/a"); !errors.Is(err, ErrStoreClosed) {
		t.Errorf("Get after close = %v", err)
	}
	if _, err := s.Put(ctx, "/a", nil); !errors.Is(err, ErrStoreClosed) {
		t.Errorf("Put after close = %v", err)
	}
	if err := s.Delete(ctx, "/a"); !errors.Is(err, ErrStoreClosed) {
		t.Errorf("Delete after close = %v", err)
	}
}

func TestMemoryStore_ContextCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	s := NewMemoryStore()
	if _, err := s.Get(ctx, "/a"); !errors.Is(err, context.Canceled) {
		t.Errorf("Get with cancelled ctx = %v", err)
	}
}
