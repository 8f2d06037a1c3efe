package idempotency

import (
	"context"
	"testing"

	"github.com/glebarez/sqlite"
	"gorm.io/gorm"
)

func setupStore(t *testing.T) *Store {
	t.Helper()
	db, err := gorm.Open(sqlite.Open("file:"+t.Name()+"?mode=memory&cache=shared"), &gorm.Config{})
	if err != nil {
		t.Fatalf("sqlite open: %v", err)
	}
	store, err := NewStore(db)
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	return store
}

func TestLookupMissThenCommit(t *testing.T) {
	ctx := context.Background()
	s := setupStore(t)

	res, err := s.Lookup(ctx, "scope1", "key1")
	if err != nil {
		t.Fatal(err)
	}
	if res.Status != StatusMiss {
		t.Fatalf("expected MISS, got %s", res.Status)
	}

	if err := s.PutInProgress(ctx, "scope1", "key1", "hash-a"); err != nil {
		t.Fatal(err)
	}
	res, err = s.Lookup(ctx, "scope1", "key1")
	if err != nil {
		t.Fatal(err)
	}
	if res.Status != StatusInProgress {
		t.Fatalf("expected IN_PROGRESS, got %s", res.Status)
	}

	if err := s.PutCommitted(ctx, "scope1", "key1", "hash-a", `{"ok":true}`, CategoryMoneyTx); err != nil {
		t.Fatal(err)
	}
	res, err = s.Lookup(ctx, "scope1", "key1")
	if err != nil {
		t.Fatal(err)
	}
	if res.Status != StatusCommitted || res.ResultJSON != `{"ok":true}` {
		t.Fatalf("expected committed result, got %+v", res)
	}
}

func TestPutInProgressRejectsDuplicate(t *testing.T) {
	ctx := context.Background()
	s := setupStore(t)
	if err := s.PutInProgress(ctx, "scope1", "key1", "hash-a"); err != nil {
		t.Fatal(err)
	}
	err := s.PutInProgress(ctx, "scope1", "key1", "hash-b")
	if err != ErrAlreadyExists {
		t.Fatalf("expected ErrAlreadyExists, got %v", err)
	}
}

func TestConflictCheck(t *testing.T) {
	if err := ConflictCheck("a", "a"); err != nil {
		t.Fatalf("matching hashes should not conflict: %v", err)
	}
	if err := ConflictCheck("a", "b"); err != ErrConflict {
		t.Fatalf("expected ErrConflict, got %v", err)
	}
}

func TestClearInProgressAllowsRetry(t *testing.T) {
	ctx := context.Background()
	s := setupStore(t)
	if err := s.PutInProgress(ctx, "scope1", "key1", "hash-a"); err != nil {
		t.Fatal(err)
	}
	if err := s.ClearInProgress(ctx, "scope1", "key1"); err != nil {
		t.Fatal(err)
	}
	res, err := s.Lookup(ctx, "scope1", "key1")
	if err != nil {
		t.Fatal(err)
	}
	if res.Status != StatusMiss {
		t.Fatalf("expected MISS after clear, got %s", res.Status)
	}
	if err := s.PutInProgress(ctx, "scope1", "key1", "hash-b"); err != nil {
		t.Fatalf("retry after clear should succeed: %v", err)
	}
}

func TestFastPreCheck(t *testing.T) {
	s := setupStore(t)
	if hit, _ := s.FastPreCheck("scope1", "key1", "hash-a"); hit {
		t.Fatal("expected miss before any write")
	}
	ctx := context.Background()
	_ = s.PutInProgress(ctx, "scope1", "key1", "hash-a")
	hit, matches := s.FastPreCheck("scope1", "key1", "hash-a")
	if !hit || !matches {
		t.Fatalf("expected hit+match, got hit=%v matches=%v", hit, matches)
	}
	hit, matches = s.FastPreCheck("scope1", "key1", "hash-b")
	if !hit || matches {
		t.Fatalf("expected hit+mismatch, got hit=%v matches=%v", hit, matches)
	}
}

func TestScopeHashDeterministic(t *testing.T) {
	h1 := ScopeHash("CUSTOMER", "cust-1", "P2P", "idem-1")
	h2 := ScopeHash("CUSTOMER", "cust-1", "P2P", "idem-1")
	if h1 != h2 {
		t.Fatal("scope hash should be deterministic")
	}
	h3 := ScopeHash("CUSTOMER", "cust-1", "P2P", "idem-2")
	if h1 == h3 {
		t.Fatal("scope hash should change with idempotency key")
	}
}
