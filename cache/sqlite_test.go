package cache

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/Keksclan/goQuoteSquirrel/quote"
)

func openTestSQLite(t *testing.T) *SQLite {
	t.Helper()
	s, err := OpenSQLite(filepath.Join(t.TempDir(), "quotes.db"))
	if err != nil {
		t.Fatalf("OpenSQLite: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestSQLite_UpsertAndGet(t *testing.T) {
	s := openTestSQLite(t)
	ctx := t.Context()

	if _, ok, err := s.Get(ctx, "AAPL"); err != nil || ok {
		t.Fatalf("expected miss, got ok=%v err=%v", ok, err)
	}

	if err := s.Set(ctx, "AAPL", []byte("v1"), 0); err != nil {
		t.Fatalf("Set: %v", err)
	}
	if err := s.Set(ctx, "AAPL", []byte("v2"), 0); err != nil {
		t.Fatalf("Set (update): %v", err)
	}

	v, ok, err := s.Get(ctx, "AAPL")
	if err != nil || !ok {
		t.Fatalf("Get: ok=%v err=%v", ok, err)
	}
	if string(v) != "v2" {
		t.Fatalf("got %q, want last write", v)
	}

	syms, err := s.Symbols(ctx)
	if err != nil {
		t.Fatalf("Symbols: %v", err)
	}
	if len(syms) != 1 || syms[0] != "AAPL" {
		t.Fatalf("Symbols = %v", syms)
	}
}

func TestSQLite_HardExpiry(t *testing.T) {
	s := openTestSQLite(t)
	now := time.Unix(1_000, 0)
	s.nowFunc = func() time.Time { return now }
	ctx := t.Context()

	_ = s.Set(ctx, "K", []byte("v"), 10*time.Second)
	if _, ok, _ := s.Get(ctx, "K"); !ok {
		t.Fatal("expected hit before expiry")
	}

	now = now.Add(11 * time.Second)
	if _, ok, _ := s.Get(ctx, "K"); ok {
		t.Fatal("expected miss after storage expiry")
	}
}

func TestSQLite_DeleteAndStore(t *testing.T) {
	db := openTestSQLite(t)
	store := NewStore(db)
	ctx := t.Context()

	if _, err := store.Set(ctx, "vfiax", quote.Quote{Price: 500}, "alphavantage", quote.ClassSlow); err != nil {
		t.Fatalf("Set: %v", err)
	}
	e, ok, err := store.Get(ctx, "VFIAX")
	if err != nil || !ok {
		t.Fatalf("Get: ok=%v err=%v", ok, err)
	}
	if e.SourceClass != quote.ClassSlow || e.Payload.Price != 500 {
		t.Fatalf("entry = %+v", e)
	}

	if err := store.Remove(ctx, "VFIAX"); err != nil {
		t.Fatalf("Remove: %v", err)
	}
	if err := db.Delete(ctx, "VFIAX"); err != nil {
		t.Fatalf("Delete missing: %v", err)
	}
}

func TestStore_LoadRemembersPersistedKeys(t *testing.T) {
	db := openTestSQLite(t)
	ctx := t.Context()
	for _, k := range []string{"MSFT", "AAPL"} {
		if err := db.Set(ctx, k, []byte("{}"), 0); err != nil {
			t.Fatalf("Set: %v", err)
		}
	}
	l1, err := NewL1(100)
	if err != nil {
		t.Fatalf("NewL1: %v", err)
	}
	t.Cleanup(func() { _ = l1.Close() })

	store := NewStore(NewTiered(l1, db))
	n, err := store.Load(ctx)
	if err != nil || n != 2 {
		t.Fatalf("Load = %d, %v", n, err)
	}
	if got := store.Keys(); len(got) != 2 || got[0] != "AAPL" || got[1] != "MSFT" {
		t.Fatalf("Keys = %v", got)
	}

	if n, err := NewStore(l1).Load(ctx); err != nil || n != 0 {
		t.Fatalf("L1 Load = %d, %v; want nothing listed", n, err)
	}
}
