package queue

import (
	"fmt"
	"sync"
	"testing"
)

func TestMemory_DequeueOldestFirst(t *testing.T) {
	q := NewMemory()
	ctx := t.Context()

	_ = q.Enqueue(ctx, "AAPL", 400)
	_ = q.Enqueue(ctx, "MSFT", 10_000)
	_ = q.Enqueue(ctx, "NEW", NeverCached)
	_ = q.Enqueue(ctx, "GOOG", 301)

	want := []string{"NEW", "MSFT", "AAPL", "GOOG"}
	for i, w := range want {
		key, ok, err := q.DequeueOldest(ctx)
		if err != nil || !ok {
			t.Fatalf("dequeue %d: ok=%v err=%v", i, ok, err)
		}
		if key != w {
			t.Fatalf("dequeue %d: got %q, want %q", i, key, w)
		}
	}

	if _, ok, _ := q.DequeueOldest(ctx); ok {
		t.Fatal("expected empty queue")
	}
}

func TestMemory_EnqueueDeduplicates(t *testing.T) {
	q := NewMemory()
	ctx := t.Context()

	_ = q.Enqueue(ctx, "aapl", 10)
	_ = q.Enqueue(ctx, "AAPL", 500)
	_ = q.Enqueue(ctx, "MSFT", 100)

	if n, _ := q.Len(ctx); n != 2 {
		t.Fatalf("Len = %d, want 2", n)
	}
	top, ok, _ := q.Peek(ctx)
	if !ok || top.Key != "AAPL" || top.Priority != 500 {
		t.Fatalf("Peek = %+v, want AAPL with updated priority", top)
	}

	// Lowering the priority moves it back down.
	_ = q.Enqueue(ctx, "AAPL", 1)
	top, _, _ = q.Peek(ctx)
	if top.Key != "MSFT" {
		t.Fatalf("Peek after lowering = %+v", top)
	}
}

func TestMemory_TiesKeepInsertionOrder(t *testing.T) {
	q := NewMemory()
	ctx := t.Context()

	for _, k := range []string{"A", "B", "C"} {
		_ = q.Enqueue(ctx, k, NeverCached)
	}
	for _, w := range []string{"A", "B", "C"} {
		if k, _, _ := q.DequeueOldest(ctx); k != w {
			t.Fatalf("got %q, want %q", k, w)
		}
	}
}

func TestMemory_RemoveIdempotent(t *testing.T) {
	q := NewMemory()
	ctx := t.Context()

	_ = q.Enqueue(ctx, "A", 1)
	_ = q.Enqueue(ctx, "B", 2)
	_ = q.Enqueue(ctx, "C", 3)

	if err := q.Remove(ctx, "b"); err != nil {
		t.Fatalf("Remove: %v", err)
	}
	if err := q.Remove(ctx, "B"); err != nil {
		t.Fatalf("Remove again: %v", err)
	}
	if ok, _ := q.Contains(ctx, "B"); ok {
		t.Fatal("B should be gone")
	}
	if ok, _ := q.Contains(ctx, "a"); !ok {
		t.Fatal("A should still be queued")
	}
	if k, _, _ := q.DequeueOldest(ctx); k != "C" {
		t.Fatalf("got %q, want C", k)
	}
	if k, _, _ := q.DequeueOldest(ctx); k != "A" {
		t.Fatalf("got %q, want A", k)
	}
}

func TestMemory_ConcurrentEnqueueNoDuplicates(t *testing.T) {
	q := NewMemory()
	ctx := t.Context()

	var wg sync.WaitGroup
	for g := range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range 100 {
				_ = q.Enqueue(ctx, fmt.Sprintf("T%d", i%10), float64(g*i))
			}
		}()
	}
	wg.Wait()

	if n, _ := q.Len(ctx); n != 10 {
		t.Fatalf("Len = %d, want 10", n)
	}

	seen := map[string]bool{}
	for {
		k, ok, _ := q.DequeueOldest(ctx)
		if !ok {
			break
		}
		if seen[k] {
			t.Fatalf("duplicate key %q", k)
		}
		seen[k] = true
	}
	if len(seen) != 10 {
		t.Fatalf("dequeued %d distinct keys, want 10", len(seen))
	}
}
