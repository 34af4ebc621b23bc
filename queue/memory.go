package queue

import (
	"container/heap"
	"context"
	"sync"

	"github.com/Keksclan/goQuoteSquirrel/quote"
)

// Memory is an in-process RefreshQueue: a max-heap on priority with a key
// index for deduplication. Ties are broken by insertion order.
type Memory struct {
	mu    sync.Mutex
	items itemHeap
	index map[string]*item
	seq   uint64
}

// NewMemory creates an empty in-memory queue.
func NewMemory() *Memory {
	return &Memory{index: make(map[string]*item)}
}

// Enqueue implements RefreshQueue.
func (m *Memory) Enqueue(_ context.Context, key string, priority float64) error {
	key = quote.Canonical(key)
	m.mu.Lock()
	defer m.mu.Unlock()

	if it, ok := m.index[key]; ok {
		it.priority = priority
		heap.Fix(&m.items, it.pos)
		return nil
	}
	m.seq++
	it := &item{key: key, priority: priority, seq: m.seq}
	m.index[key] = it
	heap.Push(&m.items, it)
	return nil
}

// DequeueOldest implements RefreshQueue.
func (m *Memory) DequeueOldest(context.Context) (string, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if len(m.items) == 0 {
		return "", false, nil
	}
	it := heap.Pop(&m.items).(*item)
	delete(m.index, it.key)
	return it.key, true, nil
}

// Peek implements RefreshQueue.
func (m *Memory) Peek(context.Context) (Entry, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if len(m.items) == 0 {
		return Entry{}, false, nil
	}
	top := m.items[0]
	return Entry{Key: top.key, Priority: top.priority}, true, nil
}

// Remove implements RefreshQueue.
func (m *Memory) Remove(_ context.Context, key string) error {
	key = quote.Canonical(key)
	m.mu.Lock()
	defer m.mu.Unlock()

	if it, ok := m.index[key]; ok {
		heap.Remove(&m.items, it.pos)
		delete(m.index, key)
	}
	return nil
}

// Contains implements RefreshQueue.
func (m *Memory) Contains(_ context.Context, key string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.index[quote.Canonical(key)]
	return ok, nil
}

// Len implements RefreshQueue.
func (m *Memory) Len(context.Context) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.items), nil
}

// Close implements RefreshQueue.
func (m *Memory) Close() error { return nil }

type item struct {
	key      string
	priority float64
	seq      uint64
	pos      int
}

// itemHeap implements heap.Interface ordered by descending priority.
type itemHeap []*item

func (h itemHeap) Len() int { return len(h) }

func (h itemHeap) Less(i, j int) bool {
	if h[i].priority != h[j].priority {
		return h[i].priority > h[j].priority
	}
	return h[i].seq < h[j].seq
}

func (h itemHeap) Swap(i, j int) {
	h[i], h[j] = h[j], h[i]
	h[i].pos = i
	h[j].pos = j
}

func (h *itemHeap) Push(x any) {
	it := x.(*item)
	it.pos = len(*h)
	*h = append(*h, it)
}

func (h *itemHeap) Pop() any {
	old := *h
	n := len(old)
	it := old[n-1]
	old[n-1] = nil
	*h = old[:n-1]
	it.pos = -1
	return it
}
