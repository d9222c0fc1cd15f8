package history

import "sync"

// Default capacities for the process-wide buffers
const (
	TelemetryCapacity    = 500
	NotificationCapacity = 200
)

// Buffer is a fixed-capacity, insertion-ordered ring. When full, Append
// overwrites the oldest item. All methods are safe for concurrent use.
type Buffer[T any] struct {
	mu    sync.RWMutex
	items []T
	head  int // index of the oldest item
	size  int
}

// New creates a buffer holding at most capacity items
func New[T any](capacity int) *Buffer[T] {
	if capacity < 1 {
		capacity = 1
	}
	return &Buffer[T]{items: make([]T, capacity)}
}

// Append inserts item, evicting the oldest one when the buffer is full
func (b *Buffer[T]) Append(item T) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.size < len(b.items) {
		b.items[(b.head+b.size)%len(b.items)] = item
		b.size++
		return
	}
	b.items[b.head] = item
	b.head = (b.head + 1) % len(b.items)
}

// Recent returns up to limit of the newest items, oldest first.
// A non-positive limit returns everything.
func (b *Buffer[T]) Recent(limit int) []T {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if limit <= 0 || limit > b.size {
		limit = b.size
	}
	out := make([]T, limit)
	start := b.size - limit
	for i := 0; i < limit; i++ {
		out[i] = b.items[(b.head+start+i)%len(b.items)]
	}
	return out
}

// Filter returns up to limit of the newest items matching keep, oldest first
func (b *Buffer[T]) Filter(keep func(T) bool, limit int) []T {
	b.mu.RLock()
	defer b.mu.RUnlock()

	var matched []T
	for i := b.size - 1; i >= 0; i-- {
		item := b.items[(b.head+i)%len(b.items)]
		if !keep(item) {
			continue
		}
		matched = append(matched, item)
		if limit > 0 && len(matched) == limit {
			break
		}
	}
	for i, j := 0, len(matched)-1; i < j; i, j = i+1, j-1 {
		matched[i], matched[j] = matched[j], matched[i]
	}
	return matched
}

// Latest returns the newest item, or false when the buffer is empty
func (b *Buffer[T]) Latest() (T, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	var zero T
	if b.size == 0 {
		return zero, false
	}
	return b.items[(b.head+b.size-1)%len(b.items)], true
}

// Len reports the number of items held
func (b *Buffer[T]) Len() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.size
}

// Cap reports the fixed capacity
func (b *Buffer[T]) Cap() int {
	return len(b.items)
}
