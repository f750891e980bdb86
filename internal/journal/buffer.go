package journal

import "sync"

// Buffer is a thread-safe FIFO queue that doubles its capacity once it
// reaches 70% full. Push never blocks; consumers wait on Ready.
type Buffer[T any] struct {
	mu     sync.Mutex
	items  []T
	head   int
	size   int
	closed bool
	ready  chan struct{} // holds one token while items are queued

	pushed  int64
	popped  int64
	resizes int
}

// NewBuffer creates a buffer with the given initial capacity.
func NewBuffer[T any](capacity int) *Buffer[T] {
	if capacity < 1 {
		capacity = 1
	}
	return &Buffer[T]{
		items: make([]T, capacity),
		ready: make(chan struct{}, 1),
	}
}

// Push appends an item. It returns false once the buffer is closed.
func (b *Buffer[T]) Push(item T) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return false
	}

	threshold := max(len(b.items)*70/100, 1)
	if b.size+1 >= threshold {
		b.grow()
	}

	b.items[(b.head+b.size)%len(b.items)] = item
	b.size++
	b.pushed++

	select {
	case b.ready <- struct{}{}:
	default:
	}
	return true
}

// Ready returns a channel that receives when items may be available.
func (b *Buffer[T]) Ready() <-chan struct{} {
	return b.ready
}

// Drain removes up to limit items in FIFO order (all of them if limit <= 0).
func (b *Buffer[T]) Drain(limit int) []T {
	b.mu.Lock()
	defer b.mu.Unlock()

	n := b.size
	if limit > 0 && limit < n {
		n = limit
	}
	if n == 0 {
		return nil
	}

	out := make([]T, n)
	var zero T
	for i := range out {
		out[i] = b.items[b.head]
		b.items[b.head] = zero
		b.head = (b.head + 1) % len(b.items)
	}
	b.size -= n
	b.popped += int64(n)

	if b.size > 0 {
		select {
		case b.ready <- struct{}{}:
		default:
		}
	}
	return out
}

// Close stops further pushes. Queued items can still be drained.
func (b *Buffer[T]) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.closed = true
}

// Len returns the number of queued items.
func (b *Buffer[T]) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.size
}

// Cap returns the current capacity.
func (b *Buffer[T]) Cap() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.items)
}

// BufferStats contains buffer statistics.
type BufferStats struct {
	Queued   int   `json:"queued"`
	Capacity int   `json:"capacity"`
	Pushed   int64 `json:"pushed"`
	Popped   int64 `json:"popped"`
	Resizes  int   `json:"resizes"`
}

// Stats returns buffer statistics.
func (b *Buffer[T]) Stats() BufferStats {
	b.mu.Lock()
	defer b.mu.Unlock()
	return BufferStats{
		Queued:   b.size,
		Capacity: len(b.items),
		Pushed:   b.pushed,
		Popped:   b.popped,
		Resizes:  b.resizes,
	}
}

// grow doubles the capacity and unwraps the ring. Caller holds mu.
func (b *Buffer[T]) grow() {
	next := make([]T, len(b.items)*2)
	n := copy(next, b.items[b.head:])
	if n < b.size {
		copy(next[n:], b.items[:b.size-n])
	}
	b.items = next
	b.head = 0
	b.resizes++
}
