package queue

import (
	"context"
	"sync"
)

// OverflowPolicy decides what Send does when a bounded buffer is full.
type OverflowPolicy string

const (
	// OverflowBlock makes Send wait until a consumer frees a slot.
	OverflowBlock OverflowPolicy = "block"

	// OverflowDropOldest discards the head of the queue to make room.
	OverflowDropOldest OverflowPolicy = "drop_oldest"
)

// GrowableBuffer is a thread-safe FIFO that doubles its backing ring when it
// reaches 70% full. An optional limit turns it into a bounded queue.
type GrowableBuffer[T any] struct {
	mu       sync.Mutex
	cond     *sync.Cond
	buf      []T
	head     int // read position
	tail     int // write position
	count    int
	capacity int
	closed   bool

	limit  int // 0 = unbounded
	policy OverflowPolicy

	// Stats
	totalReceived int64
	totalSent     int64
	dropped       int64
	resizeCount   int
}

// NewGrowableBuffer creates an unbounded buffer with the given initial capacity.
func NewGrowableBuffer[T any](initialCapacity int) *GrowableBuffer[T] {
	if initialCapacity < 1 {
		initialCapacity = 1
	}
	b := &GrowableBuffer[T]{
		buf:      make([]T, initialCapacity),
		capacity: initialCapacity,
	}
	b.cond = sync.NewCond(&b.mu)
	return b
}

// NewBoundedBuffer creates a buffer that holds at most limit items and applies
// policy once full. A limit < 1 yields an unbounded buffer.
func NewBoundedBuffer[T any](initialCapacity, limit int, policy OverflowPolicy) *GrowableBuffer[T] {
	b := NewGrowableBuffer[T](initialCapacity)
	if limit > 0 {
		b.limit = limit
		b.policy = policy
		if b.policy == "" {
			b.policy = OverflowBlock
		}
	}
	return b
}

// Send adds an item to the buffer. Returns false if the buffer is closed.
// On a full bounded buffer with OverflowBlock it waits for room.
func (b *GrowableBuffer[T]) Send(item T) bool {
	return b.SendContext(context.Background(), item)
}

// SendContext is Send with a context that can abort a blocked producer.
func (b *GrowableBuffer[T]) SendContext(ctx context.Context, item T) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return false
	}

	if b.limit > 0 && b.count >= b.limit {
		switch b.policy {
		case OverflowDropOldest:
			b.popLocked()
			b.totalSent--
			b.dropped++
		default:
			stop := context.AfterFunc(ctx, b.wake)
			defer stop()
			for b.count >= b.limit && !b.closed && ctx.Err() == nil {
				b.cond.Wait()
			}
			if ctx.Err() != nil {
				return false
			}
		}
	}

	if b.closed {
		return false
	}

	threshold := (b.capacity * 70) / 100
	if threshold < 1 {
		threshold = 1
	}
	if b.count+1 >= threshold {
		b.grow()
	}

	b.buf[b.tail] = item
	b.tail = (b.tail + 1) % b.capacity
	b.count++
	b.totalReceived++

	b.cond.Broadcast()
	return true
}

// Receive removes and returns the head item, blocking until one is available.
// Returns false once the buffer is closed and empty.
func (b *GrowableBuffer[T]) Receive() (T, bool) {
	item, err := b.ReceiveContext(context.Background())
	return item, err == nil
}

// ReceiveContext blocks until an item is available, the buffer is closed and
// drained (ErrClosed), or ctx is done (ctx.Err()).
func (b *GrowableBuffer[T]) ReceiveContext(ctx context.Context) (T, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	stop := context.AfterFunc(ctx, b.wake)
	defer stop()

	for b.count == 0 && !b.closed && ctx.Err() == nil {
		b.cond.Wait()
	}

	var zero T
	if b.count == 0 {
		if err := ctx.Err(); err != nil {
			return zero, err
		}
		return zero, ErrClosed
	}

	item := b.popLocked()
	b.cond.Broadcast()
	return item, nil
}

// TryReceive removes the head item without blocking.
func (b *GrowableBuffer[T]) TryReceive() (T, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.count == 0 {
		var zero T
		return zero, false
	}

	item := b.popLocked()
	b.cond.Broadcast()
	return item, true
}

// DrainTo removes up to max items (all when max <= 0) in FIFO order.
func (b *GrowableBuffer[T]) DrainTo(max int) []T {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.count == 0 {
		return nil
	}

	n := b.count
	if max > 0 && max < n {
		n = max
	}

	result := make([]T, n)
	for i := 0; i < n; i++ {
		result[i] = b.popLocked()
	}
	b.cond.Broadcast()
	return result
}

// Close marks the buffer closed. Pending items stay readable; Send fails and
// blocked callers wake up.
func (b *GrowableBuffer[T]) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.closed = true
	b.cond.Broadcast()
}

// Len returns the number of queued items.
func (b *GrowableBuffer[T]) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.count
}

// Cap returns the current ring capacity.
func (b *GrowableBuffer[T]) Cap() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.capacity
}

// Stats returns buffer statistics.
func (b *GrowableBuffer[T]) Stats() BufferStats {
	b.mu.Lock()
	defer b.mu.Unlock()
	return BufferStats{
		Count:         b.count,
		Capacity:      b.capacity,
		Limit:         b.limit,
		TotalReceived: b.totalReceived,
		TotalSent:     b.totalSent,
		Dropped:       b.dropped,
		ResizeCount:   b.resizeCount,
	}
}

// BufferStats contains buffer statistics.
type BufferStats struct {
	Count         int
	Capacity      int
	Limit         int
	TotalReceived int64
	TotalSent     int64
	Dropped       int64
	ResizeCount   int
}

// popLocked removes the head item. Must be called with lock held and count > 0.
func (b *GrowableBuffer[T]) popLocked() T {
	item := b.buf[b.head]
	var zero T
	b.buf[b.head] = zero // Clear reference for GC
	b.head = (b.head + 1) % b.capacity
	b.count--
	b.totalSent++
	return item
}

func (b *GrowableBuffer[T]) wake() {
	b.mu.Lock()
	b.cond.Broadcast()
	b.mu.Unlock()
}

// grow doubles the ring capacity. Must be called with lock held.
func (b *GrowableBuffer[T]) grow() {
	newCapacity := b.capacity * 2
	newBuf := make([]T, newCapacity)

	if b.count > 0 {
		if b.head < b.tail {
			copy(newBuf, b.buf[b.head:b.tail])
		} else {
			// Wrapped: [head...end) + [0...tail)
			n := copy(newBuf, b.buf[b.head:])
			copy(newBuf[n:], b.buf[:b.tail])
		}
	}

	b.buf = newBuf
	b.head = 0
	b.tail = b.count
	b.capacity = newCapacity
	b.resizeCount++
}
