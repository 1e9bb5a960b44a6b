package buffer

import (
	"sync"

	"go.uber.org/zap"
)

// RingBuffer is a thread-safe generic circular buffer.
// When full, new items overwrite the oldest and the overwrite is counted.
type RingBuffer[T any] struct {
	mu          sync.RWMutex
	data        []T
	capacity    int
	size        int
	head        int
	overwritten uint64
	logger      *zap.Logger
}

// New creates a new RingBuffer with the specified capacity
func New[T any](capacity int, logger *zap.Logger) *RingBuffer[T] {
	if capacity < 1 {
		capacity = 1
	}
	return &RingBuffer[T]{
		data:     make([]T, capacity),
		capacity: capacity,
		logger:   logger,
	}
}

// Add inserts a new item, overwriting the oldest entry when full
func (rb *RingBuffer[T]) Add(item T) {
	rb.mu.Lock()
	defer rb.mu.Unlock()

	rb.addLocked(item)
}

// AddAll inserts items in order under a single lock
func (rb *RingBuffer[T]) AddAll(items []T) {
	rb.mu.Lock()
	defer rb.mu.Unlock()

	for _, item := range items {
		rb.addLocked(item)
	}
}

func (rb *RingBuffer[T]) addLocked(item T) {
	if rb.size == rb.capacity {
		rb.overwritten++
		// Log the first overwrite and then every capacity-th one
		if rb.overwritten%uint64(rb.capacity) == 1 || rb.capacity == 1 {
			rb.logger.Warn("ring buffer full, overwriting oldest entry",
				zap.Int("capacity", rb.capacity),
				zap.Uint64("overwritten_total", rb.overwritten))
		}
	}

	tail := (rb.head + rb.size) % rb.capacity
	if rb.size == rb.capacity {
		rb.data[rb.head] = item
		rb.head = (rb.head + 1) % rb.capacity
		return
	}
	rb.data[tail] = item
	rb.size++
}

// GetAllAndClear atomically retrieves all buffered items, oldest first, and
// clears the buffer. The returned slice is a copy.
func (rb *RingBuffer[T]) GetAllAndClear() []T {
	rb.mu.Lock()
	defer rb.mu.Unlock()

	if rb.size == 0 {
		return nil
	}

	results := make([]T, rb.size)
	for i := 0; i < rb.size; i++ {
		results[i] = rb.data[(rb.head+i)%rb.capacity]
	}

	// Drop references so the GC can reclaim them
	var zeroValue T
	for i := range rb.data {
		rb.data[i] = zeroValue
	}
	rb.size = 0
	rb.head = 0

	return results
}

// Size returns the current number of entries in the buffer
func (rb *RingBuffer[T]) Size() int {
	rb.mu.RLock()
	defer rb.mu.RUnlock()
	return rb.size
}

// Capacity returns the maximum capacity of the buffer
func (rb *RingBuffer[T]) Capacity() int {
	return rb.capacity
}

// Overwritten returns how many items were dropped because the buffer was full
func (rb *RingBuffer[T]) Overwritten() uint64 {
	rb.mu.RLock()
	defer rb.mu.RUnlock()
	return rb.overwritten
}
