package retry

import (
	"sync"
	"time"
)

// MinDebounceDelay is the lowest accepted debounce delay; shorter values
// are raised to it.
const MinDebounceDelay = 100 * time.Millisecond

// DebouncedBatcher coalesces pushed items into batches. Each Push restarts
// the delay timer; the handler runs once with the whole batch when the timer
// fires or when maxWait has passed since the first pending item. The batcher
// owns its pending queue: Cancel drops items without execution, Flush runs
// the handler synchronously before returning.
type DebouncedBatcher[T any] struct {
	mu      sync.Mutex
	pending []T
	timer   *time.Timer
	firstAt time.Time
	delay   time.Duration
	maxWait time.Duration
	handler func([]T)
}

// NewDebouncedBatcher creates a batcher. delay below MinDebounceDelay is
// raised to it; maxWait of zero disables the first-item deadline.
func NewDebouncedBatcher[T any](delay, maxWait time.Duration, handler func([]T)) *DebouncedBatcher[T] {
	if delay < MinDebounceDelay {
		delay = MinDebounceDelay
	}
	return &DebouncedBatcher[T]{
		delay:   delay,
		maxWait: maxWait,
		handler: handler,
	}
}

// Push appends an item and (re)starts the delay timer.
func (b *DebouncedBatcher[T]) Push(item T) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if len(b.pending) == 0 {
		b.firstAt = time.Now()
	}
	b.pending = append(b.pending, item)

	if b.timer != nil {
		b.timer.Stop()
	}

	wait := b.delay
	if b.maxWait > 0 {
		remaining := b.maxWait - time.Since(b.firstAt)
		if remaining < wait {
			wait = remaining
		}
		if wait < 0 {
			wait = 0
		}
	}
	b.timer = time.AfterFunc(wait, b.fire)
}

// fire drains the queue from the timer goroutine.
func (b *DebouncedBatcher[T]) fire() {
	batch := b.take()
	if len(batch) > 0 {
		b.handler(batch)
	}
}

// Flush runs the handler synchronously with everything pushed so far.
// Items are delivered exactly once: the queue is drained under the lock, so
// a concurrently firing timer finds it empty.
func (b *DebouncedBatcher[T]) Flush() {
	batch := b.take()
	if len(batch) > 0 {
		b.handler(batch)
	}
}

// Cancel drops all pending items and stops the timer.
func (b *DebouncedBatcher[T]) Cancel() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.timer != nil {
		b.timer.Stop()
		b.timer = nil
	}
	b.pending = nil
	b.firstAt = time.Time{}
}

// Pending returns the number of queued items.
func (b *DebouncedBatcher[T]) Pending() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.pending)
}

func (b *DebouncedBatcher[T]) take() []T {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.timer != nil {
		b.timer.Stop()
		b.timer = nil
	}
	batch := b.pending
	b.pending = nil
	b.firstAt = time.Time{}
	return batch
}
