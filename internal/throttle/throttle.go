// Package throttle implements a token-bucket queue used to rate-limit
// per-connection command processing (spec.md §4, "flood protection").
package throttle

import (
	"errors"
	"sync"
)

// ErrFull is returned by Push when the queue has already reached its
// configured maximum depth - distinguishable from ordinary throttling so
// callers can disconnect a client that is flooding rather than just
// making it wait.
var ErrFull = errors.New("throttled queue is full")

// Queue rate-limits items to at most num items per time seconds, with
// burst extra items released immediately on top of the steady-state
// allowance. maxLen bounds how many queued-but-not-yet-released items
// are held before Push starts returning ErrFull.
type Queue[T any] struct {
	mu     sync.Mutex
	items  []T
	maxLen int

	rate     float64 // tokens accrued per second
	capacity float64 // burst + 1, the most tokens the bucket ever holds

	tokens      float64
	last        int64
	initialized bool
}

// New returns an empty Queue releasing at most num items per time
// seconds (time > 0), with burst extra items available immediately,
// holding at most maxLen queued items at once (0 means unlimited).
func New[T any](num, time, burst int64, maxLen int) *Queue[T] {
	rate := float64(num) / float64(time)
	return &Queue[T]{rate: rate, capacity: float64(burst + 1), maxLen: maxLen}
}

// Push enqueues item, failing with ErrFull if the queue is already at
// maxLen.
func (q *Queue[T]) Push(item T) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.maxLen > 0 && len(q.items) >= q.maxLen {
		return ErrFull
	}
	q.items = append(q.items, item)
	return nil
}

// Next releases the next queued item if the token bucket has capacity at
// the given time (unix seconds, non-decreasing across calls). Returns
// ok=false if the queue is empty or the bucket has no token available
// yet.
func (q *Queue[T]) Next(now int64) (item T, ok bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.items) == 0 {
		return item, false
	}

	if !q.initialized {
		q.tokens = q.capacity
		q.last = now
		q.initialized = true
	} else if elapsed := now - q.last; elapsed > 0 {
		q.tokens += float64(elapsed) * q.rate
		if q.tokens > q.capacity {
			q.tokens = q.capacity
		}
		q.last = now
	}

	if q.tokens < 1 {
		return item, false
	}

	q.tokens--
	item = q.items[0]
	q.items = q.items[1:]
	return item, true
}

// Len reports how many items are currently queued.
func (q *Queue[T]) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}
