package registry

import "sync"

// breaker is a single consecutive-failure counter that trips at threshold:
// while tripped, reads should be skipped and answered with an empty result
// instantly; writes still attempt. Any success resets the counter to zero.
type breaker struct {
	threshold int

	mu       sync.Mutex
	failures int
}

func newBreaker(threshold int) *breaker {
	return &breaker{threshold: threshold}
}

// Open reports whether the breaker is currently tripped.
func (b *breaker) Open() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.threshold > 0 && b.failures >= b.threshold
}

func (b *breaker) RecordSuccess() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.failures = 0
}

// RecordFailure increments the counter and reports whether this call just
// tripped the breaker.
func (b *breaker) RecordFailure() (justTripped bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	wasOpen := b.threshold > 0 && b.failures >= b.threshold
	b.failures++
	isOpen := b.threshold > 0 && b.failures >= b.threshold
	return !wasOpen && isOpen
}
