package execution

import "time"

// Backoff is the bounded retry state machine: an attempt counter and the
// delay before the next attempt. The delay starts at Base and doubles up to
// Max. It holds no clock; the caller does the waiting.
type Backoff struct {
	base        time.Duration
	max         time.Duration
	maxAttempts int

	attempt int
	next    time.Duration
}

func NewBackoff(base, maxDelay time.Duration, maxAttempts int) *Backoff {
	if maxAttempts < 1 {
		maxAttempts = 1
	}
	if maxDelay < base {
		maxDelay = base
	}
	return &Backoff{base: base, max: maxDelay, maxAttempts: maxAttempts, next: base}
}

// Begin starts the next attempt and returns its 1-based number.
func (b *Backoff) Begin() int {
	b.attempt++
	return b.attempt
}

// Attempts is how many attempts have begun.
func (b *Backoff) Attempts() int { return b.attempt }

// Fail records that the current attempt failed transiently. It returns the
// delay before the next attempt, or false once attempts are exhausted.
func (b *Backoff) Fail() (time.Duration, bool) {
	if b.attempt >= b.maxAttempts {
		return 0, false
	}
	d := b.next
	b.next *= 2
	if b.next > b.max {
		b.next = b.max
	}
	return d, true
}
