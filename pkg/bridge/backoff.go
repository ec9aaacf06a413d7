package bridge

import "time"

// backoff implements bounded exponential backoff for the reconnect loop.
type backoff struct {
	min, max time.Duration
	next     time.Duration
}

func newBackoff(min, max time.Duration) *backoff {
	return &backoff{min: min, max: max, next: min}
}

// Next returns the current delay and doubles it for the following call,
// capped at max.
func (b *backoff) Next() time.Duration {
	d := b.next
	b.next *= 2
	if b.next > b.max {
		b.next = b.max
	}
	return d
}

// Reset restores the minimum delay after a successful reconnection.
func (b *backoff) Reset() {
	b.next = b.min
}
