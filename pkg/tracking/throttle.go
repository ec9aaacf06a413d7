package tracking

import (
	"time"

	"github.com/elvinlabs/facetrack/pkg/protocol"
)

// Throttler rate-limits outbound movement commands. Same-status commands
// are suppressed until the minimum interval elapses; status changes are
// emitted immediately since they carry safety-relevant transitions.
// Suppressed frames are discarded, not queued (last-value-wins).
type Throttler struct {
	minInterval time.Duration

	emitted    bool
	lastStatus protocol.Status
	lastEmit   time.Time
}

// NewThrottler creates a throttler with the given minimum interval
// between same-status emissions.
func NewThrottler(minInterval time.Duration) *Throttler {
	return &Throttler{minInterval: minInterval}
}

// ShouldEmit decides whether this frame's status is published now.
// Calling it records the emission when it returns true.
func (t *Throttler) ShouldEmit(now time.Time, status protocol.Status) bool {
	switch {
	case !t.emitted:
		// First decision since startup
	case status != t.lastStatus:
		// Status change bypasses throttling
	case now.Sub(t.lastEmit) >= t.minInterval:
		// Interval elapsed
	default:
		return false
	}

	t.emitted = true
	t.lastStatus = status
	t.lastEmit = now
	return true
}
