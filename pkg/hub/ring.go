package hub

import "github.com/elvinlabs/facetrack/pkg/protocol"

// ring is a fixed-capacity event history; the oldest entry is evicted
// when full. It is owned by the hub's run loop and needs no locking.
type ring struct {
	buf []protocol.TrackingEvent
	cap int
}

func newRing(capacity int) *ring {
	if capacity < 1 {
		capacity = 1
	}
	return &ring{cap: capacity}
}

func (r *ring) Append(ev protocol.TrackingEvent) {
	if len(r.buf) == r.cap {
		copy(r.buf, r.buf[1:])
		r.buf[len(r.buf)-1] = ev
		return
	}
	r.buf = append(r.buf, ev)
}

func (r *ring) Len() int {
	return len(r.buf)
}

// Snapshot returns a copy of the buffered events, oldest first.
func (r *ring) Snapshot() []protocol.TrackingEvent {
	out := make([]protocol.TrackingEvent, len(r.buf))
	copy(out, r.buf)
	return out
}

// Last returns a copy of the most recent n events, oldest first.
func (r *ring) Last(n int) []protocol.TrackingEvent {
	if n > len(r.buf) {
		n = len(r.buf)
	}
	out := make([]protocol.TrackingEvent, n)
	copy(out, r.buf[len(r.buf)-n:])
	return out
}

// AvgConfidence averages the non-zero confidences of the last n events.
func (r *ring) AvgConfidence(n int) float64 {
	events := r.Last(n)
	var sum float64
	var count int
	for _, ev := range events {
		if ev.Confidence > 0 {
			sum += ev.Confidence
			count++
		}
	}
	if count == 0 {
		return 0
	}
	return sum / float64(count)
}
