package tracking

import (
	"time"

	"github.com/elvinlabs/facetrack/pkg/identity"
	"github.com/elvinlabs/facetrack/pkg/protocol"
)

// LockState is the lock machine's discrete state.
type LockState int

const (
	// StateNoTarget means nothing is being tracked.
	StateNoTarget LockState = iota
	// StateLocked means an identity is being tracked and was seen this frame.
	StateLocked
	// StateLostGrace means the identity was not seen but the lock is
	// coasting on the last known bounding box.
	StateLostGrace
)

// String returns the observer-facing name of the state.
func (s LockState) String() string {
	switch s {
	case StateLocked:
		return "LOCKED"
	case StateLostGrace:
		return "LOST_GRACE"
	default:
		return "NO_TARGET"
	}
}

// LockSession is the coordinator's tracking state. It is a value: each
// per-frame evaluation takes the previous session and returns the next
// one, so only the frame-processing path ever holds a reference.
//
// Invariants: State == StateLocked or StateLostGrace implies Identity and
// LastDetection are non-nil; State == StateNoTarget implies both are nil.
type LockSession struct {
	State         LockState
	Identity      *identity.Identity
	Score         float64 // matcher similarity at the last match
	LastDetection *protocol.Box
	LastSeen      time.Time
	Misses        int
}

// NewSession returns the initial no-target session.
func NewSession() LockSession {
	return LockSession{State: StateNoTarget}
}

// Release forces an immediate transition to NO_TARGET from any state.
func (s LockSession) Release() LockSession {
	return NewSession()
}

// stepLock evaluates one frame. matched reports whether the frame carried
// a detection matching the session's identity (or, from NO_TARGET, any
// enrolled identity); det and score describe that match.
func stepLock(s LockSession, matched bool, id *identity.Identity, det *protocol.Box, score float64, now time.Time, grace int) LockSession {
	switch s.State {
	case StateNoTarget:
		if matched {
			return LockSession{
				State:         StateLocked,
				Identity:      id,
				Score:         score,
				LastDetection: det,
				LastSeen:      now,
			}
		}
		return s

	case StateLocked:
		if matched {
			s.Score = score
			s.LastDetection = det
			s.LastSeen = now
			s.Misses = 0
			return s
		}
		s.Misses++
		if s.Misses > grace {
			return NewSession()
		}
		// Coast on the last known bounding box
		s.State = StateLostGrace
		return s

	case StateLostGrace:
		if matched {
			s.State = StateLocked
			s.Score = score
			s.LastDetection = det
			s.LastSeen = now
			s.Misses = 0
			return s
		}
		s.Misses++
		if s.Misses > grace {
			return NewSession()
		}
		return s
	}
	return s
}

// Confidence returns the downstream confidence for the current state:
// the matcher score while locked, linearly decayed per missed frame while
// coasting, and zero with no target. The decay leaves the last coasting
// frame above zero so consumers can tell coasting from NO_FACE.
func (s LockSession) Confidence(grace int) float64 {
	switch s.State {
	case StateLocked:
		return s.Score
	case StateLostGrace:
		c := s.Score * (1 - float64(s.Misses)/float64(grace+1))
		if c < 0 {
			return 0
		}
		return c
	default:
		return 0
	}
}
