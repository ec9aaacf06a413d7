// Package tracking turns noisy per-frame face detections into a stable
// identity lock and a bounded stream of movement commands.
package tracking

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/elvinlabs/facetrack/pkg/identity"
	"github.com/elvinlabs/facetrack/pkg/protocol"
)

// CommandSink receives emitted movement commands. Offer must not block
// on broker I/O; it returns false when the command was dropped.
type CommandSink interface {
	Offer(cmd protocol.MovementCommand) bool
}

// Coordinator owns the per-frame tracking path: match, lock transition,
// movement analysis, throttle, hand-off. ProcessFrame must be driven from
// a single goroutine; Session exposes read-only snapshots to others.
type Coordinator struct {
	cfg     Config
	matcher *identity.Matcher
	sink    CommandSink
	logger  *slog.Logger

	// session is mutated only by the frame path; the mutex exists so
	// Session() snapshots from other goroutines are safe.
	sessionMu sync.RWMutex
	session   LockSession

	throttle *Throttler

	framesProcessed atomic.Int64
	framesSkipped   atomic.Int64
}

// NewCoordinator validates the configuration and builds the frame path.
func NewCoordinator(cfg Config, matcher *identity.Matcher, sink CommandSink, logger *slog.Logger) (*Coordinator, error) {
	if cfg.FrameWidth <= 0 || cfg.FrameHeight <= 0 {
		return nil, fmt.Errorf("tracking: frame dimensions %dx%d", cfg.FrameWidth, cfg.FrameHeight)
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Coordinator{
		cfg:      cfg,
		matcher:  matcher,
		sink:     sink,
		logger:   logger,
		session:  NewSession(),
		throttle: NewThrottler(cfg.MinPublishInterval),
	}, nil
}

// ProcessFrame evaluates one camera frame. It returns the emitted command
// and true when the throttler let one through. A malformed embedding is
// logged and the frame skipped with the session unchanged.
func (c *Coordinator) ProcessFrame(obs protocol.FrameObservation, now time.Time) (protocol.MovementCommand, bool) {
	session := c.Session()

	matched, id, score := c.matchFrame(session, obs)
	if matched == matchInvalid {
		c.framesSkipped.Add(1)
		return protocol.MovementCommand{}, false
	}
	c.framesProcessed.Add(1)

	next := stepLock(session, matched == matchYes, id, obs.BoundingBox, score, now, c.cfg.GraceLimit)
	if next.State != session.State {
		c.logger.Debug("lock transition",
			"from", session.State.String(),
			"to", next.State.String(),
			"misses", next.Misses,
		)
	}
	c.setSession(next)

	status, _ := analyzeMovement(next.LastDetection, c.cfg.FrameWidth, c.cfg.DeadZoneRatio)
	confidence := next.Confidence(c.cfg.GraceLimit)

	if !c.throttle.ShouldEmit(now, status) {
		return protocol.MovementCommand{}, false
	}

	cmd := protocol.MovementCommand{
		Status:     status,
		Confidence: confidence,
		Timestamp:  protocol.Epoch(now),
	}
	if box := next.LastDetection; box != nil && status != protocol.StatusNoFace {
		b := clampBox(*box, c.cfg.FrameWidth)
		cmd.BoundingBox = &b
		cmd.FacePosition = &protocol.Point{
			X: (b.X1 + b.X2) / 2,
			Y: (b.Y1 + b.Y2) / 2,
		}
	}

	if c.sink != nil && !c.sink.Offer(cmd) {
		c.logger.Warn("command dropped at hand-off", "status", cmd.Status)
	}
	return cmd, true
}

// Release drops the current lock immediately (operator override).
func (c *Coordinator) Release() {
	c.setSession(NewSession())
	c.logger.Info("lock released")
}

// Session returns a copy of the current lock session for inspection.
func (c *Coordinator) Session() LockSession {
	c.sessionMu.RLock()
	defer c.sessionMu.RUnlock()
	return c.session
}

func (c *Coordinator) setSession(s LockSession) {
	c.sessionMu.Lock()
	c.session = s
	c.sessionMu.Unlock()
}

// FramesProcessed returns the number of frames evaluated.
func (c *Coordinator) FramesProcessed() int64 {
	return c.framesProcessed.Load()
}

type matchResult int

const (
	matchNo matchResult = iota
	matchYes
	matchInvalid
)

// matchFrame runs identity matching for the frame's detection, if any.
// A detection without an embedding cannot be verified against the lock
// and counts as a miss.
func (c *Coordinator) matchFrame(session LockSession, obs protocol.FrameObservation) (matchResult, *identity.Identity, float64) {
	if obs.BoundingBox == nil || len(obs.Embedding) == 0 {
		return matchNo, nil, 0
	}

	heldID := ""
	if session.Identity != nil {
		heldID = session.Identity.ID
	}

	m, err := c.matcher.Match(obs.Embedding, heldID)
	if err != nil {
		if errors.Is(err, identity.ErrInvalidEmbedding) {
			c.logger.Warn("invalid embedding, frame skipped", "error", err)
			return matchInvalid, nil, 0
		}
		c.logger.Error("matcher failure", "error", err)
		return matchNo, nil, 0
	}
	if !m.OK {
		return matchNo, nil, 0
	}

	// While locked, only the locked identity keeps the lock alive.
	if session.State != StateNoTarget && m.Identity.ID != heldID {
		return matchNo, nil, 0
	}
	return matchYes, m.Identity, m.Score
}
