// Package bridge maintains a resilient MQTT link: it republishes movement
// commands, keeps a heartbeat alive, feeds detector frames to the frame
// path, and fans tracking events out to dashboard observers.
package bridge

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/elvinlabs/facetrack/pkg/protocol"
)

// rateWindow is the sliding window for message-rate and fps estimates.
const rateWindow = 10 * time.Second

// servoStep is the per-command pan estimate in degrees, used only for
// the observer-facing servo angle projection.
const servoStep = 5

// EventSink receives the observer-facing projection of every published
// command. The hub implements it.
type EventSink interface {
	PublishEvent(ev protocol.TrackingEvent)
}

// Config holds bridge tunables.
type Config struct {
	Team              string
	ReconnectMin      time.Duration
	ReconnectMax      time.Duration
	HeartbeatInterval time.Duration
	CommandQueue      int // bounded hand-off from the frame path
	DetectionQueue    int // bounded intake toward the frame path
}

// Stats is a snapshot of bridge counters.
type Stats struct {
	Published      int64
	Reconnects     int64
	Dropped        int64
	UptimeSeconds  float64
	MessagesPerSec float64
}

// Bridge owns the broker connection lifecycle. It runs concurrently with
// the frame-processing path; the only shared state is the bounded
// command queue.
type Bridge struct {
	cfg    Config
	topics *Topics
	pub    Publisher
	sink   EventSink
	logger *slog.Logger

	commands   chan protocol.MovementCommand
	detections chan protocol.FrameObservation
	connLost   chan error

	start      time.Time
	published  atomic.Int64
	reconnects atomic.Int64
	dropped    atomic.Int64

	// Owned by the pump goroutine
	servoAngle int

	// The rate window is also read by Stats callers on other goroutines.
	mu     sync.Mutex
	recent []time.Time
}

// New creates a bridge over the given publisher. Pass the same channel
// the publisher's connection-lost handler writes to as connLost; see
// NewPahoPublisher.
func New(cfg Config, pub Publisher, sink EventSink, connLost chan error, logger *slog.Logger) *Bridge {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.CommandQueue < 1 {
		cfg.CommandQueue = 32
	}
	if cfg.DetectionQueue < 1 {
		cfg.DetectionQueue = 8
	}
	if connLost == nil {
		connLost = make(chan error, 1)
	}
	return &Bridge{
		cfg:        cfg,
		topics:     NewTopics(cfg.Team),
		pub:        pub,
		sink:       sink,
		logger:     logger,
		commands:   make(chan protocol.MovementCommand, cfg.CommandQueue),
		detections: make(chan protocol.FrameObservation, cfg.DetectionQueue),
		connLost:   connLost,
		start:      time.Now(),
		servoAngle: 90,
	}
}

// Offer hands a movement command to the bridge. It never blocks on
// broker I/O: when the queue is full the oldest queued command is
// discarded so memory stays bounded. FIFO order is preserved for
// everything that survives.
func (b *Bridge) Offer(cmd protocol.MovementCommand) bool {
	for {
		select {
		case b.commands <- cmd:
			return true
		default:
			select {
			case <-b.commands:
				b.dropped.Add(1)
			default:
			}
		}
	}
}

// Detections returns the bounded intake of detector frames for the
// frame-processing loop.
func (b *Bridge) Detections() <-chan protocol.FrameObservation {
	return b.detections
}

// Stats returns a snapshot of bridge counters.
func (b *Bridge) Stats() Stats {
	return Stats{
		Published:      b.published.Load(),
		Reconnects:     b.reconnects.Load(),
		Dropped:        b.dropped.Load(),
		UptimeSeconds:  time.Since(b.start).Seconds(),
		MessagesPerSec: b.rate(time.Now()),
	}
}

// Run supervises the broker link until ctx is cancelled: connect with
// bounded exponential backoff, pump commands and heartbeats, reconnect
// on link loss. Broker errors never escape; they surface only as
// counters and log lines.
func (b *Bridge) Run(ctx context.Context) {
	bo := newBackoff(b.cfg.ReconnectMin, b.cfg.ReconnectMax)
	first := true
	for {
		if err := b.connectWithBackoff(ctx, bo); err != nil {
			return // ctx cancelled during connect
		}
		if !first {
			b.reconnects.Add(1)
		}
		first = false

		if err := b.pub.Subscribe(b.topics.Detections(), b.onDetection); err != nil {
			b.logger.Warn("detection subscribe failed", "error", err)
		}
		// A retained alive beat clears the offline marker left by the
		// Last Will.
		b.heartbeat(true)

		if done := b.pump(ctx); done {
			b.shutdown()
			return
		}
		b.logger.Warn("broker link lost, reconnecting")
	}
}

// connectWithBackoff retries until connected or ctx is cancelled. The
// delay doubles from ReconnectMin up to ReconnectMax and resets after a
// successful connection.
func (b *Bridge) connectWithBackoff(ctx context.Context, bo *backoff) error {
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		err := b.pub.Connect(ctx)
		if err == nil {
			bo.Reset()
			b.logger.Info("connected to broker", "team", b.cfg.Team)
			return nil
		}
		delay := bo.Next()
		b.logger.Warn("broker connect failed", "error", err, "retry_in", delay)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}
	}
}

// pump runs the connected loop. Returns true when ctx was cancelled,
// false when the link was lost and a reconnect is needed.
func (b *Bridge) pump(ctx context.Context) bool {
	ticker := time.NewTicker(b.cfg.HeartbeatInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return true
		case err := <-b.connLost:
			b.logger.Warn("connection lost", "error", err)
			return false
		case cmd := <-b.commands:
			b.handleCommand(cmd)
		case <-ticker.C:
			b.heartbeat(false)
		}
	}
}

// handleCommand republishes one command on the bus and fans the derived
// tracking event out to observers.
func (b *Bridge) handleCommand(cmd protocol.MovementCommand) {
	payload, err := cmd.Encode()
	if err != nil {
		b.logger.Error("encode command", "error", err)
		return
	}
	if err := b.pub.Publish(b.topics.Movement(), payload, false); err != nil {
		b.logger.Warn("movement publish failed", "error", err, "status", cmd.Status)
	} else {
		b.published.Add(1)
	}
	if b.sink != nil {
		b.sink.PublishEvent(b.eventFromCommand(cmd))
	}
}

// eventFromCommand derives the observer projection: servo angle
// estimate, lock state label, fps, detected actions.
func (b *Bridge) eventFromCommand(cmd protocol.MovementCommand) protocol.TrackingEvent {
	now := time.Now()
	b.mu.Lock()
	b.recent = append(b.recent, now)
	fps := b.trimRecent(now)
	b.mu.Unlock()

	var actions []string
	switch cmd.Status {
	case protocol.StatusMoveLeft:
		b.servoAngle -= servoStep
		actions = []string{"pan_left"}
	case protocol.StatusMoveRight:
		b.servoAngle += servoStep
		actions = []string{"pan_right"}
	}
	if b.servoAngle < 0 {
		b.servoAngle = 0
	}
	if b.servoAngle > 180 {
		b.servoAngle = 180
	}

	lockState := "LOCKED"
	if cmd.Status == protocol.StatusNoFace {
		lockState = "SEARCHING"
	}

	return protocol.TrackingEvent{
		Timestamp:    cmd.Timestamp,
		Status:       cmd.Status,
		Confidence:   cmd.Confidence,
		ServoAngle:   b.servoAngle,
		FacePosition: cmd.FacePosition,
		LockState:    lockState,
		FPS:          fps,
		Actions:      actions,
	}
}

// rate returns published events per second over the sliding window.
func (b *Bridge) rate(now time.Time) float64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.trimRecent(now)
}

// trimRecent evicts timestamps outside the window. Caller holds mu.
func (b *Bridge) trimRecent(now time.Time) float64 {
	cutoff := now.Add(-rateWindow)
	i := 0
	for i < len(b.recent) && b.recent[i].Before(cutoff) {
		i++
	}
	b.recent = b.recent[i:]
	return float64(len(b.recent)) / rateWindow.Seconds()
}

// heartbeat publishes the liveness payload. The first beat after a
// (re)connect is retained so late subscribers see liveness immediately.
func (b *Bridge) heartbeat(retained bool) {
	s := b.Stats()
	hb := protocol.Heartbeat{
		Team:           b.cfg.Team,
		Status:         "alive",
		Timestamp:      protocol.Epoch(time.Now()),
		Published:      s.Published,
		Reconnects:     s.Reconnects,
		Dropped:        s.Dropped,
		UptimeSeconds:  s.UptimeSeconds,
		MessagesPerSec: s.MessagesPerSec,
	}
	payload, err := hb.MarshalPayload()
	if err != nil {
		return
	}
	if err := b.pub.Publish(b.topics.Heartbeat(), payload, retained); err != nil {
		b.logger.Debug("heartbeat publish failed", "error", err)
	}
}

// onDetection decodes one detector frame from the bus into the bounded
// intake channel, dropping the oldest when the frame loop lags.
func (b *Bridge) onDetection(_ string, payload []byte) {
	obs, err := protocol.DecodeFrameObservation(payload)
	if err != nil {
		b.logger.Warn("bad detection payload", "error", err)
		return
	}
	for {
		select {
		case b.detections <- obs:
			return
		default:
			select {
			case <-b.detections:
			default:
			}
		}
	}
}

// shutdown drains queued commands, marks the deployment offline and
// closes the broker link without relying on the Last Will.
func (b *Bridge) shutdown() {
	for {
		select {
		case cmd := <-b.commands:
			b.handleCommand(cmd)
			continue
		default:
		}
		break
	}

	hb := protocol.OfflineHeartbeat(b.cfg.Team)
	hb.Timestamp = protocol.Epoch(time.Now())
	if payload, err := hb.MarshalPayload(); err == nil {
		if err := b.pub.Publish(b.topics.Heartbeat(), payload, true); err != nil {
			b.logger.Debug("offline marker publish failed", "error", err)
		}
	}
	b.pub.Disconnect()
	b.logger.Info("bridge stopped")
}
