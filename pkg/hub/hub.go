// Package hub fans tracking events out to any number of websocket
// observers using the channel-based hub pattern: one goroutine owns the
// client set, each observer has a private bounded queue, and a slow or
// dead observer never blocks the others.
package hub

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/elvinlabs/facetrack/pkg/protocol"
)

// moveRateWindow is the sliding window for the movement-rate statistic.
const moveRateWindow = 10 * time.Second

// confidenceSample is how many recent events feed the average-confidence
// statistic.
const confidenceSample = 20

// StatsFunc supplies bridge counters for the metrics snapshot.
type StatsFunc func() (reconnects, dropped int64)

// Hub maintains the set of active observers and the recent-event state
// they query.
type Hub struct {
	logger *slog.Logger

	register   chan *Client
	unregister chan *Client
	events     chan protocol.TrackingEvent
	requests   chan clientRequest
	done       chan struct{}

	mu      sync.RWMutex
	clients map[*Client]bool

	// Observer queue size
	queueSize int

	// State owned by the run loop
	current       protocol.TrackingEvent
	history       *ring
	statusCounts  map[protocol.Status]int
	moveTimes     []time.Time
	facesDetected int64

	// Lock-session analytics
	sessions       int
	sessionSeconds float64
	sessionStart   time.Time
	inSession      bool

	start           time.Time
	metricsInterval time.Duration
	statsFn         StatsFunc

	droppedEvents atomic.Int64
}

type clientRequest struct {
	client  *Client
	msgType protocol.ObserverMessageType
}

// New creates a hub with the given history capacity and per-observer
// queue size.
func New(ringCapacity, queueSize int, metricsInterval time.Duration, logger *slog.Logger) *Hub {
	if logger == nil {
		logger = slog.Default()
	}
	if queueSize < 1 {
		queueSize = 64
	}
	return &Hub{
		logger:          logger,
		register:        make(chan *Client),
		unregister:      make(chan *Client),
		events:          make(chan protocol.TrackingEvent, 256),
		requests:        make(chan clientRequest, 64),
		done:            make(chan struct{}),
		clients:         make(map[*Client]bool),
		queueSize:       queueSize,
		history:         newRing(ringCapacity),
		statusCounts:    make(map[protocol.Status]int),
		current:         protocol.TrackingEvent{Status: protocol.StatusNoFace, LockState: "SEARCHING"},
		start:           time.Now(),
		metricsInterval: metricsInterval,
	}
}

// SetStatsFunc wires bridge counters into metrics snapshots. Call before
// Run.
func (h *Hub) SetStatsFunc(fn StatsFunc) {
	h.statsFn = fn
}

// PublishEvent hands one tracking event to the hub. It never blocks:
// when the hub is saturated the event is dropped and counted.
func (h *Hub) PublishEvent(ev protocol.TrackingEvent) {
	select {
	case h.events <- ev:
	default:
		h.droppedEvents.Add(1)
	}
}

// ClientCount returns the number of connected observers.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Run owns the client set until ctx is cancelled, then closes every
// observer without attempting further sends.
func (h *Hub) Run(ctx context.Context) {
	ticker := time.NewTicker(h.metricsInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			h.closeAll()
			return

		case client := <-h.register:
			h.mu.Lock()
			h.clients[client] = true
			count := len(h.clients)
			h.mu.Unlock()
			h.logger.Info("observer connected", "id", client.id, "total", count)
			h.sendInitialState(client)

		case client := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[client]; ok {
				delete(h.clients, client)
				close(client.send)
			}
			count := len(h.clients)
			h.mu.Unlock()
			h.logger.Info("observer disconnected", "id", client.id, "remaining", count)

		case ev := <-h.events:
			h.absorb(ev)
			h.broadcast(protocol.ObserverMessage{
				Type:      protocol.TypeTrackingUpdate,
				Event:     &ev,
				Metrics:   h.metrics(),
				Analytics: h.analytics(),
			})

		case req := <-h.requests:
			h.answer(req)

		case <-ticker.C:
			h.broadcast(protocol.ObserverMessage{
				Type:    protocol.TypeMetricsUpdate,
				Metrics: h.metrics(),
			})
			h.broadcast(protocol.ObserverMessage{
				Type:      protocol.TypeAnalyticsUpdate,
				Analytics: h.analytics(),
			})
		}
	}
}

// absorb folds one event into the hub's derived state.
func (h *Hub) absorb(ev protocol.TrackingEvent) {
	h.current = ev
	h.history.Append(ev)
	h.statusCounts[ev.Status]++

	now := time.Now()
	if ev.Status == protocol.StatusMoveLeft || ev.Status == protocol.StatusMoveRight {
		h.moveTimes = append(h.moveTimes, now)
	}
	if ev.Status != protocol.StatusNoFace {
		h.facesDetected++
		if !h.inSession {
			h.inSession = true
			h.sessionStart = now
		}
	} else if h.inSession {
		h.inSession = false
		h.sessions++
		h.sessionSeconds += now.Sub(h.sessionStart).Seconds()
	}
}

func (h *Hub) metrics() *protocol.Metrics {
	uptime := time.Since(h.start).Seconds()
	m := &protocol.Metrics{
		UptimeSeconds:  uptime,
		FPS:            h.current.FPS,
		FacesDetected:  h.facesDetected,
		ClientCount:    h.ClientCount(),
		DroppedEvents:  h.droppedEvents.Load(),
		MessagesPerSec: float64(h.history.Len()) / maxFloat(uptime, 1),
	}
	if h.statsFn != nil {
		reconnects, dropped := h.statsFn()
		m.Reconnects = reconnects
		m.DroppedEvents += dropped
	}
	return m
}

func (h *Hub) analytics() *protocol.Analytics {
	dist := make(map[protocol.Status]int, len(h.statusCounts))
	for k, v := range h.statusCounts {
		dist[k] = v
	}

	avgSession := 0.0
	if h.sessions > 0 {
		avgSession = h.sessionSeconds / float64(h.sessions)
	}

	return &protocol.Analytics{
		StatusDistribution: dist,
		TotalEvents:        h.history.Len(),
		AverageConfidence:  h.history.AvgConfidence(confidenceSample),
		MovementRate:       h.movementRate(time.Now()),
		LockSessions:       h.sessions,
		AvgSessionSeconds:  avgSession,
		ActiveSession:      h.inSession,
	}
}

// movementRate returns MOVE_* commands per second over the window.
func (h *Hub) movementRate(now time.Time) float64 {
	cutoff := now.Add(-moveRateWindow)
	i := 0
	for i < len(h.moveTimes) && h.moveTimes[i].Before(cutoff) {
		i++
	}
	h.moveTimes = h.moveTimes[i:]
	return float64(len(h.moveTimes)) / moveRateWindow.Seconds()
}

// sendInitialState summarizes the current session for a new observer.
func (h *Hub) sendInitialState(client *Client) {
	ev := h.current
	h.send(client, protocol.ObserverMessage{
		Type:    protocol.TypeInitialState,
		Event:   &ev,
		Metrics: h.metrics(),
		History: h.history.Last(10),
	})
}

// answer serves one observer request without touching other observers.
func (h *Hub) answer(req clientRequest) {
	switch req.msgType {
	case protocol.TypeRequestHistory:
		h.send(req.client, protocol.ObserverMessage{
			Type:      protocol.TypeHistoryResponse,
			History:   h.history.Snapshot(),
			Analytics: h.analytics(),
		})
	case protocol.TypeRequestMetrics:
		h.send(req.client, protocol.ObserverMessage{
			Type:      protocol.TypeMetricsResponse,
			Metrics:   h.metrics(),
			Analytics: h.analytics(),
		})
	case protocol.TypePing:
		h.send(req.client, protocol.ObserverMessage{
			Type:      protocol.TypePong,
			Timestamp: protocol.Epoch(time.Now()),
		})
	}
}

// broadcast enqueues a message on every observer's private queue.
func (h *Hub) broadcast(msg protocol.ObserverMessage) {
	data, err := msg.Encode()
	if err != nil {
		h.logger.Error("encode observer message", "error", err)
		return
	}
	h.mu.RLock()
	defer h.mu.RUnlock()
	for client := range h.clients {
		h.enqueue(client, data)
	}
}

func (h *Hub) send(client *Client, msg protocol.ObserverMessage) {
	// A request can be buffered behind the same client's unregister, and
	// unregistering closed its send channel. Serve only live observers.
	h.mu.RLock()
	registered := h.clients[client]
	h.mu.RUnlock()
	if !registered {
		return
	}

	data, err := msg.Encode()
	if err != nil {
		h.logger.Error("encode observer message", "error", err)
		return
	}
	h.enqueue(client, data)
}

// enqueue adds to one observer's queue, dropping that observer's oldest
// buffered message when full. Other observers are unaffected.
func (h *Hub) enqueue(client *Client, data []byte) {
	select {
	case client.send <- data:
		return
	default:
	}
	select {
	case <-client.send:
		h.droppedEvents.Add(1)
	default:
	}
	select {
	case client.send <- data:
	default:
		h.droppedEvents.Add(1)
	}
}

// drop unregisters a client, giving up if the hub has already stopped.
func (h *Hub) drop(client *Client) {
	select {
	case h.unregister <- client:
	case <-h.done:
	}
}

func (h *Hub) closeAll() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for client := range h.clients {
		close(client.send)
		delete(h.clients, client)
	}
	close(h.done)
	h.logger.Info("hub stopped")
}

func maxFloat(a, b float64) float64 {
	if a > b {
		return a
	}
	return b
}
