package web

import (
	"context"
	"encoding/json"
	"net"
	"strings"
	"testing"
	"time"

	gws "github.com/gorilla/websocket"

	"github.com/elvinlabs/facetrack/pkg/hub"
	"github.com/elvinlabs/facetrack/pkg/protocol"
)

// startServer runs a hub and websocket server on an ephemeral port and
// returns the hub plus the listen address.
func startServer(t *testing.T) (*hub.Hub, string) {
	t.Helper()

	h := hub.New(100, 16, time.Hour, nil)
	ctx, cancel := context.WithCancel(context.Background())
	go h.Run(ctx)

	srv := NewServer("0", h, func() map[string]any {
		return map[string]any{"team": "elvin01"}
	})

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	go srv.App().Listener(ln)

	t.Cleanup(func() {
		srv.Shutdown()
		cancel()
	})
	return h, ln.Addr().String()
}

func dialObserver(t *testing.T, addr string) *gws.Conn {
	t.Helper()
	url := "ws://" + addr + "/ws/tracking"

	var conn *gws.Conn
	var err error
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		conn, _, err = gws.DefaultDialer.Dial(url, nil)
		if err == nil {
			t.Cleanup(func() { conn.Close() })
			return conn
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("dial %s: %v", url, err)
	return nil
}

func readMessage(t *testing.T, conn *gws.Conn) protocol.ObserverMessage {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, data, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("read observer message: %v", err)
	}
	var msg protocol.ObserverMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		t.Fatalf("parse observer message: %v", err)
	}
	return msg
}

// readUntil skips interleaved pushes until a message of the wanted type
// arrives.
func readUntil(t *testing.T, conn *gws.Conn, want protocol.ObserverMessageType) protocol.ObserverMessage {
	t.Helper()
	for i := 0; i < 20; i++ {
		msg := readMessage(t, conn)
		if msg.Type == want {
			return msg
		}
	}
	t.Fatalf("never received %q", want)
	return protocol.ObserverMessage{}
}

func sendRequest(t *testing.T, conn *gws.Conn, msgType protocol.ObserverMessageType) {
	t.Helper()
	data, err := json.Marshal(protocol.ObserverMessage{Type: msgType})
	if err != nil {
		t.Fatalf("marshal request: %v", err)
	}
	if err := conn.WriteMessage(gws.TextMessage, data); err != nil {
		t.Fatalf("send request: %v", err)
	}
}

func TestObserverReceivesStateAndUpdates(t *testing.T) {
	h, addr := startServer(t)
	conn := dialObserver(t, addr)

	// The first push is the current state snapshot.
	msg := readMessage(t, conn)
	if msg.Type != protocol.TypeInitialState {
		t.Fatalf("first message type = %q, want initial_state", msg.Type)
	}
	if msg.Event == nil || msg.Event.Status != protocol.StatusNoFace {
		t.Errorf("initial event = %+v, want NO_FACE before any tracking", msg.Event)
	}
	if msg.Metrics == nil {
		t.Error("initial_state missing metrics")
	}

	h.PublishEvent(protocol.TrackingEvent{
		Timestamp:  protocol.Epoch(time.Now()),
		Status:     protocol.StatusMoveLeft,
		Confidence: 0.9,
		LockState:  "LOCKED",
	})

	msg = readUntil(t, conn, protocol.TypeTrackingUpdate)
	if msg.Event == nil || msg.Event.Status != protocol.StatusMoveLeft {
		t.Errorf("tracking update event = %+v, want MOVE_LEFT", msg.Event)
	}
	if msg.Analytics == nil {
		t.Error("tracking update missing analytics")
	}
}

func TestObserverRequests(t *testing.T) {
	h, addr := startServer(t)
	conn := dialObserver(t, addr)
	readMessage(t, conn) // initial_state

	h.PublishEvent(protocol.TrackingEvent{Timestamp: 1, Status: protocol.StatusCentered, Confidence: 0.8})
	h.PublishEvent(protocol.TrackingEvent{Timestamp: 2, Status: protocol.StatusMoveRight, Confidence: 0.7})
	readUntil(t, conn, protocol.TypeTrackingUpdate)
	readUntil(t, conn, protocol.TypeTrackingUpdate)

	sendRequest(t, conn, protocol.TypeRequestHistory)
	msg := readUntil(t, conn, protocol.TypeHistoryResponse)
	if len(msg.History) != 2 {
		t.Errorf("history has %d events, want 2", len(msg.History))
	}

	sendRequest(t, conn, protocol.TypeRequestMetrics)
	msg = readUntil(t, conn, protocol.TypeMetricsResponse)
	if msg.Metrics == nil {
		t.Error("metrics_response missing metrics")
	}

	sendRequest(t, conn, protocol.TypePing)
	msg = readUntil(t, conn, protocol.TypePong)
	if msg.Timestamp == 0 {
		t.Error("pong missing timestamp")
	}
}

func TestObserverIsolation(t *testing.T) {
	h, addr := startServer(t)

	first := dialObserver(t, addr)
	second := dialObserver(t, addr)
	readMessage(t, first)
	readMessage(t, second)

	// Kill the first observer mid-stream; the second must keep
	// receiving.
	first.Close()

	deadline := time.Now().Add(2 * time.Second)
	for h.ClientCount() != 1 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	if got := h.ClientCount(); got != 1 {
		t.Fatalf("ClientCount() = %d after close, want 1", got)
	}

	for i := 0; i < 3; i++ {
		h.PublishEvent(protocol.TrackingEvent{Timestamp: float64(i), Status: protocol.StatusCentered, Confidence: 0.9})
	}
	for i := 0; i < 3; i++ {
		msg := readUntil(t, second, protocol.TypeTrackingUpdate)
		if msg.Event.Status != protocol.StatusCentered {
			t.Errorf("update %d status = %v", i, msg.Event.Status)
		}
	}
}

func TestStatusEndpoint(t *testing.T) {
	h, addr := startServer(t)
	_ = h

	conn, err := net.DialTimeout("tcp", addr, 2*time.Second)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	if _, err := conn.Write([]byte("GET /api/status HTTP/1.1\r\nHost: " + addr + "\r\nConnection: close\r\n\r\n")); err != nil {
		t.Fatalf("write request: %v", err)
	}
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	buf := make([]byte, 4096)
	n, _ := conn.Read(buf)
	resp := string(buf[:n])
	if !containsAll(resp, "200", "observers", "elvin01") {
		t.Errorf("status response = %q", resp)
	}
}

func containsAll(s string, subs ...string) bool {
	for _, sub := range subs {
		if !strings.Contains(s, sub) {
			return false
		}
	}
	return true
}
