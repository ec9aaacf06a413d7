package protocol

import "encoding/json"

// ObserverMessageType identifies a message pushed to dashboard observers.
type ObserverMessageType string

const (
	// Server → observer
	TypeInitialState    ObserverMessageType = "initial_state"
	TypeTrackingUpdate  ObserverMessageType = "tracking_update"
	TypeMetricsUpdate   ObserverMessageType = "metrics_update"
	TypeHistoryResponse ObserverMessageType = "history_response"
	TypeMetricsResponse ObserverMessageType = "metrics_response"
	TypeAnalyticsUpdate ObserverMessageType = "analytics_update"
	TypePong            ObserverMessageType = "pong"

	// Observer → server
	TypeRequestHistory ObserverMessageType = "request_history"
	TypeRequestMetrics ObserverMessageType = "request_metrics"
	TypePing           ObserverMessageType = "ping"
)

// ObserverMessage is the envelope for all observer-channel traffic.
type ObserverMessage struct {
	Type      ObserverMessageType `json:"type"`
	Event     *TrackingEvent      `json:"event,omitempty"`
	Metrics   *Metrics            `json:"metrics,omitempty"`
	Analytics *Analytics          `json:"analytics,omitempty"`
	History   []TrackingEvent     `json:"history,omitempty"`
	Timestamp float64             `json:"timestamp,omitempty"`
}

// Encode serializes the message for the websocket.
func (m ObserverMessage) Encode() ([]byte, error) {
	return json.Marshal(m)
}

// TrackingEvent is the observer-facing projection of a MovementCommand
// plus fields derived by the bridge.
type TrackingEvent struct {
	Timestamp    float64  `json:"timestamp"`
	Status       Status   `json:"status"`
	Confidence   float64  `json:"confidence"`
	ServoAngle   int      `json:"servo_angle"`
	FacePosition *Point   `json:"face_position,omitempty"`
	LockState    string   `json:"lock_state"`
	FPS          float64  `json:"fps"`
	Actions      []string `json:"actions_detected"`
}

// Metrics are aggregate counters pushed periodically to observers.
type Metrics struct {
	UptimeSeconds  float64 `json:"uptime"`
	FPS            float64 `json:"fps"`
	MessagesPerSec float64 `json:"messages_per_second"`
	FacesDetected  int64   `json:"faces_detected"`
	ClientCount    int     `json:"client_count"`
	Reconnects     int64   `json:"reconnects"`
	DroppedEvents  int64   `json:"dropped_events"`
}

// Analytics are derived statistics over the recent-event ring buffer.
type Analytics struct {
	StatusDistribution map[Status]int `json:"status_distribution"`
	TotalEvents        int            `json:"total_events"`
	AverageConfidence  float64        `json:"average_confidence"`
	MovementRate       float64        `json:"movement_rate"` // moves per second over the last 10s
	LockSessions       int            `json:"lock_sessions"`
	AvgSessionSeconds  float64        `json:"avg_session_duration"`
	ActiveSession      bool           `json:"active_session"`
}
