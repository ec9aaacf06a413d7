// Package protocol defines the wire types shared between the tracking
// coordinator, the message bus, and dashboard observers.
package protocol

import (
	"encoding/json"
	"fmt"
	"time"
)

// Status is the discrete movement intent published to the actuator.
//
// Polarity convention: the status names the side of the frame the face
// occupies. MOVE_LEFT means the face center sits left of the dead zone,
// and the actuator pans left to recenter it. MOVE_RIGHT is the mirror.
type Status string

const (
	StatusMoveLeft  Status = "MOVE_LEFT"
	StatusMoveRight Status = "MOVE_RIGHT"
	StatusCentered  Status = "CENTERED"
	StatusNoFace    Status = "NO_FACE"
)

// Valid reports whether s is one of the four movement statuses.
func (s Status) Valid() bool {
	switch s {
	case StatusMoveLeft, StatusMoveRight, StatusCentered, StatusNoFace:
		return true
	}
	return false
}

// Point is a pixel coordinate.
type Point struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Box is a pixel-space bounding box.
type Box struct {
	X1 float64 `json:"x1"`
	Y1 float64 `json:"y1"`
	X2 float64 `json:"x2"`
	Y2 float64 `json:"y2"`
}

// MovementCommand is one outbound message on the movement topic.
// Immutable once constructed.
type MovementCommand struct {
	Status       Status  `json:"status"`
	Confidence   float64 `json:"confidence"`
	Timestamp    float64 `json:"timestamp"` // epoch seconds
	FacePosition *Point  `json:"face_position,omitempty"`
	BoundingBox  *Box    `json:"bounding_box,omitempty"`
}

// Encode serializes the command for the bus.
func (c MovementCommand) Encode() ([]byte, error) {
	return json.Marshal(c)
}

// DecodeMovementCommand parses a movement payload from the bus.
func DecodeMovementCommand(data []byte) (MovementCommand, error) {
	var c MovementCommand
	if err := json.Unmarshal(data, &c); err != nil {
		return MovementCommand{}, fmt.Errorf("protocol: parse movement command: %w", err)
	}
	if !c.Status.Valid() {
		return MovementCommand{}, fmt.Errorf("protocol: unknown status %q", c.Status)
	}
	return c, nil
}

// Heartbeat is the liveness payload on the heartbeat topic. It is
// published on a fixed cadence regardless of movement activity.
type Heartbeat struct {
	Team      string  `json:"team"`
	Status    string  `json:"status"` // "alive" or "offline"
	Timestamp float64 `json:"timestamp"`

	// Bridge metrics, present on alive beats
	Published      int64   `json:"published,omitempty"`
	Reconnects     int64   `json:"reconnects,omitempty"`
	Dropped        int64   `json:"dropped,omitempty"`
	UptimeSeconds  float64 `json:"uptime,omitempty"`
	MessagesPerSec float64 `json:"messages_per_second,omitempty"`
}

// MarshalPayload serializes the heartbeat for the bus.
func (h Heartbeat) MarshalPayload() ([]byte, error) {
	return json.Marshal(h)
}

// OfflineHeartbeat is the Last-Will payload the broker publishes on the
// bridge's behalf when the link drops.
func OfflineHeartbeat(team string) Heartbeat {
	return Heartbeat{Team: team, Status: "offline"}
}

// FrameObservation is one per-frame detector result consumed by the
// coordinator. A frame with no detection carries a nil BoundingBox.
type FrameObservation struct {
	BoundingBox *Box      `json:"bounding_box,omitempty"`
	Embedding   []float32 `json:"embedding,omitempty"`
	Confidence  float64   `json:"confidence"`
	Timestamp   float64   `json:"timestamp"`
}

// DecodeFrameObservation parses a detector payload from the bus.
func DecodeFrameObservation(data []byte) (FrameObservation, error) {
	var obs FrameObservation
	if err := json.Unmarshal(data, &obs); err != nil {
		return FrameObservation{}, fmt.Errorf("protocol: parse frame observation: %w", err)
	}
	return obs, nil
}

// Epoch converts a time to epoch seconds as carried on the wire.
func Epoch(t time.Time) float64 {
	return float64(t.UnixNano()) / float64(time.Second)
}
