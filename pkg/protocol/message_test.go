package protocol

import (
	"math"
	"strings"
	"testing"
	"time"
)

func TestMovementCommandRoundTrip(t *testing.T) {
	now := Epoch(time.Now())

	tests := []struct {
		name string
		cmd  MovementCommand
	}{
		{
			name: "full command",
			cmd: MovementCommand{
				Status:       StatusMoveLeft,
				Confidence:   0.87,
				Timestamp:    now,
				FacePosition: &Point{X: 120, Y: 200},
				BoundingBox:  &Box{X1: 100, Y1: 150, X2: 140, Y2: 250},
			},
		},
		{
			name: "no face",
			cmd: MovementCommand{
				Status:    StatusNoFace,
				Timestamp: now,
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			data, err := tt.cmd.Encode()
			if err != nil {
				t.Fatalf("Encode() error = %v", err)
			}
			got, err := DecodeMovementCommand(data)
			if err != nil {
				t.Fatalf("DecodeMovementCommand() error = %v", err)
			}
			if got.Status != tt.cmd.Status {
				t.Errorf("status = %v, want %v", got.Status, tt.cmd.Status)
			}
			if math.Abs(got.Confidence-tt.cmd.Confidence) > 1e-9 {
				t.Errorf("confidence = %f, want %f", got.Confidence, tt.cmd.Confidence)
			}
			if (got.FacePosition == nil) != (tt.cmd.FacePosition == nil) {
				t.Errorf("face position presence = %v, want %v", got.FacePosition != nil, tt.cmd.FacePosition != nil)
			}
			if tt.cmd.BoundingBox != nil && *got.BoundingBox != *tt.cmd.BoundingBox {
				t.Errorf("bounding box = %+v, want %+v", got.BoundingBox, tt.cmd.BoundingBox)
			}
		})
	}
}

func TestMovementCommandOptionalFieldsOmitted(t *testing.T) {
	data, err := MovementCommand{Status: StatusNoFace, Timestamp: 1}.Encode()
	if err != nil {
		t.Fatalf("Encode() error = %v", err)
	}
	payload := string(data)
	if strings.Contains(payload, "face_position") || strings.Contains(payload, "bounding_box") {
		t.Errorf("NO_FACE payload carries position fields: %s", payload)
	}
}

func TestDecodeMovementCommandRejects(t *testing.T) {
	tests := []struct {
		name string
		data string
	}{
		{"not json", "not-json"},
		{"unknown status", `{"status":"SPIN","confidence":0.5,"timestamp":1}`},
		{"missing status", `{"confidence":0.5,"timestamp":1}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := DecodeMovementCommand([]byte(tt.data)); err == nil {
				t.Error("DecodeMovementCommand() error = nil, want error")
			}
		})
	}
}

func TestStatusValid(t *testing.T) {
	for _, s := range []Status{StatusMoveLeft, StatusMoveRight, StatusCentered, StatusNoFace} {
		if !s.Valid() {
			t.Errorf("%v.Valid() = false", s)
		}
	}
	if Status("SPIN").Valid() {
		t.Error(`Status("SPIN").Valid() = true`)
	}
}

func TestDecodeFrameObservation(t *testing.T) {
	data := []byte(`{"bounding_box":{"x1":10,"y1":20,"x2":50,"y2":80},"embedding":[0.1,0.2],"confidence":0.9,"timestamp":123.5}`)
	obs, err := DecodeFrameObservation(data)
	if err != nil {
		t.Fatalf("DecodeFrameObservation() error = %v", err)
	}
	if obs.BoundingBox == nil || obs.BoundingBox.X2 != 50 {
		t.Errorf("bounding box = %+v", obs.BoundingBox)
	}
	if len(obs.Embedding) != 2 || obs.Confidence != 0.9 {
		t.Errorf("observation = %+v", obs)
	}

	// An empty frame decodes with a nil box.
	obs, err = DecodeFrameObservation([]byte(`{"timestamp":124.0}`))
	if err != nil {
		t.Fatalf("DecodeFrameObservation(empty) error = %v", err)
	}
	if obs.BoundingBox != nil {
		t.Errorf("empty frame box = %+v, want nil", obs.BoundingBox)
	}
}

func TestHeartbeatPayload(t *testing.T) {
	hb := OfflineHeartbeat("elvin01")
	if hb.Status != "offline" || hb.Team != "elvin01" {
		t.Errorf("OfflineHeartbeat() = %+v", hb)
	}
	data, err := hb.MarshalPayload()
	if err != nil {
		t.Fatalf("MarshalPayload() error = %v", err)
	}
	payload := string(data)
	if !strings.Contains(payload, `"status":"offline"`) {
		t.Errorf("payload = %s, missing offline status", payload)
	}
	// Zero counters stay off the offline marker.
	if strings.Contains(payload, "published") {
		t.Errorf("offline payload carries counters: %s", payload)
	}
}

func TestEpoch(t *testing.T) {
	ts := time.Date(2026, 1, 2, 3, 4, 5, 500_000_000, time.UTC)
	got := Epoch(ts)
	want := float64(ts.Unix()) + 0.5
	if math.Abs(got-want) > 1e-6 {
		t.Errorf("Epoch() = %f, want %f", got, want)
	}
}
