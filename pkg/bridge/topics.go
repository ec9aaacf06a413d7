package bridge

import "fmt"

// Topic suffixes under vision/<team>/. All bus traffic for one
// deployment is namespaced by the team scope string.

// TopicMovement carries MovementCommand JSON for the actuator.
const TopicMovement = "movement"

// TopicHeartbeat carries liveness JSON on a fixed cadence.
const TopicHeartbeat = "heartbeat"

// TopicDetections carries per-frame detector output consumed by the
// coordinator.
const TopicDetections = "detections"

// Topics builds fully-qualified topic names for one deployment.
type Topics struct {
	team string
}

// NewTopics creates a Topics helper for the given team scope.
func NewTopics(team string) *Topics {
	return &Topics{team: team}
}

// Movement returns the full movement topic path.
func (t *Topics) Movement() string {
	return fmt.Sprintf("vision/%s/%s", t.team, TopicMovement)
}

// Heartbeat returns the full heartbeat topic path.
func (t *Topics) Heartbeat() string {
	return fmt.Sprintf("vision/%s/%s", t.team, TopicHeartbeat)
}

// Detections returns the full detections topic path.
func (t *Topics) Detections() string {
	return fmt.Sprintf("vision/%s/%s", t.team, TopicDetections)
}
