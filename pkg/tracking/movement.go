package tracking

import "github.com/elvinlabs/facetrack/pkg/protocol"

// analyzeMovement converts the effective bounding box into a discrete
// movement status. box may be nil (no target), which yields NO_FACE.
//
// The horizontal offset of the box center from the frame center is
// normalized to offsetRatio in [-1, 1] (-1 = left edge, +1 = right edge).
// The dead zone is closed on the CENTERED side: |offsetRatio| exactly
// equal to deadZone still counts as centered.
//
// Polarity: a face left of the dead zone yields MOVE_LEFT (the actuator
// pans left, toward the face). See protocol.Status.
func analyzeMovement(box *protocol.Box, frameWidth int, deadZone float64) (protocol.Status, float64) {
	if box == nil {
		return protocol.StatusNoFace, 0
	}

	clamped := clampBox(*box, frameWidth)
	center := (clamped.X1 + clamped.X2) / 2
	half := float64(frameWidth) / 2
	offsetRatio := (center - half) / half

	switch {
	case offsetRatio < -deadZone:
		return protocol.StatusMoveLeft, offsetRatio
	case offsetRatio > deadZone:
		return protocol.StatusMoveRight, offsetRatio
	default:
		return protocol.StatusCentered, offsetRatio
	}
}

// clampBox limits a bounding box to frame bounds before offset
// computation, so detector overshoot cannot produce out-of-range ratios.
func clampBox(b protocol.Box, frameWidth int) protocol.Box {
	w := float64(frameWidth)
	b.X1 = clamp(b.X1, 0, w)
	b.X2 = clamp(b.X2, 0, w)
	if b.X2 < b.X1 {
		b.X1, b.X2 = b.X2, b.X1
	}
	return b
}

// clamp limits a value to a range
func clamp(value, min, max float64) float64 {
	if value < min {
		return min
	}
	if value > max {
		return max
	}
	return value
}
