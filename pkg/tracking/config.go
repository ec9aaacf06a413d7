package tracking

import "time"

// Config holds all tunable parameters for the frame-processing path.
type Config struct {
	// Frame geometry (detector output space)
	FrameWidth  int
	FrameHeight int

	// Movement analysis
	DeadZoneRatio float64 // symmetric tolerance band around frame center

	// Lock state machine
	GraceLimit int // consecutive-miss budget before the lock is surrendered

	// Publishing
	MinPublishInterval time.Duration // floor between same-status emissions
}

// DefaultConfig returns the recommended coordinator configuration.
func DefaultConfig() Config {
	return Config{
		FrameWidth:         640,
		FrameHeight:        480,
		DeadZoneRatio:      0.12,
		GraceLimit:         10,
		MinPublishInterval: 500 * time.Millisecond,
	}
}
