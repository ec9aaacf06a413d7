// Package config loads coordinator configuration from the environment.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// ErrInvalidConfig is returned when startup parameters are unusable.
// The coordinator refuses to start on this error.
var ErrInvalidConfig = errors.New("config: invalid configuration")

// Config holds all tunable parameters for the tracking coordinator.
type Config struct {
	// Broker
	BrokerHost string
	BrokerPort int
	Team       string // namespaces all bus topics: vision/<team>/...

	// Frame geometry (detector output space)
	FrameWidth  int
	FrameHeight int

	// Tracking
	DeadZoneRatio       float64       // symmetric dead zone around frame center
	MinPublishInterval  time.Duration // throttle floor for same-status commands
	GraceLimit          int           // consecutive-miss budget before losing the lock
	SimilarityThreshold float64       // minimum cosine similarity to match an identity

	// Observers
	RingCapacity    int           // recent-event history size
	ObserverQueue   int           // per-observer send buffer
	MetricsInterval time.Duration // metrics_update cadence
	WebPort         string

	// Bridge
	ReconnectMin      time.Duration
	ReconnectMax      time.Duration
	HeartbeatInterval time.Duration
	CommandQueue      int // bounded hand-off between frame path and bridge

	// Enrollment
	EnrollmentPath string

	LogLevel string
}

// Load reads configuration from .env (if present) and the environment.
func Load() *Config {
	if err := godotenv.Load(); err != nil {
		// No .env is fine; the environment is authoritative anyway.
	}

	return &Config{
		BrokerHost:          getEnv("BROKER_HOST", "127.0.0.1"),
		BrokerPort:          getEnvInt("BROKER_PORT", 1883),
		Team:                getEnv("TEAM_ID", "elvin01"),
		FrameWidth:          getEnvInt("FRAME_WIDTH", 640),
		FrameHeight:         getEnvInt("FRAME_HEIGHT", 480),
		DeadZoneRatio:       getEnvFloat("DEAD_ZONE_RATIO", 0.12),
		MinPublishInterval:  getEnvDuration("MIN_PUBLISH_INTERVAL", 500*time.Millisecond),
		GraceLimit:          getEnvInt("GRACE_LIMIT", 10),
		SimilarityThreshold: getEnvFloat("SIMILARITY_THRESHOLD", 0.54),
		RingCapacity:        getEnvInt("RING_CAPACITY", 100),
		ObserverQueue:       getEnvInt("OBSERVER_QUEUE", 64),
		MetricsInterval:     getEnvDuration("METRICS_INTERVAL", 5*time.Second),
		WebPort:             getEnv("WEB_PORT", "9002"),
		ReconnectMin:        getEnvDuration("RECONNECT_MIN", time.Second),
		ReconnectMax:        getEnvDuration("RECONNECT_MAX", 30*time.Second),
		HeartbeatInterval:   getEnvDuration("HEARTBEAT_INTERVAL", 5*time.Second),
		CommandQueue:        getEnvInt("COMMAND_QUEUE", 32),
		EnrollmentPath:      getEnv("ENROLLMENT_PATH", "identities.json"),
		LogLevel:            getEnv("LOG_LEVEL", "info"),
	}
}

// Validate checks startup parameters. Errors here are fatal.
func (c *Config) Validate() error {
	if c.FrameWidth <= 0 || c.FrameHeight <= 0 {
		return fmt.Errorf("%w: frame dimensions %dx%d", ErrInvalidConfig, c.FrameWidth, c.FrameHeight)
	}
	if c.Team == "" {
		return fmt.Errorf("%w: team id is required", ErrInvalidConfig)
	}
	if c.BrokerPort <= 0 || c.BrokerPort > 65535 {
		return fmt.Errorf("%w: broker port %d", ErrInvalidConfig, c.BrokerPort)
	}
	if c.DeadZoneRatio < 0 || c.DeadZoneRatio >= 0.5 {
		return fmt.Errorf("%w: dead zone ratio %.3f must be in [0, 0.5)", ErrInvalidConfig, c.DeadZoneRatio)
	}
	if c.MinPublishInterval <= 0 {
		return fmt.Errorf("%w: min publish interval %v", ErrInvalidConfig, c.MinPublishInterval)
	}
	if c.GraceLimit < 0 {
		return fmt.Errorf("%w: grace limit %d", ErrInvalidConfig, c.GraceLimit)
	}
	if c.SimilarityThreshold <= 0 || c.SimilarityThreshold >= 1 {
		return fmt.Errorf("%w: similarity threshold %.3f must be in (0, 1)", ErrInvalidConfig, c.SimilarityThreshold)
	}
	if c.RingCapacity < 1 {
		return fmt.Errorf("%w: ring capacity %d", ErrInvalidConfig, c.RingCapacity)
	}
	if c.ObserverQueue < 1 || c.CommandQueue < 1 {
		return fmt.Errorf("%w: queue sizes must be at least 1", ErrInvalidConfig)
	}
	if c.ReconnectMin <= 0 || c.ReconnectMax < c.ReconnectMin {
		return fmt.Errorf("%w: reconnect bounds %v..%v", ErrInvalidConfig, c.ReconnectMin, c.ReconnectMax)
	}
	if c.HeartbeatInterval <= 0 {
		return fmt.Errorf("%w: heartbeat interval %v", ErrInvalidConfig, c.HeartbeatInterval)
	}
	return nil
}

// BrokerURL returns the paho connection URL.
func (c *Config) BrokerURL() string {
	return fmt.Sprintf("tcp://%s:%d", c.BrokerHost, c.BrokerPort)
}

func getEnv(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}

func getEnvInt(key string, defaultVal int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return defaultVal
}

func getEnvFloat(key string, defaultVal float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return defaultVal
}

func getEnvDuration(key string, defaultVal time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return defaultVal
}
