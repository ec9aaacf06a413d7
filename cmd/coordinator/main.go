// The coordinator tracks one enrolled face across detector frames and
// publishes pan commands and tracking state for the rest of the system.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/elvinlabs/facetrack/internal/config"
	"github.com/elvinlabs/facetrack/internal/log"
	"github.com/elvinlabs/facetrack/pkg/bridge"
	"github.com/elvinlabs/facetrack/pkg/hub"
	"github.com/elvinlabs/facetrack/pkg/identity"
	"github.com/elvinlabs/facetrack/pkg/protocol"
	"github.com/elvinlabs/facetrack/pkg/tracking"
	"github.com/elvinlabs/facetrack/pkg/web"
)

func main() {
	cfg := config.Load()
	log.Init(cfg.LogLevel)

	if err := cfg.Validate(); err != nil {
		log.Error("invalid configuration", "error", err)
		os.Exit(1)
	}

	identities, err := identity.LoadFile(cfg.EnrollmentPath)
	if err != nil {
		log.Error("enrollment load failed", "path", cfg.EnrollmentPath, "error", err)
		os.Exit(1)
	}
	log.Info("identities enrolled", "count", len(identities))

	matcher := identity.NewMatcher(identities, cfg.SimilarityThreshold)

	h := hub.New(cfg.RingCapacity, cfg.ObserverQueue, cfg.MetricsInterval, log.With("component", "hub"))

	topics := bridge.NewTopics(cfg.Team)
	will := protocol.OfflineHeartbeat(cfg.Team)
	willPayload, err := will.MarshalPayload()
	if err != nil {
		log.Error("encode will payload", "error", err)
		os.Exit(1)
	}

	connLost := make(chan error, 1)
	pub := bridge.NewPahoPublisher(cfg.BrokerURL(), cfg.Team, topics.Heartbeat(), willPayload, func(err error) {
		select {
		case connLost <- err:
		default:
		}
	})

	br := bridge.New(bridge.Config{
		Team:              cfg.Team,
		ReconnectMin:      cfg.ReconnectMin,
		ReconnectMax:      cfg.ReconnectMax,
		HeartbeatInterval: cfg.HeartbeatInterval,
		CommandQueue:      cfg.CommandQueue,
	}, pub, h, connLost, log.With("component", "bridge"))

	h.SetStatsFunc(func() (int64, int64) {
		s := br.Stats()
		return s.Reconnects, s.Dropped
	})

	coord, err := tracking.NewCoordinator(tracking.Config{
		FrameWidth:         cfg.FrameWidth,
		FrameHeight:        cfg.FrameHeight,
		DeadZoneRatio:      cfg.DeadZoneRatio,
		GraceLimit:         cfg.GraceLimit,
		MinPublishInterval: cfg.MinPublishInterval,
	}, matcher, br, log.With("component", "tracking"))
	if err != nil {
		log.Error("coordinator setup failed", "error", err)
		os.Exit(1)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	go h.Run(ctx)

	bridgeDone := make(chan struct{})
	go func() {
		br.Run(ctx)
		close(bridgeDone)
	}()

	srv := web.NewServer(cfg.WebPort, h, func() map[string]any {
		s := br.Stats()
		return map[string]any{
			"team":       cfg.Team,
			"lock_state": coord.Session().State.String(),
			"published":  s.Published,
			"reconnects": s.Reconnects,
			"uptime":     s.UptimeSeconds,
		}
	})
	go func() {
		if err := srv.Start(); err != nil {
			log.Error("web server stopped", "error", err)
		}
	}()

	log.Info("coordinator running",
		"team", cfg.Team,
		"broker", cfg.BrokerURL(),
		"web_port", cfg.WebPort,
	)

	// The frame loop: the single sequential path that owns the lock
	// session. It never blocks on broker I/O.
	for {
		select {
		case <-ctx.Done():
			srv.Shutdown()
			select {
			case <-bridgeDone:
			case <-time.After(5 * time.Second):
				log.Warn("bridge shutdown timed out")
			}
			log.Info("coordinator stopped")
			return
		case obs := <-br.Detections():
			coord.ProcessFrame(obs, time.Now())
		}
	}
}
