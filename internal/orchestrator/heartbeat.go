package orchestrator

import (
	"context"
	"time"

	"github.com/hbit/hbit-server/internal/config"
	"github.com/hbit/hbit-server/internal/heartbeat"
	"github.com/hbit/hbit-server/internal/salt"
)

// heartbeatClient aliases the internal/heartbeat client so this file
// reads as orchestrator-local glue rather than a second copy of the
// HTTP plumbing.
type heartbeatClient = heartbeat.Client

func newHeartbeatClient() *heartbeatClient { return heartbeat.NewClient() }

// runHeartbeatLoop ticks every heartbeat_spacing, generating a fresh
// salt, pinging heartbeat_url, and recording the advertised URL the
// service hands back on first success (§4.6 steps 3-6). It returns
// once Stopped() closes.
func (s *Server) runHeartbeatLoop() {
	for {
		cfg := s.snapshotConfig()
		userCount := s.PlayerCount()

		saltValue := "0"
		if cfg.KeptSalts > 0 {
			generated, err := salt.Generate()
			if err != nil {
				s.log.Warn("failed to generate heartbeat salt", "error", err)
			} else {
				saltValue = generated
				s.salts.Push(generated)
			}
		}

		if cfg.HeartbeatURL != "" {
			s.sendHeartbeat(cfg, saltValue, userCount)
		}

		select {
		case <-s.stopped:
			return
		case <-time.After(cfg.HeartbeatSpacing):
		}
	}
}

func (s *Server) sendHeartbeat(cfg config.Config, saltValue string, userCount int) {
	ctx, cancel := context.WithTimeout(context.Background(), cfg.HeartbeatTimeout)
	defer cancel()

	resp, err := s.heartbeat.Ping(ctx, cfg.HeartbeatURL, heartbeat.Request{
		Port:   cfg.Port,
		Max:    cfg.MaxPlayers,
		Name:   cfg.Name,
		Public: cfg.Public,
		Salt:   saltValue,
		Users:  userCount,
	})
	if err != nil {
		s.log.Warn("heartbeat ping failed", "error", err)
		return
	}

	if !resp.Succeeded() {
		s.log.Warn("heartbeat ping rejected", "status", resp.Status)
		for _, group := range resp.Errors {
			for _, msg := range group {
				s.log.Warn("heartbeat error", "message", msg)
			}
		}
		return
	}

	for _, group := range resp.Errors {
		for _, msg := range group {
			s.log.Warn("heartbeat warning", "message", msg)
		}
	}

	if s.url.CompareAndSwap(nil, &resp.Response) {
		s.log.Info("heartbeat advertised url", "url", resp.Response)
	}
}

// AdvertisedURL returns the one-shot advertised URL the heartbeat
// service handed back, or "" if none has been recorded yet.
func (s *Server) AdvertisedURL() string {
	if v := s.url.Load(); v != nil {
		return *v
	}
	return ""
}
