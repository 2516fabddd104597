package services

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"chatterbox/internal/platform/metrics"
)

// PresenceSweeper is the periodic pass that notices online→idle transitions,
// which no client action ever triggers. It is started once at boot and
// stopped at shutdown.
type PresenceSweeper struct {
	interval  time.Duration
	presence  *PresenceTracker
	announcer *PresenceAnnouncer
	metrics   *metrics.Metrics
	log       *slog.Logger

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

func NewPresenceSweeper(
	log *slog.Logger,
	interval time.Duration,
	presence *PresenceTracker,
	announcer *PresenceAnnouncer,
	m *metrics.Metrics,
) *PresenceSweeper {
	return &PresenceSweeper{
		interval:  interval,
		presence:  presence,
		announcer: announcer,
		metrics:   m,
		log:       log,
	}
}

// Start launches the sweep loop. Calling Start on a running sweeper is a no-op.
func (s *PresenceSweeper) Start(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cancel != nil {
		return
	}
	ctx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.done = make(chan struct{})
	go s.loop(ctx, s.done)
	s.log.InfoContext(ctx, "presence - sweeper - started", "interval", s.interval)
}

// Stop cancels the loop and waits for it to exit.
func (s *PresenceSweeper) Stop() {
	s.mu.Lock()
	cancel, done := s.cancel, s.done
	s.cancel, s.done = nil, nil
	s.mu.Unlock()
	if cancel == nil {
		return
	}
	cancel()
	<-done
	s.log.Info("presence - sweeper - stopped")
}

// Running reports whether the loop is active.
func (s *PresenceSweeper) Running() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cancel != nil
}

func (s *PresenceSweeper) loop(ctx context.Context, done chan struct{}) {
	defer close(done)
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.Sweep(ctx)
		}
	}
}

// Sweep runs one reconciliation pass and returns how many updates it broadcast.
func (s *PresenceSweeper) Sweep(ctx context.Context) int {
	start := time.Now()
	announced := 0
	for _, entry := range s.presence.Snapshot() {
		if ctx.Err() != nil {
			break
		}
		if s.announcer.LastBroadcast(entry.IdentityID) == entry.Status {
			continue
		}
		if s.announcer.AnnouncePresent(ctx, entry.IdentityID) {
			announced++
		}
	}
	s.metrics.ObserveSweep(time.Since(start))
	if announced > 0 {
		s.log.DebugContext(ctx, "presence - sweep - transitions announced", "count", announced)
	}
	return announced
}
