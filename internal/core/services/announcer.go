package services

import (
	"context"
	"log/slog"
	"sync"

	"chatterbox/internal/core/contracts"
	"chatterbox/internal/core/domain"
	"chatterbox/internal/platform/metrics"
	"chatterbox/pkg/logging"
)

// PresenceAnnouncer broadcasts presence.update exactly once per status
// change. It remembers the last status it broadcast for every identity and
// compares under a single lock, so concurrent callers (connect, disconnect,
// typing, sweep) cannot duplicate or reorder an announcement.
type PresenceAnnouncer struct {
	mu       sync.Mutex
	last     map[string]domain.Status // absent means offline
	presence *PresenceTracker
	profiles domain.ProfileRepository
	hub      contracts.Hub
	metrics  *metrics.Metrics
	log      *slog.Logger
}

func NewPresenceAnnouncer(
	log *slog.Logger,
	presence *PresenceTracker,
	profiles domain.ProfileRepository,
	hub contracts.Hub,
	m *metrics.Metrics,
) *PresenceAnnouncer {
	return &PresenceAnnouncer{
		last:     make(map[string]domain.Status),
		presence: presence,
		profiles: profiles,
		hub:      hub,
		metrics:  m,
		log:      log,
	}
}

// Announce broadcasts the identity's current status if it differs from the
// last one broadcast. It reports whether a frame went out.
func (a *PresenceAnnouncer) Announce(ctx context.Context, identityID string) bool {
	return a.announce(ctx, identityID, false)
}

// AnnouncePresent is the sweep variant: identities that are offline by now
// are left to the disconnect path.
func (a *PresenceAnnouncer) AnnouncePresent(ctx context.Context, identityID string) bool {
	return a.announce(ctx, identityID, true)
}

// LastBroadcast returns the status most recently broadcast for the identity.
func (a *PresenceAnnouncer) LastBroadcast(identityID string) domain.Status {
	a.mu.Lock()
	defer a.mu.Unlock()
	if st, ok := a.last[identityID]; ok {
		return st
	}
	return domain.StatusOffline
}

func (a *PresenceAnnouncer) announce(ctx context.Context, identityID string, skipOffline bool) bool {
	// Profile lookup happens before the lock; a failed lookup still announces
	// with the bare id so a change is never skipped.
	profile, err := a.profiles.GetProfile(ctx, identityID)
	if err != nil || profile == nil {
		a.log.WarnContext(ctx, "presence - announce - get profile failed", logging.Identity(identityID), logging.Err(err))
		profile = &domain.Profile{ID: identityID}
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	status := a.presence.StatusOf(identityID)
	if skipOffline && status == domain.StatusOffline {
		return false
	}
	prev, ok := a.last[identityID]
	if !ok {
		prev = domain.StatusOffline
	}
	if prev == status {
		return false
	}
	if status == domain.StatusOffline {
		delete(a.last, identityID)
	} else {
		a.last[identityID] = status
	}
	update := domain.PresenceUpdate{
		User:     domain.NewPresenceUser(*profile),
		Status:   status,
		IsOnline: status.Present(),
	}
	n := a.hub.Publish(ctx, domain.GlobalTopic(), domain.EventPresenceUpdate, update)
	a.metrics.PresenceUpdate(string(status))
	a.log.DebugContext(ctx, "presence - announce - broadcast", logging.Identity(identityID), "from", prev, "to", status, "recipients", n)
	return true
}
