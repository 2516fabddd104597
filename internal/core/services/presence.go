package services

import (
	"sort"
	"sync"
	"time"

	"chatterbox/internal/core/domain"
)

// PresenceTracker keeps the last activity time of every present identity
// and derives online/idle/offline from it.
type PresenceTracker struct {
	mu            sync.RWMutex
	lastActive    map[string]time.Time
	idleThreshold time.Duration
	now           func() time.Time
}

func NewPresenceTracker(idleThreshold time.Duration, now func() time.Time) *PresenceTracker {
	if now == nil {
		now = time.Now
	}
	return &PresenceTracker{
		lastActive:    make(map[string]time.Time),
		idleThreshold: idleThreshold,
		now:           now,
	}
}

// MarkOnline is called on connect.
func (p *PresenceTracker) MarkOnline(identityID string) {
	p.bump(identityID)
}

// Touch records activity. Identities without an entry get one.
func (p *PresenceTracker) Touch(identityID string) {
	p.bump(identityID)
}

func (p *PresenceTracker) bump(identityID string) {
	now := p.now()
	p.mu.Lock()
	defer p.mu.Unlock()
	// lastActive never moves backwards
	if prev, ok := p.lastActive[identityID]; ok && prev.After(now) {
		return
	}
	p.lastActive[identityID] = now
}

// MarkOffline removes the entry entirely.
func (p *PresenceTracker) MarkOffline(identityID string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.lastActive, identityID)
}

func (p *PresenceTracker) StatusOf(identityID string) domain.Status {
	now := p.now()
	p.mu.RLock()
	last, ok := p.lastActive[identityID]
	p.mu.RUnlock()
	if !ok {
		return domain.StatusOffline
	}
	return p.classify(now, last)
}

func (p *PresenceTracker) LastActive(identityID string) (time.Time, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	t, ok := p.lastActive[identityID]
	return t, ok
}

// Snapshot lists every present identity with its current status, ordered by id.
func (p *PresenceTracker) Snapshot() []domain.PresenceEntry {
	now := p.now()
	p.mu.RLock()
	out := make([]domain.PresenceEntry, 0, len(p.lastActive))
	for id, last := range p.lastActive {
		out = append(out, domain.PresenceEntry{IdentityID: id, Status: p.classify(now, last)})
	}
	p.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].IdentityID < out[j].IdentityID })
	return out
}

func (p *PresenceTracker) classify(now, last time.Time) domain.Status {
	if now.Sub(last) >= p.idleThreshold {
		return domain.StatusIdle
	}
	return domain.StatusOnline
}
