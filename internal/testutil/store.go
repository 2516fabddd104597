package testutil

import (
	"context"
	"sort"
	"sync"
	"time"

	"chatterbox/internal/core/domain"
)

// Store is an in-memory implementation of every repository the gateway
// uses, plus the last-seen index and a pass-through transactor.
type Store struct {
	mu       sync.Mutex
	profiles map[string]domain.Profile
	channels map[string]domain.Channel
	members  map[string]map[string]struct{} // channel → identities
	messages []domain.Message
	reads    map[[2]string]time.Time // (identity, channel) → last read
	lastSeen map[string]time.Time

	// Failure injection
	UpdateLastSeenErr error
	HasWelcomeErr     error
	ListMembersErr    error

	// Call counters
	HasWelcomeCalls    int
	CreateWelcomeCalls int
}

func NewStore() *Store {
	return &Store{
		profiles: make(map[string]domain.Profile),
		channels: make(map[string]domain.Channel),
		members:  make(map[string]map[string]struct{}),
		reads:    make(map[[2]string]time.Time),
		lastSeen: make(map[string]time.Time),
	}
}

// Seeding helpers

func (s *Store) AddProfile(id, displayName string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.profiles[id] = domain.Profile{ID: id, DisplayName: displayName}
}

func (s *Store) AddChannel(ch domain.Channel, members ...string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.channels[ch.ID] = ch
	if s.members[ch.ID] == nil {
		s.members[ch.ID] = make(map[string]struct{})
	}
	for _, m := range members {
		s.members[ch.ID][m] = struct{}{}
	}
}

func (s *Store) RemoveMember(channelID, identityID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.members[channelID], identityID)
}

func (s *Store) AddMessage(m domain.Message) domain.Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.messages = append(s.messages, m)
	return m
}

func (s *Store) SoftDelete(channelID string, at time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := len(s.messages) - 1; i >= 0; i-- {
		if s.messages[i].ChannelID == channelID && s.messages[i].DeletedAt == nil {
			s.messages[i].DeletedAt = &at
			return
		}
	}
}

// Welcomes counts stored welcome messages for the pair.
func (s *Store) Welcomes(channelID, identityID string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, m := range s.messages {
		if m.ChannelID == channelID && m.WelcomeFor != nil && *m.WelcomeFor == identityID {
			n++
		}
	}
	return n
}

func (s *Store) Watermark(identityID, channelID string) (time.Time, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.reads[[2]string{identityID, channelID}]
	return t, ok
}

// ProfileRepository

func (s *Store) GetProfile(_ context.Context, id string) (*domain.Profile, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.profiles[id]
	if !ok {
		return nil, domain.ErrIdentityNotFound
	}
	return &p, nil
}

func (s *Store) GetProfiles(_ context.Context, ids []string) ([]domain.Profile, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []domain.Profile
	for _, id := range ids {
		if p, ok := s.profiles[id]; ok {
			out = append(out, p)
		}
	}
	return out, nil
}

func (s *Store) RecentlyOffline(_ context.Context, exclude []string, limit int) ([]domain.Profile, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	skip := make(map[string]struct{}, len(exclude))
	for _, id := range exclude {
		skip[id] = struct{}{}
	}
	var out []domain.Profile
	for id, p := range s.profiles {
		if _, ok := skip[id]; ok || p.LastSeen == nil {
			continue
		}
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].LastSeen.After(*out[j].LastSeen) })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *Store) UpdateLastSeen(_ context.Context, id string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.UpdateLastSeenErr != nil {
		return s.UpdateLastSeenErr
	}
	p, ok := s.profiles[id]
	if !ok {
		return domain.ErrIdentityNotFound
	}
	p.LastSeen = &at
	s.profiles[id] = p
	return nil
}

// ChannelRepository

func (s *Store) GetChannel(_ context.Context, id string) (*domain.Channel, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ch, ok := s.channels[id]
	if !ok {
		return nil, domain.ErrChannelNotFound
	}
	return &ch, nil
}

func (s *Store) GetChannelByName(_ context.Context, name string) (*domain.Channel, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, ch := range s.channels {
		if ch.Name == name && !ch.IsDirect {
			return &ch, nil
		}
	}
	return nil, domain.ErrChannelNotFound
}

func (s *Store) IsMember(_ context.Context, channelID, identityID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.members[channelID][identityID]
	return ok, nil
}

func (s *Store) EnsureMember(_ context.Context, channelID, identityID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.members[channelID] == nil {
		s.members[channelID] = make(map[string]struct{})
	}
	s.members[channelID][identityID] = struct{}{}
	return nil
}

func (s *Store) ListMemberChannels(_ context.Context, identityID string) ([]domain.Channel, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []domain.Channel
	for id, set := range s.members {
		if _, ok := set[identityID]; ok {
			out = append(out, s.channels[id])
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *Store) ListMembers(_ context.Context, channelID string) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ListMembersErr != nil {
		return nil, s.ListMembersErr
	}
	out := make([]string, 0, len(s.members[channelID]))
	for id := range s.members[channelID] {
		out = append(out, id)
	}
	sort.Strings(out)
	return out, nil
}

// MessageRepository

func (s *Store) LatestMessage(_ context.Context, channelID string) (*domain.Message, error) {
	return s.latest(func(m domain.Message) bool { return m.ChannelID == channelID }), nil
}

func (s *Store) LatestMessageFrom(_ context.Context, channelID, authorID string) (*domain.Message, error) {
	return s.latest(func(m domain.Message) bool { return m.ChannelID == channelID && m.AuthorID == authorID }), nil
}

func (s *Store) latest(match func(domain.Message) bool) *domain.Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	var best *domain.Message
	for i := range s.messages {
		m := s.messages[i]
		if m.DeletedAt != nil || !match(m) {
			continue
		}
		if best == nil || !m.CreatedAt.Before(best.CreatedAt) {
			best = &m
		}
	}
	return best
}

func (s *Store) CountUnread(_ context.Context, channelID, identityID string, after time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, m := range s.messages {
		if m.ChannelID == channelID && m.AuthorID != identityID && m.DeletedAt == nil && m.CreatedAt.After(after) {
			n++
		}
	}
	return n, nil
}

func (s *Store) HasWelcome(_ context.Context, channelID, identityID string) (bool, error) {
	s.mu.Lock()
	s.HasWelcomeCalls++
	err := s.HasWelcomeErr
	s.mu.Unlock()
	if err != nil {
		return false, err
	}
	return s.Welcomes(channelID, identityID) > 0, nil
}

func (s *Store) CreateWelcome(_ context.Context, msg *domain.Message) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.CreateWelcomeCalls++
	for _, m := range s.messages {
		if m.ChannelID == msg.ChannelID && m.WelcomeFor != nil && msg.WelcomeFor != nil && *m.WelcomeFor == *msg.WelcomeFor {
			return false, nil
		}
	}
	s.messages = append(s.messages, *msg)
	return true, nil
}

// ReadRepository

func (s *Store) GetWatermark(_ context.Context, identityID, channelID string) (*domain.Watermark, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.reads[[2]string{identityID, channelID}]
	if !ok {
		return nil, nil
	}
	return &domain.Watermark{IdentityID: identityID, ChannelID: channelID, LastRead: t}, nil
}

func (s *Store) InitWatermark(_ context.Context, w domain.Watermark) (domain.Watermark, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := [2]string{w.IdentityID, w.ChannelID}
	if t, ok := s.reads[key]; ok {
		w.LastRead = t
		return w, nil
	}
	s.reads[key] = w.LastRead
	return w, nil
}

func (s *Store) SetWatermark(_ context.Context, w domain.Watermark) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.reads[[2]string{w.IdentityID, w.ChannelID}] = w.LastRead
	return nil
}

func (s *Store) AdvanceWatermark(_ context.Context, w domain.Watermark) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := [2]string{w.IdentityID, w.ChannelID}
	if t, ok := s.reads[key]; ok && !w.LastRead.After(t) {
		return nil
	}
	s.reads[key] = w.LastRead
	return nil
}

// Transactor

func (s *Store) WithTx(ctx context.Context, fn func(ctx context.Context) error) error {
	return fn(ctx)
}

// LastSeenIndex

func (s *Store) Record(_ context.Context, identityID string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastSeen[identityID] = at
	return nil
}

func (s *Store) Remove(_ context.Context, identityID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.lastSeen, identityID)
	return nil
}

func (s *Store) Recent(_ context.Context, limit int) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ids := make([]string, 0, len(s.lastSeen))
	for id := range s.lastSeen {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return s.lastSeen[ids[i]].After(s.lastSeen[ids[j]]) })
	if len(ids) > limit {
		ids = ids[:limit]
	}
	return ids, nil
}
