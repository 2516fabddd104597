package services

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"chatterbox/internal/core/contracts"
	"chatterbox/internal/core/domain"
	"chatterbox/internal/platform/metrics"
	"chatterbox/pkg/logging"

	"github.com/google/uuid"
	"golang.org/x/sync/singleflight"
)

// WelcomeService posts the bot greeting on an identity's first join of the
// default channel.
//
// Two guards apply. The in-memory set only saves a database round-trip for
// identities this process already greeted. The durable check (HasWelcome,
// then an insert that conflicts on (channel, welcome_for)) is the
// authoritative one and is what keeps restarts and racing nodes from
// posting twice.
type WelcomeService struct {
	messages domain.MessageRepository
	profiles domain.ProfileRepository
	hub      contracts.Hub
	metrics  *metrics.Metrics
	botID    string
	text     string
	now      func() time.Time
	log      *slog.Logger

	mu      sync.RWMutex
	greeted map[string]struct{}
	group   singleflight.Group
}

func NewWelcomeService(
	log *slog.Logger,
	messages domain.MessageRepository,
	profiles domain.ProfileRepository,
	hub contracts.Hub,
	m *metrics.Metrics,
	botID, text string,
	now func() time.Time,
) *WelcomeService {
	if now == nil {
		now = time.Now
	}
	return &WelcomeService{
		messages: messages,
		profiles: profiles,
		hub:      hub,
		metrics:  m,
		botID:    botID,
		text:     text,
		now:      now,
		log:      log,
		greeted:  make(map[string]struct{}),
	}
}

func welcomeKey(channelID, identityID string) string {
	return channelID + ":" + identityID
}

// Ensure makes sure identityID has been welcomed to ch exactly once.
func (w *WelcomeService) Ensure(ctx context.Context, ch *domain.Channel, identityID string) error {
	key := welcomeKey(ch.ID, identityID)
	w.mu.RLock()
	_, done := w.greeted[key]
	w.mu.RUnlock()
	if done {
		return nil
	}
	_, err, _ := w.group.Do(key, func() (any, error) {
		return nil, w.ensure(ctx, ch, identityID)
	})
	return err
}

func (w *WelcomeService) ensure(ctx context.Context, ch *domain.Channel, identityID string) error {
	key := welcomeKey(ch.ID, identityID)
	exists, err := w.messages.HasWelcome(ctx, ch.ID, identityID)
	if err != nil {
		return fmt.Errorf("check welcome: %w", err)
	}
	if exists {
		w.markGreeted(key)
		return nil
	}

	name := identityID
	if p, err := w.profiles.GetProfile(ctx, identityID); err == nil && p != nil && p.DisplayName != "" {
		name = p.DisplayName
	}
	content := fmt.Sprintf(w.text, ch.Name, name)
	target := identityID
	msg := &domain.Message{
		ID:         uuid.New(),
		ChannelID:  ch.ID,
		AuthorID:   w.botID,
		Content:    &content,
		CreatedAt:  w.now(),
		WelcomeFor: &target,
	}
	created, err := w.messages.CreateWelcome(ctx, msg)
	if err != nil {
		return fmt.Errorf("create welcome: %w", err)
	}
	w.markGreeted(key)
	if !created {
		w.log.DebugContext(ctx, "welcome - ensure - already posted elsewhere", logging.Identity(identityID), logging.Channel(ch.ID))
		return nil
	}

	author := domain.AuthorRef{ID: w.botID, DisplayName: w.botID}
	if p, err := w.profiles.GetProfile(ctx, w.botID); err == nil && p != nil {
		author = domain.AuthorRef{ID: p.ID, DisplayName: p.DisplayName, AvatarURL: p.AvatarURL}
	}
	w.hub.Publish(ctx, domain.ViewTopic(ch.ID), domain.EventMessageCreated, domain.MessagePayload{
		ID:        msg.ID.String(),
		ChannelID: ch.ID,
		AuthorID:  w.botID,
		Content:   msg.Content,
		CreatedAt: msg.CreatedAt,
		Author:    author,
		Reactions: []domain.ReactionRef{},
		Mentions:  []domain.MentionRef{},
	})
	w.metrics.WelcomeCreated()
	w.log.InfoContext(ctx, "welcome - ensure - posted", logging.Identity(identityID), logging.Channel(ch.ID))
	return nil
}

func (w *WelcomeService) markGreeted(key string) {
	w.mu.Lock()
	w.greeted[key] = struct{}{}
	w.mu.Unlock()
}
