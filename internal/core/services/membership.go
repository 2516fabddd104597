package services

import (
	"context"
	"errors"
	"log/slog"

	"chatterbox/internal/core/contracts"
	"chatterbox/internal/core/domain"
	"chatterbox/pkg/logging"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// MembershipRouter decides which rooms a connection may join and keeps the
// hub subscriptions in line with channel membership.
type MembershipRouter struct {
	channels       domain.ChannelRepository
	hub            contracts.Hub
	conns          *ConnectionRegistry
	welcome        *WelcomeService
	defaultChannel string
	log            *slog.Logger
}

func NewMembershipRouter(
	log *slog.Logger,
	channels domain.ChannelRepository,
	hub contracts.Hub,
	conns *ConnectionRegistry,
	welcome *WelcomeService,
	defaultChannel string,
) *MembershipRouter {
	return &MembershipRouter{
		channels:       channels,
		hub:            hub,
		conns:          conns,
		welcome:        welcome,
		defaultChannel: defaultChannel,
		log:            log,
	}
}

// IsDefault reports whether ch is the channel every identity belongs to.
func (m *MembershipRouter) IsDefault(ch *domain.Channel) bool {
	return ch != nil && !ch.IsDirect && ch.Name == m.defaultChannel
}

// CanAccess is true for the default channel and any non-direct channel;
// direct channels require durable membership. Lookup failures deny.
func (m *MembershipRouter) CanAccess(ctx context.Context, identityID, channelID string) bool {
	ch, err := m.channels.GetChannel(ctx, channelID)
	if err != nil || ch == nil {
		if err != nil && !errors.Is(err, domain.ErrChannelNotFound) {
			m.log.ErrorContext(ctx, "membership - can access - get channel failed", logging.Channel(channelID), logging.Err(err))
		}
		return false
	}
	return m.canAccess(ctx, identityID, ch)
}

func (m *MembershipRouter) canAccess(ctx context.Context, identityID string, ch *domain.Channel) bool {
	if !ch.IsDirect {
		return true
	}
	ok, err := m.channels.IsMember(ctx, ch.ID, identityID)
	if err != nil {
		m.log.ErrorContext(ctx, "membership - can access - is member failed", logging.Channel(ch.ID), logging.Identity(identityID), logging.Err(err))
		return false
	}
	return ok
}

// Join subscribes the connection to the channel's membership and view rooms.
// A denied join leaves subscriptions untouched and returns ErrAccessDenied.
func (m *MembershipRouter) Join(ctx context.Context, connID, identityID, channelID string) error {
	ctx, span := tracer.Start(ctx, "MembershipRouter.Join", trace.WithAttributes(
		attribute.String("conn_id", connID),
		attribute.String("channel_id", channelID),
	))
	defer span.End()
	if channelID == "" {
		return domain.ErrInvalidChannelID
	}
	ch, err := m.channels.GetChannel(ctx, channelID)
	if err != nil {
		if errors.Is(err, domain.ErrChannelNotFound) {
			return domain.ErrAccessDenied
		}
		span.RecordError(err)
		span.SetStatus(codes.Error, "get channel failed")
		return err
	}
	if ch == nil || !m.canAccess(ctx, identityID, ch) {
		span.SetStatus(codes.Error, "access denied")
		m.log.InfoContext(ctx, "membership - join - access denied", logging.Connection(connID), logging.Identity(identityID), logging.Channel(channelID))
		return domain.ErrAccessDenied
	}
	if !m.hub.Subscribe(connID, domain.ChannelTopic(ch.ID)) {
		return domain.ErrConnectionNotFound
	}
	m.hub.Subscribe(connID, domain.ViewTopic(ch.ID))

	if m.IsDefault(ch) {
		if err := m.channels.EnsureMember(ctx, ch.ID, identityID); err != nil {
			span.RecordError(err)
			m.log.ErrorContext(ctx, "membership - join - ensure default membership failed", logging.Identity(identityID), logging.Err(err))
		} else if m.welcome != nil {
			if err := m.welcome.Ensure(ctx, ch, identityID); err != nil {
				span.RecordError(err)
				m.log.ErrorContext(ctx, "membership - join - welcome failed", logging.Identity(identityID), logging.Channel(ch.ID), logging.Err(err))
			}
		}
	}
	m.log.DebugContext(ctx, "membership - join - success", logging.Connection(connID), logging.Channel(ch.ID))
	return nil
}

// Leave drops both room subscriptions. It never touches durable membership.
func (m *MembershipRouter) Leave(connID, channelID string) {
	m.hub.Unsubscribe(connID, domain.ChannelTopic(channelID))
	m.hub.Unsubscribe(connID, domain.ViewTopic(channelID))
}

// SubscribeAll joins a fresh connection to the membership room of every
// channel its identity belongs to, so unread and message events reach it
// before any explicit join.
func (m *MembershipRouter) SubscribeAll(ctx context.Context, connID, identityID string) error {
	chans, err := m.channels.ListMemberChannels(ctx, identityID)
	if err != nil {
		return err
	}
	for _, ch := range chans {
		m.hub.Subscribe(connID, domain.ChannelTopic(ch.ID))
	}
	return nil
}

// MembershipChanged reconciles every live connection of the identity with
// its current membership of channelID.
func (m *MembershipRouter) MembershipChanged(ctx context.Context, identityID, channelID string) error {
	ch, err := m.channels.GetChannel(ctx, channelID)
	if err != nil && !errors.Is(err, domain.ErrChannelNotFound) {
		return err
	}
	member := false
	if ch != nil {
		if member, err = m.channels.IsMember(ctx, channelID, identityID); err != nil {
			return err
		}
	}
	for _, connID := range m.conns.Connections(identityID) {
		if member {
			m.hub.Subscribe(connID, domain.ChannelTopic(channelID))
			continue
		}
		m.Leave(connID, channelID)
	}
	m.log.InfoContext(ctx, "membership - changed - reconciled", logging.Identity(identityID), logging.Channel(channelID), "member", member)
	return nil
}
