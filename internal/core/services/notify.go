package services

import (
	"context"
	"fmt"

	"chatterbox/internal/core/domain"
	"chatterbox/pkg/logging"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// NotifyMessageCreated fans a freshly persisted message out to the channel
// room. Members currently viewing the channel have their watermark moved
// past it; everyone else gets an advisory channel.unread delta.
func (g *Gateway) NotifyMessageCreated(ctx context.Context, msg domain.MessagePayload) error {
	ctx, span := tracer.Start(ctx, "Gateway.NotifyMessageCreated", trace.WithAttributes(
		attribute.String("channel_id", msg.ChannelID),
		attribute.String("message_id", msg.ID),
	))
	defer span.End()
	if msg.ChannelID == "" {
		return domain.ErrInvalidChannelID
	}
	// Everything that can fail runs before the first publish, so a
	// redelivered event is never broadcast twice.
	members, err := g.channels.ListMembers(ctx, msg.ChannelID)
	if err != nil {
		span.RecordError(err)
		return fmt.Errorf("list members: %w", err)
	}
	g.hub.Publish(ctx, domain.ChannelTopic(msg.ChannelID), domain.EventMessageCreated, msg)

	// Sending a message is activity.
	if msg.AuthorID != "" && g.touchIfConnected(msg.AuthorID) {
		g.announcer.Announce(ctx, msg.AuthorID)
	}

	viewing := g.viewers(msg.ChannelID)
	for _, member := range members {
		if member == msg.AuthorID {
			continue
		}
		if _, ok := viewing[member]; ok {
			if err := g.ledger.Advance(ctx, member, msg.ChannelID, msg.CreatedAt); err != nil {
				g.log.WarnContext(ctx, "gateway - notify message created - advance watermark failed", logging.Identity(member), logging.Channel(msg.ChannelID), logging.Err(err))
			}
			continue
		}
		g.hub.Publish(ctx, domain.IdentityTopic(member), domain.EventChannelUnread, domain.ChannelUnreadEvent{
			ChannelID: msg.ChannelID,
			Delta:     1,
			MessageID: msg.ID,
		})
	}
	return nil
}

// viewers returns the identities with at least one connection in the view room.
func (g *Gateway) viewers(channelID string) map[string]struct{} {
	out := make(map[string]struct{})
	for _, connID := range g.hub.Subscribers(domain.ViewTopic(channelID)) {
		if id, ok := g.conns.IdentityOf(connID); ok {
			out[id] = struct{}{}
		}
	}
	return out
}

func (g *Gateway) NotifyMessageUpdated(ctx context.Context, ev domain.MessageUpdated) error {
	return g.toChannel(ctx, ev.ChannelID, domain.EventMessageUpdated, ev)
}

func (g *Gateway) NotifyMessageDeleted(ctx context.Context, ev domain.MessageDeleted) error {
	return g.toChannel(ctx, ev.ChannelID, domain.EventMessageDeleted, ev)
}

func (g *Gateway) NotifyReactionAdded(ctx context.Context, ev domain.ReactionEvent) error {
	return g.toChannel(ctx, ev.ChannelID, domain.EventReactionAdded, ev)
}

func (g *Gateway) NotifyReactionRemoved(ctx context.Context, ev domain.ReactionEvent) error {
	return g.toChannel(ctx, ev.ChannelID, domain.EventReactionRemoved, ev)
}

// NotifyMembershipChanged is called after an identity was added to or
// removed from a channel outside the gateway.
func (g *Gateway) NotifyMembershipChanged(ctx context.Context, identityID, channelID string) error {
	if identityID == "" || channelID == "" {
		return domain.ErrMalformedEvent
	}
	return g.router.MembershipChanged(ctx, identityID, channelID)
}

func (g *Gateway) toChannel(ctx context.Context, channelID, event string, data any) error {
	if channelID == "" {
		return domain.ErrInvalidChannelID
	}
	n := g.hub.Publish(ctx, domain.ChannelTopic(channelID), event, data)
	g.log.DebugContext(ctx, "gateway - notify - published", logging.Event(event), logging.Channel(channelID), "recipients", n)
	return nil
}
