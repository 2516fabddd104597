package services

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"chatterbox/internal/core/contracts"
	"chatterbox/internal/core/domain"
	"chatterbox/pkg/logging"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const directFallbackName = "Direct"

// UnreadLedger maintains per-(identity, channel) read watermarks and derives
// unread counts from them.
type UnreadLedger struct {
	channels domain.ChannelRepository
	messages domain.MessageRepository
	reads    domain.ReadRepository
	profiles domain.ProfileRepository
	tx       contracts.Transactor
	hub      contracts.Hub
	now      func() time.Time
	log      *slog.Logger
}

func NewUnreadLedger(
	log *slog.Logger,
	channels domain.ChannelRepository,
	messages domain.MessageRepository,
	reads domain.ReadRepository,
	profiles domain.ProfileRepository,
	tx contracts.Transactor,
	hub contracts.Hub,
	now func() time.Time,
) *UnreadLedger {
	if now == nil {
		now = time.Now
	}
	return &UnreadLedger{
		channels: channels,
		messages: messages,
		reads:    reads,
		profiles: profiles,
		tx:       tx,
		hub:      hub,
		now:      now,
		log:      log,
	}
}

// MarkRead moves the watermark to the channel's newest message (or to now
// for an empty channel). In a direct channel the other participant is sent
// a message.read receipt if they have posted there.
func (u *UnreadLedger) MarkRead(ctx context.Context, identityID, channelID string) (domain.Watermark, error) {
	ctx, span := tracer.Start(ctx, "UnreadLedger.MarkRead", trace.WithAttributes(
		attribute.String("identity_id", identityID),
		attribute.String("channel_id", channelID),
	))
	defer span.End()
	var (
		w      domain.Watermark
		ch     *domain.Channel
		latest *domain.Message
	)
	err := u.tx.WithTx(ctx, func(txCtx context.Context) error {
		var err error
		if ch, err = u.channels.GetChannel(txCtx, channelID); err != nil {
			return err
		}
		member, err := u.channels.IsMember(txCtx, channelID, identityID)
		if err != nil {
			return err
		}
		if !member {
			return domain.ErrNotMember
		}
		if latest, err = u.messages.LatestMessage(txCtx, channelID); err != nil {
			return err
		}
		w = domain.Watermark{IdentityID: identityID, ChannelID: channelID, LastRead: u.now()}
		if latest != nil {
			w.LastRead = latest.CreatedAt
		}
		return u.reads.SetWatermark(txCtx, w)
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "mark read failed")
		u.log.ErrorContext(ctx, "unread - mark read - failed", logging.Identity(identityID), logging.Channel(channelID), logging.Err(err))
		return domain.Watermark{}, err
	}
	if ch.IsDirect && latest != nil {
		u.sendReceipt(ctx, identityID, channelID, latest)
	}
	return w, nil
}

func (u *UnreadLedger) sendReceipt(ctx context.Context, readerID, channelID string, latest *domain.Message) {
	members, err := u.channels.ListMembers(ctx, channelID)
	if err != nil {
		u.log.WarnContext(ctx, "unread - read receipt - list members failed", logging.Channel(channelID), logging.Err(err))
		return
	}
	for _, other := range members {
		if other == readerID {
			continue
		}
		// Only authors who have spoken in the conversation get a receipt.
		sent, err := u.messages.LatestMessageFrom(ctx, channelID, other)
		if err != nil || sent == nil {
			continue
		}
		u.hub.Publish(ctx, domain.IdentityTopic(other), domain.EventMessageRead, domain.MessageRead{
			ChannelID: channelID,
			ReaderID:  readerID,
			MessageID: latest.ID.String(),
			ReadAt:    u.now(),
		})
	}
}

// ListWithUnread returns every channel the identity belongs to with its
// unread count. A missing watermark is created at the channel's newest
// message, so a first view reports zero rather than the whole history.
func (u *UnreadLedger) ListWithUnread(ctx context.Context, identityID string) ([]domain.ChannelUnread, error) {
	ctx, span := tracer.Start(ctx, "UnreadLedger.ListWithUnread", trace.WithAttributes(
		attribute.String("identity_id", identityID),
	))
	defer span.End()
	chans, err := u.channels.ListMemberChannels(ctx, identityID)
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("list member channels: %w", err)
	}
	out := make([]domain.ChannelUnread, 0, len(chans))
	for _, ch := range chans {
		w, err := u.watermark(ctx, identityID, ch.ID)
		if err != nil {
			span.RecordError(err)
			return nil, err
		}
		n, err := u.messages.CountUnread(ctx, ch.ID, identityID, w.LastRead)
		if err != nil {
			span.RecordError(err)
			return nil, fmt.Errorf("count unread: %w", err)
		}
		name := ch.Name
		if ch.IsDirect {
			name = u.directName(ctx, identityID, ch.ID)
		}
		out = append(out, domain.ChannelUnread{ID: ch.ID, Name: name, IsDirect: ch.IsDirect, Unread: n})
	}
	span.SetAttributes(attribute.Int("channel_count", len(out)))
	return out, nil
}

// ComputeUnread returns the unread count of a single channel, initialising
// the watermark the same way ListWithUnread does.
func (u *UnreadLedger) ComputeUnread(ctx context.Context, identityID, channelID string) (int, error) {
	w, err := u.watermark(ctx, identityID, channelID)
	if err != nil {
		return 0, err
	}
	return u.messages.CountUnread(ctx, channelID, identityID, w.LastRead)
}

// Advance moves the watermark forward to at, never backwards. It is the
// implicit read of a connection that is viewing the channel.
func (u *UnreadLedger) Advance(ctx context.Context, identityID, channelID string, at time.Time) error {
	return u.reads.AdvanceWatermark(ctx, domain.Watermark{IdentityID: identityID, ChannelID: channelID, LastRead: at})
}

func (u *UnreadLedger) watermark(ctx context.Context, identityID, channelID string) (domain.Watermark, error) {
	w, err := u.reads.GetWatermark(ctx, identityID, channelID)
	if err != nil {
		return domain.Watermark{}, fmt.Errorf("get watermark: %w", err)
	}
	if w != nil {
		return *w, nil
	}
	latest, err := u.messages.LatestMessage(ctx, channelID)
	if err != nil {
		return domain.Watermark{}, fmt.Errorf("latest message: %w", err)
	}
	init := domain.Watermark{IdentityID: identityID, ChannelID: channelID, LastRead: u.now()}
	if latest != nil {
		init.LastRead = latest.CreatedAt
	}
	// Concurrent initialisers converge on whichever row was stored first.
	stored, err := u.reads.InitWatermark(ctx, init)
	if err != nil {
		return domain.Watermark{}, fmt.Errorf("init watermark: %w", err)
	}
	return stored, nil
}

func (u *UnreadLedger) directName(ctx context.Context, identityID, channelID string) string {
	members, err := u.channels.ListMembers(ctx, channelID)
	if err != nil {
		return directFallbackName
	}
	for _, m := range members {
		if m == identityID {
			continue
		}
		p, err := u.profiles.GetProfile(ctx, m)
		if err == nil && p != nil && p.DisplayName != "" {
			return p.DisplayName
		}
	}
	return directFallbackName
}
