package domain

import (
	"context"
	"time"
)

// ProfileRepository is the identity profile store.
type ProfileRepository interface {
	GetProfile(ctx context.Context, identityID string) (*Profile, error)
	// GetProfiles returns the profiles that exist among ids, in no particular order.
	GetProfiles(ctx context.Context, ids []string) ([]Profile, error)
	// RecentlyOffline lists identities with a last-seen timestamp, newest first,
	// skipping the excluded ids.
	RecentlyOffline(ctx context.Context, exclude []string, limit int) ([]Profile, error)
	// UpdateLastSeen persists the moment an identity went fully offline.
	UpdateLastSeen(ctx context.Context, identityID string, at time.Time) error
}

// ChannelRepository answers membership and access questions.
type ChannelRepository interface {
	GetChannel(ctx context.Context, channelID string) (*Channel, error)
	GetChannelByName(ctx context.Context, name string) (*Channel, error)
	IsMember(ctx context.Context, channelID, identityID string) (bool, error)
	// EnsureMember is idempotent.
	EnsureMember(ctx context.Context, channelID, identityID string) error
	ListMemberChannels(ctx context.Context, identityID string) ([]Channel, error)
	ListMembers(ctx context.Context, channelID string) ([]string, error)
}

// MessageRepository covers the message queries the realtime layer needs.
// Every query ignores soft-deleted messages.
type MessageRepository interface {
	// LatestMessage returns nil, nil when the channel has no messages.
	LatestMessage(ctx context.Context, channelID string) (*Message, error)
	// LatestMessageFrom returns nil, nil when authorID never posted in the channel.
	LatestMessageFrom(ctx context.Context, channelID, authorID string) (*Message, error)
	// CountUnread counts messages created strictly after the watermark
	// and not authored by identityID.
	CountUnread(ctx context.Context, channelID, identityID string, after time.Time) (int, error)
	// HasWelcome scans for a welcome message already addressed to identityID.
	HasWelcome(ctx context.Context, channelID, identityID string) (bool, error)
	// CreateWelcome inserts msg unless a welcome for the same (channel, identity)
	// exists. created is false on conflict.
	CreateWelcome(ctx context.Context, msg *Message) (created bool, err error)
}

// ReadRepository stores unread watermarks.
type ReadRepository interface {
	// GetWatermark returns nil, nil when no watermark exists yet.
	GetWatermark(ctx context.Context, identityID, channelID string) (*Watermark, error)
	// InitWatermark inserts w unless one exists and returns the stored watermark.
	InitWatermark(ctx context.Context, w Watermark) (Watermark, error)
	SetWatermark(ctx context.Context, w Watermark) error
	// AdvanceWatermark only moves the watermark forward.
	AdvanceWatermark(ctx context.Context, w Watermark) error
}
