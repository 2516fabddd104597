package domain

import (
	"encoding/json"
	"time"
)

// Wire event names. These are the protocol surface and must stay stable.
const (
	EventPresenceSnapshot = "presence.snapshot"
	EventPresenceUpdate   = "presence.update"
	EventTyping           = "typing"
	EventChannelJoin      = "channel.join"
	EventChannelLeave     = "channel.leave"
	EventChannelUnread    = "channel.unread"
	EventMessageCreated   = "message.created"
	EventMessageUpdated   = "message.updated"
	EventMessageDeleted   = "message.deleted"
	EventMessageRead      = "message.read"
	EventReactionAdded    = "message.added"
	EventReactionRemoved  = "message.removed"
	EventError            = "error"

	// Carried on the event stream only, never sent to clients.
	EventMembershipChanged = "membership.changed"
)

// Envelope is the frame format in both directions.
type Envelope struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// EncodeFrame marshals an outbound frame.
func EncodeFrame(event string, data any) ([]byte, error) {
	raw, err := json.Marshal(data)
	if err != nil {
		return nil, err
	}
	return json.Marshal(Envelope{Event: event, Data: raw})
}

// PresenceUser is the profile part of presence payloads.
type PresenceUser struct {
	ID          string     `json:"id"`
	DisplayName string     `json:"displayName"`
	AvatarURL   *string    `json:"avatarUrl"`
	LastSeen    *time.Time `json:"lastSeen"`
}

func NewPresenceUser(p Profile) PresenceUser {
	return PresenceUser{ID: p.ID, DisplayName: p.DisplayName, AvatarURL: p.AvatarURL, LastSeen: p.LastSeen}
}

// PresenceOnline is a present identity in a snapshot.
type PresenceOnline struct {
	PresenceUser
	Status Status `json:"status"`
}

// PresenceSnapshot is sent once to every new connection.
type PresenceSnapshot struct {
	Online   []PresenceOnline `json:"online"`
	Recently []PresenceUser   `json:"recently"`
}

// PresenceUpdate is broadcast globally on every status change.
type PresenceUpdate struct {
	User     PresenceUser `json:"user"`
	Status   Status       `json:"status"`
	IsOnline bool         `json:"isOnline"`
}

// TypingRequest is the inbound typing signal.
type TypingRequest struct {
	ChannelID string `json:"channelId"`
	IsTyping  bool   `json:"isTyping"`
}

// TypingEvent is relayed to a channel's view room.
type TypingEvent struct {
	ChannelID   string `json:"channelId"`
	UserID      string `json:"userId"`
	DisplayName string `json:"displayName"`
	IsTyping    bool   `json:"isTyping"`
}

// ChannelRequest is the inbound body of channel.join and channel.leave.
type ChannelRequest struct {
	ChannelID string `json:"channelId"`
}

// ChannelReply answers channel.join and channel.leave on the same connection.
type ChannelReply struct {
	ChannelID string `json:"channelId"`
	OK        bool   `json:"ok"`
	Error     string `json:"error,omitempty"`
}

// ChannelUnreadEvent is an advisory badge delta.
type ChannelUnreadEvent struct {
	ChannelID string `json:"channelId"`
	Delta     int    `json:"delta"`
	MessageID string `json:"messageId,omitempty"`
}

// AuthorRef identifies who wrote a message.
type AuthorRef struct {
	ID          string  `json:"id"`
	DisplayName string  `json:"displayName"`
	AvatarURL   *string `json:"avatarUrl"`
}

// ParentRef is the quoted message of a reply.
type ParentRef struct {
	ID      string    `json:"id"`
	Content *string   `json:"content"`
	Author  AuthorRef `json:"author"`
}

// ReactionRef is one reaction on a message.
type ReactionRef struct {
	ID    string    `json:"id"`
	Emoji string    `json:"emoji"`
	User  AuthorRef `json:"user"`
}

// MentionRef is one mention on a message.
type MentionRef struct {
	UserID string    `json:"userId"`
	User   AuthorRef `json:"user"`
}

// MessagePayload is the full denormalized message a client can render without fetching.
type MessagePayload struct {
	ID        string        `json:"id"`
	ChannelID string        `json:"channelId"`
	AuthorID  string        `json:"authorId"`
	Content   *string       `json:"content"`
	CreatedAt time.Time     `json:"createdAt"`
	Author    AuthorRef     `json:"author"`
	Parent    *ParentRef    `json:"parent"`
	Reactions []ReactionRef `json:"reactions"`
	Mentions  []MentionRef  `json:"mentions"`
}

// MessageUpdated is the minimal edit payload.
type MessageUpdated struct {
	ID        string    `json:"id"`
	ChannelID string    `json:"channelId"`
	Content   *string   `json:"content"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// MessageDeleted announces a soft delete.
type MessageDeleted struct {
	ID          string    `json:"id"`
	ChannelID   string    `json:"channelId"`
	DeletedAt   time.Time `json:"deletedAt"`
	DeletedByID string    `json:"deletedById"`
}

// ReactionEvent is the payload of message.added and message.removed.
type ReactionEvent struct {
	MessageID string `json:"messageId"`
	ChannelID string `json:"channelId"`
	Emoji     string `json:"emoji"`
	UserID    string `json:"userId"`
}

// MessageRead is the direct-message read receipt.
type MessageRead struct {
	ChannelID string    `json:"channelId"`
	ReaderID  string    `json:"userId"`
	MessageID string    `json:"messageId"`
	ReadAt    time.Time `json:"readAt"`
}

// MembershipChanged travels on the event stream when a CRUD service edits membership.
type MembershipChanged struct {
	IdentityID string `json:"userId"`
	ChannelID  string `json:"channelId"`
}

// ErrorMessage is a WS-safe error.
type ErrorMessage struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}
