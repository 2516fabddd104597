package domain

import (
	"time"

	"github.com/google/uuid"
)

// Status is the derived presence classification of an identity.
type Status string

const (
	StatusOnline  Status = "online"
	StatusIdle    Status = "idle"
	StatusOffline Status = "offline"
)

// Present reports whether the identity holds at least one live connection.
func (s Status) Present() bool {
	return s == StatusOnline || s == StatusIdle
}

// Profile is the public face of an identity used to enrich presence and typing payloads.
type Profile struct {
	ID          string
	DisplayName string
	AvatarURL   *string
	LastSeen    *time.Time
}

// Channel represents a conversation. Direct channels are restricted to their members.
type Channel struct {
	ID        string
	Name      string
	IsDirect  bool
	CreatedAt time.Time
}

// Message is the stored chat entry as seen by the realtime layer.
type Message struct {
	ID         uuid.UUID
	ChannelID  string
	AuthorID   string
	Content    *string
	CreatedAt  time.Time
	DeletedAt  *time.Time
	WelcomeFor *string // set only on bot welcome messages
}

// Watermark is the point up to which an identity acknowledged a channel's messages.
type Watermark struct {
	IdentityID string
	ChannelID  string
	LastRead   time.Time
}

// ChannelUnread is one row of the unread listing.
type ChannelUnread struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	IsDirect bool   `json:"isDirect"`
	Unread   int    `json:"unread"`
}

// PresenceEntry is one line of a presence snapshot.
type PresenceEntry struct {
	IdentityID string
	Status     Status
}

// ConnState tracks a single transport session through its lifecycle.
type ConnState int

const (
	ConnConnecting ConnState = iota
	ConnAuthenticated
	ConnDisconnected
)

func (s ConnState) String() string {
	switch s {
	case ConnConnecting:
		return "connecting"
	case ConnAuthenticated:
		return "authenticated"
	case ConnDisconnected:
		return "disconnected"
	}
	return "unknown"
}
