package contracts

import (
	"context"

	"chatterbox/internal/core/domain"
)

// Hub is the single fan-out mechanism for every broadcast scope.
// Connections are addressed by id; topics are created on first subscribe.
type Hub interface {
	// Register adds a client to the local node memory.
	Register(c Client)
	// Unregister removes the client and drops all of its subscriptions.
	Unregister(connID string)
	// Registered reports whether connID is still live.
	Registered(connID string) bool
	// Subscribe joins a registered connection to a topic. Unknown connections are ignored.
	Subscribe(connID string, topic domain.Topic) bool
	Unsubscribe(connID string, topic domain.Topic)
	IsSubscribed(connID string, topic domain.Topic) bool
	// Subscribers lists the connection ids of a topic.
	Subscribers(topic domain.Topic) []string
	// Publish sends one frame to every connection of the topic except the excluded ones.
	Publish(ctx context.Context, topic domain.Topic, event string, data any, exclude ...string) int
	// SendTo targets a single connection.
	SendTo(ctx context.Context, connID string, event string, data any) error
}

// Client represents the minimal interface required for the Hub to
// communicate with an individual WebSocket connection.
type Client interface {
	ID() string
	IdentityID() string
	Send(ctx context.Context, data []byte) error
	Close()
}
