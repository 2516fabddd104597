package contracts

import (
	"context"
)

type MessageQueue interface {
	// Producer side (CRUD services)
	PublishToStream(ctx context.Context, stream string, payload []byte) error
	// Consumer side (event worker)
	// SubscribeToStream handles the reliable reading from the Redis Stream
	SubscribeToStream(ctx context.Context, stream string, conGroup string, handler func(ctx context.Context, messageID string, data []byte) error) error
	// AcknowledgeMessage acknowledges redis stream that message is processed
	AcknowledgeMessage(ctx context.Context, stream, conGroup, mesgID string) error
	// DeleteMessage removes a processed entry from the stream
	DeleteMessage(ctx context.Context, stream, mesgID string) error
}
