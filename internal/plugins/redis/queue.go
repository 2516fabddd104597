package redis

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"chatterbox/pkg/logging"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const (
	streamMaxLen     = 10000
	readBatch        = 10
	readBlock        = 2 * time.Second
	defaultClaimIdle = 30 * time.Second
)

// RedisMessageQueue carries message-layer events to the gateway over a
// Redis stream read through a consumer group. Entries a handler did not
// acknowledge stay in the group's pending list and are claimed again once
// they have been idle for claimIdle, by this consumer or any other.
type RedisMessageQueue struct {
	rdb       *redis.Client
	log       *slog.Logger
	claimIdle time.Duration
}

func NewRedisMessageQueue(log *slog.Logger, rdb *redis.Client, claimIdle time.Duration) *RedisMessageQueue {
	if claimIdle <= 0 {
		claimIdle = defaultClaimIdle
	}
	return &RedisMessageQueue{rdb: rdb, log: log, claimIdle: claimIdle}
}

func (q *RedisMessageQueue) streamKey(stream string) string {
	return "stream:" + stream
}

func (q *RedisMessageQueue) PublishToStream(ctx context.Context, stream string, payload []byte) error {
	return q.rdb.XAdd(ctx, &redis.XAddArgs{
		Stream: q.streamKey(stream),
		MaxLen: streamMaxLen,
		Approx: true,
		ID:     "*",
		Values: map[string]any{"data": payload},
	}).Err()
}

// SubscribeToStream creates the group if needed and starts a reader
// goroutine that hands entries to handler one at a time. Every claimIdle the
// reader first sweeps the pending list, so entries whose handler failed, or
// whose consumer died, are delivered again. The reader stops when ctx is
// cancelled.
func (q *RedisMessageQueue) SubscribeToStream(
	ctx context.Context,
	stream string,
	conGroup string,
	handler func(ctx context.Context, messageID string, data []byte) error,
) error {
	topic := q.streamKey(stream)
	err := q.rdb.XGroupCreateMkStream(ctx, topic, conGroup, "0").Err()
	if err != nil && !strings.HasPrefix(err.Error(), "BUSYGROUP") {
		return fmt.Errorf("failed to create consumer group: %w", err)
	}
	consumer := uuid.NewString()
	go func() {
		var lastClaim time.Time
		for ctx.Err() == nil {
			if time.Since(lastClaim) >= q.claimIdle {
				q.reclaim(ctx, topic, conGroup, consumer, handler)
				lastClaim = time.Now()
			}
			res, err := q.rdb.XReadGroup(ctx, &redis.XReadGroupArgs{
				Group:    conGroup,
				Consumer: consumer,
				Streams:  []string{topic, ">"},
				Count:    readBatch,
				Block:    readBlock,
			}).Result()
			if err != nil {
				if !errors.Is(err, redis.Nil) && ctx.Err() == nil {
					q.log.ErrorContext(ctx, "queue - subscribe - stream read failed", "stream", topic, logging.Err(err))
					time.Sleep(time.Second)
				}
				continue
			}
			for _, s := range res {
				for _, msg := range s.Messages {
					q.deliver(ctx, topic, conGroup, msg, handler)
				}
			}
		}
	}()
	return nil
}

// reclaim takes over every pending entry idle for at least claimIdle and
// hands it to handler again.
func (q *RedisMessageQueue) reclaim(
	ctx context.Context,
	topic, conGroup, consumer string,
	handler func(ctx context.Context, messageID string, data []byte) error,
) {
	claim := func(start string) ([]redis.XMessage, string, error) {
		return q.rdb.XAutoClaim(ctx, &redis.XAutoClaimArgs{
			Stream:   topic,
			Group:    conGroup,
			Consumer: consumer,
			MinIdle:  q.claimIdle,
			Start:    start,
			Count:    readBatch,
		}).Result()
	}
	n, err := drainPending(ctx, claim, func(msg redis.XMessage) {
		q.deliver(ctx, topic, conGroup, msg, handler)
	})
	if err != nil && ctx.Err() == nil {
		q.log.ErrorContext(ctx, "queue - reclaim - autoclaim failed", "stream", topic, logging.Err(err))
	}
	if n > 0 {
		q.log.InfoContext(ctx, "queue - reclaim - redelivered pending entries", "stream", topic, "count", n)
	}
}

// drainPending walks the pending list one claimed batch at a time until the
// cursor returned by claim wraps back to 0-0.
func drainPending(
	ctx context.Context,
	claim func(start string) ([]redis.XMessage, string, error),
	handle func(redis.XMessage),
) (int, error) {
	start, n := "0-0", 0
	for {
		if err := ctx.Err(); err != nil {
			return n, err
		}
		msgs, next, err := claim(start)
		if err != nil {
			return n, err
		}
		for _, msg := range msgs {
			handle(msg)
			n++
		}
		if next == "" || next == "0-0" {
			return n, nil
		}
		start = next
	}
}

func (q *RedisMessageQueue) deliver(
	ctx context.Context,
	topic, conGroup string,
	msg redis.XMessage,
	handler func(ctx context.Context, messageID string, data []byte) error,
) {
	raw, ok := msg.Values["data"].(string)
	if !ok {
		// Nothing a retry could fix; drop it so the reclaim pass skips it.
		q.log.WarnContext(ctx, "queue - deliver - entry without data dropped", "stream", topic, "entry_id", msg.ID)
		_ = q.rdb.XAck(ctx, topic, conGroup, msg.ID).Err()
		_ = q.rdb.XDel(ctx, topic, msg.ID).Err()
		return
	}
	if err := handler(ctx, msg.ID, []byte(raw)); err != nil {
		q.log.ErrorContext(ctx, "queue - deliver - handler failed, entry left pending", "stream", topic, "entry_id", msg.ID, logging.Err(err))
	}
}

func (q *RedisMessageQueue) AcknowledgeMessage(ctx context.Context, stream, conGroup, mesgID string) error {
	return q.rdb.XAck(ctx, q.streamKey(stream), conGroup, mesgID).Err()
}

func (q *RedisMessageQueue) DeleteMessage(ctx context.Context, stream, mesgID string) error {
	return q.rdb.XDel(ctx, q.streamKey(stream), mesgID).Err()
}
