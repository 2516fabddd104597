package redis

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
)

const lastSeenKey = "presence:last_seen"

// LastSeenIndex is a sorted set of identities scored by the unix time they
// went offline. Gateway nodes share it, so every node's snapshot sees the
// same "recently" list without scanning the users table.
type LastSeenIndex struct {
	rdb    *redis.Client
	key    string
	maxLen int64
}

func NewLastSeenIndex(rdb *redis.Client) *LastSeenIndex {
	return &LastSeenIndex{
		rdb:    rdb,
		key:    lastSeenKey,
		maxLen: 1000,
	}
}

// Record adds or refreshes an identity and trims the set to its newest entries.
func (p *LastSeenIndex) Record(ctx context.Context, identityID string, at time.Time) error {
	pipe := p.rdb.TxPipeline()
	pipe.ZAdd(ctx, p.key, redis.Z{
		Score:  float64(at.UnixMilli()),
		Member: identityID,
	})
	// Keep only the newest maxLen members so the set does not grow unbounded.
	pipe.ZRemRangeByRank(ctx, p.key, 0, -p.maxLen-1)
	_, err := pipe.Exec(ctx)
	return err
}

func (p *LastSeenIndex) Remove(ctx context.Context, identityID string) error {
	return p.rdb.ZRem(ctx, p.key, identityID).Err()
}

func (p *LastSeenIndex) Recent(ctx context.Context, limit int) ([]string, error) {
	if limit <= 0 {
		return nil, nil
	}
	return p.rdb.ZRevRange(ctx, p.key, 0, int64(limit-1)).Result()
}
