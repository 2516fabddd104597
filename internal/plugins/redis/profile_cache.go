package redis

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"chatterbox/internal/core/domain"

	"github.com/redis/go-redis/v9"
	"github.com/vmihailenco/msgpack/v5"
)

const profileKeyPrefix = "profile:"

// cachedProfile is the msgpack form of a profile.
type cachedProfile struct {
	ID          string     `msgpack:"id"`
	DisplayName string     `msgpack:"dn"`
	AvatarURL   *string    `msgpack:"av,omitempty"`
	LastSeen    *time.Time `msgpack:"ls,omitempty"`
}

// CachedProfileRepository puts a read-through Redis cache in front of a
// ProfileRepository. Presence payloads look profiles up on every status
// change, which makes them the hottest read in the gateway.
// Cache failures fall through to the wrapped repository.
type CachedProfileRepository struct {
	next domain.ProfileRepository
	rdb  *redis.Client
	ttl  time.Duration
	log  *slog.Logger
}

func NewCachedProfileRepository(log *slog.Logger, rdb *redis.Client, next domain.ProfileRepository, ttl time.Duration) *CachedProfileRepository {
	if ttl <= 0 {
		ttl = time.Minute
	}
	return &CachedProfileRepository{next: next, rdb: rdb, ttl: ttl, log: log}
}

func profileKey(id string) string {
	return profileKeyPrefix + id
}

func (c *CachedProfileRepository) GetProfile(ctx context.Context, id string) (*domain.Profile, error) {
	if p, ok := c.get(ctx, id); ok {
		return p, nil
	}
	p, err := c.next.GetProfile(ctx, id)
	if err != nil {
		return nil, err
	}
	c.set(ctx, *p)
	return p, nil
}

func (c *CachedProfileRepository) GetProfiles(ctx context.Context, ids []string) ([]domain.Profile, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = profileKey(id)
	}
	vals, err := c.rdb.MGet(ctx, keys...).Result()
	if err != nil {
		c.log.WarnContext(ctx, "profile cache - get profiles - mget failed", "err", err)
		return c.next.GetProfiles(ctx, ids)
	}
	out := make([]domain.Profile, 0, len(ids))
	var missing []string
	for i, v := range vals {
		s, ok := v.(string)
		if !ok {
			missing = append(missing, ids[i])
			continue
		}
		p, err := decodeProfile([]byte(s))
		if err != nil {
			missing = append(missing, ids[i])
			continue
		}
		out = append(out, *p)
	}
	if len(missing) == 0 {
		return out, nil
	}
	fetched, err := c.next.GetProfiles(ctx, missing)
	if err != nil {
		return nil, err
	}
	for _, p := range fetched {
		c.set(ctx, p)
	}
	return append(out, fetched...), nil
}

// RecentlyOffline is ordered by a value that changes on every disconnect, so it
// is never cached.
func (c *CachedProfileRepository) RecentlyOffline(ctx context.Context, exclude []string, limit int) ([]domain.Profile, error) {
	return c.next.RecentlyOffline(ctx, exclude, limit)
}

func (c *CachedProfileRepository) UpdateLastSeen(ctx context.Context, id string, at time.Time) error {
	if err := c.next.UpdateLastSeen(ctx, id, at); err != nil {
		return err
	}
	if err := c.rdb.Del(ctx, profileKey(id)).Err(); err != nil {
		c.log.WarnContext(ctx, "profile cache - update last seen - invalidate failed", "identity_id", id, "err", err)
	}
	return nil
}

func (c *CachedProfileRepository) get(ctx context.Context, id string) (*domain.Profile, bool) {
	data, err := c.rdb.Get(ctx, profileKey(id)).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			c.log.WarnContext(ctx, "profile cache - get - redis failed", "identity_id", id, "err", err)
		}
		return nil, false
	}
	p, err := decodeProfile(data)
	if err != nil {
		return nil, false
	}
	return p, true
}

func (c *CachedProfileRepository) set(ctx context.Context, p domain.Profile) {
	data, err := msgpack.Marshal(cachedProfile{
		ID:          p.ID,
		DisplayName: p.DisplayName,
		AvatarURL:   p.AvatarURL,
		LastSeen:    p.LastSeen,
	})
	if err != nil {
		return
	}
	if err := c.rdb.Set(ctx, profileKey(p.ID), data, c.ttl).Err(); err != nil {
		c.log.WarnContext(ctx, "profile cache - set - redis failed", "identity_id", p.ID, "err", err)
	}
}

func decodeProfile(data []byte) (*domain.Profile, error) {
	var cp cachedProfile
	if err := msgpack.Unmarshal(data, &cp); err != nil {
		return nil, err
	}
	return &domain.Profile{
		ID:          cp.ID,
		DisplayName: cp.DisplayName,
		AvatarURL:   cp.AvatarURL,
		LastSeen:    cp.LastSeen,
	}, nil
}
