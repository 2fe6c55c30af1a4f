package cache

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/oggyb/wetogether/internal/config"
	"github.com/redis/go-redis/v9"
)

const likeCountTTL = time.Hour

// promptQueueCap bounds a user's pending prompt list; older entries fall back to the DB listing.
const promptQueueCap = 100

type RedisCache struct {
	Client *redis.Client
}

// NewRedisCache initializes Redis client from config.
// Only Addr is mandatory, Password/DB are optional.
func NewRedisCache(cfg *config.Config) *RedisCache {
	opts := &redis.Options{
		Addr: cfg.Redis.Addr,
	}
	if cfg.Redis.Password != "" {
		opts.Password = cfg.Redis.Password
	}
	if cfg.Redis.DB != 0 {
		opts.DB = cfg.Redis.DB
	}
	return &RedisCache{Client: redis.NewClient(opts)}
}

func (c *RedisCache) Ping(ctx context.Context) error {
	return c.Client.Ping(ctx).Err()
}

func (c *RedisCache) Close() error {
	return c.Client.Close()
}

func (c *RedisCache) Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	return c.Client.Set(ctx, key, value, ttl).Err()
}

func (c *RedisCache) Get(ctx context.Context, key string) (string, error) {
	return c.Client.Get(ctx, key).Result()
}

func (c *RedisCache) Del(ctx context.Context, keys ...string) error {
	return c.Client.Del(ctx, keys...).Err()
}

// KeyForLikeCount generates Redis key for a user's pending like count
func (c *RedisCache) KeyForLikeCount(userID uint64) string {
	return fmt.Sprintf("likes:count:%d", userID)
}

func (c *RedisCache) UpdateLikeCount(ctx context.Context, userID uint64, count int64) error {
	// Always refresh TTL when updating
	return c.Client.Set(ctx, c.KeyForLikeCount(userID), count, likeCountTTL).Err()
}

// GetLikeCount returns the cached count and whether it was present.
func (c *RedisCache) GetLikeCount(ctx context.Context, userID uint64) (int64, bool, error) {
	key := c.KeyForLikeCount(userID)
	val, err := c.Client.Get(ctx, key).Result()
	if errors.Is(err, redis.Nil) {
		return 0, false, nil // cache miss
	} else if err != nil {
		return 0, false, err
	}
	n, err := strconv.ParseInt(val, 10, 64)
	if err != nil {
		return 0, false, nil
	}
	// refresh TTL on access
	_ = c.Client.Expire(ctx, key, likeCountTTL).Err()
	return n, true, nil
}

// InvalidateLikeCount drops cached counts so the next read goes to the DB.
func (c *RedisCache) InvalidateLikeCount(ctx context.Context, userIDs ...uint64) error {
	keys := make([]string, 0, len(userIDs))
	for _, id := range userIDs {
		keys = append(keys, c.KeyForLikeCount(id))
	}
	if len(keys) == 0 {
		return nil
	}
	return c.Client.Del(ctx, keys...).Err()
}

func (c *RedisCache) KeyForPromptQueue(userID uint64) string {
	return fmt.Sprintf("prompts:user:%d", userID)
}

// PushPrompt queues likerID as a pending response prompt for userID.
func (c *RedisCache) PushPrompt(ctx context.Context, userID, likerID uint64) error {
	key := c.KeyForPromptQueue(userID)
	_, err := c.Client.TxPipelined(ctx, func(p redis.Pipeliner) error {
		p.RPush(ctx, key, likerID)
		p.LTrim(ctx, key, -promptQueueCap, -1)
		return nil
	})
	return err
}

// PopPrompt takes the oldest queued liker for userID. ok is false when the queue is empty.
func (c *RedisCache) PopPrompt(ctx context.Context, userID uint64) (likerID uint64, ok bool, err error) {
	val, err := c.Client.LPop(ctx, c.KeyForPromptQueue(userID)).Result()
	if errors.Is(err, redis.Nil) {
		return 0, false, nil
	} else if err != nil {
		return 0, false, err
	}
	id, err := strconv.ParseUint(val, 10, 64)
	if err != nil {
		return 0, false, fmt.Errorf("bad prompt entry %q: %w", val, err)
	}
	return id, true, nil
}

// AcquireLease sets key if absent. Returns false when another holder owns it.
func (c *RedisCache) AcquireLease(ctx context.Context, key, owner string, ttl time.Duration) (bool, error) {
	return c.Client.SetNX(ctx, key, owner, ttl).Result()
}

// ReleaseLease deletes key only if owner still holds it.
func (c *RedisCache) ReleaseLease(ctx context.Context, key, owner string) error {
	return releaseScript.Run(ctx, c.Client, []string{key}, owner).Err()
}

var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)
