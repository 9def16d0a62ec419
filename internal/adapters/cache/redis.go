package cache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
)

// RedisCache shares upstream responses between storefront instances.
// Each tag is a Redis set holding the keys stored under it.
type RedisCache struct {
	client *redis.Client
	prefix string
}

func NewRedisCache(client *redis.Client) *RedisCache {
	return &RedisCache{client: client, prefix: "catalog"}
}

func (r *RedisCache) Get(ctx context.Context, key string) ([]byte, bool) {
	data, err := r.client.Get(ctx, r.key(key)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false
	}
	if err != nil {
		log.Warn().Err(err).Str("key", key).Msg("redis cache get")
		return nil, false
	}
	return data, true
}

func (r *RedisCache) Set(ctx context.Context, key string, value []byte, ttl time.Duration, tags ...string) error {
	k := r.key(key)
	_, err := r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, k, value, ttl)
		for _, t := range tags {
			tk := r.tagKey(t)
			pipe.SAdd(ctx, tk, k)
			if ttl > 0 {
				// a tag set never outlives the longest entry it indexes by much
				pipe.Expire(ctx, tk, ttl*2)
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("redis set failed: %w", err)
	}
	return nil
}

func (r *RedisCache) InvalidateTag(ctx context.Context, tag string) error {
	tk := r.tagKey(tag)
	keys, err := r.client.SMembers(ctx, tk).Result()
	if err != nil {
		return fmt.Errorf("redis smembers failed: %w", err)
	}
	keys = append(keys, tk)
	if err := r.client.Del(ctx, keys...).Err(); err != nil {
		return fmt.Errorf("redis delete failed: %w", err)
	}
	return nil
}

func (r *RedisCache) key(k string) string    { return fmt.Sprintf("%s:%s", r.prefix, k) }
func (r *RedisCache) tagKey(t string) string { return fmt.Sprintf("%s:tag:%s", r.prefix, t) }
