package store

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	validOriginsKey = "origins:valid"
	// validOriginsMarker exists while a list is cached, including an empty one.
	validOriginsMarker = "origins:valid:cached"
)

type RedisStore struct {
	client *redis.Client
}

func NewRedisStore(addr string) *RedisStore {
	return &RedisStore{
		client: redis.NewClient(&redis.Options{Addr: addr}),
	}
}

func (r *RedisStore) SetValidOrigins(ctx context.Context, origins []string, ttl time.Duration) error {
	values := make([]any, 0, len(origins))
	for _, o := range origins {
		values = append(values, o)
	}
	_, err := r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, validOriginsKey)
		if len(values) > 0 {
			pipe.RPush(ctx, validOriginsKey, values...)
			pipe.Expire(ctx, validOriginsKey, ttl)
		}
		pipe.Set(ctx, validOriginsMarker, "1", ttl)
		return nil
	})
	return err
}

func (r *RedisStore) GetValidOrigins(ctx context.Context) ([]string, bool, error) {
	var (
		exists *redis.IntCmd
		list   *redis.StringSliceCmd
	)
	_, err := r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		exists = pipe.Exists(ctx, validOriginsMarker)
		list = pipe.LRange(ctx, validOriginsKey, 0, -1)
		return nil
	})
	if err != nil && err != redis.Nil {
		return nil, false, err
	}
	if exists.Val() == 0 {
		return nil, false, nil
	}
	origins := list.Val()
	if origins == nil {
		origins = []string{}
	}
	return origins, true, nil
}

func (r *RedisStore) IsProcessed(ctx context.Context, key string) (bool, error) {
	count, err := r.client.Exists(ctx, "processed:"+key).Result()
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

func (r *RedisStore) MarkProcessed(ctx context.Context, key string, ttl time.Duration) error {
	return r.client.Set(ctx, "processed:"+key, "1", ttl).Err()
}

func (r *RedisStore) Close() error {
	return r.client.Close()
}
