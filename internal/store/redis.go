package store

import (
	"context"

	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"

	"orgterm/internal/hierarchy"
)

const redisKey = "settings:hierarchy"

// RedisRemote stores the hierarchy JSON under settings:hierarchy.
type RedisRemote struct {
	client *redis.Client
}

func OpenRedis(ctx context.Context, url string) (*RedisRemote, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, errors.Wrap(err, "parse redis url")
	}
	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, errors.Wrap(err, "ping redis")
	}
	return &RedisRemote{client: client}, nil
}

func (r *RedisRemote) Load(ctx context.Context) ([]hierarchy.CompactNode, bool, error) {
	raw, err := r.client.Get(ctx, redisKey).Bytes()
	if err != nil {
		if err == redis.Nil {
			return nil, false, nil
		}
		return nil, false, errors.Wrap(err, "load hierarchy key")
	}
	tree, err := hierarchy.UnmarshalCompact(raw)
	if err != nil {
		return nil, false, err
	}
	return tree, true, nil
}

func (r *RedisRemote) Save(ctx context.Context, tree []hierarchy.CompactNode) error {
	raw, err := hierarchy.MarshalCompact(tree)
	if err != nil {
		return err
	}
	return errors.Wrap(r.client.Set(ctx, redisKey, raw, 0).Err(), "save hierarchy key")
}

func (r *RedisRemote) Delete(ctx context.Context) error {
	return errors.Wrap(r.client.Del(ctx, redisKey).Err(), "delete hierarchy key")
}

func (r *RedisRemote) Close(context.Context) error {
	return r.client.Close()
}
