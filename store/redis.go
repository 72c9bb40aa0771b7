package store

import (
	"context"
	"encoding/json"
	"net/url"
	"path"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/effective-security/xlog"
	"github.com/redis/go-redis/v9"
)

// The redis store implements the ModelStore interface using Redis as the backend,
// so several processes share model validations of the same host.
// Entries expire with the Redis TTL of their key.
// The keys namespace is organized as follows:
// - `/<prefix>/modelcache/<host>/models/<model>` for storing a validation entry
// - `/<prefix>/modelcache/<host>/index` for storing a set of cached models of the host

type redisStore struct {
	client *redis.Client
	prefix string
}

// NewRedisStore returns a store backed by the client.
func NewRedisStore(client *redis.Client, prefix string) ModelStore {
	return &redisStore{
		client: client,
		prefix: prefix,
	}
}

// NewRedisStoreFromURL connects to the Redis server at the URL.
func NewRedisStoreFromURL(ctx context.Context, redisURL, prefix string) (ModelStore, error) {
	options, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, errors.Wrap(err, "invalid redis URL")
	}
	client := redis.NewClient(options)
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, errors.Wrapf(err, "unable to connect to redis at %s", options.Addr)
	}
	return NewRedisStore(client, prefix), nil
}

func (m *redisStore) Name() string {
	return "redis"
}

func (m *redisStore) getModelKey(host, model string) string {
	return path.Join("/", m.prefix, "modelcache", url.PathEscape(host), "models", url.PathEscape(model))
}

func (m *redisStore) getIndexKey(host string) string {
	return path.Join("/", m.prefix, "modelcache", url.PathEscape(host), "index")
}

func (m *redisStore) Get(ctx context.Context, host, model string) (*Entry, error) {
	data, err := m.client.Get(ctx, m.getModelKey(host, model)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, errors.Wrap(err, "failed to get model entry from Redis")
	}

	var e Entry
	if err := json.Unmarshal(data, &e); err != nil {
		logger.ContextKV(ctx, xlog.ERROR, "reason", "unmarshal entry", "model", model, "err", err.Error())
		return nil, nil
	}
	return &e, nil
}

func (m *redisStore) Put(ctx context.Context, host string, ttl time.Duration, entries ...*Entry) error {
	indexKey := m.getIndexKey(host)

	pipe := m.client.Pipeline()
	count := 0
	for _, e := range entries {
		if e == nil {
			continue
		}
		data, err := json.Marshal(e)
		if err != nil {
			return errors.Wrap(err, "failed to marshal model entry")
		}
		pipe.Set(ctx, m.getModelKey(host, e.Model), data, ttl)
		pipe.SAdd(ctx, indexKey, e.Model)
		count++
	}
	if count == 0 {
		return nil
	}
	pipe.Expire(ctx, indexKey, ttl)

	if _, err := pipe.Exec(ctx); err != nil {
		return errors.Wrap(err, "failed to store model entries in Redis")
	}
	return nil
}

func (m *redisStore) Reset(ctx context.Context, host string) error {
	indexKey := m.getIndexKey(host)
	models, err := m.client.SMembers(ctx, indexKey).Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		return errors.Wrap(err, "failed to list cached models from Redis")
	}

	pipe := m.client.Pipeline()
	for _, model := range models {
		pipe.Del(ctx, m.getModelKey(host, model))
	}
	pipe.Del(ctx, indexKey)
	if _, err = pipe.Exec(ctx); err != nil {
		return errors.Wrap(err, "failed to reset model cache in Redis")
	}
	return nil
}
