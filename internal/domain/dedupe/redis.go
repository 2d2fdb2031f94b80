package dedupe

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/okian/crmscore/pkg/logger"
)

const (
	defaultTTL       = 24 * time.Hour
	defaultKeyPrefix = "crmscore:event:"
)

// RedisDeduper shares seen IDs between service instances through Redis.
// IDs expire after the configured TTL. When Redis is unreachable the event
// is treated as new.
type RedisDeduper struct {
	client *redis.Client
	ttl    time.Duration
	prefix string
	size   atomic.Int64
}

var _ Deduper = (*RedisDeduper)(nil)

// NewRedisDeduper creates a deduper backed by client.
func NewRedisDeduper(client *redis.Client, opts ...RedisOption) *RedisDeduper {
	d := &RedisDeduper{client: client, ttl: defaultTTL, prefix: defaultKeyPrefix}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

func (d *RedisDeduper) key(id string) string { return d.prefix + id }

// SeenAndRecord sets the ID key with SET NX; an existing key means seen.
func (d *RedisDeduper) SeenAndRecord(ctx context.Context, id string) bool {
	ok, err := d.client.SetNX(ctx, d.key(id), 1, d.ttl).Result()
	if err != nil {
		logger.Get().Warn(ctx, "redis dedupe unavailable, accepting event",
			logger.String("event_id", id), logger.Error(err))
		return false
	}
	if ok {
		d.size.Add(1)
	}
	return !ok
}

// Unrecord deletes the ID key.
func (d *RedisDeduper) Unrecord(ctx context.Context, id string) {
	n, err := d.client.Del(ctx, d.key(id)).Result()
	if err != nil {
		logger.Get().Warn(ctx, "redis dedupe unrecord failed",
			logger.String("event_id", id), logger.Error(err))
		return
	}
	if n > 0 {
		d.size.Add(-1)
	}
}

// Size returns the number of IDs recorded through this instance and not
// unrecorded. Expired keys are not subtracted.
func (d *RedisDeduper) Size() int64 {
	return d.size.Load()
}

// Ping checks the connection to Redis.
func (d *RedisDeduper) Ping(ctx context.Context) error {
	return d.client.Ping(ctx).Err()
}
