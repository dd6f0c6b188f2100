package dedupe

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// defaultKeyPrefix namespaces seen keys so the deduper can share a Redis
// database with other consumers.
const defaultKeyPrefix = "ledger:seen:"

// RedisOptions configures a RedisDeduper.
type RedisOptions struct {
	Addr     string
	Password string
	DB       int

	// TTL is the seen-signature retention. Zero means DefaultTTL.
	TTL time.Duration

	// KeyPrefix overrides the default key namespace.
	KeyPrefix string
}

// RedisDeduper is a Deduper backed by Redis, for multi-process deployments
// where every ingester must share one seen set.
type RedisDeduper struct {
	client *redis.Client
	ttl    time.Duration
	prefix string
}

// NewRedisDeduper connects to Redis and verifies the connection.
func NewRedisDeduper(ctx context.Context, opts RedisOptions) (*RedisDeduper, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     opts.Addr,
		Password: opts.Password,
		DB:       opts.DB,
	})

	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}

	ttl := opts.TTL
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	prefix := opts.KeyPrefix
	if prefix == "" {
		prefix = defaultKeyPrefix
	}

	return &RedisDeduper{client: client, ttl: ttl, prefix: prefix}, nil
}

// IsDuplicate reports whether the key exists in Redis.
func (d *RedisDeduper) IsDuplicate(ctx context.Context, key string) (bool, error) {
	n, err := d.client.Exists(ctx, d.prefix+key).Result()
	if err != nil {
		return false, fmt.Errorf("check seen key: %w", err)
	}
	return n > 0, nil
}

// MarkSeen records the key with the configured TTL.
func (d *RedisDeduper) MarkSeen(ctx context.Context, key string) error {
	if err := d.client.Set(ctx, d.prefix+key, "1", d.ttl).Err(); err != nil {
		return fmt.Errorf("mark seen key: %w", err)
	}
	return nil
}

// Close closes the underlying Redis client.
func (d *RedisDeduper) Close() error {
	return d.client.Close()
}

var _ Deduper = (*RedisDeduper)(nil)
