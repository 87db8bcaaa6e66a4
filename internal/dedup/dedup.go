// Package dedup remembers which attachments were already turned into orders,
// so a message that stays unseen after a partial failure is not ingested twice.
package dedup

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	// DefaultTTL is how long an ingested attachment is remembered
	DefaultTTL = 7 * 24 * time.Hour

	keyPrefix = "orders:ingested:"
)

// Filter reports and records ingested attachments
type Filter interface {
	Seen(ctx context.Context, key string) (bool, error)
	Mark(ctx context.Context, key string) error
}

// Key builds the filter key for the attachment at position index of an email
func Key(emailID string, index int, attachmentName string) string {
	return fmt.Sprintf("%s%s:%d:%s", keyPrefix, emailID, index, attachmentName)
}

// RedisFilter keeps keys in Redis with a TTL
type RedisFilter struct {
	rdb redis.Cmdable
	ttl time.Duration
}

// NewRedisFilter creates a filter backed by Redis
func NewRedisFilter(rdb redis.Cmdable) *RedisFilter {
	return &RedisFilter{
		rdb: rdb,
		ttl: DefaultTTL,
	}
}

// Seen returns true if key was marked before
func (f *RedisFilter) Seen(ctx context.Context, key string) (bool, error) {
	n, err := f.rdb.Exists(ctx, key).Result()
	if err != nil {
		return false, fmt.Errorf("dedup EXISTS: %w", err)
	}
	return n > 0, nil
}

// Mark records key for the filter TTL
func (f *RedisFilter) Mark(ctx context.Context, key string) error {
	if err := f.rdb.Set(ctx, key, 1, f.ttl).Err(); err != nil {
		return fmt.Errorf("dedup SET: %w", err)
	}
	return nil
}

// Nop never reports a key as seen
type Nop struct{}

func (Nop) Seen(context.Context, string) (bool, error) { return false, nil }

func (Nop) Mark(context.Context, string) error { return nil }
