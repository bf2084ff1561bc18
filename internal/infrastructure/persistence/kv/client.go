// Package kv abstracts the key-value store backing visitor state,
// delivery queues, and presence tracking. Production uses Redis; tests
// and single-process dev mode use the in-memory implementation.
package kv

import (
	"context"
	"time"
)

// Client is the store surface the ritual engine needs: TTL'd string
// keys, FIFO lists with blocking pop, and a hash for presence.
//
// Domain-level "missing key" is reported through the ok boolean, never
// as an error; errors mean the store itself failed.
type Client interface {
	// String keys
	Get(ctx context.Context, key string) (value string, ok bool, err error)
	SetEx(ctx context.Context, key, value string, ttl time.Duration) error
	Delete(ctx context.Context, keys ...string) (int64, error)
	Exists(ctx context.Context, key string) (bool, error)
	Expire(ctx context.Context, key string, ttl time.Duration) (bool, error)
	TTL(ctx context.Context, key string) (time.Duration, error)
	Keys(ctx context.Context, pattern string) ([]string, error)

	// Lists (FIFO: push right, pop left)
	RPush(ctx context.Context, key string, values ...string) (int64, error)
	LPop(ctx context.Context, key string) (value string, ok bool, err error)
	// BLPop waits up to timeout for an entry. A timeout <= 0 returns
	// immediately with whatever is present instead of blocking forever.
	BLPop(ctx context.Context, key string, timeout time.Duration) (value string, ok bool, err error)
	LIndex(ctx context.Context, key string, index int64) (value string, ok bool, err error)
	LRange(ctx context.Context, key string, start, stop int64) ([]string, error)
	LTrim(ctx context.Context, key string, start, stop int64) error
	LLen(ctx context.Context, key string) (int64, error)
	// RPushFanout pushes one value onto many list keys, refreshing each
	// key's TTL, and returns how many keys were pushed to.
	RPushFanout(ctx context.Context, keys []string, value string, ttl time.Duration) (int, error)

	// Hashes
	HSet(ctx context.Context, key, field, value string) error
	HDel(ctx context.Context, key string, fields ...string) error
	HExists(ctx context.Context, key, field string) (bool, error)
	HKeys(ctx context.Context, key string) ([]string, error)
	HLen(ctx context.Context, key string) (int64, error)

	Ping(ctx context.Context) error
	Close() error
}
