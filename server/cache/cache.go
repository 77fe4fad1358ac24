// SPDX-FileCopyrightText: 2024 Starblitz Studios
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package cache is a short-lived Redis cache for rendered leaderboard
// responses. A nil *Cache is valid and turns every operation into a
// no-op; deployments without Redis just skip caching.
package cache

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
)

const DefaultTTL = 5 * time.Second

type Cache struct {
	rdb *redis.Client
	ttl time.Duration
}

// New returns nil when addr is empty.
func New(addr string, ttl time.Duration) *Cache {
	if addr == "" {
		return nil
	}
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Cache{
		rdb: redis.NewClient(&redis.Options{Addr: addr}),
		ttl: ttl,
	}
}

// Get returns a cached payload. Any Redis error reads as a miss; the
// cache must never make a read path fail.
func (c *Cache) Get(ctx context.Context, key string) ([]byte, bool) {
	if c == nil {
		return nil, false
	}
	payload, err := c.rdb.Get(ctx, key).Bytes()
	if err != nil {
		return nil, false
	}
	return payload, true
}

func (c *Cache) Set(ctx context.Context, key string, payload []byte) {
	if c == nil {
		return
	}
	// Best effort; staleness is bounded by the TTL either way.
	_ = c.rdb.Set(ctx, key, payload, c.ttl).Err()
}
