package cache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/opensource-finance/kestrel/internal/domain"
)

const defaultLocalTTL = 5 * time.Minute

// New builds the cache selected by cfg.Type:
//
//	memory          LRUCache
//	redis           RedisCache
//	redis+two_phase TwoPhaseCache (LRU in front of Redis)
func New(cfg domain.CacheConfig) (domain.Cache, error) {
	switch {
	case cfg.Type == "memory":
		return NewLRUCache(cfg.LocalMaxSize), nil
	case cfg.Type == "redis" && cfg.EnableTwoPhase:
		return NewTwoPhaseCache(cfg)
	case cfg.Type == "redis":
		return NewRedisCache(cfg)
	default:
		return nil, fmt.Errorf("unsupported cache type: %s", cfg.Type)
	}
}

// TwoPhaseCache reads through a local LRU (L1) to Redis (L2) and writes to
// both. L1 entries live at most LocalTTL so that other nodes' writes become
// visible.
type TwoPhaseCache struct {
	factCodec

	local  *LRUCache
	remote *RedisCache
	l1TTL  time.Duration
}

// NewTwoPhaseCache connects the Redis layer and builds the LRU in front of it.
func NewTwoPhaseCache(cfg domain.CacheConfig) (*TwoPhaseCache, error) {
	remote, err := NewRedisCache(cfg)
	if err != nil {
		return nil, err
	}
	return newTwoPhase(NewLRUCache(cfg.LocalMaxSize), remote, cfg.LocalTTL), nil
}

func newTwoPhase(local *LRUCache, remote *RedisCache, l1TTL time.Duration) *TwoPhaseCache {
	if l1TTL <= 0 {
		l1TTL = defaultLocalTTL
	}
	c := &TwoPhaseCache{local: local, remote: remote, l1TTL: l1TTL}
	c.factCodec = factCodec{store: c}
	return c
}

// Get checks L1, then L2. An L2 hit is copied into L1.
func (c *TwoPhaseCache) Get(ctx context.Context, key string) ([]byte, error) {
	if val, _ := c.local.Get(ctx, key); val != nil {
		return val, nil
	}

	val, err := c.remote.Get(ctx, key)
	if err != nil || val == nil {
		return nil, err
	}
	_ = c.local.Set(ctx, key, val, c.l1TTL)
	return val, nil
}

// Set writes L2 with ttl and L1 with ttl capped at the L1 lifetime. L1 is
// only written once L2 accepted the value.
func (c *TwoPhaseCache) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if err := c.remote.Set(ctx, key, value, ttl); err != nil {
		return err
	}
	return c.local.Set(ctx, key, value, c.localTTL(ttl))
}

// Delete removes key from both layers.
func (c *TwoPhaseCache) Delete(ctx context.Context, key string) error {
	_ = c.local.Delete(ctx, key)
	return c.remote.Delete(ctx, key)
}

// Ping reports L2 health; L1 cannot fail.
func (c *TwoPhaseCache) Ping(ctx context.Context) error {
	if err := c.remote.Ping(ctx); err != nil {
		return fmt.Errorf("L2 ping failed: %w", err)
	}
	return nil
}

// Close releases both layers.
func (c *TwoPhaseCache) Close() error {
	return errors.Join(c.local.Close(), c.remote.Close())
}

// Stats returns L1 usage.
func (c *TwoPhaseCache) Stats() Stats {
	return c.local.Stats()
}

// localTTL caps ttl at the L1 lifetime. Non-expiring entries get the L1 lifetime.
func (c *TwoPhaseCache) localTTL(ttl time.Duration) time.Duration {
	if ttl > 0 && ttl < c.l1TTL {
		return ttl
	}
	return c.l1TTL
}
