package domain

import (
	"context"
	"time"
)

// Cache is a byte cache with a typed view for derived case facts.
// Get returns nil, nil on a miss. A zero ttl never expires.
type Cache interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Delete(ctx context.Context, key string) error

	// GetFacts returns the fact set cached for caseID, or nil on a miss.
	GetFacts(ctx context.Context, caseID string) (FactSet, error)
	SetFacts(ctx context.Context, caseID string, facts FactSet, ttl time.Duration) error

	Ping(ctx context.Context) error
	Close() error
}

// CacheConfig selects the cache backend. With Type "redis" and
// EnableTwoPhase set, reads go through a local LRU in front of Redis.
type CacheConfig struct {
	Type string `koanf:"type" json:"type" validate:"oneof=memory redis"`

	LocalMaxSize int           `koanf:"local_max_size" json:"localMaxSize"`
	LocalTTL     time.Duration `koanf:"local_ttl" json:"localTtl"`

	// RedisAddr may list several comma-separated addresses for a cluster.
	RedisAddr      string `koanf:"redis_addr" json:"redisAddr"`
	RedisPassword  string `koanf:"redis_password" json:"-"`
	RedisDB        int    `koanf:"redis_db" json:"redisDb"`
	EnableTwoPhase bool   `koanf:"two_phase" json:"twoPhase"`

	// FactsTTL bounds how long a derived fact set is reused.
	FactsTTL time.Duration `koanf:"facts_ttl" json:"factsTtl"`
}
