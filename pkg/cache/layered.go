package cache

import (
	"context"
	"time"
)

// LayeredCache implements two-level cache (L1: memory, L2: any BytesCache).
type LayeredCache struct {
	mem   *MemoryCache
	l2    BytesCache
	l1TTL time.Duration
}

// NewLayeredCache creates a layered cache in front of l2, usually Redis.
func NewLayeredCache(l2 BytesCache, opts ...LayeredOption) *LayeredCache {
	cfg := &LayeredConfig{
		MemoryMaxSize: 1000,
		L1TTL:         5 * time.Second,
	}

	for _, opt := range opts {
		opt(cfg)
	}

	return &LayeredCache{
		mem:   NewMemoryCache(WithMemoryMaxSize(cfg.MemoryMaxSize)),
		l2:    l2,
		l1TTL: cfg.L1TTL,
	}
}

// SetBytes writes through: L2 first, then memory.
func (lc *LayeredCache) SetBytes(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if err := lc.l2.SetBytes(ctx, key, value, ttl); err != nil {
		return err
	}
	_ = lc.mem.SetBytes(ctx, key, value, lc.memTTL(ttl))
	return nil
}

func (lc *LayeredCache) GetBytes(ctx context.Context, key string) ([]byte, bool, error) {
	if b, ok, _ := lc.mem.GetBytes(ctx, key); ok {
		return b, true, nil
	}

	b, ok, err := lc.l2.GetBytes(ctx, key)
	if err != nil || !ok {
		return nil, false, err
	}

	// The remaining L2 TTL is unknown, so the backfill is bounded by l1TTL.
	_ = lc.mem.SetBytes(ctx, key, b, lc.l1TTL)
	return b, true, nil
}

func (lc *LayeredCache) memTTL(ttl time.Duration) time.Duration {
	if ttl <= 0 || (lc.l1TTL > 0 && lc.l1TTL < ttl) {
		return lc.l1TTL
	}
	return ttl
}

// Close closes both cache layers.
func (lc *LayeredCache) Close() error {
	_ = lc.mem.Close()
	if c, ok := lc.l2.(interface{ Close() error }); ok {
		return c.Close()
	}
	return nil
}
