package cache

import (
	"context"
	"errors"
	"testing"
	"time"
)

func newTestMemory(now *time.Time, opts ...MemoryOption) *MemoryCache {
	mc := NewMemoryCache(append([]MemoryOption{WithMemoryCleanup(0)}, opts...)...)
	mc.now = func() time.Time { return *now }
	return mc
}

func TestMemoryCacheExpiry(t *testing.T) {
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	c := newTestMemory(&now)
	defer c.Close()
	ctx := context.Background()

	if err := c.SetBytes(ctx, "k", []byte("v"), time.Second); err != nil {
		t.Fatalf("set: %v", err)
	}
	b, ok, err := c.GetBytes(ctx, "k")
	if err != nil || !ok || string(b) != "v" {
		t.Fatalf("expected hit, got %q %v %v", b, ok, err)
	}

	now = now.Add(2 * time.Second)
	if _, ok, _ := c.GetBytes(ctx, "k"); ok {
		t.Fatalf("expected expiry")
	}
	if c.Len() != 0 {
		t.Fatalf("expired entry should be evicted on read")
	}
}

func TestMemoryCacheNoTTL(t *testing.T) {
	now := time.Now()
	c := newTestMemory(&now)
	defer c.Close()
	ctx := context.Background()
	_ = c.SetBytes(ctx, "k", []byte("v"), 0)
	now = now.Add(365 * 24 * time.Hour)
	if _, ok, _ := c.GetBytes(ctx, "k"); !ok {
		t.Fatalf("zero ttl should never expire")
	}
}

func TestMemoryCacheEvictsLeastRecentlyUsed(t *testing.T) {
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	c := newTestMemory(&now, WithMemoryMaxSize(2))
	defer c.Close()
	ctx := context.Background()

	_ = c.SetBytes(ctx, "a", []byte("1"), 0)
	now = now.Add(time.Second)
	_ = c.SetBytes(ctx, "b", []byte("2"), 0)
	now = now.Add(time.Second)
	_, _, _ = c.GetBytes(ctx, "a")
	now = now.Add(time.Second)
	_ = c.SetBytes(ctx, "c", []byte("3"), 0)

	if _, ok, _ := c.GetBytes(ctx, "b"); ok {
		t.Fatalf("b should have been evicted")
	}
	for _, k := range []string{"a", "c"} {
		if _, ok, _ := c.GetBytes(ctx, k); !ok {
			t.Fatalf("%s should be cached", k)
		}
	}
}

func TestMemoryCacheCopiesValue(t *testing.T) {
	now := time.Now()
	c := newTestMemory(&now)
	defer c.Close()
	v := []byte("abc")
	_ = c.SetBytes(context.Background(), "k", v, 0)
	v[0] = 'x'
	b, _, _ := c.GetBytes(context.Background(), "k")
	if string(b) != "abc" {
		t.Fatalf("stored value aliased caller slice: %q", b)
	}
}

type stubL2 struct {
	data   map[string][]byte
	gets   int
	setErr error
}

func (s *stubL2) GetBytes(_ context.Context, key string) ([]byte, bool, error) {
	s.gets++
	b, ok := s.data[key]
	return b, ok, nil
}

func (s *stubL2) SetBytes(_ context.Context, key string, value []byte, _ time.Duration) error {
	if s.setErr != nil {
		return s.setErr
	}
	s.data[key] = value
	return nil
}

func TestLayeredCacheBackfillsMemory(t *testing.T) {
	l2 := &stubL2{data: map[string][]byte{"k": []byte("v")}}
	lc := NewLayeredCache(l2, WithLayeredL1TTL(time.Minute))
	defer lc.Close()
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		b, ok, err := lc.GetBytes(ctx, "k")
		if err != nil || !ok || string(b) != "v" {
			t.Fatalf("get %d: %q %v %v", i, b, ok, err)
		}
	}
	if l2.gets != 1 {
		t.Fatalf("expected one L2 read, got %d", l2.gets)
	}
}

func TestLayeredCacheWriteFailureSkipsMemory(t *testing.T) {
	l2 := &stubL2{data: map[string][]byte{}, setErr: errors.New("down")}
	lc := NewLayeredCache(l2)
	defer lc.Close()
	ctx := context.Background()

	if err := lc.SetBytes(ctx, "k", []byte("v"), time.Minute); err == nil {
		t.Fatalf("expected L2 error")
	}
	if _, ok, _ := lc.GetBytes(ctx, "k"); ok {
		t.Fatalf("failed write must not populate memory")
	}
}

func TestGenerateKeyWithParams(t *testing.T) {
	if got := GenerateKeyWithParams("chart", "BTCUSDT", "15m", false); got != "chart:BTCUSDT:15m:false" {
		t.Fatalf("got %q", got)
	}
}
