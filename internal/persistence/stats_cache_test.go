package persistence

import (
	"context"
	"os"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/spec-kit/civic-issue-service/internal/config"
)

func TestNewStatsCacheWithoutRedis(t *testing.T) {
	if NewStatsCache(nil, time.Minute) != nil {
		t.Fatal("expected nil cache without a redis client")
	}
}

func TestStatsCacheGenerations(t *testing.T) {
	addr := os.Getenv("REDIS_ADDR")
	if addr == "" {
		t.Skip("REDIS_ADDR not set")
	}
	r := NewRedis(config.RedisConfig{Addr: addr}, zap.NewNop())
	defer r.Close()
	ctx := context.Background()
	if err := r.Ping(ctx); err != nil {
		t.Skipf("redis unreachable: %v", err)
	}

	cache := NewStatsCache(r, 10*time.Second)
	type entry struct{ Open int }

	_, gen, err := cache.Get(ctx, "ward:test", &entry{})
	if err != nil {
		t.Fatal(err)
	}
	if err := cache.Set(ctx, gen, "ward:test", entry{Open: 4}); err != nil {
		t.Fatal(err)
	}
	var got entry
	if hit, _, err := cache.Get(ctx, "ward:test", &got); err != nil || !hit || got.Open != 4 {
		t.Fatalf("hit=%v err=%v got=%+v", hit, err, got)
	}
	if err := cache.Invalidate(ctx); err != nil {
		t.Fatal(err)
	}
	if hit, _, err := cache.Get(ctx, "ward:test", &got); err != nil || hit {
		t.Fatalf("expected miss after invalidation, hit=%v err=%v", hit, err)
	}
}

func TestStatsCacheStaleWriteStaysOrphaned(t *testing.T) {
	addr := os.Getenv("REDIS_ADDR")
	if addr == "" {
		t.Skip("REDIS_ADDR not set")
	}
	r := NewRedis(config.RedisConfig{Addr: addr}, zap.NewNop())
	defer r.Close()
	ctx := context.Background()
	if err := r.Ping(ctx); err != nil {
		t.Skipf("redis unreachable: %v", err)
	}
	cache := NewStatsCache(r, 10*time.Second)
	type entry struct{ Open int }

	// Reader misses, a writer invalidates, then the reader stores its result.
	hit, gen, err := cache.Get(ctx, "zone:stale", &entry{})
	if err != nil || hit {
		t.Fatalf("expected initial miss, hit=%v err=%v", hit, err)
	}
	if err := cache.Invalidate(ctx); err != nil {
		t.Fatal(err)
	}
	if err := cache.Set(ctx, gen, "zone:stale", entry{Open: 1}); err != nil {
		t.Fatal(err)
	}

	if hit, newGen, err := cache.Get(ctx, "zone:stale", &entry{}); err != nil || hit || newGen == gen {
		t.Fatalf("stale value served: hit=%v gen=%d->%d err=%v", hit, gen, newGen, err)
	}
}
