package ratelimit

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func newRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("start miniredis: %v", err)
	}
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() {
		_ = rdb.Close()
		mr.Close()
	})
	return mr, rdb
}

func TestHourlyAllow(t *testing.T) {
	_, rdb := newRedis(t)
	h := NewHourly(rdb, "test", 2)
	now := time.Date(2026, 2, 13, 10, 15, 0, 0, time.UTC)
	ctx := context.Background()

	for i := 1; i <= 2; i++ {
		allowed, used, _, err := h.Allow(ctx, "litellm", now)
		if err != nil {
			t.Fatalf("allow#%d: %v", i, err)
		}
		if !allowed || used != int64(i) {
			t.Fatalf("call %d: expected allowed with used=%d, got allowed=%v used=%d", i, i, allowed, used)
		}
	}

	allowed, used, resetAt, err := h.Allow(ctx, "litellm", now)
	if err != nil {
		t.Fatalf("allow#3: %v", err)
	}
	if allowed || used != 3 {
		t.Fatalf("expected third call denied with used=3, got allowed=%v used=%d", allowed, used)
	}
	if !resetAt.Equal(time.Date(2026, 2, 13, 11, 0, 0, 0, time.UTC)) {
		t.Fatalf("unexpected reset time %v", resetAt)
	}

	allowed, _, _, err = h.Allow(ctx, "other", now)
	if err != nil || !allowed {
		t.Fatalf("scopes must be counted separately, got allowed=%v err=%v", allowed, err)
	}
}

func TestHourlyWindowExpires(t *testing.T) {
	mr, rdb := newRedis(t)
	h := NewHourly(rdb, "test", 1)
	now := time.Date(2026, 2, 13, 10, 59, 0, 0, time.UTC)
	ctx := context.Background()

	if allowed, _, _, _ := h.Allow(ctx, "p", now); !allowed {
		t.Fatalf("expected first call allowed")
	}
	if allowed, _, _, _ := h.Allow(ctx, "p", now); allowed {
		t.Fatalf("expected second call denied")
	}
	mr.FastForward(2 * time.Minute)
	if allowed, _, _, _ := h.Allow(ctx, "p", now.Add(2*time.Minute)); !allowed {
		t.Fatalf("expected new window to allow")
	}
}

func TestHourlyZeroLimitDisabled(t *testing.T) {
	h := NewHourly(nil, "", 0)
	allowed, _, _, err := h.Allow(context.Background(), "p", time.Now())
	if err != nil || !allowed {
		t.Fatalf("expected disabled limiter to allow, got %v %v", allowed, err)
	}
}
