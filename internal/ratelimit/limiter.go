package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

var incrWithTTLScript = redis.NewScript(`
local c = redis.call("INCR", KEYS[1])
if c == 1 then
  redis.call("EXPIRE", KEYS[1], ARGV[1])
end
return c
`)

// Hourly counts calls per scope in fixed UTC hour windows stored in Redis.
type Hourly struct {
	redis  *redis.Client
	prefix string
	limit  int64
}

func NewHourly(rdb *redis.Client, prefix string, limit int64) *Hourly {
	if prefix == "" {
		prefix = "iprompt:translate"
	}
	return &Hourly{redis: rdb, prefix: prefix, limit: limit}
}

// Allow counts one call for scope. A limit of zero or less disables limiting.
func (h *Hourly) Allow(ctx context.Context, scope string, now time.Time) (allowed bool, used int64, resetAt time.Time, err error) {
	windowStart := now.UTC().Truncate(time.Hour)
	windowEnd := windowStart.Add(time.Hour)
	if h.limit <= 0 {
		return true, 0, windowEnd, nil
	}
	ttl := int64(windowEnd.Sub(now.UTC()).Seconds())
	if ttl < 1 {
		ttl = 1
	}

	key := fmt.Sprintf("%s:%s:%s", h.prefix, scope, windowStart.Format("2006010215"))
	res, err := incrWithTTLScript.Run(ctx, h.redis, []string{key}, ttl).Int64()
	if err != nil {
		return false, 0, time.Time{}, fmt.Errorf("rate limit script: %w", err)
	}
	return res <= h.limit, res, windowEnd, nil
}
