package ratelimit

import (
	"net/http"
	"time"

	redis "github.com/redis/go-redis/v9"
	limiter "github.com/ulule/limiter/v3"
	limiterredis "github.com/ulule/limiter/v3/drivers/store/redis"
)

// RedisLimiter adapts a ulule limiter backed by Redis to the Limiter
// interface used by the middleware.
type RedisLimiter struct {
	L *limiter.Limiter
}

// NewRedisLimiter builds a Redis-backed limiter allowing max events per window.
func NewRedisLimiter(rdb *redis.Client, prefix string, window time.Duration, max int) (*RedisLimiter, error) {
	store, err := limiterredis.NewStoreWithOptions(rdb, limiter.StoreOptions{
		Prefix: prefix,
	})
	if err != nil {
		return nil, err
	}
	rate := limiter.Rate{Period: window, Limit: int64(max)}
	return &RedisLimiter{L: limiter.New(store, rate)}, nil
}

func (rl *RedisLimiter) Allow(r *http.Request, key string) (bool, int, int, time.Time, error) {
	ctx, err := rl.L.Get(r.Context(), key)
	if err != nil {
		return false, 0, 0, time.Time{}, err
	}
	reset := time.Unix(ctx.Reset, 0)
	return !ctx.Reached, int(ctx.Limit), int(ctx.Remaining), reset, nil
}
