package ratelimit

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisLimiter backs the sliding-window counter with Redis, so multiple
// instances of the service share one rate-limit view — the "external
// counter" spec §9 allows in place of per-instance locality. It approximates
// the sliding window with a fixed counter per window bucket (coarser than
// InMemory's true sliding window, acceptable per spec §4.7's ±10% tolerance).
type RedisLimiter struct {
	client *redis.Client
}

func NewRedisLimiter(client *redis.Client) *RedisLimiter {
	return &RedisLimiter{client: client}
}

func (l *RedisLimiter) Allow(key string, max int, window time.Duration) (bool, time.Duration) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	bucket := time.Now().Unix() / int64(window.Seconds())
	bucketKey := key + ":" + itoa64(bucket)

	count, err := l.client.Incr(ctx, bucketKey).Result()
	if err != nil {
		// Fail open: a Redis hiccup must not lock out every client (mirrors
		// the pre-check fail-open rule of spec §7).
		return true, 0
	}
	if count == 1 {
		l.client.Expire(ctx, bucketKey, window)
	}

	if int(count) > max {
		ttl, _ := l.client.TTL(ctx, bucketKey).Result()
		if ttl < 0 {
			ttl = window
		}
		return false, ttl
	}
	return true, 0
}

func itoa64(n int64) string {
	if n == 0 {
		return "0"
	}
	neg := n < 0
	if neg {
		n = -n
	}
	buf := make([]byte, 0, 20)
	for n > 0 {
		buf = append(buf, byte('0'+n%10))
		n /= 10
	}
	if neg {
		buf = append(buf, '-')
	}
	for i, j := 0, len(buf)-1; i < j; i, j = i+1, j-1 {
		buf[i], buf[j] = buf[j], buf[i]
	}
	return string(buf)
}
