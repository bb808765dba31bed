package middleware

import (
	"context"
	"fmt"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// limiterKey buckets requests per path and caller: by tenant id once
// AuthMiddleware has run, by client IP otherwise.
func limiterKey(c *fiber.Ctx) string {
	if tid, ok := c.Locals(CtxTenantID).(uuid.UUID); ok && tid != uuid.Nil {
		return fmt.Sprintf("rl:%s:%s", c.Path(), tid)
	}
	return fmt.Sprintf("rl:%s:%s", c.Path(), c.IP())
}

// RateLimitMiddleware counts requests in redis per limiter key. On
// tenant-scoped routes it must be registered after AuthMiddleware so the
// tenant key applies.
func RateLimitMiddleware(rdb *redis.Client, limit int, window time.Duration) fiber.Handler {
	return func(c *fiber.Ctx) error {
		key := limiterKey(c)

		ctx := context.Background()
		count, err := rdb.Incr(ctx, key).Result()
		if err != nil {
			return c.Next() // fail open
		}

		if count == 1 {
			rdb.Expire(ctx, key, window)
		}

		if count > int64(limit) {
			return c.Status(fiber.StatusTooManyRequests).JSON(fiber.Map{
				"error": "rate limit exceeded",
			})
		}

		return c.Next()
	}
}
