package middleware

import (
	"fmt"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// RateLimitMiddleware is a fixed-window counter in Redis. Authenticated
// requests are limited per user so one buyer hammering the trade endpoints
// cannot eat a shared NAT address's quota; anonymous requests fall back to
// the client IP. Redis being down fails open: trading keeps working without
// the limiter.
func RateLimitMiddleware(rdb *redis.Client, limit int, window time.Duration) fiber.Handler {
	return func(c *fiber.Ctx) error {
		subject := c.IP()
		if userID, ok := c.Locals(CtxUserID).(uuid.UUID); ok {
			subject = userID.String()
		}
		key := fmt.Sprintf("ratelimit:%s:%s", c.Path(), subject)

		ctx := c.UserContext()
		count, err := rdb.Incr(ctx, key).Result()
		if err != nil {
			return c.Next()
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
