package middleware

import (
	"net/http"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/redis/go-redis/v9"
)

// PhoneRateLimit caps credential-guessing attempts per phone (or client IP
// when no phone is supplied) using Redis. Fail-open: without Redis, or on a
// cache error, requests pass through unchanged.
func PhoneRateLimit(cache *redis.Client, maxPerMin int) fiber.Handler {
	if maxPerMin <= 0 {
		maxPerMin = 5
	}
	return func(c *fiber.Ctx) error {
		if cache == nil {
			return c.Next()
		}
		var req struct {
			Phone string `json:"phoneNumber"`
		}
		_ = c.BodyParser(&req)
		phone := strings.TrimSpace(req.Phone)
		if phone == "" {
			phone = c.IP()
		}
		key := "rl:auth:" + phone
		cnt, err := cache.Incr(c.UserContext(), key).Result()
		if err != nil {
			return c.Next()
		}
		if cnt == 1 {
			cache.Expire(c.UserContext(), key, time.Minute)
		}
		if cnt > int64(maxPerMin) {
			return fiber.NewError(http.StatusTooManyRequests, "too many attempts, try again later")
		}
		return c.Next()
	}
}
