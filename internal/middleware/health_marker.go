package middleware

import (
	"context"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/redis/go-redis/v9"
)

// Redis keys for request counters read by the health endpoint.
const (
	KeyReqTotal  = "health:global:req_total"
	KeyReqErrors = "health:global:req_errors"
	KeyResTime   = "health:global:res_time_total"
	KeyStartTime = "health:global:start_time"
)

// HealthMarker counts requests, 5xx responses and total response time in Redis
// (skips /health*). A nil client disables it. Counter errors are ignored.
func HealthMarker(rdb *redis.Client) fiber.Handler {
	return func(c *fiber.Ctx) error {
		if rdb == nil || strings.HasPrefix(c.Path(), "/health") {
			return c.Next()
		}
		start := time.Now()
		err := c.Next()

		ctx := context.Background()
		pipe := rdb.Pipeline()
		pipe.Incr(ctx, KeyReqTotal)
		pipe.IncrBy(ctx, KeyResTime, time.Since(start).Milliseconds())
		if err != nil || c.Response().StatusCode() >= fiber.StatusInternalServerError {
			pipe.Incr(ctx, KeyReqErrors)
		}
		_, _ = pipe.Exec(ctx)
		return err
	}
}
