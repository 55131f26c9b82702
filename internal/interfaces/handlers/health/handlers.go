package health

import (
	healthsvc "kbs-backend/internal/application/health"

	"github.com/gofiber/fiber/v2"
	"github.com/redis/go-redis/v9"
)

// SessionCounter reports open story playback sessions.
type SessionCounter interface {
	Active() int
}

// Handlers holds dependencies for health endpoints.
type Handlers struct {
	Rdb      *redis.Client
	DB       healthsvc.DBPinger
	Sessions SessionCounter
}

// JSON returns health data; 503 when a configured dependency is down.
func (h *Handlers) JSON(c *fiber.Ctx) error {
	active := 0
	if h.Sessions != nil {
		active = h.Sessions.Active()
	}
	result := healthsvc.Collect(c.Context(), h.Rdb, h.DB, active)
	code := fiber.StatusOK
	if result.Status != "ok" {
		code = fiber.StatusServiceUnavailable
	}
	return c.Status(code).JSON(fiber.Map{
		"service":      "kbs-backend",
		"status":       result.Status,
		"runtime":      result.Runtime,
		"traffic":      result.Traffic,
		"playback":     result.Playback,
		"dependencies": result.Dependencies,
	})
}
