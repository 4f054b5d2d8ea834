package handlers

import (
	"github.com/gofiber/fiber/v2"
	"github.com/sahilchouksey/course-marketplace-api/utils/response"
)

// Pinger is satisfied by database.GORMStore
type Pinger interface {
	HealthCheck() error
}

// HandleCheckHealth answers GET /ping; it fails when the database is unreachable
func HandleCheckHealth(store Pinger) fiber.Handler {
	return func(c *fiber.Ctx) error {
		if err := store.HealthCheck(); err != nil {
			return response.ServiceUnavailable(c, "Database unavailable")
		}
		return c.JSON(fiber.Map{"status": "ok"})
	}
}
