package middleware

import (
	"strconv"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/sahilchouksey/course-marketplace-api/utils/metrics"
	"go.uber.org/zap"
)

// HTTPMetrics collects request counts and latencies per route
func HTTPMetrics(m *metrics.Metrics, log *zap.Logger) fiber.Handler {
	return func(c *fiber.Ctx) error {
		start := time.Now()

		m.HTTPRequestsInFlight.Inc()
		defer m.HTTPRequestsInFlight.Dec()

		err := c.Next()

		duration := time.Since(start)

		// Route path keeps label cardinality bounded (":id" instead of the value)
		path := c.Route().Path
		if path == "" {
			path = c.Path()
		}
		status := c.Response().StatusCode()
		if err != nil {
			if fe, ok := err.(*fiber.Error); ok {
				status = fe.Code
			} else {
				status = fiber.StatusInternalServerError
			}
		}
		statusCode := strconv.Itoa(status)

		m.RecordHTTPRequest(c.Method(), path, statusCode, duration)

		if duration > time.Second {
			log.Warn("Slow HTTP request",
				zap.String("method", c.Method()),
				zap.String("path", path),
				zap.String("status_code", statusCode),
				zap.Duration("duration", duration),
			)
		}

		return err
	}
}
