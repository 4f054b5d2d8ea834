package middleware

import (
	"encoding/json"
	"strconv"

	"github.com/gofiber/fiber/v2"
	"github.com/sahilchouksey/course-marketplace-api/model"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// AdminAuditLog records an audit entry for an admin action once the handler has run.
// It must be mounted after RequireAdmin.
func AdminAuditLog(db *gorm.DB, log *zap.Logger, action, resource string) fiber.Handler {
	return func(c *fiber.Ctx) error {
		admin, ok := GetUser(c)
		if !ok {
			return c.Next()
		}

		var resourceID uint
		if id := c.Params("id"); id != "" {
			if parsed, err := strconv.ParseUint(id, 10, 32); err == nil {
				resourceID = uint(parsed)
			}
		}

		var oldValue interface{}
		if resourceID > 0 && (c.Method() == fiber.MethodPut || c.Method() == fiber.MethodDelete) {
			switch resource {
			case "courses":
				var course model.Course
				if err := db.First(&course, resourceID).Error; err == nil {
					oldValue = course
				}
			case "universities":
				var university model.University
				if err := db.First(&university, resourceID).Error; err == nil {
					oldValue = university
				}
			}
		}

		var newValue datatypes.JSON
		if c.Method() == fiber.MethodPost || c.Method() == fiber.MethodPut {
			if body := c.Body(); len(body) > 0 && json.Valid(body) {
				newValue = datatypes.JSON(append([]byte(nil), body...))
			}
		}

		err := c.Next()

		// The fiber context is recycled after the handler returns; copy what the goroutine needs
		entry := model.AdminAuditLog{
			AdminID:     admin.ID,
			Action:      action,
			Resource:    resource,
			ResourceID:  resourceID,
			NewValue:    newValue,
			StatusCode:  c.Response().StatusCode(),
			IPAddress:   c.IP(),
			UserAgent:   string(c.Request().Header.UserAgent()),
			Description: c.Method() + " " + c.Path(),
		}
		if oldValue != nil {
			if raw, mErr := json.Marshal(oldValue); mErr == nil {
				entry.OldValue = datatypes.JSON(raw)
			}
		}

		go func() {
			if dbErr := db.Create(&entry).Error; dbErr != nil {
				log.Warn("Failed to write admin audit log", zap.String("action", action), zap.Error(dbErr))
			}
		}()

		return err
	}
}
