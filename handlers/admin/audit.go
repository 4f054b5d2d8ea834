package admin

import (
	"errors"
	"strconv"

	"github.com/gofiber/fiber/v2"
	"github.com/sahilchouksey/course-marketplace-api/model"
	"github.com/sahilchouksey/course-marketplace-api/utils/response"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// ListAuditLogs retrieves admin audit logs with pagination
// GET /admin/audit-logs
func (h *AdminHandler) ListAuditLogs(c *fiber.Ctx) error {
	page, limit := pageParams(c.QueryInt("page", 1), c.QueryInt("limit", 20))

	query := h.db.WithContext(c.UserContext()).Model(&model.AdminAuditLog{})

	if action := c.Query("action"); action != "" {
		query = query.Where("action = ?", action)
	}
	if resource := c.Query("resource"); resource != "" {
		query = query.Where("resource = ?", resource)
	}
	if adminID, err := strconv.ParseUint(c.Query("admin_id"), 10, 32); err == nil {
		query = query.Where("admin_id = ?", adminID)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return response.InternalServerError(c, "Failed to count audit logs")
	}

	var logs []model.AdminAuditLog
	err := query.Preload("Admin").
		Offset((page - 1) * limit).
		Limit(limit).
		Order("created_at DESC").
		Find(&logs).Error
	if err != nil {
		h.log.Error("Failed to fetch audit logs", zap.Error(err))
		return response.InternalServerError(c, "Failed to fetch audit logs")
	}

	return response.Paginated(c, logs, response.CalculatePagination(page, limit, total))
}

// GetAuditLog retrieves a specific audit log entry
// GET /admin/audit-logs/:id
func (h *AdminHandler) GetAuditLog(c *fiber.Ctx) error {
	logID, err := c.ParamsInt("id")
	if err != nil || logID <= 0 {
		return response.BadRequest(c, "Invalid log ID")
	}

	var entry model.AdminAuditLog
	if err := h.db.WithContext(c.UserContext()).Preload("Admin").First(&entry, logID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return response.NotFound(c, "Audit log not found")
		}
		return response.InternalServerError(c, "Failed to fetch audit log")
	}

	return response.Success(c, entry)
}
