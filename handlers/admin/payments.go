package admin

import (
	"strconv"

	"github.com/gofiber/fiber/v2"
	"github.com/sahilchouksey/course-marketplace-api/model"
	"github.com/sahilchouksey/course-marketplace-api/services"
	"github.com/sahilchouksey/course-marketplace-api/utils/response"
	"go.uber.org/zap"
)

// ListPayments lists every payment, optionally filtered by status and user
// GET /admin/payments
func (h *AdminHandler) ListPayments(c *fiber.Ctx) error {
	filter := services.PaymentFilter{
		Page:  c.QueryInt("page", 1),
		Limit: c.QueryInt("limit", 20),
	}
	filter.Page, filter.Limit = pageParams(filter.Page, filter.Limit)

	switch status := model.PaymentStatus(c.Query("status")); status {
	case "":
	case model.PaymentStatusPending, model.PaymentStatusSuccess, model.PaymentStatusFailed:
		filter.Status = status
	default:
		return response.BadRequest(c, "status must be one of pending, success, failed")
	}
	if raw := c.Query("user_id"); raw != "" {
		userID, err := strconv.ParseUint(raw, 10, 32)
		if err != nil {
			return response.BadRequest(c, "Invalid user ID")
		}
		filter.UserID = uint(userID)
	}

	payments, total, err := h.payments.List(c.UserContext(), filter)
	if err != nil {
		h.log.Error("Failed to list payments", zap.Error(err))
		return response.InternalServerError(c, "Failed to fetch payments")
	}

	return response.Paginated(c, payments, response.CalculatePagination(filter.Page, filter.Limit, total))
}

// GetPaymentStats returns counts and amounts per status
// GET /admin/payments/stats
func (h *AdminHandler) GetPaymentStats(c *fiber.Ctx) error {
	stats, err := h.payments.Stats(c.UserContext())
	if err != nil {
		h.log.Error("Failed to aggregate payments", zap.Error(err))
		return response.InternalServerError(c, "Failed to fetch payment statistics")
	}
	return response.Success(c, stats)
}
