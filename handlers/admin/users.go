package admin

import (
	"errors"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/sahilchouksey/course-marketplace-api/model"
	"github.com/sahilchouksey/course-marketplace-api/utils/middleware"
	"github.com/sahilchouksey/course-marketplace-api/utils/response"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// ListUsersRequest represents the query parameters for listing users
type ListUsersRequest struct {
	Page   int    `query:"page"`
	Limit  int    `query:"limit"`
	Role   string `query:"role"`
	Search string `query:"search"`
}

// UpdateUserRequest represents the request body for updating a user
type UpdateUserRequest struct {
	Name string `json:"name"`
	Role string `json:"role"`
}

// ListUsers retrieves all users with pagination and filters
// GET /admin/users
func (h *AdminHandler) ListUsers(c *fiber.Ctx) error {
	var req ListUsersRequest
	if err := c.QueryParser(&req); err != nil {
		return response.BadRequest(c, "Invalid query parameters")
	}
	req.Page, req.Limit = pageParams(req.Page, req.Limit)

	query := h.db.WithContext(c.UserContext()).Model(&model.User{})
	if req.Role != "" {
		query = query.Where("role = ?", req.Role)
	}
	if req.Search != "" {
		searchTerm := "%" + strings.ToLower(req.Search) + "%"
		query = query.Where("LOWER(name) LIKE ? OR LOWER(email) LIKE ?", searchTerm, searchTerm)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return response.InternalServerError(c, "Failed to count users")
	}

	var users []model.User
	if err := query.Offset((req.Page - 1) * req.Limit).Limit(req.Limit).Order("created_at DESC").Find(&users).Error; err != nil {
		return response.InternalServerError(c, "Failed to fetch users")
	}

	return response.Paginated(c, users, response.CalculatePagination(req.Page, req.Limit, total))
}

// GetUser retrieves a user with their entitlements and payment totals
// GET /admin/users/:id
func (h *AdminHandler) GetUser(c *fiber.Ctx) error {
	userID, err := c.ParamsInt("id")
	if err != nil || userID <= 0 {
		return response.BadRequest(c, "Invalid user ID")
	}

	db := h.db.WithContext(c.UserContext())

	var user model.User
	if err := db.Preload("Enrollments.Course").First(&user, userID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return response.NotFound(c, "User not found")
		}
		return response.InternalServerError(c, "Failed to fetch user")
	}

	var stats struct {
		Payments           int64 `json:"payments"`
		SuccessfulPayments int64 `json:"successful_payments"`
		CartItems          int64 `json:"cart_items"`
	}
	db.Model(&model.Payment{}).Where("user_id = ?", userID).Count(&stats.Payments)
	db.Model(&model.Payment{}).Where("user_id = ? AND status = ?", userID, model.PaymentStatusSuccess).Count(&stats.SuccessfulPayments)
	db.Model(&model.CartItem{}).Where("user_id = ?", userID).Count(&stats.CartItems)

	return response.Success(c, fiber.Map{
		"user":  user,
		"stats": stats,
	})
}

// UpdateUser changes a user's name or role. A role change revokes their sessions.
// PUT /admin/users/:id
func (h *AdminHandler) UpdateUser(c *fiber.Ctx) error {
	userID, err := c.ParamsInt("id")
	if err != nil || userID <= 0 {
		return response.BadRequest(c, "Invalid user ID")
	}

	var req UpdateUserRequest
	if err := c.BodyParser(&req); err != nil {
		return response.BadRequest(c, "Invalid request body")
	}

	db := h.db.WithContext(c.UserContext())

	var user model.User
	if err := db.First(&user, userID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return response.NotFound(c, "User not found")
		}
		return response.InternalServerError(c, "Failed to fetch user")
	}

	updates := make(map[string]interface{})
	if name := strings.TrimSpace(req.Name); name != "" {
		updates["name"] = name
	}
	if req.Role != "" && req.Role != user.Role {
		if req.Role != model.RoleStudent && req.Role != model.RoleAdmin {
			return response.BadRequest(c, "role must be student or admin")
		}
		if self, ok := middleware.GetUserID(c); ok && self == user.ID {
			return response.BadRequest(c, "Cannot change your own role")
		}
		updates["role"] = req.Role
		updates["token_version"] = gorm.Expr("token_version + 1")
	}

	if len(updates) > 0 {
		if err := db.Model(&user).Updates(updates).Error; err != nil {
			h.log.Error("Failed to update user", zap.Int("user_id", userID), zap.Error(err))
			return response.InternalServerError(c, "Failed to update user")
		}
	}

	db.First(&user, userID)
	return response.SuccessWithMessage(c, "User updated successfully", user)
}
