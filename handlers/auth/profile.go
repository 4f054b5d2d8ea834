package auth

import (
	"github.com/gofiber/fiber/v2"
	"github.com/sahilchouksey/course-marketplace-api/utils/middleware"
	"github.com/sahilchouksey/course-marketplace-api/utils/response"
	"github.com/sahilchouksey/course-marketplace-api/utils/validation"
	"go.uber.org/zap"
)

// UpdateProfileRequest represents a profile update request
type UpdateProfileRequest struct {
	Name  *string `json:"name,omitempty" validate:"omitempty,min=2"`
	Phone *string `json:"phone,omitempty" validate:"omitempty,phone"`
}

// GetProfile returns the current user's profile
func (h *AuthHandler) GetProfile(c *fiber.Ctx) error {
	user, ok := middleware.GetUser(c)
	if !ok {
		return response.Unauthorized(c, "Not authenticated")
	}
	return response.Success(c, newUserResponse(user))
}

// UpdateProfile changes the name or phone used for checkout
func (h *AuthHandler) UpdateProfile(c *fiber.Ctx) error {
	user, ok := middleware.GetUser(c)
	if !ok {
		return response.Unauthorized(c, "Not authenticated")
	}

	var req UpdateProfileRequest
	if err := c.BodyParser(&req); err != nil {
		return response.BadRequest(c, "Invalid request body")
	}
	if err := h.validator.ValidateStruct(req); err != nil {
		return response.BadRequest(c, validation.Summary(err))
	}

	updates := map[string]interface{}{}
	if req.Name != nil {
		updates["name"] = validation.SanitizeString(*req.Name)
	}
	if req.Phone != nil {
		updates["phone"] = validation.SanitizeString(*req.Phone)
	}
	if len(updates) == 0 {
		return response.Success(c, newUserResponse(user))
	}

	if err := h.db.WithContext(c.UserContext()).Model(user).Updates(updates).Error; err != nil {
		h.log.Error("Failed to update profile", zap.Uint("user_id", user.ID), zap.Error(err))
		return response.InternalServerError(c, "Failed to update profile")
	}
	if name, ok := updates["name"].(string); ok {
		user.Name = name
	}
	if phone, ok := updates["phone"].(string); ok {
		user.Phone = phone
	}

	return response.Success(c, newUserResponse(user))
}

// GetMyCourses lists the courses the current user holds an entitlement to
func (h *AuthHandler) GetMyCourses(c *fiber.Ctx) error {
	userID, ok := middleware.GetUserID(c)
	if !ok {
		return response.Unauthorized(c, "Not authenticated")
	}

	enrollments, err := h.enrollments.ListForUser(c.UserContext(), userID)
	if err != nil {
		h.log.Error("Failed to list enrollments", zap.Uint("user_id", userID), zap.Error(err))
		return response.InternalServerError(c, "Failed to fetch courses")
	}

	return response.Success(c, enrollments)
}
