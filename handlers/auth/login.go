package auth

import (
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/sahilchouksey/course-marketplace-api/model"
	authutil "github.com/sahilchouksey/course-marketplace-api/utils/auth"
	"github.com/sahilchouksey/course-marketplace-api/utils/response"
	"github.com/sahilchouksey/course-marketplace-api/utils/validation"
)

// LoginRequest represents a user login request
type LoginRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

// Login handles user login
func (h *AuthHandler) Login(c *fiber.Ctx) error {
	var req LoginRequest
	if err := c.BodyParser(&req); err != nil {
		return response.BadRequest(c, "Invalid request body")
	}
	req.Email = strings.ToLower(strings.TrimSpace(req.Email))

	if err := h.validator.ValidateStruct(req); err != nil {
		return response.BadRequest(c, validation.Summary(err))
	}

	ctx := c.UserContext()
	ip := c.IP()

	var user model.User
	if err := h.db.WithContext(ctx).Where("email = ?", req.Email).First(&user).Error; err != nil {
		h.bruteForceProtection.RecordFailedAttempt(ctx, ip, req.Email)
		return response.Unauthorized(c, "Invalid email or password")
	}

	if err := authutil.VerifyPassword(user.PasswordHash, req.Password); err != nil {
		h.bruteForceProtection.RecordFailedAttempt(ctx, ip, req.Email)
		return response.Unauthorized(c, "Invalid email or password")
	}

	h.bruteForceProtection.RecordSuccessfulAttempt(ctx, ip)

	pair, err := h.jwtManager.GeneratePair(user.ID, user.Email, user.Role, user.TokenVersion)
	if err != nil {
		return response.InternalServerError(c, "Failed to generate tokens")
	}

	return response.Success(c, AuthResponse{User: newUserResponse(&user), TokenPair: *pair})
}
