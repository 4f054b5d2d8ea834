package auth

import (
	"github.com/gofiber/fiber/v2"
	"github.com/sahilchouksey/course-marketplace-api/model"
	authutil "github.com/sahilchouksey/course-marketplace-api/utils/auth"
	"github.com/sahilchouksey/course-marketplace-api/utils/middleware"
	"github.com/sahilchouksey/course-marketplace-api/utils/response"
	"go.uber.org/zap"
)

// RefreshRequest represents a token refresh request
type RefreshRequest struct {
	RefreshToken string `json:"refresh_token" validate:"required"`
}

// RefreshToken rotates a refresh token into a new pair and revokes the old one
func (h *AuthHandler) RefreshToken(c *fiber.Ctx) error {
	var req RefreshRequest
	if err := c.BodyParser(&req); err != nil {
		return response.BadRequest(c, "Invalid request body")
	}

	if req.RefreshToken == "" {
		return response.BadRequest(c, "Refresh token is required")
	}

	claims, err := h.jwtManager.ValidateToken(req.RefreshToken)
	if err != nil {
		return response.Unauthorized(c, "Invalid or expired refresh token")
	}

	if claims.TokenType != authutil.TokenTypeRefresh {
		return response.Unauthorized(c, "Invalid token type")
	}

	ctx := c.UserContext()
	isRevoked, err := h.blacklistService.IsTokenRevoked(ctx, claims.ID)
	if err != nil {
		return response.InternalServerError(c, "Failed to check token status")
	}
	if isRevoked {
		return response.Unauthorized(c, "Token has been revoked")
	}

	var user model.User
	if err := h.db.WithContext(ctx).First(&user, claims.UserID).Error; err != nil {
		return response.Unauthorized(c, "User not found")
	}

	if user.TokenVersion != claims.TokenVersion {
		return response.Unauthorized(c, "Token has been invalidated")
	}

	pair, err := h.jwtManager.GeneratePair(user.ID, user.Email, user.Role, user.TokenVersion)
	if err != nil {
		return response.InternalServerError(c, "Failed to generate tokens")
	}

	if err := h.blacklistService.RevokeToken(ctx, claims.ID, user.ID, claims.Expiry(), "token_refresh"); err != nil {
		// The old token still expires on its own
		h.log.Warn("Failed to revoke rotated refresh token", zap.Uint("user_id", user.ID), zap.Error(err))
	}

	return response.Success(c, AuthResponse{TokenPair: *pair})
}

// Logout handles user logout by blacklisting the access token
func (h *AuthHandler) Logout(c *fiber.Ctx) error {
	user, ok := middleware.GetUser(c)
	if !ok {
		return response.Unauthorized(c, "Not authenticated")
	}

	claims, ok := middleware.GetClaims(c)
	if !ok {
		return response.BadRequest(c, "No token ID found")
	}

	if err := h.blacklistService.RevokeToken(c.UserContext(), claims.ID, user.ID, claims.Expiry(), "logout"); err != nil {
		return response.InternalServerError(c, "Failed to logout")
	}

	return response.SuccessWithMessage(c, "Successfully logged out", nil)
}

// LogoutAll revokes every session of the caller by bumping their token version
func (h *AuthHandler) LogoutAll(c *fiber.Ctx) error {
	userID, ok := middleware.GetUserID(c)
	if !ok {
		return response.Unauthorized(c, "Not authenticated")
	}

	if err := h.blacklistService.RevokeAllUserTokens(c.UserContext(), userID); err != nil {
		h.log.Error("Failed to revoke sessions", zap.Uint("user_id", userID), zap.Error(err))
		return response.InternalServerError(c, "Failed to logout")
	}

	return response.SuccessWithMessage(c, "Logged out of all sessions", nil)
}
