package middleware

import (
	"errors"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/sahilchouksey/course-marketplace-api/model"
	"github.com/sahilchouksey/course-marketplace-api/utils/auth"
	"github.com/sahilchouksey/course-marketplace-api/utils/response"
	"gorm.io/gorm"
)

// Context keys set by the auth middleware
const (
	LocalUserID   = "user_id"
	LocalUserRole = "user_role"
	LocalClaims   = "claims"
	LocalUser     = "user"
	LocalTokenJTI = "token_jti"
)

// authError carries the status and message returned to the client
type authError struct {
	status  int
	message string
}

func (e *authError) Error() string { return e.message }

func unauthorized(msg string) error { return &authError{status: fiber.StatusUnauthorized, message: msg} }

// AuthMiddleware handles JWT authentication
type AuthMiddleware struct {
	jwtManager       *auth.JWTManager
	blacklistService *auth.BlacklistService
	db               *gorm.DB
}

// NewAuthMiddleware creates a new auth middleware
func NewAuthMiddleware(jwtManager *auth.JWTManager, blacklist *auth.BlacklistService, db *gorm.DB) *AuthMiddleware {
	return &AuthMiddleware{
		jwtManager:       jwtManager,
		blacklistService: blacklist,
		db:               db,
	}
}

// authenticate validates the bearer token and loads its user
func (m *AuthMiddleware) authenticate(c *fiber.Ctx) (*auth.Claims, *model.User, error) {
	authHeader := c.Get("Authorization")
	if authHeader == "" {
		return nil, nil, unauthorized("Missing authorization token")
	}

	parts := strings.Split(authHeader, " ")
	if len(parts) != 2 || parts[0] != "Bearer" {
		return nil, nil, unauthorized("Invalid authorization format")
	}

	claims, err := m.jwtManager.ValidateToken(parts[1])
	if err != nil {
		if errors.Is(err, auth.ErrExpiredToken) {
			return nil, nil, unauthorized("Token has expired")
		}
		return nil, nil, unauthorized("Invalid token")
	}

	if claims.TokenType != auth.TokenTypeAccess {
		return nil, nil, unauthorized("Invalid token type")
	}

	isRevoked, err := m.blacklistService.IsTokenRevoked(c.UserContext(), claims.ID)
	if err != nil {
		return nil, nil, &authError{status: fiber.StatusInternalServerError, message: "Failed to check token status"}
	}
	if isRevoked {
		return nil, nil, unauthorized("Token has been revoked")
	}

	var user model.User
	if err := m.db.WithContext(c.UserContext()).First(&user, claims.UserID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil, unauthorized("User not found")
		}
		return nil, nil, &authError{status: fiber.StatusInternalServerError, message: "Failed to load user"}
	}

	if user.TokenVersion != claims.TokenVersion {
		return nil, nil, unauthorized("Token has been invalidated")
	}

	return claims, &user, nil
}

func setLocals(c *fiber.Ctx, claims *auth.Claims, user *model.User) {
	c.Locals(LocalUserID, user.ID)
	// Role comes from the database so a demoted admin loses access at once
	c.Locals(LocalUserRole, user.Role)
	c.Locals(LocalClaims, claims)
	c.Locals(LocalUser, user)
	c.Locals(LocalTokenJTI, claims.ID)
}

func respond(c *fiber.Ctx, err error) error {
	var ae *authError
	if errors.As(err, &ae) {
		if ae.status == fiber.StatusInternalServerError {
			return response.InternalServerError(c, ae.message)
		}
		return response.Unauthorized(c, ae.message)
	}
	return response.Unauthorized(c, "Invalid token")
}

// Required is middleware that requires a valid JWT token
func (m *AuthMiddleware) Required() fiber.Handler {
	return func(c *fiber.Ctx) error {
		claims, user, err := m.authenticate(c)
		if err != nil {
			return respond(c, err)
		}
		setLocals(c, claims, user)
		return c.Next()
	}
}

// Optional is middleware that allows requests with or without a token
func (m *AuthMiddleware) Optional() fiber.Handler {
	return func(c *fiber.Ctx) error {
		if claims, user, err := m.authenticate(c); err == nil {
			setLocals(c, claims, user)
		}
		return c.Next()
	}
}

// RequireAdmin validates the token inline and requires an admin account
func (m *AuthMiddleware) RequireAdmin() fiber.Handler {
	return func(c *fiber.Ctx) error {
		claims, user, err := m.authenticate(c)
		if err != nil {
			return respond(c, err)
		}
		if !user.IsAdmin() {
			return response.Forbidden(c, "Admin access required")
		}
		setLocals(c, claims, user)
		return c.Next()
	}
}

// GetUserID extracts user ID from context
func GetUserID(c *fiber.Ctx) (uint, bool) {
	id, ok := c.Locals(LocalUserID).(uint)
	return id, ok
}

// GetUser extracts full user object from context
func GetUser(c *fiber.Ctx) (*model.User, bool) {
	u, ok := c.Locals(LocalUser).(*model.User)
	return u, ok && u != nil
}

// GetClaims extracts full claims from context
func GetClaims(c *fiber.Ctx) (*auth.Claims, bool) {
	claims, ok := c.Locals(LocalClaims).(*auth.Claims)
	return claims, ok
}

// GetTokenJTI extracts the token JTI from context
func GetTokenJTI(c *fiber.Ctx) (string, bool) {
	j, ok := c.Locals(LocalTokenJTI).(string)
	return j, ok && j != ""
}
