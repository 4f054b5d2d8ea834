package auth

import (
	"errors"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/sahilchouksey/course-marketplace-api/model"
	"github.com/sahilchouksey/course-marketplace-api/services"
	authutil "github.com/sahilchouksey/course-marketplace-api/utils/auth"
	"github.com/sahilchouksey/course-marketplace-api/utils/middleware"
	"github.com/sahilchouksey/course-marketplace-api/utils/response"
	"github.com/sahilchouksey/course-marketplace-api/utils/validation"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// AuthHandler handles authentication-related requests
type AuthHandler struct {
	db                   *gorm.DB
	jwtManager           *authutil.JWTManager
	blacklistService     *authutil.BlacklistService
	bruteForceProtection *middleware.BruteForceProtection
	enrollments          *services.EnrollmentService
	validator            *validation.Validator
	log                  *zap.Logger
}

// NewAuthHandler creates a new auth handler
func NewAuthHandler(db *gorm.DB, jwtManager *authutil.JWTManager, blacklist *authutil.BlacklistService, bruteForceProtection *middleware.BruteForceProtection, enrollments *services.EnrollmentService, log *zap.Logger) *AuthHandler {
	return &AuthHandler{
		db:                   db,
		jwtManager:           jwtManager,
		blacklistService:     blacklist,
		bruteForceProtection: bruteForceProtection,
		enrollments:          enrollments,
		validator:            validation.NewValidator(),
		log:                  log,
	}
}

// RegisterRequest represents a user registration request
type RegisterRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required,min=8"`
	Name     string `json:"name" validate:"required,min=2"`
	Phone    string `json:"phone,omitempty" validate:"omitempty,phone"`
}

// AuthResponse is returned by register, login and refresh
type AuthResponse struct {
	User *UserResponse `json:"user,omitempty"`
	authutil.TokenPair
}

// UserResponse represents user data in responses
type UserResponse struct {
	ID        uint      `json:"id"`
	Email     string    `json:"email"`
	Name      string    `json:"name"`
	Phone     string    `json:"phone,omitempty"`
	Role      string    `json:"role"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func newUserResponse(u *model.User) *UserResponse {
	return &UserResponse{
		ID:        u.ID,
		Email:     u.Email,
		Name:      u.Name,
		Phone:     u.Phone,
		Role:      u.Role,
		CreatedAt: u.CreatedAt,
		UpdatedAt: u.UpdatedAt,
	}
}

// Register handles user registration. Every self-registered account is a student.
func (h *AuthHandler) Register(c *fiber.Ctx) error {
	var req RegisterRequest
	if err := c.BodyParser(&req); err != nil {
		return response.BadRequest(c, "Invalid request body")
	}
	req.Email = strings.ToLower(strings.TrimSpace(req.Email))
	req.Name = validation.SanitizeString(req.Name)

	if err := h.validator.ValidateStruct(req); err != nil {
		return response.BadRequest(c, validation.Summary(err))
	}

	var existing model.User
	err := h.db.WithContext(c.UserContext()).Where("email = ?", req.Email).First(&existing).Error
	if err == nil {
		return response.Conflict(c, "User with this email already exists")
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return response.InternalServerError(c, "Failed to create user")
	}

	hashedPassword, err := authutil.HashPassword(req.Password)
	if err != nil {
		return response.InternalServerError(c, "Failed to process password")
	}

	user := model.User{
		Email:        req.Email,
		PasswordHash: hashedPassword,
		Name:         req.Name,
		Phone:        req.Phone,
		Role:         model.RoleStudent,
	}

	if err := h.db.WithContext(c.UserContext()).Create(&user).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return response.Conflict(c, "User with this email already exists")
		}
		h.log.Error("Failed to create user", zap.Error(err))
		return response.InternalServerError(c, "Failed to create user")
	}

	pair, err := h.jwtManager.GeneratePair(user.ID, user.Email, user.Role, user.TokenVersion)
	if err != nil {
		return response.InternalServerError(c, "Failed to generate tokens")
	}

	h.log.Info("User registered", zap.Uint("user_id", user.ID))
	return response.Created(c, AuthResponse{User: newUserResponse(&user), TokenPair: *pair})
}
