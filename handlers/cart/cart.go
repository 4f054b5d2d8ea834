package cart

import (
	"errors"

	"github.com/gofiber/fiber/v2"
	"github.com/sahilchouksey/course-marketplace-api/services"
	"github.com/sahilchouksey/course-marketplace-api/utils/middleware"
	"github.com/sahilchouksey/course-marketplace-api/utils/response"
	"github.com/sahilchouksey/course-marketplace-api/utils/validation"
	"go.uber.org/zap"
)

// CartHandler handles cart requests for the authenticated user
type CartHandler struct {
	carts     *services.CartService
	validator *validation.Validator
	log       *zap.Logger
}

// NewCartHandler creates a new cart handler
func NewCartHandler(carts *services.CartService, log *zap.Logger) *CartHandler {
	return &CartHandler{
		carts:     carts,
		validator: validation.NewValidator(),
		log:       log,
	}
}

// AddItemRequest represents the request body for adding a course to the cart
type AddItemRequest struct {
	CourseID uint `json:"course_id" validate:"required,min=1"`
}

func (h *CartHandler) fail(c *fiber.Ctx, err error, action string) error {
	switch {
	case errors.Is(err, services.ErrCourseNotFound), errors.Is(err, services.ErrCartItemNotFound):
		return response.NotFound(c, capitalize(err.Error()))
	case errors.Is(err, services.ErrCourseNotPurchasable):
		return response.BadRequest(c, "Free courses cannot be added to the cart")
	case errors.Is(err, services.ErrAlreadyEnrolled), errors.Is(err, services.ErrAlreadyInCart):
		return response.Conflict(c, capitalize(err.Error()))
	}
	h.log.Error("Cart request failed", zap.String("action", action), zap.Error(err))
	return response.InternalServerError(c, "Failed to "+action)
}

func capitalize(s string) string {
	if s == "" || s[0] < 'a' || s[0] > 'z' {
		return s
	}
	return string(s[0]-'a'+'A') + s[1:]
}

// GetCart handles GET /api/v1/cart
func (h *CartHandler) GetCart(c *fiber.Ctx) error {
	userID, ok := middleware.GetUserID(c)
	if !ok {
		return response.Unauthorized(c, "Not authenticated")
	}

	cart, err := h.carts.Get(c.UserContext(), userID)
	if err != nil {
		return h.fail(c, err, "fetch cart")
	}
	return response.Success(c, cart)
}

// AddItem handles POST /api/v1/cart
func (h *CartHandler) AddItem(c *fiber.Ctx) error {
	userID, ok := middleware.GetUserID(c)
	if !ok {
		return response.Unauthorized(c, "Not authenticated")
	}

	var req AddItemRequest
	if err := c.BodyParser(&req); err != nil {
		return response.BadRequest(c, "Invalid request body")
	}
	if err := h.validator.ValidateStruct(req); err != nil {
		return response.BadRequest(c, validation.Summary(err))
	}

	item, err := h.carts.Add(c.UserContext(), userID, req.CourseID)
	if err != nil {
		return h.fail(c, err, "add to cart")
	}
	return response.Created(c, item)
}

// RemoveItem handles DELETE /api/v1/cart/:courseId
func (h *CartHandler) RemoveItem(c *fiber.Ctx) error {
	userID, ok := middleware.GetUserID(c)
	if !ok {
		return response.Unauthorized(c, "Not authenticated")
	}

	courseID, err := c.ParamsInt("courseId")
	if err != nil || courseID <= 0 {
		return response.BadRequest(c, "Invalid course ID")
	}

	if err := h.carts.Remove(c.UserContext(), userID, uint(courseID)); err != nil {
		return h.fail(c, err, "remove from cart")
	}
	return response.SuccessWithMessage(c, "Removed from cart", nil)
}

// ClearCart handles DELETE /api/v1/cart
func (h *CartHandler) ClearCart(c *fiber.Ctx) error {
	userID, ok := middleware.GetUserID(c)
	if !ok {
		return response.Unauthorized(c, "Not authenticated")
	}

	removed, err := h.carts.Clear(c.UserContext(), userID)
	if err != nil {
		return h.fail(c, err, "clear cart")
	}
	return response.Success(c, fiber.Map{"removed": removed})
}
