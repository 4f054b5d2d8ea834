package comment

import (
	"errors"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/sahilchouksey/course-marketplace-api/services"
	"github.com/sahilchouksey/course-marketplace-api/utils/middleware"
	"github.com/sahilchouksey/course-marketplace-api/utils/response"
	"github.com/sahilchouksey/course-marketplace-api/utils/validation"
	"go.uber.org/zap"
)

// CommentHandler handles course discussion requests
type CommentHandler struct {
	comments  *services.CommentService
	validator *validation.Validator
	log       *zap.Logger
}

// NewCommentHandler creates a new comment handler
func NewCommentHandler(comments *services.CommentService, log *zap.Logger) *CommentHandler {
	return &CommentHandler{
		comments:  comments,
		validator: validation.NewValidator(),
		log:       log,
	}
}

// CreateCommentRequest represents the request body for posting a comment
type CreateCommentRequest struct {
	Body string `json:"body" validate:"required,min=1,max=2000"`
}

func (h *CommentHandler) fail(c *fiber.Ctx, err error, action string) error {
	switch {
	case errors.Is(err, services.ErrCourseNotFound):
		return response.NotFound(c, "Course not found")
	case errors.Is(err, services.ErrCommentNotFound):
		return response.NotFound(c, "Comment not found")
	case errors.Is(err, services.ErrNotEnrolled):
		return response.Forbidden(c, "Enroll in this course to join the discussion")
	case errors.Is(err, services.ErrCommentForbidden):
		return response.Forbidden(c, "You can only delete your own comments")
	}
	h.log.Error("Comment request failed", zap.String("action", action), zap.Error(err))
	return response.InternalServerError(c, "Failed to "+action)
}

// ListComments handles GET /api/v1/courses/:id/comments
func (h *CommentHandler) ListComments(c *fiber.Ctx) error {
	courseID, err := c.ParamsInt("id")
	if err != nil || courseID <= 0 {
		return response.BadRequest(c, "Invalid course ID")
	}

	page, limit := c.QueryInt("page", 1), c.QueryInt("limit", 20)
	result, err := h.comments.ListForCourse(c.UserContext(), uint(courseID), page, limit)
	if err != nil {
		return h.fail(c, err, "fetch comments")
	}

	return response.Paginated(c, result.Items, response.CalculatePagination(page, limit, result.Total))
}

// CreateComment handles POST /api/v1/courses/:id/comments
func (h *CommentHandler) CreateComment(c *fiber.Ctx) error {
	user, ok := middleware.GetUser(c)
	if !ok {
		return response.Unauthorized(c, "Not authenticated")
	}

	courseID, err := c.ParamsInt("id")
	if err != nil || courseID <= 0 {
		return response.BadRequest(c, "Invalid course ID")
	}

	var req CreateCommentRequest
	if err := c.BodyParser(&req); err != nil {
		return response.BadRequest(c, "Invalid request body")
	}
	if err := h.validator.ValidateStruct(req); err != nil {
		return response.BadRequest(c, validation.Summary(err))
	}
	if strings.TrimSpace(req.Body) == "" {
		return response.BadRequest(c, "Comment cannot be empty")
	}

	comment, err := h.comments.Create(c.UserContext(), user, uint(courseID), req.Body)
	if err != nil {
		return h.fail(c, err, "post comment")
	}
	return response.Created(c, comment)
}

// DeleteComment handles DELETE /api/v1/comments/:id
func (h *CommentHandler) DeleteComment(c *fiber.Ctx) error {
	user, ok := middleware.GetUser(c)
	if !ok {
		return response.Unauthorized(c, "Not authenticated")
	}

	id, err := c.ParamsInt("id")
	if err != nil || id <= 0 {
		return response.BadRequest(c, "Invalid comment ID")
	}

	if err := h.comments.Delete(c.UserContext(), user, uint(id)); err != nil {
		return h.fail(c, err, "delete comment")
	}
	return response.SuccessWithMessage(c, "Comment deleted", nil)
}
