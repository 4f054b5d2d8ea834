package course

import (
	"errors"
	"strconv"

	"github.com/gofiber/fiber/v2"
	"github.com/sahilchouksey/course-marketplace-api/services"
	"github.com/sahilchouksey/course-marketplace-api/utils/middleware"
	"github.com/sahilchouksey/course-marketplace-api/utils/response"
	"github.com/sahilchouksey/course-marketplace-api/utils/validation"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// CourseHandler handles course-related requests
type CourseHandler struct {
	courses     *services.CourseService
	enrollments *services.EnrollmentService
	validator   *validation.Validator
	log         *zap.Logger
}

// NewCourseHandler creates a new course handler
func NewCourseHandler(courses *services.CourseService, enrollments *services.EnrollmentService, log *zap.Logger) *CourseHandler {
	return &CourseHandler{
		courses:     courses,
		enrollments: enrollments,
		validator:   validation.NewValidator(),
		log:         log,
	}
}

// CreateCourseRequest represents the request body for creating a course
type CreateCourseRequest struct {
	UniversityID    uint            `json:"university_id" validate:"required,min=1"`
	Title           string          `json:"title" validate:"required,min=3,max=255"`
	Description     string          `json:"description" validate:"omitempty,max=5000"`
	IsPaid          bool            `json:"is_paid"`
	Price           decimal.Decimal `json:"price"`
	DiscountedPrice decimal.Decimal `json:"discounted_price"`
	AccessDays      int             `json:"access_days" validate:"gte=0"`
	IsPublished     bool            `json:"is_published"`
}

// UpdateCourseRequest represents the request body for updating a course
type UpdateCourseRequest struct {
	UniversityID    *uint            `json:"university_id" validate:"omitempty,min=1"`
	Title           *string          `json:"title" validate:"omitempty,min=3,max=255"`
	Description     *string          `json:"description" validate:"omitempty,max=5000"`
	IsPaid          *bool            `json:"is_paid"`
	Price           *decimal.Decimal `json:"price"`
	DiscountedPrice *decimal.Decimal `json:"discounted_price"`
	AccessDays      *int             `json:"access_days" validate:"omitempty,gte=0"`
	IsPublished     *bool            `json:"is_published"`
}

func (h *CourseHandler) fail(c *fiber.Ctx, err error, action string) error {
	switch {
	case errors.Is(err, services.ErrCourseNotFound):
		return response.NotFound(c, "Course not found")
	case errors.Is(err, services.ErrUniversityNotFound):
		return response.BadRequest(c, "University not found")
	case errors.Is(err, services.ErrInvalidPrice):
		return response.BadRequest(c, err.Error())
	case errors.Is(err, services.ErrCourseRequiresPurchase):
		return response.BadRequest(c, "This course must be purchased")
	}
	h.log.Error("Course request failed", zap.String("action", action), zap.Error(err))
	return response.InternalServerError(c, "Failed to "+action)
}

// ListCourses handles GET /api/v1/courses
func (h *CourseHandler) ListCourses(c *fiber.Ctx) error {
	filter := services.CourseFilter{
		Page:   c.QueryInt("page", 1),
		Limit:  c.QueryInt("limit", 10),
		Search: c.Query("search"),
	}
	if uid, err := strconv.ParseUint(c.Query("university_id"), 10, 64); err == nil {
		filter.UniversityID = uint(uid)
	}
	// Admins may browse drafts
	if user, ok := middleware.GetUser(c); ok && user.IsAdmin() && c.QueryBool("include_unpublished") {
		filter.IncludeUnpublished = true
	}

	page, err := h.courses.List(c.UserContext(), filter)
	if err != nil {
		return h.fail(c, err, "fetch courses")
	}

	return response.Paginated(c, page.Items, response.CalculatePagination(filter.Page, filter.Limit, page.Total))
}

// GetCourse handles GET /api/v1/courses/:id (numeric id or slug)
func (h *CourseHandler) GetCourse(c *fiber.Ctx) error {
	course, err := h.courses.Get(c.UserContext(), c.Params("id"))
	if err != nil {
		return h.fail(c, err, "fetch course")
	}

	if !course.IsPublished {
		if user, ok := middleware.GetUser(c); !ok || !user.IsAdmin() {
			return response.NotFound(c, "Course not found")
		}
	}

	return response.Success(c, course)
}

// CreateCourse handles POST /api/v1/courses
func (h *CourseHandler) CreateCourse(c *fiber.Ctx) error {
	var req CreateCourseRequest
	if err := c.BodyParser(&req); err != nil {
		return response.BadRequest(c, "Invalid request body")
	}
	if err := h.validator.ValidateStruct(req); err != nil {
		return response.BadRequest(c, validation.Summary(err))
	}

	course, err := h.courses.Create(c.UserContext(), services.CreateCourseInput{
		UniversityID:    req.UniversityID,
		Title:           req.Title,
		Description:     req.Description,
		IsPaid:          req.IsPaid,
		Price:           req.Price,
		DiscountedPrice: req.DiscountedPrice,
		AccessDays:      req.AccessDays,
		IsPublished:     req.IsPublished,
	})
	if err != nil {
		return h.fail(c, err, "create course")
	}

	return response.Created(c, course)
}

// UpdateCourse handles PUT /api/v1/courses/:id
func (h *CourseHandler) UpdateCourse(c *fiber.Ctx) error {
	id, err := c.ParamsInt("id")
	if err != nil || id <= 0 {
		return response.BadRequest(c, "Invalid course ID")
	}

	var req UpdateCourseRequest
	if err := c.BodyParser(&req); err != nil {
		return response.BadRequest(c, "Invalid request body")
	}
	if err := h.validator.ValidateStruct(req); err != nil {
		return response.BadRequest(c, validation.Summary(err))
	}

	course, err := h.courses.Update(c.UserContext(), uint(id), services.UpdateCourseInput{
		UniversityID:    req.UniversityID,
		Title:           req.Title,
		Description:     req.Description,
		IsPaid:          req.IsPaid,
		Price:           req.Price,
		DiscountedPrice: req.DiscountedPrice,
		AccessDays:      req.AccessDays,
		IsPublished:     req.IsPublished,
	})
	if err != nil {
		return h.fail(c, err, "update course")
	}

	return response.Success(c, course)
}

// DeleteCourse handles DELETE /api/v1/courses/:id
func (h *CourseHandler) DeleteCourse(c *fiber.Ctx) error {
	id, err := c.ParamsInt("id")
	if err != nil || id <= 0 {
		return response.BadRequest(c, "Invalid course ID")
	}

	if err := h.courses.Delete(c.UserContext(), uint(id)); err != nil {
		return h.fail(c, err, "delete course")
	}

	return response.SuccessWithMessage(c, "Course deleted successfully", nil)
}

// EnrollFree handles POST /api/v1/courses/:id/enroll; paid courses go through checkout
func (h *CourseHandler) EnrollFree(c *fiber.Ctx) error {
	userID, ok := middleware.GetUserID(c)
	if !ok {
		return response.Unauthorized(c, "Not authenticated")
	}

	course, err := h.courses.Get(c.UserContext(), c.Params("id"))
	if err != nil {
		return h.fail(c, err, "enroll")
	}
	if !course.IsPublished {
		return response.NotFound(c, "Course not found")
	}
	if course.Purchasable() {
		return h.fail(c, services.ErrCourseRequiresPurchase, "enroll")
	}

	granted, err := h.enrollments.Grant(c.UserContext(), userID, course.ID, nil)
	if err != nil {
		return h.fail(c, err, "enroll")
	}
	if !granted {
		return response.Conflict(c, "Already enrolled in this course")
	}

	return response.Created(c, fiber.Map{"course_id": course.ID, "enrolled": true})
}
