package response

import (
	"github.com/gofiber/fiber/v2"
	"github.com/sahilchouksey/course-marketplace-api/utils/validation"
)

// Response is the JSON envelope of every API answer except gateway redirects
type Response struct {
	Success bool         `json:"success"`
	Message string       `json:"message,omitempty"`
	Data    interface{}  `json:"data,omitempty"`
	Error   *ErrorDetail `json:"error,omitempty"`
}

// ErrorDetail contains error information
type ErrorDetail struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Details string `json:"details,omitempty"`
}

// PaginationMeta describes one page of a listing
type PaginationMeta struct {
	CurrentPage int   `json:"current_page"`
	PerPage     int   `json:"per_page"`
	Total       int64 `json:"total"`
	TotalPages  int   `json:"total_pages"`
}

// PaginatedResponse is the envelope for listings
type PaginatedResponse struct {
	Success    bool           `json:"success"`
	Message    string         `json:"message,omitempty"`
	Data       interface{}    `json:"data"`
	Pagination PaginationMeta `json:"pagination"`
}

type errorKind struct {
	code    string
	message string
}

var errorKinds = map[int]errorKind{
	fiber.StatusBadRequest:            {"BAD_REQUEST", "Bad request"},
	fiber.StatusUnauthorized:          {"UNAUTHORIZED", "Unauthorized access"},
	fiber.StatusForbidden:             {"FORBIDDEN", "Access forbidden"},
	fiber.StatusNotFound:              {"NOT_FOUND", "Resource not found"},
	fiber.StatusMethodNotAllowed:      {"METHOD_NOT_ALLOWED", "Method not allowed"},
	fiber.StatusConflict:              {"CONFLICT", "Resource conflict"},
	fiber.StatusRequestEntityTooLarge: {"PAYLOAD_TOO_LARGE", "Request body too large"},
	fiber.StatusUnprocessableEntity:   {"VALIDATION_ERROR", "Validation failed"},
	fiber.StatusTooManyRequests:       {"TOO_MANY_REQUESTS", "Too many requests"},
	fiber.StatusInternalServerError:   {"INTERNAL_ERROR", "Internal server error"},
	fiber.StatusBadGateway:            {"BAD_GATEWAY", "Upstream service failed"},
	fiber.StatusServiceUnavailable:    {"SERVICE_UNAVAILABLE", "Service temporarily unavailable"},
}

// CodeFor returns the envelope error code for an HTTP status
func CodeFor(status int) string {
	if kind, ok := errorKinds[status]; ok {
		return kind.code
	}
	if status >= fiber.StatusInternalServerError {
		return "INTERNAL_ERROR"
	}
	return "ERROR"
}

func fail(c *fiber.Ctx, status int, message, details string) error {
	if message == "" {
		message = errorKinds[status].message
	}
	return c.Status(status).JSON(Response{
		Success: false,
		Error: &ErrorDetail{
			Code:    CodeFor(status),
			Message: message,
			Details: details,
		},
	})
}

// Success returns a successful response
func Success(c *fiber.Ctx, data interface{}) error {
	return c.Status(fiber.StatusOK).JSON(Response{Success: true, Data: data})
}

// SuccessWithMessage returns a successful response with a message
func SuccessWithMessage(c *fiber.Ctx, message string, data interface{}) error {
	return c.Status(fiber.StatusOK).JSON(Response{Success: true, Message: message, Data: data})
}

// Created returns a 201 Created response
func Created(c *fiber.Ctx, data interface{}) error {
	return c.Status(fiber.StatusCreated).JSON(Response{
		Success: true,
		Message: "Resource created successfully",
		Data:    data,
	})
}

// Error answers with an arbitrary status; the code is derived from it
func Error(c *fiber.Ctx, status int, message string) error {
	return fail(c, status, message, "")
}

func BadRequest(c *fiber.Ctx, message string) error {
	return fail(c, fiber.StatusBadRequest, message, "")
}

func Unauthorized(c *fiber.Ctx, message string) error {
	return fail(c, fiber.StatusUnauthorized, message, "")
}

func Forbidden(c *fiber.Ctx, message string) error {
	return fail(c, fiber.StatusForbidden, message, "")
}

func NotFound(c *fiber.Ctx, message string) error {
	return fail(c, fiber.StatusNotFound, message, "")
}

func Conflict(c *fiber.Ctx, message string) error {
	return fail(c, fiber.StatusConflict, message, "")
}

func TooManyRequests(c *fiber.Ctx, message string) error {
	return fail(c, fiber.StatusTooManyRequests, message, "")
}

// ValidationError answers 422 with one line per failed field in details
func ValidationError(c *fiber.Ctx, err error) error {
	return fail(c, fiber.StatusUnprocessableEntity, "", validation.Summary(err))
}

func InternalServerError(c *fiber.Ctx, message string) error {
	return fail(c, fiber.StatusInternalServerError, message, "")
}

// BadGateway is for failures of the payment gateway or another upstream
func BadGateway(c *fiber.Ctx, message string) error {
	return fail(c, fiber.StatusBadGateway, message, "")
}

func ServiceUnavailable(c *fiber.Ctx, message string) error {
	return fail(c, fiber.StatusServiceUnavailable, message, "")
}

// RedirectSeeOther answers with a 303 so the browser follows with a GET
func RedirectSeeOther(c *fiber.Ctx, location string) error {
	return c.Redirect(location, fiber.StatusSeeOther)
}

// Paginated returns one page of a listing
func Paginated(c *fiber.Ctx, data interface{}, pagination PaginationMeta) error {
	return c.Status(fiber.StatusOK).JSON(PaginatedResponse{
		Success:    true,
		Data:       data,
		Pagination: pagination,
	})
}

// CalculatePagination clamps page and limit and derives the page count
func CalculatePagination(page, limit int, total int64) PaginationMeta {
	if page < 1 {
		page = 1
	}
	if limit < 1 {
		limit = 10
	}
	if limit > 100 {
		limit = 100
	}

	totalPages := int((total + int64(limit) - 1) / int64(limit))

	return PaginationMeta{
		CurrentPage: page,
		PerPage:     limit,
		Total:       total,
		TotalPages:  totalPages,
	}
}
