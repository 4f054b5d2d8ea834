package note

import (
	"errors"
	"strconv"

	"github.com/gofiber/fiber/v2"
	"github.com/sahilchouksey/course-marketplace-api/services"
	"github.com/sahilchouksey/course-marketplace-api/utils/middleware"
	"github.com/sahilchouksey/course-marketplace-api/utils/response"
	"github.com/sahilchouksey/course-marketplace-api/utils/validation"
	"go.uber.org/zap"
)

// NoteHandler handles the authenticated user's private notes
type NoteHandler struct {
	notes     *services.NoteService
	validator *validation.Validator
	log       *zap.Logger
}

// NewNoteHandler creates a new note handler
func NewNoteHandler(notes *services.NoteService, log *zap.Logger) *NoteHandler {
	return &NoteHandler{
		notes:     notes,
		validator: validation.NewValidator(),
		log:       log,
	}
}

// CreateNoteRequest represents the request body for creating a note
type CreateNoteRequest struct {
	CourseID uint   `json:"course_id" validate:"required,min=1"`
	Title    string `json:"title" validate:"required,min=1,max=255"`
	Body     string `json:"body" validate:"omitempty,max=20000"`
}

// UpdateNoteRequest represents the request body for editing a note
type UpdateNoteRequest struct {
	Title *string `json:"title" validate:"omitempty,min=1,max=255"`
	Body  *string `json:"body" validate:"omitempty,max=20000"`
}

func (h *NoteHandler) fail(c *fiber.Ctx, err error, action string) error {
	switch {
	case errors.Is(err, services.ErrCourseNotFound):
		return response.NotFound(c, "Course not found")
	case errors.Is(err, services.ErrNoteNotFound):
		return response.NotFound(c, "Note not found")
	case errors.Is(err, services.ErrNotEnrolled):
		return response.Forbidden(c, "Enroll in this course to keep notes")
	}
	h.log.Error("Note request failed", zap.String("action", action), zap.Error(err))
	return response.InternalServerError(c, "Failed to "+action)
}

// ListNotes handles GET /api/v1/notes?course_id=
func (h *NoteHandler) ListNotes(c *fiber.Ctx) error {
	userID, ok := middleware.GetUserID(c)
	if !ok {
		return response.Unauthorized(c, "Not authenticated")
	}

	var courseID uint
	if raw := c.Query("course_id"); raw != "" {
		id, err := strconv.ParseUint(raw, 10, 64)
		if err != nil {
			return response.BadRequest(c, "Invalid course ID")
		}
		courseID = uint(id)
	}

	notes, err := h.notes.List(c.UserContext(), userID, courseID)
	if err != nil {
		return h.fail(c, err, "fetch notes")
	}
	return response.Success(c, notes)
}

// CreateNote handles POST /api/v1/notes
func (h *NoteHandler) CreateNote(c *fiber.Ctx) error {
	userID, ok := middleware.GetUserID(c)
	if !ok {
		return response.Unauthorized(c, "Not authenticated")
	}

	var req CreateNoteRequest
	if err := c.BodyParser(&req); err != nil {
		return response.BadRequest(c, "Invalid request body")
	}
	if err := h.validator.ValidateStruct(req); err != nil {
		return response.BadRequest(c, validation.Summary(err))
	}

	note, err := h.notes.Create(c.UserContext(), userID, req.CourseID, req.Title, req.Body)
	if err != nil {
		return h.fail(c, err, "create note")
	}
	return response.Created(c, note)
}

// UpdateNote handles PUT /api/v1/notes/:id
func (h *NoteHandler) UpdateNote(c *fiber.Ctx) error {
	userID, ok := middleware.GetUserID(c)
	if !ok {
		return response.Unauthorized(c, "Not authenticated")
	}

	id, err := c.ParamsInt("id")
	if err != nil || id <= 0 {
		return response.BadRequest(c, "Invalid note ID")
	}

	var req UpdateNoteRequest
	if err := c.BodyParser(&req); err != nil {
		return response.BadRequest(c, "Invalid request body")
	}
	if err := h.validator.ValidateStruct(req); err != nil {
		return response.BadRequest(c, validation.Summary(err))
	}

	note, err := h.notes.Update(c.UserContext(), userID, uint(id), services.UpdateNoteInput{Title: req.Title, Body: req.Body})
	if err != nil {
		return h.fail(c, err, "update note")
	}
	return response.Success(c, note)
}

// DeleteNote handles DELETE /api/v1/notes/:id
func (h *NoteHandler) DeleteNote(c *fiber.Ctx) error {
	userID, ok := middleware.GetUserID(c)
	if !ok {
		return response.Unauthorized(c, "Not authenticated")
	}

	id, err := c.ParamsInt("id")
	if err != nil || id <= 0 {
		return response.BadRequest(c, "Invalid note ID")
	}

	if err := h.notes.Delete(c.UserContext(), userID, uint(id)); err != nil {
		return h.fail(c, err, "delete note")
	}
	return response.SuccessWithMessage(c, "Note deleted", nil)
}
