package services

import (
	"context"
	"errors"
	"fmt"

	"github.com/sahilchouksey/course-marketplace-api/model"
	"gorm.io/gorm"
)

// NoteService manages a user's private notes. A note belonging to someone
// else is reported as not found.
type NoteService struct {
	db          *gorm.DB
	enrollments *EnrollmentService
}

// NewNoteService creates a new note service
func NewNoteService(db *gorm.DB, enrollments *EnrollmentService) *NoteService {
	return &NoteService{db: db, enrollments: enrollments}
}

// UpdateNoteInput changes only the non-nil fields
type UpdateNoteInput struct {
	Title *string
	Body  *string
}

// List returns the user's notes, most recently edited first. A zero courseID lists all.
func (s *NoteService) List(ctx context.Context, userID, courseID uint) ([]model.Note, error) {
	query := s.db.WithContext(ctx).Where("user_id = ?", userID)
	if courseID != 0 {
		query = query.Where("course_id = ?", courseID)
	}

	notes := []model.Note{}
	if err := query.Order("updated_at DESC, id DESC").Find(&notes).Error; err != nil {
		return nil, fmt.Errorf("list notes: %w", err)
	}
	return notes, nil
}

// Create stores a note against a course the user can open
func (s *NoteService) Create(ctx context.Context, userID, courseID uint, title, body string) (*model.Note, error) {
	var course model.Course
	if err := s.db.WithContext(ctx).First(&course, courseID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrCourseNotFound
		}
		return nil, err
	}

	owned, err := s.enrollments.HasAccess(ctx, userID, course.ID)
	if err != nil {
		return nil, err
	}
	if !owned {
		return nil, ErrNotEnrolled
	}

	note := &model.Note{UserID: userID, CourseID: course.ID, Title: title, Body: body}
	if err := s.db.WithContext(ctx).Create(note).Error; err != nil {
		return nil, fmt.Errorf("create note: %w", err)
	}
	return note, nil
}

// Update edits one of the user's notes
func (s *NoteService) Update(ctx context.Context, userID, noteID uint, in UpdateNoteInput) (*model.Note, error) {
	note, err := s.owned(ctx, userID, noteID)
	if err != nil {
		return nil, err
	}

	updates := map[string]interface{}{}
	if in.Title != nil {
		updates["title"] = *in.Title
	}
	if in.Body != nil {
		updates["body"] = *in.Body
	}
	if len(updates) == 0 {
		return note, nil
	}

	if err := s.db.WithContext(ctx).Model(note).Updates(updates).Error; err != nil {
		return nil, fmt.Errorf("update note: %w", err)
	}
	return s.owned(ctx, userID, noteID)
}

// Delete removes one of the user's notes
func (s *NoteService) Delete(ctx context.Context, userID, noteID uint) error {
	res := s.db.WithContext(ctx).Where("id = ? AND user_id = ?", noteID, userID).Delete(&model.Note{})
	if res.Error != nil {
		return fmt.Errorf("delete note: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrNoteNotFound
	}
	return nil
}

func (s *NoteService) owned(ctx context.Context, userID, noteID uint) (*model.Note, error) {
	var note model.Note
	err := s.db.WithContext(ctx).Where("id = ? AND user_id = ?", noteID, userID).First(&note).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNoteNotFound
	}
	if err != nil {
		return nil, err
	}
	return &note, nil
}
