package services

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/sahilchouksey/course-marketplace-api/model"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// CommentService manages course discussion threads
type CommentService struct {
	db          *gorm.DB
	enrollments *EnrollmentService
	log         *zap.Logger
}

// NewCommentService creates a new comment service
func NewCommentService(db *gorm.DB, enrollments *EnrollmentService, log *zap.Logger) *CommentService {
	return &CommentService{db: db, enrollments: enrollments, log: log}
}

// CommentPage is one page of a course thread plus the unpaginated total
type CommentPage struct {
	Items []model.Comment `json:"items"`
	Total int64           `json:"total"`
}

// ListForCourse returns a published course's comments, oldest first
func (s *CommentService) ListForCourse(ctx context.Context, courseID uint, page, limit int) (*CommentPage, error) {
	if _, err := s.publishedCourse(ctx, courseID); err != nil {
		return nil, err
	}
	if page < 1 {
		page = 1
	}
	if limit < 1 {
		limit = 20
	}
	if limit > 100 {
		limit = 100
	}

	query := s.db.WithContext(ctx).Model(&model.Comment{}).Where("course_id = ?", courseID)

	result := &CommentPage{}
	if err := query.Count(&result.Total).Error; err != nil {
		return nil, fmt.Errorf("count comments: %w", err)
	}
	err := query.Preload("User").
		Order("created_at ASC, id ASC").
		Limit(limit).
		Offset((page - 1) * limit).
		Find(&result.Items).Error
	if err != nil {
		return nil, fmt.Errorf("list comments: %w", err)
	}
	return result, nil
}

// Create posts a comment. Only learners with access, and admins, may post.
func (s *CommentService) Create(ctx context.Context, author *model.User, courseID uint, body string) (*model.Comment, error) {
	course, err := s.publishedCourse(ctx, courseID)
	if err != nil {
		return nil, err
	}

	if !author.IsAdmin() {
		owned, err := s.enrollments.HasAccess(ctx, author.ID, course.ID)
		if err != nil {
			return nil, err
		}
		if !owned {
			return nil, ErrNotEnrolled
		}
	}

	comment := &model.Comment{
		CourseID:   course.ID,
		UserID:     author.ID,
		Body:       strings.TrimSpace(body),
		AuthorName: author.Name,
	}
	if err := s.db.WithContext(ctx).Create(comment).Error; err != nil {
		return nil, fmt.Errorf("create comment: %w", err)
	}
	return comment, nil
}

// Delete removes a comment; authors remove their own, admins remove any
func (s *CommentService) Delete(ctx context.Context, requester *model.User, commentID uint) error {
	var comment model.Comment
	if err := s.db.WithContext(ctx).First(&comment, commentID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrCommentNotFound
		}
		return err
	}
	if comment.UserID != requester.ID && !requester.IsAdmin() {
		return ErrCommentForbidden
	}

	if err := s.db.WithContext(ctx).Delete(&comment).Error; err != nil {
		return fmt.Errorf("delete comment: %w", err)
	}
	if comment.UserID != requester.ID {
		s.log.Info("Admin removed comment",
			zap.Uint("comment_id", comment.ID),
			zap.Uint("author_id", comment.UserID),
			zap.Uint("admin_id", requester.ID),
		)
	}
	return nil
}

func (s *CommentService) publishedCourse(ctx context.Context, courseID uint) (*model.Course, error) {
	var course model.Course
	err := s.db.WithContext(ctx).Where("id = ? AND is_published = ?", courseID, true).First(&course).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrCourseNotFound
	}
	if err != nil {
		return nil, err
	}
	return &course, nil
}
