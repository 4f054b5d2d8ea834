package services

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/sahilchouksey/course-marketplace-api/model"
	"github.com/sahilchouksey/course-marketplace-api/utils"
	"github.com/sahilchouksey/course-marketplace-api/utils/cache"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// CourseService reads the catalog through the cache and invalidates it on writes
type CourseService struct {
	db    *gorm.DB
	cache *cache.RedisCache
	log   *zap.Logger
}

// NewCourseService creates a new course service; redis may be nil
func NewCourseService(db *gorm.DB, redis *cache.RedisCache, log *zap.Logger) *CourseService {
	return &CourseService{db: db, cache: redis, log: log}
}

// CourseFilter selects a page of the catalog
type CourseFilter struct {
	Page               int
	Limit              int
	Search             string
	UniversityID       uint
	IncludeUnpublished bool
}

func (f *CourseFilter) normalize() {
	if f.Page < 1 {
		f.Page = 1
	}
	if f.Limit < 1 {
		f.Limit = 10
	}
	if f.Limit > 100 {
		f.Limit = 100
	}
	f.Search = strings.TrimSpace(f.Search)
}

// CoursePage is one page of courses plus the unpaginated total
type CoursePage struct {
	Items []model.Course `json:"items"`
	Total int64          `json:"total"`
}

// CreateCourseInput carries a validated create request
type CreateCourseInput struct {
	UniversityID    uint
	Title           string
	Description     string
	IsPaid          bool
	Price           decimal.Decimal
	DiscountedPrice decimal.Decimal
	AccessDays      int
	IsPublished     bool
}

// UpdateCourseInput changes only the non-nil fields
type UpdateCourseInput struct {
	UniversityID    *uint
	Title           *string
	Description     *string
	IsPaid          *bool
	Price           *decimal.Decimal
	DiscountedPrice *decimal.Decimal
	AccessDays      *int
	IsPublished     *bool
}

// List returns a filtered, paginated slice of the catalog
func (s *CourseService) List(ctx context.Context, f CourseFilter) (*CoursePage, error) {
	f.normalize()
	key := fmt.Sprintf("%s%d:%d:%d:%t:%s", cache.KeyCourseList, f.Page, f.Limit, f.UniversityID, f.IncludeUnpublished, strings.ToLower(f.Search))

	return cache.GetOrSet(ctx, s.cache, key, cache.DefaultTTL, func() (*CoursePage, error) {
		query := s.db.WithContext(ctx).Model(&model.Course{})

		if !f.IncludeUnpublished {
			query = query.Where("is_published = ?", true)
		}
		if f.Search != "" {
			like := "%" + strings.ToLower(f.Search) + "%"
			query = query.Where("LOWER(title) LIKE ? OR LOWER(description) LIKE ?", like, like)
		}
		if f.UniversityID != 0 {
			query = query.Where("university_id = ?", f.UniversityID)
		}

		page := &CoursePage{}
		if err := query.Count(&page.Total).Error; err != nil {
			return nil, fmt.Errorf("count courses: %w", err)
		}

		err := query.Preload("University").
			Order("created_at DESC").
			Limit(f.Limit).
			Offset((f.Page - 1) * f.Limit).
			Find(&page.Items).Error
		if err != nil {
			return nil, fmt.Errorf("list courses: %w", err)
		}
		return page, nil
	})
}

// Get loads a course by numeric id or by slug
func (s *CourseService) Get(ctx context.Context, idOrSlug string) (*model.Course, error) {
	key := cache.KeyCourse + idOrSlug
	return cache.GetOrSet(ctx, s.cache, key, cache.DefaultTTL, func() (*model.Course, error) {
		query := s.db.WithContext(ctx).Preload("University")
		if id, err := strconv.ParseUint(idOrSlug, 10, 64); err == nil {
			query = query.Where("id = ?", id)
		} else {
			query = query.Where("slug = ?", idOrSlug)
		}

		var course model.Course
		if err := query.First(&course).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return nil, ErrCourseNotFound
			}
			return nil, err
		}
		return &course, nil
	})
}

// Create validates pricing, assigns a unique slug and stores the course
func (s *CourseService) Create(ctx context.Context, in CreateCourseInput) (*model.Course, error) {
	if err := s.ensureUniversity(ctx, in.UniversityID); err != nil {
		return nil, err
	}

	course := model.Course{
		UniversityID:    in.UniversityID,
		Title:           strings.TrimSpace(in.Title),
		Description:     strings.TrimSpace(in.Description),
		IsPaid:          in.IsPaid,
		Price:           in.Price,
		DiscountedPrice: in.DiscountedPrice,
		AccessDays:      in.AccessDays,
		IsPublished:     in.IsPublished,
	}
	if err := normalizePricing(&course); err != nil {
		return nil, err
	}

	slug, err := s.uniqueSlug(ctx, course.Title, 0)
	if err != nil {
		return nil, err
	}
	course.Slug = slug

	if err := s.db.WithContext(ctx).Create(&course).Error; err != nil {
		return nil, fmt.Errorf("create course: %w", err)
	}

	s.invalidate(ctx, course.ID, course.Slug)
	return s.reload(ctx, course.ID)
}

// Update applies in to the course; a title change regenerates the slug
func (s *CourseService) Update(ctx context.Context, id uint, in UpdateCourseInput) (*model.Course, error) {
	var course model.Course
	if err := s.db.WithContext(ctx).First(&course, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrCourseNotFound
		}
		return nil, err
	}
	oldSlug := course.Slug

	if in.UniversityID != nil {
		if err := s.ensureUniversity(ctx, *in.UniversityID); err != nil {
			return nil, err
		}
		course.UniversityID = *in.UniversityID
	}
	if in.Title != nil && strings.TrimSpace(*in.Title) != course.Title {
		course.Title = strings.TrimSpace(*in.Title)
		slug, err := s.uniqueSlug(ctx, course.Title, course.ID)
		if err != nil {
			return nil, err
		}
		course.Slug = slug
	}
	if in.Description != nil {
		course.Description = strings.TrimSpace(*in.Description)
	}
	if in.IsPaid != nil {
		course.IsPaid = *in.IsPaid
	}
	if in.Price != nil {
		course.Price = *in.Price
	}
	if in.DiscountedPrice != nil {
		course.DiscountedPrice = *in.DiscountedPrice
	}
	if in.AccessDays != nil {
		course.AccessDays = *in.AccessDays
	}
	if in.IsPublished != nil {
		course.IsPublished = *in.IsPublished
	}

	if err := normalizePricing(&course); err != nil {
		return nil, err
	}

	// Omit the counter so a concurrent grant is never overwritten
	if err := s.db.WithContext(ctx).Omit("enrollment_count", "University").Save(&course).Error; err != nil {
		return nil, fmt.Errorf("update course: %w", err)
	}

	s.invalidate(ctx, course.ID, oldSlug, course.Slug)
	return s.reload(ctx, course.ID)
}

// Delete soft-deletes a course; existing entitlements stay in place
func (s *CourseService) Delete(ctx context.Context, id uint) error {
	var course model.Course
	if err := s.db.WithContext(ctx).First(&course, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrCourseNotFound
		}
		return err
	}

	if err := s.db.WithContext(ctx).Delete(&course).Error; err != nil {
		return fmt.Errorf("delete course: %w", err)
	}

	s.invalidate(ctx, course.ID, course.Slug)
	return nil
}

func (s *CourseService) reload(ctx context.Context, id uint) (*model.Course, error) {
	var course model.Course
	if err := s.db.WithContext(ctx).Preload("University").First(&course, id).Error; err != nil {
		return nil, err
	}
	return &course, nil
}

func (s *CourseService) ensureUniversity(ctx context.Context, id uint) error {
	var count int64
	if err := s.db.WithContext(ctx).Model(&model.University{}).Where("id = ?", id).Count(&count).Error; err != nil {
		return err
	}
	if count == 0 {
		return ErrUniversityNotFound
	}
	return nil
}

// uniqueSlug slugifies title and appends -2, -3, ... until no other course
// (soft-deleted ones included) holds it
func (s *CourseService) uniqueSlug(ctx context.Context, title string, excludeID uint) (string, error) {
	base := utils.Slugify(title)
	if base == "" {
		base = "course"
	}

	candidate := base
	for i := 2; ; i++ {
		var count int64
		err := s.db.WithContext(ctx).Unscoped().
			Model(&model.Course{}).
			Where("slug = ? AND id <> ?", candidate, excludeID).
			Count(&count).Error
		if err != nil {
			return "", err
		}
		if count == 0 {
			return candidate, nil
		}
		candidate = fmt.Sprintf("%s-%d", base, i)
	}
}

func (s *CourseService) invalidate(ctx context.Context, id uint, slugs ...string) {
	keys := []string{cache.KeyCourseList + "*", cache.KeyCourse + strconv.FormatUint(uint64(id), 10)}
	for _, slug := range slugs {
		keys = append(keys, cache.KeyCourse+slug)
	}
	if err := cache.Invalidate(ctx, s.cache, keys...); err != nil {
		s.log.Warn("Failed to invalidate course cache", zap.Uint("course_id", id), zap.Error(err))
	}
}

// normalizePricing zeroes the prices of free courses and rejects a paid
// course without a positive price or with a discount that is not below it
func normalizePricing(c *model.Course) error {
	if c.AccessDays < 0 {
		return ErrInvalidPrice
	}
	if !c.IsPaid {
		c.Price = decimal.Zero
		c.DiscountedPrice = decimal.Zero
		return nil
	}
	if !c.Price.IsPositive() || c.DiscountedPrice.IsNegative() {
		return ErrInvalidPrice
	}
	if !c.DiscountedPrice.IsZero() && !c.DiscountedPrice.LessThan(c.Price) {
		return ErrInvalidPrice
	}
	c.Price = c.Price.Round(2)
	c.DiscountedPrice = c.DiscountedPrice.Round(2)
	return nil
}
