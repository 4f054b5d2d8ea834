package university

import (
	"errors"
	"fmt"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/sahilchouksey/course-marketplace-api/model"
	"github.com/sahilchouksey/course-marketplace-api/utils/cache"
	"github.com/sahilchouksey/course-marketplace-api/utils/response"
	"github.com/sahilchouksey/course-marketplace-api/utils/validation"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// UniversityHandler handles university-related requests
type UniversityHandler struct {
	db        *gorm.DB
	cache     *cache.RedisCache
	validator *validation.Validator
	log       *zap.Logger
}

// NewUniversityHandler creates a new university handler; redis may be nil
func NewUniversityHandler(db *gorm.DB, redis *cache.RedisCache, log *zap.Logger) *UniversityHandler {
	return &UniversityHandler{
		db:        db,
		cache:     redis,
		validator: validation.NewValidator(),
		log:       log,
	}
}

// CreateUniversityRequest represents the request body for creating a university
type CreateUniversityRequest struct {
	Name     string `json:"name" validate:"required,min=3,max=255"`
	Code     string `json:"code" validate:"required,min=2,max=50"`
	Location string `json:"location" validate:"omitempty,max=255"`
	Website  string `json:"website" validate:"omitempty,url,max=255"`
}

// UpdateUniversityRequest represents the request body for updating a university
type UpdateUniversityRequest struct {
	Name     string `json:"name" validate:"omitempty,min=3,max=255"`
	Code     string `json:"code" validate:"omitempty,min=2,max=50"`
	Location string `json:"location" validate:"omitempty,max=255"`
	Website  string `json:"website" validate:"omitempty,url,max=255"`
	IsActive *bool  `json:"is_active" validate:"omitempty"`
}

type universityPage struct {
	Items []model.University `json:"items"`
	Total int64              `json:"total"`
}

// ListUniversities handles GET /api/v1/universities
func (h *UniversityHandler) ListUniversities(c *fiber.Ctx) error {
	page := c.QueryInt("page", 1)
	limit := c.QueryInt("limit", 10)
	if page < 1 {
		page = 1
	}
	if limit < 1 || limit > 100 {
		limit = 10
	}
	search := strings.ToLower(strings.TrimSpace(c.Query("search")))
	ctx := c.UserContext()

	key := fmt.Sprintf("%s%d:%d:%s", cache.KeyUniversities, page, limit, search)
	result, err := cache.GetOrSet(ctx, h.cache, key, cache.DefaultTTL, func() (*universityPage, error) {
		query := h.db.WithContext(ctx).Model(&model.University{}).Where("is_active = ?", true)
		if search != "" {
			like := "%" + search + "%"
			query = query.Where("LOWER(name) LIKE ? OR LOWER(code) LIKE ? OR LOWER(location) LIKE ?", like, like, like)
		}

		p := &universityPage{}
		if err := query.Count(&p.Total).Error; err != nil {
			return nil, err
		}
		err := query.Order("name ASC").Limit(limit).Offset((page - 1) * limit).Find(&p.Items).Error
		return p, err
	})
	if err != nil {
		h.log.Error("Failed to list universities", zap.Error(err))
		return response.InternalServerError(c, "Failed to fetch universities")
	}

	return response.Paginated(c, result.Items, response.CalculatePagination(page, limit, result.Total))
}

// GetUniversity handles GET /api/v1/universities/:id
func (h *UniversityHandler) GetUniversity(c *fiber.Ctx) error {
	id, err := c.ParamsInt("id")
	if err != nil || id <= 0 {
		return response.BadRequest(c, "Invalid university ID")
	}

	var university model.University
	err = h.db.WithContext(c.UserContext()).
		Preload("Courses", "is_published = ?", true).
		First(&university, id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return response.NotFound(c, "University not found")
		}
		return response.InternalServerError(c, "Failed to fetch university")
	}

	return response.Success(c, university)
}

// CreateUniversity handles POST /api/v1/universities
func (h *UniversityHandler) CreateUniversity(c *fiber.Ctx) error {
	var req CreateUniversityRequest
	if err := c.BodyParser(&req); err != nil {
		return response.BadRequest(c, "Invalid request body")
	}

	if err := h.validator.ValidateStruct(req); err != nil {
		return response.ValidationError(c, err)
	}

	university := model.University{
		Name:     validation.SanitizeString(req.Name),
		Code:     strings.ToUpper(validation.SanitizeString(req.Code)),
		Location: validation.SanitizeString(req.Location),
		Website:  validation.SanitizeString(req.Website),
		IsActive: true,
	}

	var count int64
	h.db.WithContext(c.UserContext()).Model(&model.University{}).
		Where("code = ? OR name = ?", university.Code, university.Name).
		Count(&count)
	if count > 0 {
		return response.Conflict(c, "University with this name or code already exists")
	}

	if err := h.db.WithContext(c.UserContext()).Create(&university).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return response.Conflict(c, "University with this name or code already exists")
		}
		h.log.Error("Failed to create university", zap.Error(err))
		return response.InternalServerError(c, "Failed to create university")
	}

	h.invalidate(c)
	return response.Created(c, university)
}

// UpdateUniversity handles PUT /api/v1/universities/:id
func (h *UniversityHandler) UpdateUniversity(c *fiber.Ctx) error {
	id, err := c.ParamsInt("id")
	if err != nil || id <= 0 {
		return response.BadRequest(c, "Invalid university ID")
	}

	var req UpdateUniversityRequest
	if err := c.BodyParser(&req); err != nil {
		return response.BadRequest(c, "Invalid request body")
	}

	if err := h.validator.ValidateStruct(req); err != nil {
		return response.ValidationError(c, err)
	}

	db := h.db.WithContext(c.UserContext())

	var university model.University
	if err := db.First(&university, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return response.NotFound(c, "University not found")
		}
		return response.InternalServerError(c, "Failed to fetch university")
	}

	if req.Name != "" {
		university.Name = validation.SanitizeString(req.Name)
	}
	if req.Code != "" {
		code := strings.ToUpper(validation.SanitizeString(req.Code))
		var count int64
		db.Model(&model.University{}).Where("code = ? AND id <> ?", code, id).Count(&count)
		if count > 0 {
			return response.Conflict(c, "University with this code already exists")
		}
		university.Code = code
	}
	if req.Location != "" {
		university.Location = validation.SanitizeString(req.Location)
	}
	if req.Website != "" {
		university.Website = validation.SanitizeString(req.Website)
	}
	if req.IsActive != nil {
		university.IsActive = *req.IsActive
	}

	if err := db.Save(&university).Error; err != nil {
		h.log.Error("Failed to update university", zap.Int("university_id", id), zap.Error(err))
		return response.InternalServerError(c, "Failed to update university")
	}

	h.invalidate(c)
	return response.SuccessWithMessage(c, "University updated successfully", university)
}

// DeleteUniversity handles DELETE /api/v1/universities/:id.
// Courses are soft-deleted with it; existing enrollments and payments stay.
func (h *UniversityHandler) DeleteUniversity(c *fiber.Ctx) error {
	id, err := c.ParamsInt("id")
	if err != nil || id <= 0 {
		return response.BadRequest(c, "Invalid university ID")
	}

	err = h.db.WithContext(c.UserContext()).Transaction(func(tx *gorm.DB) error {
		var university model.University
		if err := tx.First(&university, id).Error; err != nil {
			return err
		}
		if err := tx.Where("university_id = ?", university.ID).Delete(&model.Course{}).Error; err != nil {
			return err
		}
		return tx.Delete(&university).Error
	})
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return response.NotFound(c, "University not found")
		}
		h.log.Error("Failed to delete university", zap.Int("university_id", id), zap.Error(err))
		return response.InternalServerError(c, "Failed to delete university")
	}

	h.invalidate(c)
	return response.SuccessWithMessage(c, "University deleted successfully", nil)
}

// University rows are embedded in cached course pages, so both lists go
func (h *UniversityHandler) invalidate(c *fiber.Ctx) {
	if err := cache.Invalidate(c.UserContext(), h.cache, cache.KeyUniversities+"*", cache.KeyCourseList+"*", cache.KeyCourse+"*"); err != nil {
		h.log.Warn("Failed to invalidate university cache", zap.Error(err))
	}
}
