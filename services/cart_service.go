package services

import (
	"context"
	"errors"

	"github.com/sahilchouksey/course-marketplace-api/model"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// CartService manages the courses a user plans to buy together
type CartService struct {
	db          *gorm.DB
	enrollments *EnrollmentService
}

// NewCartService creates a new cart service
func NewCartService(db *gorm.DB, enrollments *EnrollmentService) *CartService {
	return &CartService{db: db, enrollments: enrollments}
}

// Cart is the user's cart with the catalog total at current prices
type Cart struct {
	Items []model.CartItem `json:"items"`
	Total decimal.Decimal  `json:"total"`
}

// Get returns the cart with each course preloaded
func (s *CartService) Get(ctx context.Context, userID uint) (*Cart, error) {
	items, err := s.Items(ctx, userID)
	if err != nil {
		return nil, err
	}

	total := decimal.Zero
	for _, item := range items {
		total = total.Add(item.Course.EffectivePrice())
	}
	return &Cart{Items: items, Total: total}, nil
}

// Items lists cart entries, oldest first
func (s *CartService) Items(ctx context.Context, userID uint) ([]model.CartItem, error) {
	var items []model.CartItem
	err := s.db.WithContext(ctx).
		Preload("Course").
		Where("user_id = ?", userID).
		Order("added_at ASC").
		Find(&items).Error
	return items, err
}

// Add puts a paid course the user does not own yet into the cart
func (s *CartService) Add(ctx context.Context, userID, courseID uint) (*model.CartItem, error) {
	var course model.Course
	if err := s.db.WithContext(ctx).First(&course, courseID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrCourseNotFound
		}
		return nil, err
	}

	if !course.Purchasable() {
		return nil, ErrCourseNotPurchasable
	}

	owned, err := s.enrollments.HasAccess(ctx, userID, courseID)
	if err != nil {
		return nil, err
	}
	if owned {
		return nil, ErrAlreadyEnrolled
	}

	item := model.CartItem{UserID: userID, CourseID: courseID}
	res := s.db.WithContext(ctx).Clauses(clause.OnConflict{DoNothing: true}).Create(&item)
	if res.Error != nil {
		return nil, res.Error
	}
	if res.RowsAffected == 0 {
		return nil, ErrAlreadyInCart
	}

	item.Course = course
	return &item, nil
}

// Remove takes one course out of the cart
func (s *CartService) Remove(ctx context.Context, userID, courseID uint) error {
	res := s.db.WithContext(ctx).
		Where("user_id = ? AND course_id = ?", userID, courseID).
		Delete(&model.CartItem{})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrCartItemNotFound
	}
	return nil
}

// Clear empties the cart and returns how many items were removed
func (s *CartService) Clear(ctx context.Context, userID uint) (int64, error) {
	res := s.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Delete(&model.CartItem{})
	return res.RowsAffected, res.Error
}
