package services

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/sahilchouksey/course-marketplace-api/model"
	"github.com/sahilchouksey/course-marketplace-api/utils/cache"
	"github.com/sahilchouksey/course-marketplace-api/utils/metrics"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// errAlreadyGranted rolls back a grant whose entitlement already exists
var errAlreadyGranted = errors.New("entitlement already granted")

// EnrollmentService owns entitlements. It is the only writer of enrollments
// and of courses.enrollment_count.
type EnrollmentService struct {
	db      *gorm.DB
	cache   *cache.RedisCache
	metrics *metrics.Metrics
	log     *zap.Logger
	now     func() time.Time
}

// NewEnrollmentService creates a new enrollment service; redis and m may be nil
func NewEnrollmentService(db *gorm.DB, redis *cache.RedisCache, m *metrics.Metrics, log *zap.Logger) *EnrollmentService {
	return &EnrollmentService{
		db:      db,
		cache:   redis,
		metrics: m,
		log:     log,
		now:     time.Now,
	}
}

// GrantResult summarises a GrantAll call
type GrantResult struct {
	Granted []uint `json:"granted"`
	Skipped []uint `json:"skipped"`
	Missing []uint `json:"missing,omitempty"`
}

// Grant gives userID access to courseID. The entitlement insert and the
// counter increment commit together. An expired entitlement is renewed and
// reported as granted; an active one returns false.
func (s *EnrollmentService) Grant(ctx context.Context, userID, courseID uint, paymentID *uint) (bool, error) {
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var course model.Course
		if err := tx.First(&course, courseID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrCourseNotFound
			}
			return err
		}

		now := s.now()
		enrollment := model.Enrollment{
			UserID:     userID,
			CourseID:   courseID,
			PaymentID:  paymentID,
			AcquiredAt: now,
			ExpiresAt:  course.AccessExpiry(now),
		}

		// The (user_id, course_id) primary key decides who wins a racing grant
		res := tx.Clauses(clause.OnConflict{DoNothing: true}).Create(&enrollment)
		if res.Error != nil {
			if errors.Is(res.Error, gorm.ErrDuplicatedKey) {
				return errAlreadyGranted
			}
			return res.Error
		}
		if res.RowsAffected == 0 {
			// An expired entitlement is renewed in place; the row already counts
			renewed := tx.Model(&model.Enrollment{}).
				Where("user_id = ? AND course_id = ?", userID, courseID).
				Where("expires_at IS NOT NULL AND expires_at <= ?", now).
				Updates(map[string]interface{}{
					"payment_id":  paymentID,
					"acquired_at": now,
					"expires_at":  enrollment.ExpiresAt,
				})
			if renewed.Error != nil {
				return renewed.Error
			}
			if renewed.RowsAffected == 0 {
				return errAlreadyGranted
			}
			return nil
		}

		return tx.Model(&model.Course{}).
			Where("id = ?", courseID).
			UpdateColumn("enrollment_count", gorm.Expr("enrollment_count + ?", 1)).
			Error
	})

	switch {
	case errors.Is(err, errAlreadyGranted):
		if s.metrics != nil {
			s.metrics.EntitlementsSkipped.Inc()
		}
		return false, nil
	case err != nil:
		return false, err
	}

	if s.metrics != nil {
		s.metrics.EntitlementsGranted.Inc()
	}
	if err := cache.Invalidate(ctx, s.cache,
		cache.KeyCourse+strconv.FormatUint(uint64(courseID), 10),
		cache.KeyCourseList+"*",
		cache.KeyUserCourses+strconv.FormatUint(uint64(userID), 10),
	); err != nil {
		s.log.Warn("Failed to invalidate caches after grant", zap.Error(err))
	}

	s.log.Info("Granted course access",
		zap.Uint("user_id", userID),
		zap.Uint("course_id", courseID),
		zap.Uintp("payment_id", paymentID),
	)
	return true, nil
}

// GrantAll grants every course in courseIDs. A course that no longer exists is
// reported in Missing; any other failure stops the loop.
func (s *EnrollmentService) GrantAll(ctx context.Context, userID uint, courseIDs []uint, paymentID *uint) (*GrantResult, error) {
	result := &GrantResult{}
	for _, courseID := range courseIDs {
		granted, err := s.Grant(ctx, userID, courseID, paymentID)
		if errors.Is(err, ErrCourseNotFound) {
			s.log.Error("Paid course no longer exists",
				zap.Uint("user_id", userID),
				zap.Uint("course_id", courseID),
				zap.Uintp("payment_id", paymentID),
			)
			result.Missing = append(result.Missing, courseID)
			continue
		}
		if err != nil {
			return result, fmt.Errorf("grant course %d: %w", courseID, err)
		}
		if granted {
			result.Granted = append(result.Granted, courseID)
		} else {
			result.Skipped = append(result.Skipped, courseID)
		}
	}
	return result, nil
}

// HasAccess reports whether userID holds an unexpired entitlement to courseID
func (s *EnrollmentService) HasAccess(ctx context.Context, userID, courseID uint) (bool, error) {
	var enrollment model.Enrollment
	err := s.db.WithContext(ctx).
		Where("user_id = ? AND course_id = ?", userID, courseID).
		First(&enrollment).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return enrollment.Active(s.now()), nil
}

// ListForUser returns the user's entitlements, newest first
func (s *EnrollmentService) ListForUser(ctx context.Context, userID uint) ([]model.Enrollment, error) {
	key := cache.KeyUserCourses + strconv.FormatUint(uint64(userID), 10)
	return cache.GetOrSet(ctx, s.cache, key, cache.DefaultTTL, func() ([]model.Enrollment, error) {
		var enrollments []model.Enrollment
		err := s.db.WithContext(ctx).
			Preload("Course").
			Preload("Course.University").
			Where("user_id = ?", userID).
			Order("acquired_at DESC").
			Find(&enrollments).Error
		return enrollments, err
	})
}
