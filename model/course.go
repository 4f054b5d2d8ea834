package model

import (
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// Course represents a sellable course in the catalog
type Course struct {
	ID              uint            `gorm:"primaryKey" json:"id"`
	CreatedAt       time.Time       `json:"created_at"`
	UpdatedAt       time.Time       `json:"updated_at"`
	DeletedAt       gorm.DeletedAt  `gorm:"index" json:"-"`
	UniversityID    uint            `gorm:"not null;index" json:"university_id"`
	Title           string          `gorm:"not null" json:"title"`
	Slug            string          `gorm:"uniqueIndex;not null" json:"slug"`
	Description     string          `gorm:"type:text" json:"description"`
	IsPaid          bool            `gorm:"not null" json:"is_paid"`
	Price           decimal.Decimal `gorm:"type:numeric(12,2);not null;default:0" json:"price"`
	DiscountedPrice decimal.Decimal `gorm:"type:numeric(12,2);not null;default:0" json:"discounted_price"`
	AccessDays      int             `gorm:"default:0" json:"access_days"` // 0 means lifetime access
	EnrollmentCount int             `gorm:"default:0" json:"enrollment_count"`
	IsPublished     bool            `gorm:"not null" json:"is_published"`

	// Relationships
	University  University   `gorm:"foreignKey:UniversityID;constraint:OnDelete:CASCADE" json:"university,omitempty"`
	Enrollments []Enrollment `gorm:"foreignKey:CourseID;constraint:OnDelete:CASCADE" json:"-"`
}

// EffectivePrice is the price a buyer is charged for this course
func (c *Course) EffectivePrice() decimal.Decimal {
	if c.DiscountedPrice.IsPositive() && c.DiscountedPrice.LessThan(c.Price) {
		return c.DiscountedPrice
	}
	return c.Price
}

// Purchasable reports whether the course must be bought through the gateway
func (c *Course) Purchasable() bool {
	return c.IsPaid && c.EffectivePrice().IsPositive()
}

// AccessExpiry returns when an entitlement acquired at t should end
func (c *Course) AccessExpiry(t time.Time) *time.Time {
	if c.AccessDays <= 0 {
		return nil
	}
	expires := t.AddDate(0, 0, c.AccessDays)
	return &expires
}
