package model

import (
	"time"

	"gorm.io/gorm"
)

const (
	RoleStudent = "student"
	RoleAdmin   = "admin"
)

// User represents a registered user in the system
type User struct {
	ID           uint           `gorm:"primaryKey" json:"id"`
	CreatedAt    time.Time      `json:"created_at"`
	UpdatedAt    time.Time      `json:"updated_at"`
	DeletedAt    gorm.DeletedAt `gorm:"index" json:"deleted_at,omitempty"`
	Email        string         `gorm:"uniqueIndex;not null" json:"email"`
	PasswordHash string         `gorm:"not null" json:"-"` // Never expose password in JSON
	Name         string         `gorm:"not null" json:"name"`
	Phone        string         `gorm:"type:varchar(20)" json:"phone"`
	Role         string         `gorm:"type:varchar(20);default:'student'" json:"role"` // student, admin
	TokenVersion int            `gorm:"default:0" json:"-"`                             // Increment to invalidate all user tokens

	// Relationships
	Enrollments    []Enrollment        `gorm:"foreignKey:UserID;constraint:OnDelete:CASCADE" json:"enrollments,omitempty"`
	CartItems      []CartItem          `gorm:"foreignKey:UserID;constraint:OnDelete:CASCADE" json:"-"`
	Payments       []Payment           `gorm:"foreignKey:UserID;constraint:OnDelete:CASCADE" json:"-"`
	AdminAuditLog  []AdminAuditLog     `gorm:"foreignKey:AdminID;constraint:OnDelete:CASCADE" json:"-"`
	TokenBlacklist []JWTTokenBlacklist `gorm:"foreignKey:UserID;constraint:OnDelete:CASCADE" json:"-"`
}

// IsAdmin reports whether the user may act on other users' records
func (u *User) IsAdmin() bool {
	return u.Role == RoleAdmin || u.Role == "super_admin"
}

// Enrollment is the entitlement that lets a user open a course.
// The composite primary key guarantees at most one row per (user, course).
type Enrollment struct {
	UserID     uint       `gorm:"primaryKey;autoIncrement:false" json:"user_id"`
	CourseID   uint       `gorm:"primaryKey;autoIncrement:false" json:"course_id"`
	PaymentID  *uint      `gorm:"index" json:"payment_id,omitempty"` // nil for free enrolment
	AcquiredAt time.Time  `gorm:"not null" json:"acquired_at"`
	ExpiresAt  *time.Time `json:"expires_at,omitempty"` // nil means lifetime access

	// Relationships
	User   User   `gorm:"foreignKey:UserID;constraint:OnDelete:CASCADE" json:"-"`
	Course Course `gorm:"foreignKey:CourseID;constraint:OnDelete:CASCADE" json:"course,omitempty"`
}

// Active reports whether the entitlement still grants access at t
func (e *Enrollment) Active(t time.Time) bool {
	return e.ExpiresAt == nil || e.ExpiresAt.After(t)
}
