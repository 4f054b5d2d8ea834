package model

import (
	"time"

	"gorm.io/gorm"
)

// Comment is a discussion post on a course by one of its learners
type Comment struct {
	ID        uint           `gorm:"primaryKey" json:"id"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"-"`
	CourseID  uint           `gorm:"not null;index" json:"course_id"`
	UserID    uint           `gorm:"not null;index" json:"user_id"`
	Body      string         `gorm:"type:text;not null" json:"body"`

	// Only the author's name is public
	AuthorName string `gorm:"-" json:"author_name"`

	// Relationships
	Course Course `gorm:"foreignKey:CourseID;constraint:OnDelete:CASCADE" json:"-"`
	User   User   `gorm:"foreignKey:UserID;constraint:OnDelete:CASCADE" json:"-"`
}

// AfterFind copies the preloaded author's name
func (c *Comment) AfterFind(*gorm.DB) error {
	c.AuthorName = c.User.Name
	return nil
}
