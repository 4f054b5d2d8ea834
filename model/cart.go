package model

import "time"

// CartItem is a course a user intends to buy in a single bundled checkout
type CartItem struct {
	UserID   uint      `gorm:"primaryKey;autoIncrement:false" json:"user_id"`
	CourseID uint      `gorm:"primaryKey;autoIncrement:false" json:"course_id"`
	AddedAt  time.Time `gorm:"autoCreateTime" json:"added_at"`

	User   User   `gorm:"foreignKey:UserID;constraint:OnDelete:CASCADE" json:"-"`
	Course Course `gorm:"foreignKey:CourseID;constraint:OnDelete:CASCADE" json:"course,omitempty"`
}

func (CartItem) TableName() string {
	return "cart_items"
}
