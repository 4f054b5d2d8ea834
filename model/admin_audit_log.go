package model

import (
	"time"

	"gorm.io/datatypes"
)

// AdminAuditLog is the audit trail for catalog and payment changes made by admins
type AdminAuditLog struct {
	ID          uint           `gorm:"primaryKey" json:"id"`
	AdminID     uint           `gorm:"not null;index" json:"admin_id"`
	Action      string         `gorm:"type:varchar(100);not null" json:"action"` // e.g., "course_update", "university_create"
	Resource    string         `gorm:"type:varchar(100)" json:"resource"`        // e.g., "courses", "universities"
	ResourceID  uint           `json:"resource_id"`
	OldValue    datatypes.JSON `gorm:"type:json" json:"old_value"`
	NewValue    datatypes.JSON `gorm:"type:json" json:"new_value"`
	StatusCode  int            `json:"status_code"`
	IPAddress   string         `gorm:"type:varchar(45)" json:"ip_address"`
	UserAgent   string         `gorm:"type:text" json:"user_agent"`
	Description string         `gorm:"type:text" json:"description"`
	CreatedAt   time.Time      `json:"created_at"`

	// Relationships
	Admin User `gorm:"foreignKey:AdminID;constraint:OnDelete:CASCADE" json:"admin,omitempty"`
}

func (AdminAuditLog) TableName() string {
	return "admin_audit_logs"
}
