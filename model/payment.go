package model

import (
	"errors"
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// PaymentStatus is the lifecycle state of a gateway transaction
type PaymentStatus string

const (
	PaymentStatusPending PaymentStatus = "pending"
	PaymentStatusSuccess PaymentStatus = "success"
	PaymentStatusFailed  PaymentStatus = "failed"
)

var ErrPaymentSubject = errors.New("payment must reference exactly one of a course or a cart")

// Payment is the local record of one checkout attempt.
// A pending payment transitions once to success or failed and never back.
type Payment struct {
	ID               uint                      `gorm:"primaryKey" json:"id"`
	TransactionID    string                    `gorm:"type:varchar(64);uniqueIndex;not null" json:"txnid"`
	UserID           uint                      `gorm:"not null;index" json:"user_id"`
	CourseID         *uint                     `gorm:"index" json:"course_id,omitempty"`
	IsCart           bool                      `gorm:"default:false" json:"is_cart"`
	CartCourseIDs    datatypes.JSONSlice[uint] `gorm:"type:json" json:"cart_course_ids,omitempty"`
	Amount           decimal.Decimal           `gorm:"type:numeric(12,2);not null" json:"amount"`
	Currency         string                    `gorm:"type:varchar(10);default:'INR'" json:"currency"`
	ProductInfo      string                    `gorm:"type:varchar(255)" json:"productinfo"`
	Status           PaymentStatus             `gorm:"type:varchar(20);default:'pending';index" json:"status"`
	GatewayStatus    string                    `gorm:"type:varchar(50)" json:"gateway_status,omitempty"`
	GatewayPaymentID string                    `gorm:"type:varchar(100)" json:"mihpayid,omitempty"`
	BankRefNum       string                    `gorm:"type:varchar(100)" json:"bank_ref_num,omitempty"`
	PaymentMode      string                    `gorm:"type:varchar(50)" json:"payment_mode,omitempty"`
	FailureReason    string                    `gorm:"type:text" json:"failure_reason,omitempty"`
	GatewayPayload   datatypes.JSONMap         `gorm:"type:json" json:"-"`
	CompletedAt      *time.Time                `json:"completed_at,omitempty"`
	CreatedAt        time.Time                 `json:"created_at"`
	UpdatedAt        time.Time                 `json:"updated_at"`

	// Relationships
	User   User    `gorm:"foreignKey:UserID;constraint:OnDelete:CASCADE" json:"user,omitempty"`
	Course *Course `gorm:"foreignKey:CourseID;constraint:OnDelete:SET NULL" json:"course,omitempty"`
}

func (Payment) TableName() string {
	return "payments"
}

// BeforeCreate enforces that a payment targets either one course or a cart
func (p *Payment) BeforeCreate(tx *gorm.DB) error {
	hasCourse := p.CourseID != nil
	hasCart := len(p.CartCourseIDs) > 0
	if hasCourse == hasCart || hasCart != p.IsCart {
		return ErrPaymentSubject
	}
	return nil
}

// IsTerminal reports whether the payment has left the pending state
func (p *Payment) IsTerminal() bool {
	return p.Status == PaymentStatusSuccess || p.Status == PaymentStatusFailed
}

// CourseIDs lists every course the payment pays for
func (p *Payment) CourseIDs() []uint {
	if p.IsCart {
		return append([]uint(nil), p.CartCourseIDs...)
	}
	if p.CourseID != nil {
		return []uint{*p.CourseID}
	}
	return nil
}
