package admin

import (
	"github.com/sahilchouksey/course-marketplace-api/services"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// AdminHandler serves the /admin routes. Every route sits behind RequireAdmin.
type AdminHandler struct {
	db       *gorm.DB
	payments *services.PaymentService
	log      *zap.Logger
}

// NewAdminHandler creates a new admin handler
func NewAdminHandler(db *gorm.DB, payments *services.PaymentService, log *zap.Logger) *AdminHandler {
	return &AdminHandler{db: db, payments: payments, log: log}
}

func pageParams(page, limit int) (int, int) {
	if page < 1 {
		page = 1
	}
	if limit < 1 || limit > 100 {
		limit = 20
	}
	return page, limit
}
