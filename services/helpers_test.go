package services

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"testing"

	"github.com/sahilchouksey/course-marketplace-api/database"
	"github.com/sahilchouksey/course-marketplace-api/model"
	"github.com/sahilchouksey/course-marketplace-api/services/events"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	name := strings.NewReplacer("/", "_", " ", "_").Replace(t.Name())
	store, err := database.OpenSQLite(fmt.Sprintf("file:%s?mode=memory&cache=shared", name), zap.NewNop())
	require.NoError(t, err)
	require.NoError(t, store.Init())
	t.Cleanup(func() { _ = store.Close() })

	return store.DB()
}

type fixture struct {
	db         *gorm.DB
	university model.University
	student    model.User
	other      model.User
	admin      model.User
	paid       model.Course // 999 discounted to 499
	bundle     model.Course // 299
	free       model.Course
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	db := newTestDB(t)

	f := &fixture{db: db}
	f.university = model.University{Name: "Test University", Code: "TU", IsActive: true}
	require.NoError(t, db.Create(&f.university).Error)

	f.student = model.User{Email: "student@example.com", Name: "Asha Verma", PasswordHash: "x", Role: model.RoleStudent, Phone: "9999999999"}
	f.other = model.User{Email: "other@example.com", Name: "Other", PasswordHash: "x", Role: model.RoleStudent}
	f.admin = model.User{Email: "admin@example.com", Name: "Admin", PasswordHash: "x", Role: model.RoleAdmin}
	require.NoError(t, db.Create(&f.student).Error)
	require.NoError(t, db.Create(&f.other).Error)
	require.NoError(t, db.Create(&f.admin).Error)

	f.paid = model.Course{
		UniversityID:    f.university.ID,
		Title:           "Data Structures",
		Slug:            "data-structures",
		IsPaid:          true,
		Price:           decimal.RequireFromString("999"),
		DiscountedPrice: decimal.RequireFromString("499"),
		IsPublished:     true,
	}
	f.bundle = model.Course{
		UniversityID: f.university.ID,
		Title:        "Operating Systems",
		Slug:         "operating-systems",
		IsPaid:       true,
		Price:        decimal.RequireFromString("299"),
		IsPublished:  true,
	}
	f.free = model.Course{
		UniversityID: f.university.ID,
		Title:        "Intro to Programming",
		Slug:         "intro-to-programming",
		IsPublished:  true,
	}
	require.NoError(t, db.Create(&f.paid).Error)
	require.NoError(t, db.Create(&f.bundle).Error)
	require.NoError(t, db.Create(&f.free).Error)

	return f
}

func (f *fixture) enrollmentCount(t *testing.T, courseID uint) int {
	t.Helper()
	var course model.Course
	require.NoError(t, f.db.First(&course, courseID).Error)
	return course.EnrollmentCount
}

func (f *fixture) payment(t *testing.T, txnID string) model.Payment {
	t.Helper()
	var p model.Payment
	require.NoError(t, f.db.Where("transaction_id = ?", txnID).First(&p).Error)
	return p
}

// recordingPublisher keeps every event it is handed
type recordingPublisher struct {
	mu     sync.Mutex
	events []events.PaymentEvent
}

func (r *recordingPublisher) PublishPayment(_ context.Context, e events.PaymentEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
	return nil
}

func (r *recordingPublisher) Close() error { return nil }

func (r *recordingPublisher) all() []events.PaymentEvent {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]events.PaymentEvent(nil), r.events...)
}

// recordingArchiver keeps the txnids it archived
type recordingArchiver struct {
	mu   sync.Mutex
	txns []string
}

func (r *recordingArchiver) Archive(_ context.Context, txnID string, _ map[string]interface{}) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.txns = append(r.txns, txnID)
	return "callbacks/" + txnID + ".json", nil
}
