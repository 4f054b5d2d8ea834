package admin

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/sahilchouksey/course-marketplace-api/database"
	"github.com/sahilchouksey/course-marketplace-api/model"
	"github.com/sahilchouksey/course-marketplace-api/services"
	"github.com/sahilchouksey/course-marketplace-api/services/mocks"
	"github.com/sahilchouksey/course-marketplace-api/services/payu"
	"github.com/sahilchouksey/course-marketplace-api/utils/middleware"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type adminEnv struct {
	app     *fiber.App
	db      *gorm.DB
	admin   model.User
	student model.User
}

func newAdminEnv(t *testing.T) *adminEnv {
	t.Helper()

	name := strings.NewReplacer("/", "_", " ", "_").Replace(t.Name())
	store, err := database.OpenSQLite(fmt.Sprintf("file:%s?mode=memory&cache=shared", name), zap.NewNop())
	require.NoError(t, err)
	require.NoError(t, store.Init())
	t.Cleanup(func() { _ = store.Close() })
	db := store.DB()

	env := &adminEnv{db: db}
	env.admin = model.User{Email: "admin@example.com", Name: "Admin", PasswordHash: "x", Role: model.RoleAdmin}
	env.student = model.User{Email: "student@example.com", Name: "Student", PasswordHash: "x", Role: model.RoleStudent}
	require.NoError(t, db.Create(&env.admin).Error)
	require.NoError(t, db.Create(&env.student).Error)

	enrollments := services.NewEnrollmentService(db, nil, nil, zap.NewNop())
	carts := services.NewCartService(db, enrollments)
	cfg := payu.NewConfig("key", "salt", "test", "", "", "", 0)
	payments := services.NewPaymentService(db, cfg, "http://api.test", &mocks.Gateway{}, enrollments, carts)
	h := NewAdminHandler(db, payments, zap.NewNop())

	asAdmin := func(c *fiber.Ctx) error {
		c.Locals(middleware.LocalUserID, env.admin.ID)
		c.Locals(middleware.LocalUser, &env.admin)
		return c.Next()
	}

	app := fiber.New()
	admin := app.Group("/api/v1/admin", asAdmin)
	admin.Get("/payments", h.ListPayments)
	admin.Get("/payments/stats", h.GetPaymentStats)
	admin.Get("/audit-logs", h.ListAuditLogs)
	admin.Get("/audit-logs/:id", h.GetAuditLog)
	admin.Get("/users", h.ListUsers)
	admin.Get("/users/:id", h.GetUser)
	admin.Put("/users/:id", h.UpdateUser)
	env.app = app
	return env
}

func (e *adminEnv) seedPayments(t *testing.T) {
	t.Helper()
	uni := model.University{Name: "Test University", Code: "TU", IsActive: true}
	require.NoError(t, e.db.Create(&uni).Error)
	course := model.Course{UniversityID: uni.ID, Title: "Networks", Slug: "networks", IsPaid: true,
		Price: decimal.RequireFromString("499"), IsPublished: true}
	require.NoError(t, e.db.Create(&course).Error)

	for i, status := range []model.PaymentStatus{
		model.PaymentStatusSuccess, model.PaymentStatusSuccess, model.PaymentStatusPending, model.PaymentStatusFailed,
	} {
		p := model.Payment{
			TransactionID: fmt.Sprintf("TXN%d", i),
			UserID:        e.student.ID,
			CourseID:      &course.ID,
			Amount:        decimal.RequireFromString("499"),
			Status:        status,
		}
		require.NoError(t, e.db.Create(&p).Error)
	}
}

func (e *adminEnv) do(t *testing.T, method, path, body string) (int, map[string]interface{}) {
	t.Helper()
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	resp, err := e.app.Test(req, -1)
	require.NoError(t, err)
	defer resp.Body.Close()

	var out map[string]interface{}
	raw, _ := io.ReadAll(resp.Body)
	require.NoError(t, json.Unmarshal(raw, &out), string(raw))
	return resp.StatusCode, out
}

func TestAdmin_ListPayments(t *testing.T) {
	env := newAdminEnv(t)
	env.seedPayments(t)

	status, body := env.do(t, http.MethodGet, "/api/v1/admin/payments", "")
	require.Equal(t, fiber.StatusOK, status)
	assert.Len(t, body["data"], 4)
	assert.EqualValues(t, 4, body["pagination"].(map[string]interface{})["total"])

	status, body = env.do(t, http.MethodGet, "/api/v1/admin/payments?status=success", "")
	require.Equal(t, fiber.StatusOK, status)
	assert.Len(t, body["data"], 2)

	status, body = env.do(t, http.MethodGet, fmt.Sprintf("/api/v1/admin/payments?user_id=%d", env.admin.ID), "")
	require.Equal(t, fiber.StatusOK, status)
	assert.Empty(t, body["data"])

	status, _ = env.do(t, http.MethodGet, "/api/v1/admin/payments?status=refunded", "")
	assert.Equal(t, fiber.StatusBadRequest, status)
}

func TestAdmin_PaymentStats(t *testing.T) {
	env := newAdminEnv(t)
	env.seedPayments(t)

	status, body := env.do(t, http.MethodGet, "/api/v1/admin/payments/stats", "")
	require.Equal(t, fiber.StatusOK, status)

	data := body["data"].(map[string]interface{})
	assert.EqualValues(t, 4, data["total"])
	assert.Len(t, data["by_status"], 3)

	revenue, err := decimal.NewFromString(data["revenue"].(string))
	require.NoError(t, err)
	assert.True(t, revenue.Equal(decimal.NewFromInt(998)), revenue.String())
}

func TestAdmin_UpdateUserRole(t *testing.T) {
	env := newAdminEnv(t)

	status, _ := env.do(t, http.MethodPut, fmt.Sprintf("/api/v1/admin/users/%d", env.student.ID), `{"role":"admin"}`)
	require.Equal(t, fiber.StatusOK, status)

	var updated model.User
	require.NoError(t, env.db.First(&updated, env.student.ID).Error)
	assert.Equal(t, model.RoleAdmin, updated.Role)
	assert.Equal(t, 1, updated.TokenVersion)

	status, body := env.do(t, http.MethodPut, fmt.Sprintf("/api/v1/admin/users/%d", env.admin.ID), `{"role":"student"}`)
	assert.Equal(t, fiber.StatusBadRequest, status)
	assert.Equal(t, "Cannot change your own role", body["error"].(map[string]interface{})["message"])

	status, _ = env.do(t, http.MethodPut, fmt.Sprintf("/api/v1/admin/users/%d", env.student.ID), `{"role":"owner"}`)
	assert.Equal(t, fiber.StatusBadRequest, status)

	status, _ = env.do(t, http.MethodPut, "/api/v1/admin/users/9999", `{"name":"Ghost"}`)
	assert.Equal(t, fiber.StatusNotFound, status)
}

func TestAdmin_GetUser(t *testing.T) {
	env := newAdminEnv(t)
	env.seedPayments(t)

	status, body := env.do(t, http.MethodGet, fmt.Sprintf("/api/v1/admin/users/%d", env.student.ID), "")
	require.Equal(t, fiber.StatusOK, status)
	stats := body["data"].(map[string]interface{})["stats"].(map[string]interface{})
	assert.EqualValues(t, 4, stats["payments"])
	assert.EqualValues(t, 2, stats["successful_payments"])
}

func TestAdmin_AuditLogs(t *testing.T) {
	env := newAdminEnv(t)
	entry := model.AdminAuditLog{AdminID: env.admin.ID, Action: "course_create", Resource: "courses"}
	require.NoError(t, env.db.Create(&entry).Error)

	status, body := env.do(t, http.MethodGet, "/api/v1/admin/audit-logs?action=course_create", "")
	require.Equal(t, fiber.StatusOK, status)
	assert.Len(t, body["data"], 1)

	status, _ = env.do(t, http.MethodGet, fmt.Sprintf("/api/v1/admin/audit-logs/%d", entry.ID), "")
	assert.Equal(t, fiber.StatusOK, status)

	status, _ = env.do(t, http.MethodGet, "/api/v1/admin/audit-logs/9999", "")
	assert.Equal(t, fiber.StatusNotFound, status)
}
