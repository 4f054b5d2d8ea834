package comment

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
	"github.com/sahilchouksey/course-marketplace-api/utils/middleware"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type commentEnv struct {
	app     *fiber.App
	db      *gorm.DB
	learner model.User
	other   model.User
	course  model.Course
}

func newCommentEnv(t *testing.T) *commentEnv {
	t.Helper()

	name := strings.NewReplacer("/", "_", " ", "_").Replace(t.Name())
	store, err := database.OpenSQLite(fmt.Sprintf("file:%s?mode=memory&cache=shared", name), zap.NewNop())
	require.NoError(t, err)
	require.NoError(t, store.Init())
	t.Cleanup(func() { _ = store.Close() })
	db := store.DB()

	env := &commentEnv{db: db}
	uni := model.University{Name: "Test University", Code: "TU", IsActive: true}
	require.NoError(t, db.Create(&uni).Error)
	env.learner = model.User{Email: "learner@example.com", Name: "Ravi", PasswordHash: "x", Role: model.RoleStudent}
	env.other = model.User{Email: "other@example.com", Name: "Other", PasswordHash: "x", Role: model.RoleStudent}
	require.NoError(t, db.Create(&env.learner).Error)
	require.NoError(t, db.Create(&env.other).Error)
	env.course = model.Course{UniversityID: uni.ID, Title: "Databases", Slug: "databases", IsPublished: true}
	require.NoError(t, db.Create(&env.course).Error)
	require.NoError(t, db.Create(&model.Enrollment{UserID: env.learner.ID, CourseID: env.course.ID, AcquiredAt: env.course.CreatedAt}).Error)

	enrollments := services.NewEnrollmentService(db, nil, nil, zap.NewNop())
	h := NewCommentHandler(services.NewCommentService(db, enrollments, zap.NewNop()), zap.NewNop())

	// X-Test-User picks the caller by email
	authed := func(c *fiber.Ctx) error {
		var user model.User
		if email := c.Get("X-Test-User"); email != "" && db.Where("email = ?", email).First(&user).Error == nil {
			c.Locals(middleware.LocalUserID, user.ID)
			c.Locals(middleware.LocalUser, &user)
		}
		return c.Next()
	}

	app := fiber.New()
	app.Get("/api/v1/courses/:id/comments", h.ListComments)
	app.Post("/api/v1/courses/:id/comments", authed, h.CreateComment)
	app.Delete("/api/v1/comments/:id", authed, h.DeleteComment)
	env.app = app
	return env
}

func (e *commentEnv) do(t *testing.T, as, method, path, body string) (int, map[string]interface{}) {
	t.Helper()
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Test-User", as)
	resp, err := e.app.Test(req, -1)
	require.NoError(t, err)
	defer resp.Body.Close()

	var out map[string]interface{}
	raw, _ := io.ReadAll(resp.Body)
	if len(raw) > 0 {
		require.NoError(t, json.Unmarshal(raw, &out), string(raw))
	}
	return resp.StatusCode, out
}

func TestComments_PostAndList(t *testing.T) {
	env := newCommentEnv(t)
	path := fmt.Sprintf("/api/v1/courses/%d/comments", env.course.ID)

	status, body := env.do(t, env.learner.Email, http.MethodPost, path, `{"body":"Great intro to indexes"}`)
	require.Equal(t, fiber.StatusCreated, status)
	data := body["data"].(map[string]interface{})
	assert.Equal(t, "Ravi", data["author_name"])
	assert.NotContains(t, data, "user")

	status, body = env.do(t, "", http.MethodGet, path, "")
	require.Equal(t, fiber.StatusOK, status)
	items := body["data"].([]interface{})
	require.Len(t, items, 1)
	assert.Equal(t, "Great intro to indexes", items[0].(map[string]interface{})["body"])
}

func TestComments_PostRejections(t *testing.T) {
	env := newCommentEnv(t)
	path := fmt.Sprintf("/api/v1/courses/%d/comments", env.course.ID)

	status, _ := env.do(t, "", http.MethodPost, path, `{"body":"hi"}`)
	assert.Equal(t, fiber.StatusUnauthorized, status)

	status, _ = env.do(t, env.other.Email, http.MethodPost, path, `{"body":"hi"}`)
	assert.Equal(t, fiber.StatusForbidden, status, "not enrolled")

	status, _ = env.do(t, env.learner.Email, http.MethodPost, path, `{"body":"   "}`)
	assert.Equal(t, fiber.StatusBadRequest, status)

	status, _ = env.do(t, env.learner.Email, http.MethodPost, "/api/v1/courses/9999/comments", `{"body":"hi"}`)
	assert.Equal(t, fiber.StatusNotFound, status)
}

func TestComments_Delete(t *testing.T) {
	env := newCommentEnv(t)
	path := fmt.Sprintf("/api/v1/courses/%d/comments", env.course.ID)

	_, body := env.do(t, env.learner.Email, http.MethodPost, path, `{"body":"Typo on slide 4"}`)
	id := uint(body["data"].(map[string]interface{})["id"].(float64))
	target := fmt.Sprintf("/api/v1/comments/%d", id)

	status, _ := env.do(t, env.other.Email, http.MethodDelete, target, "")
	assert.Equal(t, fiber.StatusForbidden, status)

	status, _ = env.do(t, env.learner.Email, http.MethodDelete, target, "")
	assert.Equal(t, fiber.StatusOK, status)

	status, _ = env.do(t, env.learner.Email, http.MethodDelete, target, "")
	assert.Equal(t, fiber.StatusNotFound, status)
}
