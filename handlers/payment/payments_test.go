package payment

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strconv"
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
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const (
	testKey      = "gtKFFx"
	testSalt     = "eCwWELxi"
	testFrontend = "https://app.test"
)

type testEnv struct {
	app     *fiber.App
	db      *gorm.DB
	gateway *mocks.Gateway
	student model.User
	other   model.User
	course  model.Course
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	name := strings.NewReplacer("/", "_", " ", "_").Replace(t.Name())
	store, err := database.OpenSQLite(fmt.Sprintf("file:%s?mode=memory&cache=shared", name), zap.NewNop())
	require.NoError(t, err)
	require.NoError(t, store.Init())
	t.Cleanup(func() { _ = store.Close() })
	db := store.DB()

	env := &testEnv{db: db, gateway: &mocks.Gateway{}}

	uni := model.University{Name: "Test University", Code: "TU", IsActive: true}
	require.NoError(t, db.Create(&uni).Error)
	env.student = model.User{Email: "student@example.com", Name: "Asha Verma", PasswordHash: "x", Role: model.RoleStudent}
	env.other = model.User{Email: "other@example.com", Name: "Other", PasswordHash: "x", Role: model.RoleStudent}
	require.NoError(t, db.Create(&env.student).Error)
	require.NoError(t, db.Create(&env.other).Error)
	env.course = model.Course{
		UniversityID: uni.ID,
		Title:        "Data Structures",
		Slug:         "data-structures",
		IsPaid:       true,
		Price:        decimal.RequireFromString("499"),
		IsPublished:  true,
	}
	require.NoError(t, db.Create(&env.course).Error)

	enrollments := services.NewEnrollmentService(db, nil, nil, zap.NewNop())
	carts := services.NewCartService(db, enrollments)
	cfg := payu.NewConfig(testKey, testSalt, "test", "", "", "", 0)
	payments := services.NewPaymentService(db, cfg, "http://api.test", env.gateway, enrollments, carts)
	h := NewPaymentHandler(payments, testFrontend+"/", zap.NewNop())

	users := map[string]*model.User{
		strconv.FormatUint(uint64(env.student.ID), 10): &env.student,
		strconv.FormatUint(uint64(env.other.ID), 10):   &env.other,
	}
	// Stands in for the JWT middleware
	asUser := func(c *fiber.Ctx) error {
		u, ok := users[c.Get("X-Test-User")]
		if !ok {
			return c.Next()
		}
		c.Locals(middleware.LocalUserID, u.ID)
		c.Locals(middleware.LocalUser, u)
		return c.Next()
	}

	app := fiber.New()
	app.Post("/api/v1/payments/payu/success", h.PayUSuccess)
	app.Post("/api/v1/payments/payu/failure", h.PayUFailure)
	app.Post("/api/v1/payments/checkout", asUser, h.Checkout)
	app.Get("/api/v1/payments", asUser, h.ListPayments)
	app.Get("/api/v1/payments/verify/:txnid", asUser, h.VerifyPayment)
	app.Get("/api/v1/payments/:txnid", asUser, h.GetPayment)
	env.app = app

	return env
}

type envelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Error   *struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

func (e *testEnv) do(t *testing.T, req *http.Request, user *model.User) (*http.Response, envelope) {
	t.Helper()
	if user != nil {
		req.Header.Set("X-Test-User", strconv.FormatUint(uint64(user.ID), 10))
	}
	resp, err := e.app.Test(req, -1)
	require.NoError(t, err)

	var env envelope
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	if len(body) > 0 && strings.HasPrefix(resp.Header.Get(fiber.HeaderContentType), fiber.MIMEApplicationJSON) {
		require.NoError(t, json.Unmarshal(body, &env))
	}
	return resp, env
}

func jsonRequest(method, target string, body interface{}) *http.Request {
	var buf bytes.Buffer
	if body != nil {
		_ = json.NewEncoder(&buf).Encode(body)
	}
	req := httptest.NewRequest(method, target, &buf)
	req.Header.Set(fiber.HeaderContentType, fiber.MIMEApplicationJSON)
	return req
}

func formRequest(target string, form url.Values) *http.Request {
	req := httptest.NewRequest(http.MethodPost, target, strings.NewReader(form.Encode()))
	req.Header.Set(fiber.HeaderContentType, fiber.MIMEApplicationForm)
	return req
}

type checkoutData struct {
	Payment struct {
		TransactionID string `json:"txnid"`
		Status        string `json:"status"`
	} `json:"payment"`
	Action string            `json:"action"`
	Fields map[string]string `json:"fields"`
}

func (e *testEnv) checkout(t *testing.T) checkoutData {
	t.Helper()
	resp, env := e.do(t, jsonRequest(http.MethodPost, "/api/v1/payments/checkout", fiber.Map{"course_id": e.course.ID}), &e.student)
	require.Equal(t, fiber.StatusCreated, resp.StatusCode)

	var data checkoutData
	require.NoError(t, json.Unmarshal(env.Data, &data))
	return data
}

// gatewayPost builds the form the gateway posts back for a checkout
func gatewayPost(fields map[string]string, status string) url.Values {
	p := &payu.CallbackPayload{
		MihPayID:    "403993715521",
		Mode:        "UPI",
		Status:      status,
		Key:         fields["key"],
		TxnID:       fields["txnid"],
		Amount:      fields["amount"],
		ProductInfo: fields["productinfo"],
		FirstName:   fields["firstname"],
		Email:       fields["email"],
		UDF1:        fields["udf1"],
		UDF2:        fields["udf2"],
		UDF3:        fields["udf3"],
	}
	if status != payu.StatusSuccess {
		p.ErrorMessage = "Bank was unable to authenticate."
	}
	p.Hash = payu.ResponseHash(p, testKey, testSalt)

	return url.Values{
		"mihpayid":      {p.MihPayID},
		"mode":          {p.Mode},
		"status":        {p.Status},
		"key":           {p.Key},
		"txnid":         {p.TxnID},
		"amount":        {p.Amount},
		"productinfo":   {p.ProductInfo},
		"firstname":     {p.FirstName},
		"email":         {p.Email},
		"udf1":          {p.UDF1},
		"udf2":          {p.UDF2},
		"udf3":          {p.UDF3},
		"error_Message": {p.ErrorMessage},
		"hash":          {p.Hash},
	}
}

func location(t *testing.T, resp *http.Response) *url.URL {
	t.Helper()
	require.Equal(t, fiber.StatusSeeOther, resp.StatusCode)
	u, err := url.Parse(resp.Header.Get(fiber.HeaderLocation))
	require.NoError(t, err)
	return u
}

func TestCheckout_Unauthenticated(t *testing.T) {
	e := newTestEnv(t)

	resp, _ := e.do(t, jsonRequest(http.MethodPost, "/api/v1/payments/checkout", fiber.Map{"course_id": e.course.ID}), nil)
	assert.Equal(t, fiber.StatusUnauthorized, resp.StatusCode)
}

func TestCheckout_EmptyCart(t *testing.T) {
	e := newTestEnv(t)

	resp, env := e.do(t, jsonRequest(http.MethodPost, "/api/v1/payments/checkout", fiber.Map{"cart": true, "amount": "499"}), &e.student)
	assert.Equal(t, fiber.StatusBadRequest, resp.StatusCode)
	require.NotNil(t, env.Error)
	assert.Equal(t, "No items in cart", env.Error.Message)
}

func TestCheckout_MissingCourse(t *testing.T) {
	e := newTestEnv(t)

	resp, _ := e.do(t, jsonRequest(http.MethodPost, "/api/v1/payments/checkout", fiber.Map{"course_id": 9999}), &e.student)
	assert.Equal(t, fiber.StatusNotFound, resp.StatusCode)
}

func TestCheckout_SingleCourse(t *testing.T) {
	e := newTestEnv(t)

	data := e.checkout(t)
	assert.Equal(t, "pending", data.Payment.Status)
	assert.Equal(t, payu.TestPaymentURL, data.Action)
	assert.Equal(t, "499.00", data.Fields["amount"])
	assert.NotEmpty(t, data.Fields["hash"])
}

func TestCallback_SuccessRedirectsAndGrants(t *testing.T) {
	e := newTestEnv(t)
	data := e.checkout(t)

	resp, _ := e.do(t, formRequest("/api/v1/payments/payu/success", gatewayPost(data.Fields, payu.StatusSuccess)), nil)
	loc := location(t, resp)

	assert.Equal(t, "app.test", loc.Host)
	assert.Equal(t, "/payment/success", loc.Path)
	assert.Equal(t, data.Payment.TransactionID, loc.Query().Get("txnid"))
	assert.Equal(t, "499.00", loc.Query().Get("amount"))

	var count int64
	require.NoError(t, e.db.Model(&model.Enrollment{}).
		Where("user_id = ? AND course_id = ?", e.student.ID, e.course.ID).Count(&count).Error)
	assert.EqualValues(t, 1, count)

	// A retry lands on the same page without a second grant
	resp, _ = e.do(t, formRequest("/api/v1/payments/payu/success", gatewayPost(data.Fields, payu.StatusSuccess)), nil)
	assert.Equal(t, "/payment/success", location(t, resp).Path)

	var course model.Course
	require.NoError(t, e.db.First(&course, e.course.ID).Error)
	assert.Equal(t, 1, course.EnrollmentCount)
}

func TestCallback_FailureRedirectsWithReason(t *testing.T) {
	e := newTestEnv(t)
	data := e.checkout(t)

	resp, _ := e.do(t, formRequest("/api/v1/payments/payu/failure", gatewayPost(data.Fields, payu.StatusFailure)), nil)
	loc := location(t, resp)

	assert.Equal(t, "/payment/failure", loc.Path)
	assert.Equal(t, data.Payment.TransactionID, loc.Query().Get("txnid"))
	assert.Equal(t, "Bank was unable to authenticate.", loc.Query().Get("reason"))
}

func TestCallback_TamperedHash(t *testing.T) {
	e := newTestEnv(t)
	data := e.checkout(t)

	form := gatewayPost(data.Fields, payu.StatusSuccess)
	form.Set("amount", "1.00")

	resp, _ := e.do(t, formRequest("/api/v1/payments/payu/success", form), nil)
	loc := location(t, resp)
	assert.Equal(t, "/payment/failure", loc.Path)
	assert.Equal(t, services.ReasonVerificationFailed, loc.Query().Get("reason"))

	var p model.Payment
	require.NoError(t, e.db.Where("transaction_id = ?", data.Payment.TransactionID).First(&p).Error)
	assert.Equal(t, model.PaymentStatusPending, p.Status)
}

func TestCallback_UnknownTransaction(t *testing.T) {
	e := newTestEnv(t)

	fields := map[string]string{"key": testKey, "txnid": "TXN123", "amount": "499.00", "productinfo": "x", "firstname": "A", "email": "a@b.c"}
	resp, _ := e.do(t, formRequest("/api/v1/payments/payu/success", gatewayPost(fields, payu.StatusSuccess)), nil)
	loc := location(t, resp)
	assert.Equal(t, "/payment/failure", loc.Path)
	assert.Equal(t, services.ReasonTransactionMissing, loc.Query().Get("reason"))
}

func TestCallback_UnparseableBody(t *testing.T) {
	e := newTestEnv(t)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/payments/payu/success", strings.NewReader("{not json"))
	req.Header.Set(fiber.HeaderContentType, fiber.MIMEApplicationJSON)

	resp, _ := e.do(t, req, nil)
	loc := location(t, resp)
	assert.Equal(t, "/payment/failure", loc.Path)
	assert.Equal(t, services.ReasonUnexpected, loc.Query().Get("reason"))
}

func TestVerifyPayment(t *testing.T) {
	e := newTestEnv(t)
	data := e.checkout(t)
	txnID := data.Payment.TransactionID

	t.Run("unknown transaction", func(t *testing.T) {
		resp, _ := e.do(t, jsonRequest(http.MethodGet, "/api/v1/payments/verify/TXN0", nil), &e.student)
		assert.Equal(t, fiber.StatusNotFound, resp.StatusCode)
	})

	t.Run("another user's payment", func(t *testing.T) {
		resp, _ := e.do(t, jsonRequest(http.MethodGet, "/api/v1/payments/verify/"+txnID, nil), &e.other)
		assert.Equal(t, fiber.StatusForbidden, resp.StatusCode)
	})

	t.Run("gateway result", func(t *testing.T) {
		e.gateway.On("Verify", mock.Anything, txnID).Return(&payu.VerificationResult{
			TxnID: txnID, Found: true, Status: payu.StatusSuccess, Amount: "499.00",
		}, nil).Once()

		resp, env := e.do(t, jsonRequest(http.MethodGet, "/api/v1/payments/verify/"+txnID, nil), &e.student)
		require.Equal(t, fiber.StatusOK, resp.StatusCode)

		var result map[string]interface{}
		require.NoError(t, json.Unmarshal(env.Data, &result))
		assert.Equal(t, "success", result["status"])
		assert.Equal(t, "pending", result["local_status"])
	})

	t.Run("gateway down", func(t *testing.T) {
		e.gateway.On("Verify", mock.Anything, txnID).Return(nil, payu.ErrGatewayUnavailable).Once()

		resp, env := e.do(t, jsonRequest(http.MethodGet, "/api/v1/payments/verify/"+txnID, nil), &e.student)
		assert.Equal(t, fiber.StatusBadGateway, resp.StatusCode)
		require.NotNil(t, env.Error)
		assert.Equal(t, "BAD_GATEWAY", env.Error.Code)
	})

	e.gateway.AssertExpectations(t)
}

func TestListAndGetPayments(t *testing.T) {
	e := newTestEnv(t)
	data := e.checkout(t)

	resp, env := e.do(t, jsonRequest(http.MethodGet, "/api/v1/payments", nil), &e.student)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
	var own []map[string]interface{}
	require.NoError(t, json.Unmarshal(env.Data, &own))
	require.Len(t, own, 1)
	assert.Equal(t, data.Payment.TransactionID, own[0]["txnid"])

	resp, env = e.do(t, jsonRequest(http.MethodGet, "/api/v1/payments", nil), &e.other)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
	require.NoError(t, json.Unmarshal(env.Data, &own))
	assert.Empty(t, own)

	resp, _ = e.do(t, jsonRequest(http.MethodGet, "/api/v1/payments/"+data.Payment.TransactionID, nil), &e.other)
	assert.Equal(t, fiber.StatusForbidden, resp.StatusCode)

	resp, _ = e.do(t, jsonRequest(http.MethodGet, "/api/v1/payments/"+data.Payment.TransactionID, nil), &e.student)
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)
}
