package payment

import (
	"errors"
	"net/url"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/sahilchouksey/course-marketplace-api/model"
	"github.com/sahilchouksey/course-marketplace-api/services"
	"github.com/sahilchouksey/course-marketplace-api/services/payu"
	"github.com/sahilchouksey/course-marketplace-api/utils/middleware"
	"github.com/sahilchouksey/course-marketplace-api/utils/response"
	"github.com/sahilchouksey/course-marketplace-api/utils/validation"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// PaymentHandler exposes checkout, the gateway callbacks and verification
type PaymentHandler struct {
	payments    *services.PaymentService
	frontendURL string
	validator   *validation.Validator
	log         *zap.Logger
}

// NewPaymentHandler creates a new payment handler. frontendURL hosts the
// /payment/success and /payment/failure pages the callbacks redirect to.
func NewPaymentHandler(payments *services.PaymentService, frontendURL string, log *zap.Logger) *PaymentHandler {
	return &PaymentHandler{
		payments:    payments,
		frontendURL: strings.TrimRight(frontendURL, "/"),
		validator:   validation.NewValidator(),
		log:         log,
	}
}

// CheckoutRequest buys either one course or the whole cart
type CheckoutRequest struct {
	CourseID uint            `json:"course_id" validate:"required_without=Cart"`
	Cart     bool            `json:"cart"`
	Amount   decimal.Decimal `json:"amount"`
	Phone    string          `json:"phone" validate:"omitempty,phone"`
}

func (h *PaymentHandler) fail(c *fiber.Ctx, err error, action string) error {
	switch {
	case errors.Is(err, services.ErrNoPurchaser):
		return response.Unauthorized(c, "Not authenticated")
	case errors.Is(err, services.ErrCourseNotFound):
		return response.NotFound(c, "Course not found")
	case errors.Is(err, services.ErrPaymentNotFound):
		return response.NotFound(c, "Payment not found")
	case errors.Is(err, services.ErrPaymentForbidden):
		return response.Forbidden(c, "You do not have access to this payment")
	case errors.Is(err, services.ErrEmptyCart):
		return response.BadRequest(c, services.ErrEmptyCart.Error())
	case errors.Is(err, services.ErrNothingToPurchase):
		return response.BadRequest(c, "Every course in the cart is free or already owned")
	case errors.Is(err, services.ErrInvalidAmount):
		return response.BadRequest(c, "Invalid amount")
	case errors.Is(err, services.ErrCourseNotPurchasable):
		return response.BadRequest(c, "This course is free; enroll directly")
	case errors.Is(err, services.ErrAlreadyEnrolled):
		return response.Conflict(c, "Already enrolled in this course")
	case errors.Is(err, payu.ErrGatewayUnavailable),
		errors.Is(err, payu.ErrTimeout),
		errors.Is(err, payu.ErrInvalidResponse):
		return response.BadGateway(c, "Payment gateway verification failed")
	}
	h.log.Error("Payment request failed", zap.String("action", action), zap.Error(err))
	return response.InternalServerError(c, "Failed to "+action)
}

// Checkout handles POST /api/v1/payments/checkout
func (h *PaymentHandler) Checkout(c *fiber.Ctx) error {
	user, ok := middleware.GetUser(c)
	if !ok {
		return response.Unauthorized(c, "Not authenticated")
	}

	var req CheckoutRequest
	if err := c.BodyParser(&req); err != nil {
		return response.BadRequest(c, "Invalid request body")
	}
	if err := h.validator.ValidateStruct(req); err != nil {
		return response.BadRequest(c, validation.Summary(err))
	}

	in := services.CheckoutInput{
		User:     user,
		CourseID: req.CourseID,
		UseCart:  req.Cart,
		Phone:    validation.SanitizeString(req.Phone),
	}
	if req.Cart {
		in.DeclaredAmount = req.Amount.String()
	}

	result, err := h.payments.Checkout(c.UserContext(), in)
	if err != nil {
		return h.fail(c, err, "start checkout")
	}

	return response.Created(c, result)
}

// ListPayments handles GET /api/v1/payments (the caller's own payments)
func (h *PaymentHandler) ListPayments(c *fiber.Ctx) error {
	userID, ok := middleware.GetUserID(c)
	if !ok {
		return response.Unauthorized(c, "Not authenticated")
	}

	filter := services.PaymentFilter{
		UserID: userID,
		Status: model.PaymentStatus(c.Query("status")),
		Page:   c.QueryInt("page", 1),
		Limit:  c.QueryInt("limit", 20),
	}
	payments, total, err := h.payments.List(c.UserContext(), filter)
	if err != nil {
		return h.fail(c, err, "fetch payments")
	}

	return response.Paginated(c, payments, response.CalculatePagination(filter.Page, filter.Limit, total))
}

// GetPayment handles GET /api/v1/payments/:txnid
func (h *PaymentHandler) GetPayment(c *fiber.Ctx) error {
	user, ok := middleware.GetUser(c)
	if !ok {
		return response.Unauthorized(c, "Not authenticated")
	}

	payment, err := h.payments.GetForUser(c.UserContext(), user, c.Params("txnid"))
	if err != nil {
		return h.fail(c, err, "fetch payment")
	}
	return response.Success(c, payment)
}

// VerifyPayment handles GET /api/v1/payments/verify/:txnid
func (h *PaymentHandler) VerifyPayment(c *fiber.Ctx) error {
	user, ok := middleware.GetUser(c)
	if !ok {
		return response.Unauthorized(c, "Not authenticated")
	}

	result, err := h.payments.VerifyStatus(c.UserContext(), user, c.Params("txnid"))
	if err != nil {
		return h.fail(c, err, "verify payment")
	}
	return response.Success(c, result)
}

// PayUSuccess handles POST /api/v1/payments/payu/success
func (h *PaymentHandler) PayUSuccess(c *fiber.Ctx) error {
	return h.callback(c)
}

// PayUFailure handles POST /api/v1/payments/payu/failure
func (h *PaymentHandler) PayUFailure(c *fiber.Ctx) error {
	return h.callback(c)
}

// callback answers every gateway post with a redirect; the posted status,
// not the endpoint it arrived on, decides the outcome.
func (h *PaymentHandler) callback(c *fiber.Ctx) (err error) {
	var txnID string
	defer func() {
		if r := recover(); r != nil {
			h.log.Error("Panic in payment callback", zap.String("txnid", txnID), zap.Any("panic", r), zap.Stack("stack"))
			err = h.redirectFailure(c, txnID, services.ReasonUnexpected)
		}
	}()

	var payload payu.CallbackPayload
	if perr := c.BodyParser(&payload); perr != nil {
		h.log.Warn("Unparseable payment callback", zap.Error(perr))
		return h.redirectFailure(c, c.FormValue("txnid"), services.ReasonUnexpected)
	}
	txnID = payload.TxnID

	outcome := h.payments.HandleCallback(c.UserContext(), &payload)
	if outcome.Success {
		q := url.Values{}
		q.Set("txnid", outcome.TxnID)
		q.Set("amount", outcome.Amount)
		return response.RedirectSeeOther(c, h.frontendURL+"/payment/success?"+q.Encode())
	}
	return h.redirectFailure(c, outcome.TxnID, outcome.Reason)
}

func (h *PaymentHandler) redirectFailure(c *fiber.Ctx, txnID, reason string) error {
	q := url.Values{}
	q.Set("txnid", txnID)
	q.Set("reason", reason)
	return response.RedirectSeeOther(c, h.frontendURL+"/payment/failure?"+q.Encode())
}
