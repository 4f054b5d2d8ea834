package services

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sahilchouksey/course-marketplace-api/model"
	"github.com/sahilchouksey/course-marketplace-api/services/events"
	"github.com/sahilchouksey/course-marketplace-api/services/payu"
	"github.com/sahilchouksey/course-marketplace-api/utils/cache"
	"github.com/sahilchouksey/course-marketplace-api/utils/metrics"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// Reasons carried to the failure page
const (
	ReasonVerificationFailed = "Payment verification failed"
	ReasonTransactionMissing = "Transaction not found"
	ReasonUnexpected         = "An unexpected error occurred"
	ReasonPaymentFailed      = "Payment failed"
)

// udf2 values
const (
	CheckoutModeCourse = "course"
	CheckoutModeCart   = "cart"
)

// Gateway is the server-to-server side of the payment gateway
type Gateway interface {
	Verify(ctx context.Context, txnID string) (*payu.VerificationResult, error)
}

// PaymentService runs checkout, the gateway callback and status verification
type PaymentService struct {
	db          *gorm.DB
	gateway     Gateway
	payu        payu.Config
	baseURL     string
	enrollments *EnrollmentService
	carts       *CartService
	locker      cache.Locker
	publisher   events.Publisher
	archiver    CallbackArchiver
	metrics     *metrics.Metrics
	log         *zap.Logger
	now         func() time.Time
}

// PaymentOption customises a PaymentService
type PaymentOption func(*PaymentService)

func WithLocker(l cache.Locker) PaymentOption          { return func(s *PaymentService) { s.locker = l } }
func WithPublisher(p events.Publisher) PaymentOption   { return func(s *PaymentService) { s.publisher = p } }
func WithArchiver(a CallbackArchiver) PaymentOption    { return func(s *PaymentService) { s.archiver = a } }
func WithMetrics(m *metrics.Metrics) PaymentOption     { return func(s *PaymentService) { s.metrics = m } }
func WithLogger(l *zap.Logger) PaymentOption           { return func(s *PaymentService) { s.log = l } }
func WithClock(now func() time.Time) PaymentOption     { return func(s *PaymentService) { s.now = now } }

// NewPaymentService creates a payment service. baseURL is the public URL of
// this API; the gateway posts callbacks to baseURL + /api/v1/payments/payu/*.
func NewPaymentService(db *gorm.DB, cfg payu.Config, baseURL string, gateway Gateway, enrollments *EnrollmentService, carts *CartService, opts ...PaymentOption) *PaymentService {
	s := &PaymentService{
		db:          db,
		gateway:     gateway,
		payu:        cfg,
		baseURL:     strings.TrimRight(baseURL, "/"),
		enrollments: enrollments,
		carts:       carts,
		locker:      cache.NoopLocker{},
		publisher:   events.NopPublisher{},
		archiver:    NopCallbackArchiver{},
		log:         zap.NewNop(),
		now:         time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// ==================== Checkout ====================

// CheckoutInput describes a purchase of one course or of the whole cart
type CheckoutInput struct {
	User     *model.User
	CourseID uint
	UseCart  bool
	// DeclaredAmount is the client's cart total. It is only read for cart checkouts.
	DeclaredAmount string
	Phone          string
}

// CheckoutResult is everything the browser needs to auto-post the hosted payment form
type CheckoutResult struct {
	Payment *model.Payment    `json:"payment"`
	Action  string            `json:"action"`
	Fields  map[string]string `json:"fields"`
}

// Checkout persists a pending payment and returns the signed gateway form
func (s *PaymentService) Checkout(ctx context.Context, in CheckoutInput) (*CheckoutResult, error) {
	if in.User == nil || in.User.ID == 0 {
		return nil, ErrNoPurchaser
	}

	var (
		payment = &model.Payment{
			UserID: in.User.ID,
			Status: model.PaymentStatusPending,
		}
		mode      string
		courseIDs []uint
	)

	if in.UseCart {
		mode = CheckoutModeCart
		items, err := s.carts.Items(ctx, in.User.ID)
		if err != nil {
			return nil, fmt.Errorf("load cart: %w", err)
		}
		if len(items) == 0 {
			return nil, ErrEmptyCart
		}

		computed := decimal.Zero
		for _, item := range items {
			// Preload leaves a zero Course when the course was deleted after being added
			if item.Course.ID == 0 {
				return nil, fmt.Errorf("%w: %d", ErrCourseNotFound, item.CourseID)
			}
			if !item.Course.Purchasable() {
				s.log.Warn("Dropping free course from cart checkout",
					zap.Uint("user_id", in.User.ID),
					zap.Uint("course_id", item.CourseID),
				)
				continue
			}
			owned, err := s.enrollments.HasAccess(ctx, in.User.ID, item.CourseID)
			if err != nil {
				return nil, err
			}
			if owned {
				s.log.Warn("Dropping owned course from cart checkout",
					zap.Uint("user_id", in.User.ID),
					zap.Uint("course_id", item.CourseID),
				)
				continue
			}
			courseIDs = append(courseIDs, item.CourseID)
			computed = computed.Add(item.Course.EffectivePrice())
		}
		if len(courseIDs) == 0 {
			return nil, ErrNothingToPurchase
		}

		declared, err := decimal.NewFromString(strings.TrimSpace(in.DeclaredAmount))
		if err != nil || !declared.IsPositive() {
			return nil, ErrInvalidAmount
		}
		if !declared.Equal(computed) {
			// Cart totals are charged as declared; a mismatch is only reported
			s.log.Warn("Declared cart amount differs from catalog total",
				zap.Uint("user_id", in.User.ID),
				zap.String("declared", declared.StringFixed(2)),
				zap.String("computed", computed.StringFixed(2)),
			)
			if s.metrics != nil {
				s.metrics.CartAmountMismatches.Inc()
			}
		}

		payment.IsCart = true
		payment.CartCourseIDs = datatypes.JSONSlice[uint](courseIDs)
		payment.Amount = declared.Round(2)
		payment.ProductInfo = fmt.Sprintf("Course bundle (%d courses)", len(courseIDs))
	} else {
		mode = CheckoutModeCourse
		var course model.Course
		if err := s.db.WithContext(ctx).First(&course, in.CourseID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return nil, ErrCourseNotFound
			}
			return nil, err
		}
		if !course.Purchasable() {
			return nil, ErrCourseNotPurchasable
		}

		owned, err := s.enrollments.HasAccess(ctx, in.User.ID, course.ID)
		if err != nil {
			return nil, err
		}
		if owned {
			return nil, ErrAlreadyEnrolled
		}

		courseIDs = []uint{course.ID}
		payment.CourseID = &course.ID
		payment.Amount = course.EffectivePrice().Round(2)
		payment.ProductInfo = course.Title
	}

	payment.TransactionID = NewTransactionID(s.now())

	if err := s.db.WithContext(ctx).Create(payment).Error; err != nil {
		return nil, fmt.Errorf("create payment: %w", err)
	}

	phone := strings.TrimSpace(in.Phone)
	if phone == "" {
		phone = in.User.Phone
	}

	req := payu.PaymentRequest{
		Key:             s.payu.MerchantKey,
		TxnID:           payment.TransactionID,
		Amount:          payment.Amount.StringFixed(2),
		ProductInfo:     payment.ProductInfo,
		FirstName:       firstName(in.User.Name),
		Email:           in.User.Email,
		Phone:           phone,
		SURL:            s.baseURL + "/api/v1/payments/payu/success",
		FURL:            s.baseURL + "/api/v1/payments/payu/failure",
		ServiceProvider: s.payu.ServiceProvider,
		UDF: [5]string{
			strconv.FormatUint(uint64(in.User.ID), 10),
			mode,
			joinIDs(courseIDs),
		},
	}
	req.Sign(s.payu.MerchantSalt)

	if s.metrics != nil {
		s.metrics.CheckoutsTotal.WithLabelValues(mode).Inc()
	}
	s.log.Info("Created pending payment",
		zap.String("txnid", payment.TransactionID),
		zap.Uint("user_id", in.User.ID),
		zap.String("mode", mode),
		zap.String("amount", req.Amount),
	)

	return &CheckoutResult{
		Payment: payment,
		Action:  s.payu.PaymentURL,
		Fields:  req.Fields(),
	}, nil
}

// NewTransactionID returns "TXN" + unix millis + 8 random upper-case hex characters
func NewTransactionID(t time.Time) string {
	suffix := strings.ToUpper(strings.ReplaceAll(uuid.NewString(), "-", "")[:8])
	return fmt.Sprintf("TXN%d%s", t.UnixMilli(), suffix)
}

// TransactionTime recovers the checkout time embedded by NewTransactionID
func TransactionTime(txnID string) (time.Time, bool) {
	digits := strings.TrimPrefix(txnID, "TXN")
	if len(digits) == len(txnID) || len(digits) < 13 {
		return time.Time{}, false
	}
	millis, err := strconv.ParseInt(digits[:13], 10, 64)
	if err != nil {
		return time.Time{}, false
	}
	return time.UnixMilli(millis).UTC(), true
}

func firstName(name string) string {
	if parts := strings.Fields(name); len(parts) > 0 {
		return parts[0]
	}
	return "Customer"
}

func joinIDs(ids []uint) string {
	parts := make([]string, len(ids))
	for i, id := range ids {
		parts[i] = strconv.FormatUint(uint64(id), 10)
	}
	return strings.Join(parts, ",")
}

// ==================== Gateway callback ====================

// CallbackOutcome decides where the browser is redirected after a callback
type CallbackOutcome struct {
	TxnID   string
	Amount  string
	Success bool
	Reason  string
}

func failure(txnID, reason string) CallbackOutcome {
	return CallbackOutcome{TxnID: txnID, Reason: reason}
}

// HandleCallback applies a gateway callback. It never returns an error and
// never panics: every problem becomes a failure outcome, because the gateway
// needs a redirect on every path.
func (s *PaymentService) HandleCallback(ctx context.Context, p *payu.CallbackPayload) (out CallbackOutcome) {
	txnID := strings.TrimSpace(p.TxnID)
	log := s.log.With(zap.String("txnid", txnID))

	defer func() {
		if r := recover(); r != nil {
			log.Error("Panic while handling payment callback", zap.Any("panic", r))
			s.countCallback("error")
			out = failure(txnID, ReasonUnexpected)
		}
	}()

	if !payu.VerifyResponseHash(p, s.payu.MerchantKey, s.payu.MerchantSalt) {
		log.Warn("Payment callback hash mismatch", zap.String("status", p.Status), zap.String("mihpayid", p.MihPayID))
		s.countCallback("hash_mismatch")
		return failure(txnID, ReasonVerificationFailed)
	}

	unlock, err := s.locker.Lock(ctx, cache.KeyPaymentLock+txnID)
	if err != nil {
		// The conditional update below still admits a single transition
		log.Warn("Proceeding without payment lock", zap.Error(err))
		unlock = func() {}
	}
	defer unlock()

	payment, transitioned, err := s.applyCallback(ctx, txnID, p)
	if errors.Is(err, ErrPaymentNotFound) {
		log.Warn("Payment callback for unknown transaction")
		s.countCallback("not_found")
		return failure(txnID, ReasonTransactionMissing)
	}
	if err != nil {
		log.Error("Failed to apply payment callback", zap.Error(err))
		s.countCallback("error")
		return failure(txnID, ReasonUnexpected)
	}

	if payment.Status == model.PaymentStatusSuccess {
		if p.Amount != "" && !sameAmount(p.Amount, payment.Amount) {
			log.Warn("Callback amount differs from payment amount",
				zap.String("posted", p.Amount),
				zap.String("stored", payment.Amount.StringFixed(2)),
			)
		}

		// Runs on every success delivery so a replay repairs a partially granted cart
		result, err := s.enrollments.GrantAll(ctx, payment.UserID, payment.CourseIDs(), &payment.ID)
		if err != nil {
			log.Error("Failed to grant course access", zap.Error(err))
		} else {
			log.Info("Course access granted",
				zap.Uints("granted", result.Granted),
				zap.Uints("skipped", result.Skipped),
				zap.Uints("missing", result.Missing),
			)
		}

		if payment.IsCart && transitioned {
			if _, err := s.carts.Clear(ctx, payment.UserID); err != nil {
				log.Error("Failed to clear cart", zap.Error(err))
			}
		}
	}

	if transitioned {
		s.afterTransition(ctx, payment, p)
		s.countCallback(string(payment.Status))
	} else {
		log.Info("Payment already settled, callback ignored", zap.String("status", string(payment.Status)))
		s.countCallback("duplicate")
	}

	if payment.Status == model.PaymentStatusSuccess {
		return CallbackOutcome{TxnID: txnID, Amount: payment.Amount.StringFixed(2), Success: true}
	}

	reason := payment.FailureReason
	if reason == "" {
		reason = ReasonPaymentFailed
	}
	return failure(txnID, reason)
}

// applyCallback makes the single pending -> terminal transition. It returns
// the stored payment and whether this call made the transition.
func (s *PaymentService) applyCallback(ctx context.Context, txnID string, p *payu.CallbackPayload) (*model.Payment, bool, error) {
	db := s.db.WithContext(ctx)

	payment, err := s.findByTxnID(ctx, txnID)
	if err != nil {
		return nil, false, err
	}
	if payment.IsTerminal() {
		return payment, false, nil
	}

	status := model.PaymentStatusFailed
	reason := p.FailureReason()
	if p.IsSuccess() {
		status = model.PaymentStatusSuccess
		reason = ""
	}

	res := db.Model(&model.Payment{}).
		Where("transaction_id = ? AND status = ?", txnID, model.PaymentStatusPending).
		Updates(map[string]interface{}{
			"status":             status,
			"gateway_status":     p.Status,
			"gateway_payment_id": p.MihPayID,
			"bank_ref_num":       p.BankRefNum,
			"payment_mode":       p.Mode,
			"failure_reason":     reason,
			"gateway_payload":    datatypes.JSONMap(p.Fields()),
			"completed_at":       s.now(),
		})
	if res.Error != nil {
		return nil, false, res.Error
	}

	payment, err = s.findByTxnID(ctx, txnID)
	if err != nil {
		return nil, false, err
	}
	// Zero rows means a concurrent delivery settled it first
	return payment, res.RowsAffected > 0, nil
}

func (s *PaymentService) afterTransition(ctx context.Context, payment *model.Payment, p *payu.CallbackPayload) {
	eventType := events.TypePaymentFailed
	if payment.Status == model.PaymentStatusSuccess {
		eventType = events.TypePaymentSucceeded
	}

	event := events.PaymentEvent{
		Type:          eventType,
		TransactionID: payment.TransactionID,
		UserID:        payment.UserID,
		CourseIDs:     payment.CourseIDs(),
		Amount:        payment.Amount.StringFixed(2),
		Status:        string(payment.Status),
		Reason:        payment.FailureReason,
		OccurredAt:    s.now(),
	}
	if err := s.publisher.PublishPayment(ctx, event); err != nil {
		s.log.Error("Failed to publish payment event", zap.String("txnid", payment.TransactionID), zap.Error(err))
	}

	if key, err := s.archiver.Archive(ctx, payment.TransactionID, p.Fields()); err != nil {
		s.log.Error("Failed to archive payment callback", zap.String("txnid", payment.TransactionID), zap.Error(err))
	} else if key != "" {
		s.log.Debug("Archived payment callback", zap.String("txnid", payment.TransactionID), zap.String("key", key))
	}
}

func (s *PaymentService) countCallback(outcome string) {
	if s.metrics != nil {
		s.metrics.CallbacksTotal.WithLabelValues(outcome).Inc()
	}
}

func sameAmount(posted string, stored decimal.Decimal) bool {
	d, err := decimal.NewFromString(strings.TrimSpace(posted))
	return err == nil && d.Equal(stored)
}

// ==================== Status verification ====================

// VerifyStatusResult is the gateway's view of a payment next to ours
type VerifyStatusResult struct {
	payu.VerificationResult
	LocalStatus model.PaymentStatus `json:"local_status"`
}

// VerifyStatus asks the gateway for the authoritative status of txnID. It
// only reads local state; entitlements are granted by the callback alone.
func (s *PaymentService) VerifyStatus(ctx context.Context, requester *model.User, txnID string) (*VerifyStatusResult, error) {
	if requester == nil {
		return nil, ErrNoPurchaser
	}

	payment, err := s.GetForUser(ctx, requester, txnID)
	if err != nil {
		return nil, err
	}

	result, err := s.verifyWithGateway(ctx, payment.TransactionID)
	if err != nil {
		return nil, err
	}

	return &VerifyStatusResult{
		VerificationResult: *result,
		LocalStatus:        payment.Status,
	}, nil
}

func (s *PaymentService) verifyWithGateway(ctx context.Context, txnID string) (*payu.VerificationResult, error) {
	start := time.Now()
	result, err := s.gateway.Verify(ctx, txnID)

	if s.metrics != nil {
		reason := ""
		switch {
		case errors.Is(err, payu.ErrTimeout):
			reason = "timeout"
		case errors.Is(err, payu.ErrInvalidResponse):
			reason = "invalid_response"
		case err != nil:
			reason = "unavailable"
		}
		s.metrics.RecordGatewayVerify(time.Since(start), reason)
	}

	if err != nil {
		s.log.Error("Gateway verification failed", zap.String("txnid", txnID), zap.Error(err))
		return nil, err
	}
	return result, nil
}

// ==================== Queries ====================

func (s *PaymentService) findByTxnID(ctx context.Context, txnID string) (*model.Payment, error) {
	var payment model.Payment
	err := s.db.WithContext(ctx).Where("transaction_id = ?", txnID).First(&payment).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrPaymentNotFound
	}
	if err != nil {
		return nil, err
	}
	return &payment, nil
}

// GetForUser returns a payment its owner or an admin may see
func (s *PaymentService) GetForUser(ctx context.Context, requester *model.User, txnID string) (*model.Payment, error) {
	payment, err := s.findByTxnID(ctx, strings.TrimSpace(txnID))
	if err != nil {
		return nil, err
	}
	if payment.UserID != requester.ID && !requester.IsAdmin() {
		return nil, ErrPaymentForbidden
	}
	return payment, nil
}

// PaymentFilter selects payments for listings
type PaymentFilter struct {
	UserID uint
	Status model.PaymentStatus
	Page   int
	Limit  int
}

// List returns a page of payments, newest first
func (s *PaymentService) List(ctx context.Context, f PaymentFilter) ([]model.Payment, int64, error) {
	if f.Page < 1 {
		f.Page = 1
	}
	if f.Limit < 1 || f.Limit > 100 {
		f.Limit = 20
	}

	query := s.db.WithContext(ctx).Model(&model.Payment{})
	if f.UserID != 0 {
		query = query.Where("user_id = ?", f.UserID)
	}
	if f.Status != "" {
		query = query.Where("status = ?", f.Status)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	var payments []model.Payment
	err := query.Preload("Course").
		Order("created_at DESC").
		Limit(f.Limit).
		Offset((f.Page - 1) * f.Limit).
		Find(&payments).Error
	return payments, total, err
}

// StatusStats is the count and summed amount of payments in one status
type StatusStats struct {
	Status model.PaymentStatus `json:"status"`
	Count  int64               `json:"count"`
	Amount decimal.Decimal     `json:"amount"`
}

// PaymentStats backs the admin dashboard
type PaymentStats struct {
	ByStatus     []StatusStats   `json:"by_status"`
	Total        int64           `json:"total"`
	Revenue      decimal.Decimal `json:"revenue"`
	PendingValue decimal.Decimal `json:"pending_value"`
}

// Stats aggregates payments by status
func (s *PaymentService) Stats(ctx context.Context) (*PaymentStats, error) {
	var rows []StatusStats
	err := s.db.WithContext(ctx).
		Model(&model.Payment{}).
		Select("status, COUNT(*) AS count, COALESCE(SUM(amount), 0) AS amount").
		Group("status").
		Order("status").
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}

	stats := &PaymentStats{ByStatus: rows, Revenue: decimal.Zero, PendingValue: decimal.Zero}
	for _, row := range rows {
		stats.Total += row.Count
		switch row.Status {
		case model.PaymentStatusSuccess:
			stats.Revenue = row.Amount
		case model.PaymentStatusPending:
			stats.PendingValue = row.Amount
		}
	}
	return stats, nil
}

// StalePending returns up to limit pending payments created before cutoff, oldest first
func (s *PaymentService) StalePending(ctx context.Context, cutoff time.Time, limit int) ([]model.Payment, error) {
	var payments []model.Payment
	err := s.db.WithContext(ctx).
		Where("status = ? AND created_at < ?", model.PaymentStatusPending, cutoff).
		Order("created_at ASC").
		Limit(limit).
		Find(&payments).Error
	return payments, err
}

// StaleReport is one pending payment as seen by the gateway
type StaleReport struct {
	TransactionID string `json:"txnid"`
	LocalStatus   string `json:"local_status"`
	GatewayStatus string `json:"gateway_status"`
	Error         string `json:"error,omitempty"`
}

// AuditStale checks stale pending payments against the gateway. It only
// reports: a payment the gateway settled but we did not is logged for
// manual follow-up, never transitioned here.
func (s *PaymentService) AuditStale(ctx context.Context, olderThan time.Duration, limit int) ([]StaleReport, error) {
	payments, err := s.StalePending(ctx, s.now().Add(-olderThan), limit)
	if err != nil {
		return nil, err
	}

	reports := make([]StaleReport, 0, len(payments))
	for _, payment := range payments {
		report := StaleReport{TransactionID: payment.TransactionID, LocalStatus: string(payment.Status)}

		result, err := s.verifyWithGateway(ctx, payment.TransactionID)
		if err != nil {
			report.Error = err.Error()
			reports = append(reports, report)
			continue
		}
		report.GatewayStatus = result.Status

		if s.metrics != nil {
			s.metrics.StalePaymentsTotal.WithLabelValues(result.Status).Inc()
		}
		if result.Status == payu.StatusSuccess {
			s.log.Error("Gateway settled a payment that is still pending locally",
				zap.String("txnid", payment.TransactionID),
				zap.Uint("user_id", payment.UserID),
				zap.String("mihpayid", result.MihPayID),
			)
		}
		reports = append(reports, report)
	}
	return reports, nil
}
