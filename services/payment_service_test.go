package services

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/sahilchouksey/course-marketplace-api/model"
	"github.com/sahilchouksey/course-marketplace-api/services/events"
	"github.com/sahilchouksey/course-marketplace-api/services/mocks"
	"github.com/sahilchouksey/course-marketplace-api/services/payu"
	"github.com/sahilchouksey/course-marketplace-api/utils/cache"
	"github.com/sahilchouksey/course-marketplace-api/utils/metrics"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

const (
	testKey  = "gtKFFx"
	testSalt = "eCwWELxi"
)

var testNow = time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

type paymentHarness struct {
	*fixture
	svc         *PaymentService
	enrollments *EnrollmentService
	carts       *CartService
	gateway     *mocks.Gateway
	publisher   *recordingPublisher
	archiver    *recordingArchiver
	metrics     *metrics.Metrics
}

func newPaymentHarness(t *testing.T, opts ...PaymentOption) *paymentHarness {
	t.Helper()
	f := newFixture(t)

	m := metrics.New(prometheus.NewRegistry())
	enrollments := NewEnrollmentService(f.db, nil, m, zap.NewNop())
	enrollments.now = func() time.Time { return testNow }
	carts := NewCartService(f.db, enrollments)

	h := &paymentHarness{
		fixture:     f,
		enrollments: enrollments,
		carts:       carts,
		gateway:     &mocks.Gateway{},
		publisher:   &recordingPublisher{},
		archiver:    &recordingArchiver{},
		metrics:     m,
	}

	cfg := payu.NewConfig(testKey, testSalt, "test", "", "", "", 0)
	all := append([]PaymentOption{
		WithPublisher(h.publisher),
		WithArchiver(h.archiver),
		WithMetrics(m),
		WithClock(func() time.Time { return testNow }),
	}, opts...)
	h.svc = NewPaymentService(f.db, cfg, "http://api.test/", h.gateway, enrollments, carts, all...)
	return h
}

// seedPending stores a pending payment as checkout would have
func (h *paymentHarness) seedPending(t *testing.T, txnID string, userID uint, amount string, courseIDs ...uint) model.Payment {
	t.Helper()
	p := model.Payment{
		TransactionID: txnID,
		UserID:        userID,
		Amount:        decimal.RequireFromString(amount),
		ProductInfo:   "Test purchase",
		Status:        model.PaymentStatusPending,
	}
	if len(courseIDs) == 1 {
		p.CourseID = &courseIDs[0]
	} else {
		p.IsCart = true
		p.CartCourseIDs = courseIDs
	}
	require.NoError(t, h.db.Create(&p).Error)
	return p
}

func signedCallback(txnID, status, amount string) *payu.CallbackPayload {
	p := &payu.CallbackPayload{
		MihPayID:    "403993715521",
		Mode:        "UPI",
		Status:      status,
		Key:         testKey,
		TxnID:       txnID,
		Amount:      amount,
		ProductInfo: "Test purchase",
		FirstName:   "Asha",
		Email:       "student@example.com",
		UDF1:        "1",
		UDF2:        CheckoutModeCourse,
		BankRefNum:  "BR123",
	}
	if status != payu.StatusSuccess {
		p.ErrorMessage = "Bank was unable to authenticate."
	}
	p.Hash = payu.ResponseHash(p, testKey, testSalt)
	return p
}

func TestPaymentService_CheckoutSingleCourse(t *testing.T) {
	h := newPaymentHarness(t)

	res, err := h.svc.Checkout(context.Background(), CheckoutInput{User: &h.student, CourseID: h.paid.ID})
	require.NoError(t, err)

	assert.True(t, strings.HasPrefix(res.Payment.TransactionID, "TXN"))
	assert.Equal(t, model.PaymentStatusPending, res.Payment.Status)
	assert.Equal(t, payu.TestPaymentURL, res.Action)

	fields := res.Fields
	assert.Equal(t, "499.00", fields["amount"], "server-side effective price is charged")
	assert.Equal(t, "Asha", fields["firstname"])
	assert.Equal(t, h.student.Phone, fields["phone"])
	assert.Equal(t, strconv.FormatUint(uint64(h.student.ID), 10), fields["udf1"])
	assert.Equal(t, CheckoutModeCourse, fields["udf2"])
	assert.Equal(t, strconv.FormatUint(uint64(h.paid.ID), 10), fields["udf3"])
	assert.Equal(t, "http://api.test/api/v1/payments/payu/success", fields["surl"])
	assert.Equal(t, "http://api.test/api/v1/payments/payu/failure", fields["furl"])

	udf := [5]string{fields["udf1"], fields["udf2"], fields["udf3"]}
	wantHash := payu.RequestHash(testKey, fields["txnid"], fields["amount"], fields["productinfo"], fields["firstname"], fields["email"], udf, testSalt)
	assert.Equal(t, wantHash, fields["hash"])

	stored := h.payment(t, res.Payment.TransactionID)
	assert.Equal(t, model.PaymentStatusPending, stored.Status)
	assert.True(t, decimal.RequireFromString("499").Equal(stored.Amount))
	assert.Equal(t, 1.0, testutil.ToFloat64(h.metrics.CheckoutsTotal.WithLabelValues(CheckoutModeCourse)))
}

func TestPaymentService_CheckoutRejections(t *testing.T) {
	h := newPaymentHarness(t)
	ctx := context.Background()

	_, err := h.svc.Checkout(ctx, CheckoutInput{User: nil, CourseID: h.paid.ID})
	assert.ErrorIs(t, err, ErrNoPurchaser)

	_, err = h.svc.Checkout(ctx, CheckoutInput{User: &h.student, CourseID: 9999})
	assert.ErrorIs(t, err, ErrCourseNotFound)

	_, err = h.svc.Checkout(ctx, CheckoutInput{User: &h.student, CourseID: h.free.ID})
	assert.ErrorIs(t, err, ErrCourseNotPurchasable)

	_, err = h.enrollments.Grant(ctx, h.student.ID, h.paid.ID, nil)
	require.NoError(t, err)
	_, err = h.svc.Checkout(ctx, CheckoutInput{User: &h.student, CourseID: h.paid.ID})
	assert.ErrorIs(t, err, ErrAlreadyEnrolled)

	var count int64
	require.NoError(t, h.db.Model(&model.Payment{}).Count(&count).Error)
	assert.Zero(t, count)
}

func TestPaymentService_CheckoutEmptyCart(t *testing.T) {
	h := newPaymentHarness(t)

	_, err := h.svc.Checkout(context.Background(), CheckoutInput{User: &h.student, UseCart: true, DeclaredAmount: "798"})
	assert.ErrorIs(t, err, ErrEmptyCart)
	assert.Equal(t, "No items in cart", err.Error())
}

func TestPaymentService_CheckoutCart(t *testing.T) {
	h := newPaymentHarness(t)
	ctx := context.Background()

	_, err := h.carts.Add(ctx, h.student.ID, h.paid.ID)
	require.NoError(t, err)
	_, err = h.carts.Add(ctx, h.student.ID, h.bundle.ID)
	require.NoError(t, err)

	t.Run("matching amount", func(t *testing.T) {
		res, err := h.svc.Checkout(ctx, CheckoutInput{User: &h.student, UseCart: true, DeclaredAmount: "798"})
		require.NoError(t, err)

		assert.True(t, res.Payment.IsCart)
		assert.Nil(t, res.Payment.CourseID)
		assert.ElementsMatch(t, []uint{h.paid.ID, h.bundle.ID}, []uint(res.Payment.CartCourseIDs))
		assert.Equal(t, "798.00", res.Fields["amount"])
		assert.Equal(t, CheckoutModeCart, res.Fields["udf2"])
		assert.Equal(t, fmt.Sprintf("%d,%d", h.paid.ID, h.bundle.ID), res.Fields["udf3"])
		assert.Zero(t, testutil.ToFloat64(h.metrics.CartAmountMismatches))
	})

	t.Run("declared amount is charged even when it differs", func(t *testing.T) {
		res, err := h.svc.Checkout(ctx, CheckoutInput{User: &h.student, UseCart: true, DeclaredAmount: "1.5"})
		require.NoError(t, err)

		assert.Equal(t, "1.50", res.Fields["amount"])
		assert.Equal(t, 1.0, testutil.ToFloat64(h.metrics.CartAmountMismatches))
	})

	t.Run("invalid amount", func(t *testing.T) {
		for _, amount := range []string{"", "abc", "0", "-10"} {
			_, err := h.svc.Checkout(ctx, CheckoutInput{User: &h.student, UseCart: true, DeclaredAmount: amount})
			assert.ErrorIs(t, err, ErrInvalidAmount, amount)
		}
	})
}

func TestPaymentService_CheckoutCartDropsStaleItems(t *testing.T) {
	h := newPaymentHarness(t)
	ctx := context.Background()

	_, err := h.carts.Add(ctx, h.student.ID, h.paid.ID)
	require.NoError(t, err)
	_, err = h.carts.Add(ctx, h.student.ID, h.bundle.ID)
	require.NoError(t, err)

	// bought on its own after being added to the cart
	_, err = h.enrollments.Grant(ctx, h.student.ID, h.bundle.ID, nil)
	require.NoError(t, err)

	res, err := h.svc.Checkout(ctx, CheckoutInput{User: &h.student, UseCart: true, DeclaredAmount: "499"})
	require.NoError(t, err)
	assert.Equal(t, []uint{h.paid.ID}, []uint(res.Payment.CartCourseIDs))
	assert.Equal(t, strconv.FormatUint(uint64(h.paid.ID), 10), res.Fields["udf3"])
	assert.Zero(t, testutil.ToFloat64(h.metrics.CartAmountMismatches))

	// made free after being added to the cart
	require.NoError(t, h.db.Model(&h.paid).Updates(map[string]interface{}{"is_paid": false}).Error)
	_, err = h.svc.Checkout(ctx, CheckoutInput{User: &h.student, UseCart: true, DeclaredAmount: "499"})
	assert.ErrorIs(t, err, ErrNothingToPurchase)
}

func TestPaymentService_HandleCallbackSuccess(t *testing.T) {
	h := newPaymentHarness(t)
	ctx := context.Background()
	h.seedPending(t, "TXN123", h.student.ID, "499.00", h.paid.ID)

	out := h.svc.HandleCallback(ctx, signedCallback("TXN123", "success", "499.00"))

	assert.True(t, out.Success)
	assert.Equal(t, "TXN123", out.TxnID)
	assert.Equal(t, "499.00", out.Amount)

	stored := h.payment(t, "TXN123")
	assert.Equal(t, model.PaymentStatusSuccess, stored.Status)
	assert.Equal(t, "403993715521", stored.GatewayPaymentID)
	assert.Equal(t, "BR123", stored.BankRefNum)
	assert.Equal(t, "UPI", stored.PaymentMode)
	assert.Equal(t, "success", stored.GatewayStatus)
	assert.Equal(t, "TXN123", stored.GatewayPayload["txnid"])
	if assert.NotNil(t, stored.CompletedAt) {
		assert.True(t, testNow.Equal(*stored.CompletedAt))
	}

	owned, err := h.enrollments.HasAccess(ctx, h.student.ID, h.paid.ID)
	require.NoError(t, err)
	assert.True(t, owned)
	assert.Equal(t, 1, h.enrollmentCount(t, h.paid.ID))

	var enrollment model.Enrollment
	require.NoError(t, h.db.Where("user_id = ? AND course_id = ?", h.student.ID, h.paid.ID).First(&enrollment).Error)
	if assert.NotNil(t, enrollment.PaymentID) {
		assert.Equal(t, stored.ID, *enrollment.PaymentID)
	}

	published := h.publisher.all()
	require.Len(t, published, 1)
	assert.Equal(t, events.TypePaymentSucceeded, published[0].Type)
	assert.Equal(t, []uint{h.paid.ID}, published[0].CourseIDs)
	assert.Equal(t, []string{"TXN123"}, h.archiver.txns)
	assert.Equal(t, 1.0, testutil.ToFloat64(h.metrics.CallbacksTotal.WithLabelValues("success")))
}

func TestPaymentService_PaidRenewalRestoresAccess(t *testing.T) {
	h := newPaymentHarness(t)
	ctx := context.Background()
	require.NoError(t, h.db.Model(&h.paid).UpdateColumn("access_days", 30).Error)

	expired := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	require.NoError(t, h.db.Create(&model.Enrollment{
		UserID:     h.student.ID,
		CourseID:   h.paid.ID,
		AcquiredAt: expired.AddDate(0, 0, -30),
		ExpiresAt:  &expired,
	}).Error)

	res, err := h.svc.Checkout(ctx, CheckoutInput{User: &h.student, CourseID: h.paid.ID})
	require.NoError(t, err, "expired access can be bought again")

	out := h.svc.HandleCallback(ctx, signedCallback(res.Payment.TransactionID, "success", "499.00"))
	require.True(t, out.Success)

	owned, err := h.enrollments.HasAccess(ctx, h.student.ID, h.paid.ID)
	require.NoError(t, err)
	assert.True(t, owned)

	var enrollment model.Enrollment
	require.NoError(t, h.db.Where("user_id = ? AND course_id = ?", h.student.ID, h.paid.ID).First(&enrollment).Error)
	if assert.NotNil(t, enrollment.ExpiresAt) {
		assert.True(t, testNow.AddDate(0, 0, 30).Equal(*enrollment.ExpiresAt))
	}
	if assert.NotNil(t, enrollment.PaymentID) {
		assert.Equal(t, res.Payment.ID, *enrollment.PaymentID)
	}
}

func TestPaymentService_HandleCallbackIsIdempotent(t *testing.T) {
	h := newPaymentHarness(t)
	ctx := context.Background()
	h.seedPending(t, "TXN123", h.student.ID, "499.00", h.paid.ID)

	cb := signedCallback("TXN123", "success", "499.00")
	first := h.svc.HandleCallback(ctx, cb)
	second := h.svc.HandleCallback(ctx, cb)

	assert.Equal(t, first, second)
	assert.True(t, second.Success)
	assert.Equal(t, 1, h.enrollmentCount(t, h.paid.ID))

	var enrollments int64
	require.NoError(t, h.db.Model(&model.Enrollment{}).Where("user_id = ?", h.student.ID).Count(&enrollments).Error)
	assert.Equal(t, int64(1), enrollments)

	assert.Len(t, h.publisher.all(), 1, "only the transition publishes")
	assert.Equal(t, 1.0, testutil.ToFloat64(h.metrics.CallbacksTotal.WithLabelValues("duplicate")))
	assert.Equal(t, 1.0, testutil.ToFloat64(h.metrics.EntitlementsSkipped))
}

func TestPaymentService_HandleCallbackConcurrentDeliveries(t *testing.T) {
	h := newPaymentHarness(t)
	h.seedPending(t, "TXN123", h.student.ID, "499.00", h.paid.ID)

	const deliveries = 5
	outcomes := make(chan CallbackOutcome, deliveries)
	var wg sync.WaitGroup
	for i := 0; i < deliveries; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			outcomes <- h.svc.HandleCallback(context.Background(), signedCallback("TXN123", "success", "499.00"))
		}()
	}
	wg.Wait()
	close(outcomes)

	for out := range outcomes {
		assert.True(t, out.Success)
	}
	assert.Equal(t, 1, h.enrollmentCount(t, h.paid.ID))
	assert.Len(t, h.publisher.all(), 1)
}

func TestPaymentService_HandleCallbackTamperedHash(t *testing.T) {
	h := newPaymentHarness(t)
	h.seedPending(t, "TXN123", h.student.ID, "499.00", h.paid.ID)

	cb := signedCallback("TXN123", "success", "499.00")
	cb.Amount = "1.00"

	out := h.svc.HandleCallback(context.Background(), cb)

	assert.False(t, out.Success)
	assert.Equal(t, ReasonVerificationFailed, out.Reason)
	assert.Equal(t, "TXN123", out.TxnID)
	assert.Equal(t, model.PaymentStatusPending, h.payment(t, "TXN123").Status)
	assert.Zero(t, h.enrollmentCount(t, h.paid.ID))
	assert.Empty(t, h.publisher.all())
	assert.Equal(t, 1.0, testutil.ToFloat64(h.metrics.CallbacksTotal.WithLabelValues("hash_mismatch")))
}

func TestPaymentService_HandleCallbackMissingHash(t *testing.T) {
	h := newPaymentHarness(t)
	h.seedPending(t, "TXN123", h.student.ID, "499.00", h.paid.ID)

	cb := signedCallback("TXN123", "success", "499.00")
	cb.Hash = ""

	out := h.svc.HandleCallback(context.Background(), cb)
	assert.Equal(t, ReasonVerificationFailed, out.Reason)
	assert.Equal(t, model.PaymentStatusPending, h.payment(t, "TXN123").Status)
}

func TestPaymentService_HandleCallbackUnknownTransaction(t *testing.T) {
	h := newPaymentHarness(t)

	out := h.svc.HandleCallback(context.Background(), signedCallback("TXN404", "success", "499.00"))

	assert.False(t, out.Success)
	assert.Equal(t, ReasonTransactionMissing, out.Reason)
	assert.Equal(t, "TXN404", out.TxnID)
}

func TestPaymentService_HandleCallbackFailureIsTerminal(t *testing.T) {
	h := newPaymentHarness(t)
	ctx := context.Background()
	h.seedPending(t, "TXN123", h.student.ID, "499.00", h.paid.ID)

	out := h.svc.HandleCallback(ctx, signedCallback("TXN123", "failure", "499.00"))
	assert.False(t, out.Success)
	assert.Equal(t, "Bank was unable to authenticate.", out.Reason)

	stored := h.payment(t, "TXN123")
	assert.Equal(t, model.PaymentStatusFailed, stored.Status)
	assert.Equal(t, "Bank was unable to authenticate.", stored.FailureReason)

	// A later success for the same txnid never revives it
	out = h.svc.HandleCallback(ctx, signedCallback("TXN123", "success", "499.00"))
	assert.False(t, out.Success)
	assert.Equal(t, model.PaymentStatusFailed, h.payment(t, "TXN123").Status)
	assert.Zero(t, h.enrollmentCount(t, h.paid.ID))

	published := h.publisher.all()
	require.Len(t, published, 1)
	assert.Equal(t, events.TypePaymentFailed, published[0].Type)
}

func TestPaymentService_HandleCallbackCart(t *testing.T) {
	h := newPaymentHarness(t)
	ctx := context.Background()

	_, err := h.carts.Add(ctx, h.student.ID, h.paid.ID)
	require.NoError(t, err)
	_, err = h.carts.Add(ctx, h.student.ID, h.bundle.ID)
	require.NoError(t, err)

	// Already owned before the callback lands
	_, err = h.enrollments.Grant(ctx, h.student.ID, h.bundle.ID, nil)
	require.NoError(t, err)

	h.seedPending(t, "TXNCART", h.student.ID, "798.00", h.paid.ID, h.bundle.ID)

	out := h.svc.HandleCallback(ctx, signedCallback("TXNCART", "success", "798.00"))
	require.True(t, out.Success)

	assert.Equal(t, 1, h.enrollmentCount(t, h.paid.ID))
	assert.Equal(t, 1, h.enrollmentCount(t, h.bundle.ID), "pre-existing entitlement is not counted twice")

	cart, err := h.carts.Get(ctx, h.student.ID)
	require.NoError(t, err)
	assert.Empty(t, cart.Items)

	// A replay must not clear items added after the purchase
	_, err = h.carts.Add(ctx, h.student.ID, h.free.ID)
	assert.ErrorIs(t, err, ErrCourseNotPurchasable)
	require.NoError(t, h.db.Create(&model.CartItem{UserID: h.student.ID, CourseID: h.free.ID}).Error)

	out = h.svc.HandleCallback(ctx, signedCallback("TXNCART", "success", "798.00"))
	require.True(t, out.Success)
	items, err := h.carts.Items(ctx, h.student.ID)
	require.NoError(t, err)
	assert.Len(t, items, 1)
}

func TestPaymentService_HandleCallbackMissingCourse(t *testing.T) {
	h := newPaymentHarness(t)
	ctx := context.Background()
	h.seedPending(t, "TXNCART", h.student.ID, "798.00", h.paid.ID, h.bundle.ID)

	require.NoError(t, h.db.Delete(&model.Course{}, h.bundle.ID).Error)

	out := h.svc.HandleCallback(ctx, signedCallback("TXNCART", "success", "798.00"))
	assert.True(t, out.Success, "the buyer still lands on the success page")
	assert.Equal(t, 1, h.enrollmentCount(t, h.paid.ID))
}

type failingLocker struct{}

func (failingLocker) Lock(context.Context, string) (func(), error) {
	return nil, cache.ErrLockNotAcquired
}

func TestPaymentService_HandleCallbackWithoutLock(t *testing.T) {
	h := newPaymentHarness(t, WithLocker(failingLocker{}))
	h.seedPending(t, "TXN123", h.student.ID, "499.00", h.paid.ID)

	out := h.svc.HandleCallback(context.Background(), signedCallback("TXN123", "success", "499.00"))
	assert.True(t, out.Success)
	assert.Equal(t, 1, h.enrollmentCount(t, h.paid.ID))
}

type panickingPublisher struct{ events.NopPublisher }

func (panickingPublisher) PublishPayment(context.Context, events.PaymentEvent) error {
	panic("broker exploded")
}

func TestPaymentService_HandleCallbackRecoversFromPanic(t *testing.T) {
	h := newPaymentHarness(t, WithPublisher(panickingPublisher{}))
	h.seedPending(t, "TXN123", h.student.ID, "499.00", h.paid.ID)

	var out CallbackOutcome
	assert.NotPanics(t, func() {
		out = h.svc.HandleCallback(context.Background(), signedCallback("TXN123", "success", "499.00"))
	})
	assert.False(t, out.Success)
	assert.Equal(t, ReasonUnexpected, out.Reason)
	assert.Equal(t, "TXN123", out.TxnID)
}

func TestPaymentService_VerifyStatus(t *testing.T) {
	ctx := context.Background()

	t.Run("owner sees gateway status next to local status", func(t *testing.T) {
		h := newPaymentHarness(t)
		h.seedPending(t, "TXN123", h.student.ID, "499.00", h.paid.ID)

		h.gateway.On("Verify", mock.Anything, "TXN123").Return(&payu.VerificationResult{
			TxnID:         "TXN123",
			Found:         true,
			Status:        payu.StatusSuccess,
			GatewayStatus: "success",
			Amount:        "499.00",
		}, nil).Once()

		res, err := h.svc.VerifyStatus(ctx, &h.student, "TXN123")
		require.NoError(t, err)

		assert.Equal(t, payu.StatusSuccess, res.Status)
		assert.Equal(t, model.PaymentStatusPending, res.LocalStatus)
		// Verification never settles a payment
		assert.Equal(t, model.PaymentStatusPending, h.payment(t, "TXN123").Status)
		assert.Zero(t, h.enrollmentCount(t, h.paid.ID))
		h.gateway.AssertExpectations(t)
	})

	t.Run("admin may verify any payment", func(t *testing.T) {
		h := newPaymentHarness(t)
		h.seedPending(t, "TXN123", h.student.ID, "499.00", h.paid.ID)
		h.gateway.On("Verify", mock.Anything, "TXN123").Return(&payu.VerificationResult{TxnID: "TXN123", Status: payu.StatusPending}, nil)

		_, err := h.svc.VerifyStatus(ctx, &h.admin, "TXN123")
		assert.NoError(t, err)
	})

	t.Run("other users are forbidden", func(t *testing.T) {
		h := newPaymentHarness(t)
		h.seedPending(t, "TXN123", h.student.ID, "499.00", h.paid.ID)

		_, err := h.svc.VerifyStatus(ctx, &h.other, "TXN123")
		assert.ErrorIs(t, err, ErrPaymentForbidden)
		h.gateway.AssertNotCalled(t, "Verify", mock.Anything, mock.Anything)
	})

	t.Run("unknown transaction", func(t *testing.T) {
		h := newPaymentHarness(t)

		_, err := h.svc.VerifyStatus(ctx, &h.student, "TXN404")
		assert.ErrorIs(t, err, ErrPaymentNotFound)
	})

	t.Run("gateway failure is reported", func(t *testing.T) {
		h := newPaymentHarness(t)
		h.seedPending(t, "TXN123", h.student.ID, "499.00", h.paid.ID)
		h.gateway.On("Verify", mock.Anything, "TXN123").Return(nil, payu.ErrTimeout)

		_, err := h.svc.VerifyStatus(ctx, &h.student, "TXN123")
		assert.True(t, errors.Is(err, payu.ErrTimeout))
		assert.Equal(t, 1.0, testutil.ToFloat64(h.metrics.GatewayVerifyErrors.WithLabelValues("timeout")))
		assert.Equal(t, model.PaymentStatusPending, h.payment(t, "TXN123").Status)
	})
}

func TestPaymentService_ListAndStats(t *testing.T) {
	h := newPaymentHarness(t)
	ctx := context.Background()

	h.seedPending(t, "TXN1", h.student.ID, "499.00", h.paid.ID)
	h.seedPending(t, "TXN2", h.student.ID, "299.00", h.bundle.ID)
	h.seedPending(t, "TXN3", h.other.ID, "499.00", h.paid.ID)
	h.svc.HandleCallback(ctx, signedCallback("TXN1", "success", "499.00"))
	h.svc.HandleCallback(ctx, signedCallback("TXN2", "failure", "299.00"))

	mine, total, err := h.svc.List(ctx, PaymentFilter{UserID: h.student.ID})
	require.NoError(t, err)
	assert.Equal(t, int64(2), total)
	assert.Len(t, mine, 2)

	succeeded, total, err := h.svc.List(ctx, PaymentFilter{Status: model.PaymentStatusSuccess})
	require.NoError(t, err)
	assert.Equal(t, int64(1), total)
	assert.Equal(t, "TXN1", succeeded[0].TransactionID)

	stats, err := h.svc.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(3), stats.Total)
	assert.True(t, decimal.RequireFromString("499").Equal(stats.Revenue), stats.Revenue.String())
	assert.True(t, decimal.RequireFromString("499").Equal(stats.PendingValue), stats.PendingValue.String())
}

func TestPaymentService_AuditStale(t *testing.T) {
	h := newPaymentHarness(t)
	ctx := context.Background()

	old := h.seedPending(t, "TXNOLD", h.student.ID, "499.00", h.paid.ID)
	require.NoError(t, h.db.Model(&old).UpdateColumn("created_at", testNow.Add(-2*time.Hour)).Error)
	fresh := h.seedPending(t, "TXNNEW", h.student.ID, "299.00", h.bundle.ID)
	require.NoError(t, h.db.Model(&fresh).UpdateColumn("created_at", testNow.Add(-time.Minute)).Error)

	h.gateway.On("Verify", mock.Anything, "TXNOLD").Return(&payu.VerificationResult{
		TxnID: "TXNOLD", Found: true, Status: payu.StatusSuccess, GatewayStatus: "success",
	}, nil).Once()

	reports, err := h.svc.AuditStale(ctx, 30*time.Minute, 50)
	require.NoError(t, err)
	require.Len(t, reports, 1)
	assert.Equal(t, "TXNOLD", reports[0].TransactionID)
	assert.Equal(t, payu.StatusSuccess, reports[0].GatewayStatus)

	// Report only
	assert.Equal(t, model.PaymentStatusPending, h.payment(t, "TXNOLD").Status)
	assert.Equal(t, 1.0, testutil.ToFloat64(h.metrics.StalePaymentsTotal.WithLabelValues(payu.StatusSuccess)))
	h.gateway.AssertExpectations(t)
}

func TestNewTransactionID(t *testing.T) {
	id := NewTransactionID(testNow)
	assert.True(t, strings.HasPrefix(id, fmt.Sprintf("TXN%d", testNow.UnixMilli())))
	assert.Len(t, id, len(fmt.Sprintf("TXN%d", testNow.UnixMilli()))+8)
	assert.Equal(t, strings.ToUpper(id), id)
	assert.NotEqual(t, id, NewTransactionID(testNow))
}

func TestTransactionTime(t *testing.T) {
	got, ok := TransactionTime(NewTransactionID(testNow))
	require.True(t, ok)
	assert.True(t, testNow.Equal(got))

	for _, id := range []string{"", "TXN", "TXN12ab", "ORDER1740830400000ABCDEF12"} {
		_, ok := TransactionTime(id)
		assert.False(t, ok, id)
	}
}
