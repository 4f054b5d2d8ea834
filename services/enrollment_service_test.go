package services

import (
	"context"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/sahilchouksey/course-marketplace-api/model"
	"github.com/sahilchouksey/course-marketplace-api/utils/metrics"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestEnrollmentService_Grant(t *testing.T) {
	f := newFixture(t)
	m := metrics.New(prometheus.NewRegistry())
	svc := NewEnrollmentService(f.db, nil, m, zap.NewNop())
	ctx := context.Background()

	granted, err := svc.Grant(ctx, f.student.ID, f.paid.ID, nil)
	require.NoError(t, err)
	assert.True(t, granted)

	granted, err = svc.Grant(ctx, f.student.ID, f.paid.ID, nil)
	require.NoError(t, err)
	assert.False(t, granted)

	assert.Equal(t, 1, f.enrollmentCount(t, f.paid.ID))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.EntitlementsGranted))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.EntitlementsSkipped))

	_, err = svc.Grant(ctx, f.student.ID, 9999, nil)
	assert.ErrorIs(t, err, ErrCourseNotFound)
}

func TestEnrollmentService_GrantAll(t *testing.T) {
	f := newFixture(t)
	svc := NewEnrollmentService(f.db, nil, nil, zap.NewNop())
	ctx := context.Background()

	_, err := svc.Grant(ctx, f.student.ID, f.bundle.ID, nil)
	require.NoError(t, err)

	result, err := svc.GrantAll(ctx, f.student.ID, []uint{f.paid.ID, f.bundle.ID, 9999}, nil)
	require.NoError(t, err)
	assert.Equal(t, []uint{f.paid.ID}, result.Granted)
	assert.Equal(t, []uint{f.bundle.ID}, result.Skipped)
	assert.Equal(t, []uint{9999}, result.Missing)
}

func TestEnrollmentService_HasAccessHonoursExpiry(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.db.Model(&f.paid).UpdateColumn("access_days", 30).Error)

	svc := NewEnrollmentService(f.db, nil, nil, zap.NewNop())
	start := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	svc.now = func() time.Time { return start }
	ctx := context.Background()

	_, err := svc.Grant(ctx, f.student.ID, f.paid.ID, nil)
	require.NoError(t, err)

	owned, err := svc.HasAccess(ctx, f.student.ID, f.paid.ID)
	require.NoError(t, err)
	assert.True(t, owned)

	svc.now = func() time.Time { return start.AddDate(0, 0, 31) }
	owned, err = svc.HasAccess(ctx, f.student.ID, f.paid.ID)
	require.NoError(t, err)
	assert.False(t, owned)

	owned, err = svc.HasAccess(ctx, f.other.ID, f.paid.ID)
	require.NoError(t, err)
	assert.False(t, owned)
}

func TestEnrollmentService_ListForUser(t *testing.T) {
	f := newFixture(t)
	svc := NewEnrollmentService(f.db, nil, nil, zap.NewNop())
	ctx := context.Background()

	_, err := svc.GrantAll(ctx, f.student.ID, []uint{f.paid.ID, f.free.ID}, nil)
	require.NoError(t, err)

	list, err := svc.ListForUser(ctx, f.student.ID)
	require.NoError(t, err)
	require.Len(t, list, 2)
	for _, e := range list {
		assert.NotZero(t, e.Course.ID)
		assert.Equal(t, f.university.Name, e.Course.University.Name)
	}

	none, err := svc.ListForUser(ctx, f.other.ID)
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestEnrollmentService_GrantRenewsExpiredAccess(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.db.Model(&f.paid).UpdateColumn("access_days", 30).Error)

	m := metrics.New(prometheus.NewRegistry())
	svc := NewEnrollmentService(f.db, nil, m, zap.NewNop())
	start := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	svc.now = func() time.Time { return start }
	ctx := context.Background()

	granted, err := svc.Grant(ctx, f.student.ID, f.paid.ID, nil)
	require.NoError(t, err)
	require.True(t, granted)

	// still active: nothing to renew
	svc.now = func() time.Time { return start.AddDate(0, 0, 10) }
	granted, err = svc.Grant(ctx, f.student.ID, f.paid.ID, nil)
	require.NoError(t, err)
	assert.False(t, granted)

	later := start.AddDate(0, 0, 60)
	svc.now = func() time.Time { return later }
	paymentID := uint(42)
	granted, err = svc.Grant(ctx, f.student.ID, f.paid.ID, &paymentID)
	require.NoError(t, err)
	assert.True(t, granted)

	owned, err := svc.HasAccess(ctx, f.student.ID, f.paid.ID)
	require.NoError(t, err)
	assert.True(t, owned)

	var enrollment model.Enrollment
	require.NoError(t, f.db.Where("user_id = ? AND course_id = ?", f.student.ID, f.paid.ID).First(&enrollment).Error)
	if assert.NotNil(t, enrollment.ExpiresAt) {
		assert.True(t, later.AddDate(0, 0, 30).Equal(*enrollment.ExpiresAt))
	}
	if assert.NotNil(t, enrollment.PaymentID) {
		assert.Equal(t, paymentID, *enrollment.PaymentID)
	}

	assert.Equal(t, 1, f.enrollmentCount(t, f.paid.ID), "a renewal is not a new enrollment")
	assert.Equal(t, 2.0, testutil.ToFloat64(m.EntitlementsGranted))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.EntitlementsSkipped))
}
