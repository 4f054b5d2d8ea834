package cron

import (
	"context"
	"fmt"
	"time"

	"github.com/sahilchouksey/course-marketplace-api/model"
	"github.com/sahilchouksey/course-marketplace-api/services/payu"
	"go.uber.org/zap"
)

const (
	JobAuditStalePayments = "audit_stale_payments"
	JobCleanupOldData     = "cleanup_old_data"

	cronLogRetention = 90 * 24 * time.Hour
)

// AuditStalePayments compares pending payments older than the configured age
// with the gateway. It reports only; callbacks remain the sole writer of
// payment status.
func (m *CronManager) AuditStalePayments() {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Minute)
	defer cancel()

	run := m.startJob(JobAuditStalePayments)

	reports, err := m.auditor.AuditStale(ctx, m.staleAfter, staleAuditLimit)
	if err != nil {
		run.fail(fmt.Errorf("audit stale payments: %w", err))
		return
	}

	byStatus := map[string]interface{}{}
	var settled []string
	errored := 0
	for _, r := range reports {
		if r.Error != "" {
			errored++
			continue
		}
		n, _ := byStatus[r.GatewayStatus].(int)
		byStatus[r.GatewayStatus] = n + 1
		if r.GatewayStatus == payu.StatusSuccess {
			settled = append(settled, r.TransactionID)
		}
	}

	if len(settled) > 0 {
		m.log.Error("Payments settled at the gateway but pending locally",
			zap.Strings("txnids", settled),
		)
	}

	run.complete(
		fmt.Sprintf("Checked %d stale payments, %d settled at gateway, %d errors", len(reports), len(settled), errored),
		map[string]interface{}{
			"checked":        len(reports),
			"errors":         errored,
			"gateway_status": byStatus,
			"settled":        settled,
		},
	)
}

// CleanupOldData removes expired blacklist entries and old cron logs
func (m *CronManager) CleanupOldData() {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Minute)
	defer cancel()

	run := m.startJob(JobCleanupOldData)

	tokens, err := m.tokens.CleanupExpiredTokens(ctx)
	if err != nil {
		run.fail(fmt.Errorf("clean token blacklist: %w", err))
		return
	}

	res := m.db.WithContext(ctx).
		Where("created_at < ?", m.now().Add(-cronLogRetention)).
		Delete(&model.CronJobLog{})
	if res.Error != nil {
		run.fail(fmt.Errorf("clean cron logs: %w", res.Error))
		return
	}

	run.complete(
		fmt.Sprintf("Removed %d expired tokens and %d old cron logs", tokens, res.RowsAffected),
		map[string]interface{}{"tokens": tokens, "cron_logs": res.RowsAffected},
	)
}
