package cron

import (
	"context"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/sahilchouksey/course-marketplace-api/model"
	"github.com/sahilchouksey/course-marketplace-api/services"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// Schedules use six fields (seconds first)
const (
	ScheduleStaleAudit = "0 */15 * * * *"
	ScheduleCleanup    = "0 0 2 * * *"

	staleAuditLimit = 50
)

// StaleAuditor checks old pending payments against the gateway
type StaleAuditor interface {
	AuditStale(ctx context.Context, olderThan time.Duration, limit int) ([]services.StaleReport, error)
}

// TokenCleaner drops blacklist rows for tokens that have expired anyway
type TokenCleaner interface {
	CleanupExpiredTokens(ctx context.Context) (int64, error)
}

// CronManager manages all scheduled cron jobs
type CronManager struct {
	cron       *cron.Cron
	db         *gorm.DB
	auditor    StaleAuditor
	tokens     TokenCleaner
	staleAfter time.Duration
	log        *zap.Logger
	now        func() time.Time
}

// NewCronManager creates a new cron manager
func NewCronManager(db *gorm.DB, auditor StaleAuditor, tokens TokenCleaner, staleAfter time.Duration, log *zap.Logger) *CronManager {
	if staleAfter <= 0 {
		staleAfter = 30 * time.Minute
	}
	return &CronManager{
		cron:       cron.New(cron.WithSeconds()),
		db:         db,
		auditor:    auditor,
		tokens:     tokens,
		staleAfter: staleAfter,
		log:        log,
		now:        time.Now,
	}
}

// Start registers the jobs and starts the scheduler
func (m *CronManager) Start() error {
	if err := m.registerJobs(); err != nil {
		return err
	}
	m.cron.Start()
	m.log.Info("Cron jobs started", zap.Int("jobs", len(m.cron.Entries())))
	return nil
}

// Stop waits for running jobs to finish or ctx to expire
func (m *CronManager) Stop(ctx context.Context) {
	done := m.cron.Stop()
	select {
	case <-done.Done():
		m.log.Info("Cron jobs stopped")
	case <-ctx.Done():
		m.log.Warn("Cron jobs still running at shutdown")
	}
}

func (m *CronManager) registerJobs() error {
	if _, err := m.cron.AddFunc(ScheduleStaleAudit, m.AuditStalePayments); err != nil {
		return err
	}
	if _, err := m.cron.AddFunc(ScheduleCleanup, m.CleanupOldData); err != nil {
		return err
	}
	return nil
}

// jobRun tracks one row in cron_job_logs
type jobRun struct {
	m   *CronManager
	log model.CronJobLog
}

func (m *CronManager) startJob(name string) *jobRun {
	run := &jobRun{m: m, log: model.CronJobLog{
		JobName:   name,
		Status:    model.CronStatusRunning,
		StartedAt: m.now(),
		Metadata:  datatypes.JSONMap{},
	}}
	if err := m.db.Create(&run.log).Error; err != nil {
		m.log.Warn("Failed to record cron job start", zap.String("job", name), zap.Error(err))
	}
	m.log.Info("Cron job started", zap.String("job", name))
	return run
}

func (r *jobRun) finish(status, message string, jobErr error, metadata map[string]interface{}) {
	completed := r.m.now()
	updates := map[string]interface{}{
		"status":       status,
		"completed_at": completed,
		"duration_ms":  completed.Sub(r.log.StartedAt).Milliseconds(),
		"message":      message,
	}
	if jobErr != nil {
		updates["error_msg"] = jobErr.Error()
	}
	if metadata != nil {
		updates["metadata"] = datatypes.JSONMap(metadata)
	}

	if r.log.ID != 0 {
		if err := r.m.db.Model(&model.CronJobLog{}).Where("id = ?", r.log.ID).Updates(updates).Error; err != nil {
			r.m.log.Warn("Failed to record cron job result", zap.String("job", r.log.JobName), zap.Error(err))
		}
	}

	if jobErr != nil {
		r.m.log.Error("Cron job failed", zap.String("job", r.log.JobName), zap.Error(jobErr))
		return
	}
	r.m.log.Info("Cron job completed", zap.String("job", r.log.JobName), zap.String("message", message))
}

func (r *jobRun) complete(message string, metadata map[string]interface{}) {
	r.finish(model.CronStatusCompleted, message, nil, metadata)
}

func (r *jobRun) fail(err error) {
	r.finish(model.CronStatusFailed, "", err, nil)
}
