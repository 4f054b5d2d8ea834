package model

import (
	"time"

	"gorm.io/datatypes"
)

const (
	CronStatusRunning   = "running"
	CronStatusCompleted = "completed"
	CronStatusFailed    = "failed"
)

// CronJobLog records one run of a scheduled job
type CronJobLog struct {
	ID          uint              `gorm:"primaryKey" json:"id"`
	JobName     string            `gorm:"type:varchar(100);not null;index" json:"job_name"`
	Status      string            `gorm:"type:varchar(20);not null" json:"status"`
	StartedAt   time.Time         `gorm:"not null" json:"started_at"`
	CompletedAt *time.Time        `json:"completed_at"`
	DurationMS  int64             `json:"duration_ms"`
	Message     string            `gorm:"type:text" json:"message"`
	ErrorMsg    string            `gorm:"type:text" json:"error_msg"`
	Metadata    datatypes.JSONMap `gorm:"type:json" json:"metadata"`
	CreatedAt   time.Time         `json:"created_at"`
}

func (CronJobLog) TableName() string {
	return "cron_job_logs"
}
