package model

import (
	"time"

	"github.com/google/uuid"
)

// ProgressStatus represents the state of a single document download attempt.
type ProgressStatus string

const (
	ProgressStatusInProgress ProgressStatus = "in_progress"
	ProgressStatusCompleted  ProgressStatus = "completed"
	ProgressStatusFailed     ProgressStatus = "failed"
)

// Valid reports whether s is a known progress status.
func (s ProgressStatus) Valid() bool {
	switch s {
	case ProgressStatusInProgress, ProgressStatusCompleted, ProgressStatusFailed:
		return true
	}
	return false
}

// DocumentProgress tracks one download attempt of one document within one
// task. The (task, document) pair is unique; the rows feed the throughput and
// ETA computation for live dashboards.
type DocumentProgress struct {
	TaskID      uuid.UUID      `gorm:"type:uuid;column:task_id;not null;primaryKey" json:"taskId"`
	DocumentID  string         `gorm:"type:varchar(64);column:document_id;not null;primaryKey" json:"documentId"`
	RegNumber   *string        `gorm:"type:varchar(64);column:reg_number" json:"regNumber,omitempty"`
	ClientID    *uuid.UUID     `gorm:"type:uuid;column:client_id;index" json:"clientId,omitempty"`
	Status      ProgressStatus `gorm:"type:varchar(20);column:status;not null" json:"status"`
	StartedAt   time.Time      `gorm:"type:timestamptz;column:started_at;not null" json:"startedAt"`
	CompletedAt *time.Time     `gorm:"type:timestamptz;column:completed_at" json:"completedAt,omitempty"`
}

func (p *DocumentProgress) TableName() string {
	return "document_download_progress"
}
