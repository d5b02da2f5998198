package model

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// TaskStatus represents the lifecycle state of a download task.
type TaskStatus string

const (
	TaskStatusPending    TaskStatus = "pending"     // Waiting in the queue
	TaskStatusAssigned   TaskStatus = "assigned"    // Claimed by exactly one client
	TaskStatusInProgress TaskStatus = "in_progress" // Client reported first progress
	TaskStatusCompleted  TaskStatus = "completed"   // Finished successfully
	TaskStatusFailed     TaskStatus = "failed"      // Client reported a fatal error
	TaskStatusCancelled  TaskStatus = "cancelled"   // Cancelled by an admin
)

// Terminal reports whether the status admits no further transitions.
func (s TaskStatus) Terminal() bool {
	return s == TaskStatusCompleted || s == TaskStatusFailed || s == TaskStatusCancelled
}

// Valid reports whether s is a known task status.
func (s TaskStatus) Valid() bool {
	switch s {
	case TaskStatusPending, TaskStatusAssigned, TaskStatusInProgress,
		TaskStatusCompleted, TaskStatusFailed, TaskStatusCancelled:
		return true
	}
	return false
}

// AllTaskStatuses lists every task status in lifecycle order.
func AllTaskStatuses() []TaskStatus {
	return []TaskStatus{
		TaskStatusPending, TaskStatusAssigned, TaskStatusInProgress,
		TaskStatusCompleted, TaskStatusFailed, TaskStatusCancelled,
	}
}

const DefaultConcurrentConnections = 5

// DownloadTask represents one unit of download work: fetch up to MaxDocuments
// documents starting at StartPage with the given search parameters.
//
// A task in assigned or in_progress is held by exactly one client; terminal
// tasks are never mutated again.
type DownloadTask struct {
	BaseModel
	ClientID              *uuid.UUID      `gorm:"type:uuid;column:client_id;index" json:"clientId,omitempty"`
	SearchParams          SearchParams    `gorm:"type:jsonb;column:search_params;serializer:json;not null" json:"searchParams"`
	StartPage             int             `gorm:"column:start_page;not null" json:"startPage"`
	MaxDocuments          int             `gorm:"column:max_documents;not null" json:"maxDocuments"`
	ConcurrentConnections int             `gorm:"column:concurrent_connections;not null;default:5" json:"concurrentConnections"`
	Status                TaskStatus      `gorm:"type:varchar(20);column:status;not null;index" json:"status"`
	AssignedAt            *time.Time      `gorm:"type:timestamptz;column:assigned_at" json:"assignedAt,omitempty"`
	StartedAt             *time.Time      `gorm:"type:timestamptz;column:started_at" json:"startedAt,omitempty"`
	CompletedAt           *time.Time      `gorm:"type:timestamptz;column:completed_at" json:"completedAt,omitempty"`
	DocumentsDownloaded   int             `gorm:"column:documents_downloaded;not null" json:"documentsDownloaded"`
	DocumentsFailed       int             `gorm:"column:documents_failed;not null" json:"documentsFailed"`
	DocumentsSkipped      int             `gorm:"column:documents_skipped;not null" json:"documentsSkipped"`
	ErrorMessage          *string         `gorm:"type:text;column:error_message" json:"errorMessage,omitempty"`
	ResultSummary         json.RawMessage `gorm:"type:jsonb;column:result_summary" json:"resultSummary,omitempty"`
}

func (t *DownloadTask) TableName() string {
	return "download_tasks"
}

// TaskCounters carries the three per-task download counters reported by a
// client. Counters are monotonically non-decreasing over a task's lifetime.
type TaskCounters struct {
	Downloaded int `json:"downloaded"`
	Failed     int `json:"failed"`
	Skipped    int `json:"skipped"`
}
