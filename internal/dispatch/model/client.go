package model

import "time"

// ClientStatus represents the liveness state of a download client.
type ClientStatus string

const (
	ClientStatusActive   ClientStatus = "active"   // Heartbeating within the expected interval
	ClientStatusInactive ClientStatus = "inactive" // No heartbeat past the inactivity threshold
	ClientStatusError    ClientStatus = "error"    // Client reported a fatal failure
)

// DownloadClient represents a registered remote download worker.
//
// Identity is immutable once assigned; LastHeartbeat only moves forward in
// logical time, and the lifetime counters are updated exclusively inside the
// transaction of the task transition or document registration that caused the
// change.
type DownloadClient struct {
	BaseModel
	ClientName               string       `gorm:"type:varchar(255);column:client_name;not null" json:"clientName"`
	ClientHost               *string      `gorm:"type:varchar(255);column:client_host" json:"clientHost,omitempty"`
	APIKey                   *string      `gorm:"type:varchar(128);column:api_key;uniqueIndex" json:"-"`
	Status                   ClientStatus `gorm:"type:varchar(20);column:status;not null;default:'active'" json:"status"`
	LastHeartbeat            time.Time    `gorm:"type:timestamptz;column:last_heartbeat;not null" json:"lastHeartbeat"`
	SessionStartedAt         time.Time    `gorm:"type:timestamptz;column:session_started_at;not null" json:"sessionStartedAt"`
	TotalTasksCompleted      int64        `gorm:"column:total_tasks_completed;not null" json:"totalTasksCompleted"`
	TotalTasksFailed         int64        `gorm:"column:total_tasks_failed;not null" json:"totalTasksFailed"`
	TotalDocumentsDownloaded int64        `gorm:"column:total_documents_downloaded;not null" json:"totalDocumentsDownloaded"`
}

func (c *DownloadClient) TableName() string {
	return "download_clients"
}
