package model

import (
	"encoding/json"
	"time"
)

// Request and response shapes for the /api/v1 surface. Field names stay in
// snake_case because the worker fleet already speaks this wire format.

// CreateTaskDTO is the admin request to enqueue a new download task.
type CreateTaskDTO struct {
	SearchParams          SearchParams `json:"search_params"`
	StartPage             int          `json:"start_page" validate:"required,min=1"`
	MaxDocuments          int          `json:"max_documents" validate:"required,min=1,max=1000"`
	ConcurrentConnections int          `json:"concurrent_connections" validate:"omitempty,min=1,max=50"`
}

// TaskCreateResponse acknowledges task creation.
type TaskCreateResponse struct {
	TaskID  string `json:"task_id"`
	Message string `json:"message"`
}

// TaskDescriptor is the task configuration handed to a client from
// /tasks/request, ready to drive its downloader.
type TaskDescriptor struct {
	TaskID                string       `json:"task_id"`
	SearchParams          SearchParams `json:"search_params"`
	StartPage             int          `json:"start_page"`
	MaxDocuments          int          `json:"max_documents"`
	ConcurrentConnections int          `json:"concurrent_connections"`
	Status                TaskStatus   `json:"status"`
}

// TaskStatusDTO is the full task view for admin reads.
type TaskStatusDTO struct {
	TaskID                string          `json:"task_id"`
	Status                TaskStatus      `json:"status"`
	SearchParams          SearchParams    `json:"search_params"`
	StartPage             int             `json:"start_page"`
	MaxDocuments          int             `json:"max_documents"`
	ConcurrentConnections int             `json:"concurrent_connections"`
	ClientID              *string         `json:"client_id,omitempty"`
	CreatedAt             time.Time       `json:"created_at"`
	AssignedAt            *time.Time      `json:"assigned_at,omitempty"`
	StartedAt             *time.Time      `json:"started_at,omitempty"`
	CompletedAt           *time.Time      `json:"completed_at,omitempty"`
	DocumentsDownloaded   int             `json:"documents_downloaded"`
	DocumentsFailed       int             `json:"documents_failed"`
	DocumentsSkipped      int             `json:"documents_skipped"`
	ErrorMessage          *string         `json:"error_message,omitempty"`
	ResultSummary         json.RawMessage `json:"result_summary,omitempty"`
}

// TaskStatusFromModel shapes a stored task into its API view.
func TaskStatusFromModel(t *DownloadTask) TaskStatusDTO {
	dto := TaskStatusDTO{
		TaskID:                t.ID.String(),
		Status:                t.Status,
		SearchParams:          t.SearchParams,
		StartPage:             t.StartPage,
		MaxDocuments:          t.MaxDocuments,
		ConcurrentConnections: t.ConcurrentConnections,
		CreatedAt:             t.CreatedAt,
		AssignedAt:            t.AssignedAt,
		StartedAt:             t.StartedAt,
		CompletedAt:           t.CompletedAt,
		DocumentsDownloaded:   t.DocumentsDownloaded,
		DocumentsFailed:       t.DocumentsFailed,
		DocumentsSkipped:      t.DocumentsSkipped,
		ErrorMessage:          t.ErrorMessage,
		ResultSummary:         t.ResultSummary,
	}
	if t.ClientID != nil {
		s := t.ClientID.String()
		dto.ClientID = &s
	}
	return dto
}

// ReportProgressDTO is a client's periodic counter report for its held task.
type ReportProgressDTO struct {
	TaskID     string `json:"task_id" validate:"required,uuid4"`
	Downloaded int    `json:"downloaded" validate:"min=0"`
	Failed     int    `json:"failed" validate:"min=0"`
	Skipped    int    `json:"skipped" validate:"min=0"`
}

// CompleteTaskDTO finalizes a held task with its final counters.
type CompleteTaskDTO struct {
	TaskID              string          `json:"task_id" validate:"required,uuid4"`
	DocumentsDownloaded int             `json:"documents_downloaded" validate:"min=0"`
	DocumentsFailed     int             `json:"documents_failed" validate:"min=0"`
	DocumentsSkipped    int             `json:"documents_skipped" validate:"min=0"`
	ResultSummary       json.RawMessage `json:"result_summary,omitempty"`
}

// FailTaskDTO reports a fatal task failure from its holding client.
type FailTaskDTO struct {
	TaskID       string `json:"task_id" validate:"required,uuid4"`
	ErrorMessage string `json:"error_message" validate:"required"`
}

// CancelTaskDTO is the admin request to cancel a non-terminal task.
type CancelTaskDTO struct {
	TaskID string `json:"task_id" validate:"required,uuid4"`
}

// TasksSummaryDTO is the aggregate task-list view for dashboards.
type TasksSummaryDTO struct {
	TotalTasks int             `json:"total_tasks"`
	Pending    int             `json:"pending"`
	Assigned   int             `json:"assigned"`
	InProgress int             `json:"in_progress"`
	Completed  int             `json:"completed"`
	Failed     int             `json:"failed"`
	Cancelled  int             `json:"cancelled"`
	Tasks      []TaskStatusDTO `json:"tasks"`
}

// DateRange bounds a task-index bucket by task creation time.
type DateRange struct {
	Start string `json:"start"`
	End   string `json:"end"`
}

// TaskIndexDTO is one bucket of the (region, instance, date-range) task map.
type TaskIndexDTO struct {
	CourtRegion    string    `json:"court_region"`
	InstanceType   string    `json:"instance_type"`
	DateRange      DateRange `json:"date_range"`
	TotalTasks     int       `json:"total_tasks"`
	PendingTasks   int       `json:"pending_tasks"`
	AssignedTasks  int       `json:"assigned_tasks"`
	InProgress     int       `json:"in_progress_tasks"`
	CompletedTasks int       `json:"completed_tasks"`
	FailedTasks    int       `json:"failed_tasks"`
}

// RegisterClientDTO registers a download client or re-attaches an existing one.
type RegisterClientDTO struct {
	ClientName string  `json:"client_name" validate:"required,max=255"`
	ClientHost *string `json:"client_host,omitempty" validate:"omitempty,max=255"`
	APIKey     *string `json:"api_key,omitempty" validate:"omitempty,min=16,max=128"`
}

// RegisterClientResponse returns the client identity and its API key.
type RegisterClientResponse struct {
	ClientID string `json:"client_id"`
	APIKey   string `json:"api_key"`
	Message  string `json:"message"`
}

// DocumentMetadataDTO is the metadata payload a client extracted for one
// downloaded document. Dates arrive as DD.MM.YYYY strings.
type DocumentMetadataDTO struct {
	ExternalID   string `json:"external_id" validate:"omitempty,max=64"`
	RegNumber    string `json:"reg_number" validate:"omitempty,max=64"`
	URL          string `json:"url" validate:"omitempty,max=2048"`
	CourtName    string `json:"court_name" validate:"omitempty,max=255"`
	JudgeName    string `json:"judge_name" validate:"omitempty,max=255"`
	DecisionType string `json:"decision_type" validate:"omitempty,max=128"`
	DecisionDate string `json:"decision_date" validate:"omitempty,max=10"`
	LawDate      string `json:"law_date" validate:"omitempty,max=10"`
	CaseType     string `json:"case_type" validate:"omitempty,max=128"`
	CaseNumber   string `json:"case_number" validate:"omitempty,max=64"`
}

// RegisterDocumentDTO registers one downloaded document.
type RegisterDocumentDTO struct {
	Metadata     DocumentMetadataDTO `json:"metadata" validate:"required"`
	TaskID       *string             `json:"task_id,omitempty" validate:"omitempty,uuid4"`
	SearchParams *SearchParams       `json:"search_params,omitempty"`
}

// Classification is the (region, instance) pair with its source tag.
type Classification struct {
	CourtRegion  string `json:"court_region,omitempty"`
	InstanceType string `json:"instance_type,omitempty"`
	Source       string `json:"source"`
}

// RegisterDocumentResponse acknowledges a registration with the stable system
// ID and the classification outcome.
type RegisterDocumentResponse struct {
	SystemID       string          `json:"system_id"`
	ExternalID     string          `json:"external_id"`
	RegNumber      string          `json:"reg_number,omitempty"`
	Classified     bool            `json:"classified"`
	Classification *Classification `json:"classification,omitempty"`
	Message        string          `json:"message"`
}

// DownloadStartDTO opens a per-document progress record.
type DownloadStartDTO struct {
	TaskID     string `json:"task_id" validate:"required,uuid4"`
	DocumentID string `json:"document_id" validate:"required,max=64"`
	RegNumber  string `json:"reg_number" validate:"omitempty,max=64"`
}

// DownloadCompleteDTO closes a per-document progress record.
type DownloadCompleteDTO struct {
	TaskID     string         `json:"task_id" validate:"required,uuid4"`
	DocumentID string         `json:"document_id" validate:"required,max=64"`
	Status     ProgressStatus `json:"status" validate:"required,oneof=completed failed"`
}

// DownloadStatisticsDTO is the per-task throughput snapshot: average document
// time, speed over recent completions, and the ETA for the remainder. Speed
// and ETA are null until at least one document has completed.
type DownloadStatisticsDTO struct {
	TotalDocuments     int      `json:"total_documents"`
	StartedCount       int      `json:"started_count"`
	CompletedCount     int      `json:"completed_count"`
	FailedCount        int      `json:"failed_count"`
	SkippedCount       int      `json:"skipped_count"`
	AvgDownloadSeconds *float64 `json:"avg_download_time_seconds,omitempty"`
	SpeedDocsPerSecond *float64 `json:"download_speed_docs_per_second,omitempty"`
	ETASeconds         *float64 `json:"estimated_time_remaining_seconds,omitempty"`
}

// ClientSummaryDTO is one row of the client list.
type ClientSummaryDTO struct {
	ClientID                 string       `json:"client_id"`
	ClientName               string       `json:"client_name"`
	ClientHost               *string      `json:"client_host,omitempty"`
	Status                   ClientStatus `json:"status"`
	LastHeartbeat            time.Time    `json:"last_heartbeat"`
	TotalTasksCompleted      int64        `json:"total_tasks_completed"`
	TotalTasksFailed         int64        `json:"total_tasks_failed"`
	TotalDocumentsDownloaded int64        `json:"total_documents_downloaded"`
	CreatedAt                time.Time    `json:"created_at"`
}

// ClientSummaryFromModel shapes a stored client into its API view.
func ClientSummaryFromModel(c *DownloadClient) ClientSummaryDTO {
	return ClientSummaryDTO{
		ClientID:                 c.ID.String(),
		ClientName:               c.ClientName,
		ClientHost:               c.ClientHost,
		Status:                   c.Status,
		LastHeartbeat:            c.LastHeartbeat,
		TotalTasksCompleted:      c.TotalTasksCompleted,
		TotalTasksFailed:         c.TotalTasksFailed,
		TotalDocumentsDownloaded: c.TotalDocumentsDownloaded,
		CreatedAt:                c.CreatedAt,
	}
}

// ClientsSummaryDTO is the aggregate client list.
type ClientsSummaryDTO struct {
	TotalClients  int                `json:"total_clients"`
	ActiveClients int                `json:"active_clients"`
	Clients       []ClientSummaryDTO `json:"clients"`
}

// TaskStatisticsDTO buckets a client's tasks by status and sums its document
// counters over completed tasks.
type TaskStatisticsDTO struct {
	TotalTasks        int        `json:"total_tasks"`
	PendingTasks      int        `json:"pending_tasks"`
	AssignedTasks     int        `json:"assigned_tasks"`
	InProgressTasks   int        `json:"in_progress_tasks"`
	CompletedTasks    int        `json:"completed_tasks"`
	FailedTasks       int        `json:"failed_tasks"`
	CancelledTasks    int        `json:"cancelled_tasks"`
	DocsDownloaded    int64      `json:"total_docs_from_tasks"`
	DocsFailed        int64      `json:"total_docs_failed"`
	DocsSkipped       int64      `json:"total_docs_skipped"`
	FirstTaskDate     *time.Time `json:"first_task_date,omitempty"`
	LastCompletedDate *time.Time `json:"last_task_date,omitempty"`
}

// DocumentStatisticsDTO summarizes a client's registered documents.
type DocumentStatisticsDTO struct {
	TotalDocuments      int        `json:"total_documents"`
	UniqueRegions       int        `json:"unique_regions"`
	UniqueInstanceTypes int        `json:"unique_instance_types"`
	UniqueCaseTypes     int        `json:"unique_case_types"`
	ClassifiedDocuments int        `json:"classified_documents"`
	FirstDocumentDate   *time.Time `json:"first_document_date,omitempty"`
	LastDocumentDate    *time.Time `json:"last_document_date,omitempty"`
}

// ClientStatisticsDTO is the full statistics view for one client.
type ClientStatisticsDTO struct {
	Client             ClientSummaryDTO      `json:"client"`
	TaskStatistics     TaskStatisticsDTO     `json:"task_statistics"`
	DocumentStatistics DocumentStatisticsDTO `json:"document_statistics"`
}

// CurrentTaskActivityDTO describes the task a client is working on right now.
type CurrentTaskActivityDTO struct {
	TaskID              string       `json:"task_id"`
	SearchParams        SearchParams `json:"search_params"`
	StartPage           int          `json:"start_page"`
	MaxDocuments        int          `json:"max_documents"`
	Status              TaskStatus   `json:"status"`
	StartedAt           *time.Time   `json:"started_at,omitempty"`
	DocumentsDownloaded int          `json:"documents_downloaded"`
	DocumentsFailed     int          `json:"documents_failed"`
	SpeedDocsPerMinute  float64      `json:"speed_docs_per_minute"`
}

// SessionStatsDTO covers the window since the client last became active.
type SessionStatsDTO struct {
	TasksCompleted      int64     `json:"tasks_completed"`
	DocumentsDownloaded int64     `json:"documents_downloaded"`
	StartTime           time.Time `json:"start_time"`
}

// LifetimeStatsDTO carries the client's lifetime counters.
type LifetimeStatsDTO struct {
	TotalTasks     int64 `json:"total_tasks"`
	TotalDocuments int64 `json:"total_documents"`
}

// RecentErrorDTO is one entry of the bounded recent-error ring.
type RecentErrorDTO struct {
	TaskID       string     `json:"task_id"`
	ErrorMessage string     `json:"error_message"`
	Timestamp    *time.Time `json:"timestamp,omitempty"`
}

// ClientActivityDTO is the live activity snapshot for one client.
type ClientActivityDTO struct {
	ClientID      string                  `json:"client_id"`
	CurrentTask   *CurrentTaskActivityDTO `json:"current_task,omitempty"`
	SessionStats  SessionStatsDTO         `json:"session_stats"`
	LifetimeStats LifetimeStatsDTO        `json:"lifetime_stats"`
	Errors        []RecentErrorDTO        `json:"errors"`
}
