package service

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/shepherdvovkes/reyestr/internal/cache"
	"github.com/shepherdvovkes/reyestr/internal/dispatch/model"
)

// recentErrorLimit bounds the recent-error ring in the activity snapshot.
const recentErrorLimit = 10

// ClientService owns the download-client registry: registration, heartbeat
// ingestion, the liveness sweep and the derived per-client views.
//
// There is no in-memory session state: identity is re-established from the
// credential on every call and everything else lives in the store.
type ClientService struct {
	db    *gorm.DB
	cache *cache.Cache
}

// NewClientService creates a ClientService instance.
func NewClientService(db *gorm.DB, c *cache.Cache) *ClientService {
	return &ClientService{db: db, cache: c}
}

// Register creates a download client or re-attaches an existing one. A row
// with the same name and matching API key (or both absent) is reused; a fresh
// key is generated when none was supplied. Returns the client and its key.
func (s *ClientService) Register(ctx context.Context, req *model.RegisterClientDTO) (*model.DownloadClient, string, error) {
	if req == nil || req.ClientName == "" {
		return nil, "", BadRequestError("client_name is required")
	}

	now := time.Now().UTC()

	suppliedKey := ""
	if req.APIKey != nil {
		suppliedKey = *req.APIKey
	}

	var existing model.DownloadClient
	var err error
	if suppliedKey != "" {
		err = s.db.WithContext(ctx).Take(&existing, "api_key = ?", suppliedKey).Error
		if err == nil && existing.ClientName != req.ClientName {
			// Keys are unique across workers; a key presented under another
			// name is a takeover attempt, not a re-registration.
			return nil, "", ConflictError("api key is already bound to another client")
		}
	} else {
		err = s.db.WithContext(ctx).Take(&existing, "client_name = ? AND api_key IS NULL", req.ClientName).Error
	}

	switch {
	case err == nil:
		if hbErr := s.Heartbeat(ctx, existing.ID); hbErr != nil {
			return nil, "", hbErr
		}
		key := suppliedKey
		if existing.APIKey != nil {
			key = *existing.APIKey
		}
		slog.Info("re-registered client", "client_id", existing.ID, "client_name", existing.ClientName)
		return &existing, key, nil

	case !errors.Is(err, gorm.ErrRecordNotFound):
		return nil, "", storeError("look up client", err)
	}

	key := suppliedKey
	if key == "" {
		key, err = generateAPIKey()
		if err != nil {
			return nil, "", &Error{Kind: KindInternal, Message: "failed to generate api key", Details: err.Error()}
		}
	}

	client := &model.DownloadClient{
		ClientName:       req.ClientName,
		ClientHost:       req.ClientHost,
		APIKey:           &key,
		Status:           model.ClientStatusActive,
		LastHeartbeat:    now,
		SessionStartedAt: now,
	}
	if err := s.db.WithContext(ctx).Create(client).Error; err != nil {
		return nil, "", storeError("register client", err)
	}

	slog.Info("registered client",
		"client_id", client.ID,
		"client_name", client.ClientName,
	)
	return client, key, nil
}

// Heartbeat refreshes the client's liveness and forces it back to active.
// last_heartbeat only moves forward; a new session window opens whenever the
// client returns from a non-active state.
func (s *ClientService) Heartbeat(ctx context.Context, clientID uuid.UUID) error {
	now := time.Now().UTC()
	res := s.db.WithContext(ctx).Exec(`
		UPDATE download_clients
		SET last_heartbeat = GREATEST(last_heartbeat, ?),
		    session_started_at = CASE WHEN status <> 'active' THEN ? ELSE session_started_at END,
		    status = 'active',
		    updated_at = ?
		WHERE id = ?`, now, now, now, clientID)
	if res.Error != nil {
		return storeError("update heartbeat", res.Error)
	}
	if res.RowsAffected == 0 {
		return NotFoundError("client %s not found", clientID)
	}
	return nil
}

// MarkInactive flips every active client without a heartbeat within the
// threshold to inactive. Task assignments are untouched; reclamation is the
// separate mechanism that returns their tasks to the queue.
func (s *ClientService) MarkInactive(ctx context.Context, threshold time.Duration) (int64, error) {
	now := time.Now().UTC()
	cutoff := now.Add(-threshold)

	res := s.db.WithContext(ctx).Model(&model.DownloadClient{}).
		Where("status = ? AND last_heartbeat < ?", model.ClientStatusActive, cutoff).
		Updates(map[string]any{
			"status":     model.ClientStatusInactive,
			"updated_at": now,
		})
	if res.Error != nil {
		return 0, storeError("mark clients inactive", res.Error)
	}
	if res.RowsAffected > 0 {
		slog.Info("marked clients inactive", "count", res.RowsAffected)
	}
	return res.RowsAffected, nil
}

// Get loads one client by ID.
func (s *ClientService) Get(ctx context.Context, clientID uuid.UUID) (*model.DownloadClient, error) {
	var client model.DownloadClient
	if err := s.db.WithContext(ctx).Take(&client, "id = ?", clientID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, NotFoundError("client %s not found", clientID)
		}
		return nil, storeError("get client", err)
	}
	return &client, nil
}

// GetByAPIKey resolves a worker credential to its client row. Used by the
// credential gate only.
func (s *ClientService) GetByAPIKey(ctx context.Context, apiKey string) (*model.DownloadClient, error) {
	if apiKey == "" {
		return nil, NotFoundError("empty api key")
	}
	var client model.DownloadClient
	if err := s.db.WithContext(ctx).Take(&client, "api_key = ?", apiKey).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, NotFoundError("unknown api key")
		}
		return nil, storeError("get client by api key", err)
	}
	return &client, nil
}

// List returns all registered clients, most recently heartbeating first.
func (s *ClientService) List(ctx context.Context) (*model.ClientsSummaryDTO, error) {
	var clients []model.DownloadClient
	err := s.db.WithContext(ctx).
		Order("last_heartbeat DESC").
		Find(&clients).Error
	if err != nil {
		return nil, storeError("list clients", err)
	}

	summary := &model.ClientsSummaryDTO{
		TotalClients: len(clients),
		Clients:      make([]model.ClientSummaryDTO, 0, len(clients)),
	}
	for i := range clients {
		if clients[i].Status == model.ClientStatusActive {
			summary.ActiveClients++
		}
		summary.Clients = append(summary.Clients, model.ClientSummaryFromModel(&clients[i]))
	}
	return summary, nil
}

type clientTaskStatsRow struct {
	TotalTasks        int
	PendingTasks      int
	AssignedTasks     int
	InProgressTasks   int
	CompletedTasks    int
	FailedTasks       int
	CancelledTasks    int
	DocsDownloaded    int64
	DocsFailed        int64
	DocsSkipped       int64
	FirstTaskDate     *time.Time
	LastCompletedDate *time.Time
}

type clientDocStatsRow struct {
	TotalDocuments      int
	UniqueRegions       int
	UniqueInstanceTypes int
	UniqueCaseTypes     int
	ClassifiedDocuments int
	FirstDocumentDate   *time.Time
	LastDocumentDate    *time.Time
}

// Statistics returns the derived statistics view for one client, read through
// the cache. Document counters are summed over completed tasks only so the
// numbers reconcile with the lifetime counters after a quiescent state.
func (s *ClientService) Statistics(ctx context.Context, clientID uuid.UUID) (*model.ClientStatisticsDTO, error) {
	key := cache.ClientStatisticsKey(clientID.String())
	var cached model.ClientStatisticsDTO
	if s.cache.GetJSON(ctx, key, &cached) {
		return &cached, nil
	}

	client, err := s.Get(ctx, clientID)
	if err != nil {
		return nil, err
	}

	var taskStats clientTaskStatsRow
	err = s.db.WithContext(ctx).Raw(`
		SELECT
			COUNT(*) AS total_tasks,
			COUNT(CASE WHEN status = 'pending' THEN 1 END) AS pending_tasks,
			COUNT(CASE WHEN status = 'assigned' THEN 1 END) AS assigned_tasks,
			COUNT(CASE WHEN status = 'in_progress' THEN 1 END) AS in_progress_tasks,
			COUNT(CASE WHEN status = 'completed' THEN 1 END) AS completed_tasks,
			COUNT(CASE WHEN status = 'failed' THEN 1 END) AS failed_tasks,
			COUNT(CASE WHEN status = 'cancelled' THEN 1 END) AS cancelled_tasks,
			COALESCE(SUM(CASE WHEN status = 'completed' THEN documents_downloaded ELSE 0 END), 0) AS docs_downloaded,
			COALESCE(SUM(CASE WHEN status = 'completed' THEN documents_failed ELSE 0 END), 0) AS docs_failed,
			COALESCE(SUM(CASE WHEN status = 'completed' THEN documents_skipped ELSE 0 END), 0) AS docs_skipped,
			MIN(created_at) AS first_task_date,
			MAX(completed_at) AS last_completed_date
		FROM download_tasks
		WHERE client_id = ?`, clientID).
		Scan(&taskStats).Error
	if err != nil {
		return nil, storeError("aggregate client tasks", err)
	}

	var docStats clientDocStatsRow
	err = s.db.WithContext(ctx).Raw(`
		SELECT
			COUNT(*) AS total_documents,
			COUNT(DISTINCT court_region) AS unique_regions,
			COUNT(DISTINCT instance_type) AS unique_instance_types,
			COUNT(DISTINCT case_type) AS unique_case_types,
			COUNT(CASE WHEN classification_date IS NOT NULL THEN 1 END) AS classified_documents,
			MIN(created_at) AS first_document_date,
			MAX(created_at) AS last_document_date
		FROM documents
		WHERE client_id = ?`, clientID).
		Scan(&docStats).Error
	if err != nil {
		return nil, storeError("aggregate client documents", err)
	}

	stats := &model.ClientStatisticsDTO{
		Client: model.ClientSummaryFromModel(client),
		TaskStatistics: model.TaskStatisticsDTO{
			TotalTasks:        taskStats.TotalTasks,
			PendingTasks:      taskStats.PendingTasks,
			AssignedTasks:     taskStats.AssignedTasks,
			InProgressTasks:   taskStats.InProgressTasks,
			CompletedTasks:    taskStats.CompletedTasks,
			FailedTasks:       taskStats.FailedTasks,
			CancelledTasks:    taskStats.CancelledTasks,
			DocsDownloaded:    taskStats.DocsDownloaded,
			DocsFailed:        taskStats.DocsFailed,
			DocsSkipped:       taskStats.DocsSkipped,
			FirstTaskDate:     taskStats.FirstTaskDate,
			LastCompletedDate: taskStats.LastCompletedDate,
		},
		DocumentStatistics: model.DocumentStatisticsDTO{
			TotalDocuments:      docStats.TotalDocuments,
			UniqueRegions:       docStats.UniqueRegions,
			UniqueInstanceTypes: docStats.UniqueInstanceTypes,
			UniqueCaseTypes:     docStats.UniqueCaseTypes,
			ClassifiedDocuments: docStats.ClassifiedDocuments,
			FirstDocumentDate:   docStats.FirstDocumentDate,
			LastDocumentDate:    docStats.LastDocumentDate,
		},
	}

	s.cache.SetJSON(ctx, key, stats, s.cache.StatisticsTTL())
	return stats, nil
}

// Activity returns a live snapshot for one client: the task it is working on
// with a docs-per-minute estimate, session stats since it last became active,
// lifetime counters and the last few error messages.
func (s *ClientService) Activity(ctx context.Context, clientID uuid.UUID) (*model.ClientActivityDTO, error) {
	client, err := s.Get(ctx, clientID)
	if err != nil {
		return nil, err
	}

	activity := &model.ClientActivityDTO{
		ClientID: clientID.String(),
		SessionStats: model.SessionStatsDTO{
			StartTime: client.SessionStartedAt,
		},
		LifetimeStats: model.LifetimeStatsDTO{
			TotalTasks:     client.TotalTasksCompleted,
			TotalDocuments: client.TotalDocumentsDownloaded,
		},
		Errors: []model.RecentErrorDTO{},
	}

	var current model.DownloadTask
	err = s.db.WithContext(ctx).
		Where("client_id = ? AND status IN ?", clientID, []model.TaskStatus{
			model.TaskStatusAssigned, model.TaskStatusInProgress,
		}).
		Order("assigned_at DESC").
		Limit(1).
		Take(&current).Error
	switch {
	case err == nil:
		speed := 0.0
		if current.StartedAt != nil {
			elapsedMinutes := time.Since(*current.StartedAt).Minutes()
			if elapsedMinutes > 0 {
				speed = float64(current.DocumentsDownloaded) / elapsedMinutes
			}
		}
		activity.CurrentTask = &model.CurrentTaskActivityDTO{
			TaskID:              current.ID.String(),
			SearchParams:        current.SearchParams,
			StartPage:           current.StartPage,
			MaxDocuments:        current.MaxDocuments,
			Status:              current.Status,
			StartedAt:           current.StartedAt,
			DocumentsDownloaded: current.DocumentsDownloaded,
			DocumentsFailed:     current.DocumentsFailed,
			SpeedDocsPerMinute:  speed,
		}
	case !errors.Is(err, gorm.ErrRecordNotFound):
		return nil, storeError("load current task", err)
	}

	var session struct {
		TasksCompleted      int64
		DocumentsDownloaded int64
	}
	err = s.db.WithContext(ctx).Raw(`
		SELECT
			COUNT(*) AS tasks_completed,
			COALESCE(SUM(documents_downloaded), 0) AS documents_downloaded
		FROM download_tasks
		WHERE client_id = ? AND status = 'completed' AND completed_at >= ?`,
		clientID, client.SessionStartedAt).
		Scan(&session).Error
	if err != nil {
		return nil, storeError("aggregate session stats", err)
	}
	activity.SessionStats.TasksCompleted = session.TasksCompleted
	activity.SessionStats.DocumentsDownloaded = session.DocumentsDownloaded

	var failed []model.DownloadTask
	err = s.db.WithContext(ctx).
		Where("client_id = ? AND error_message IS NOT NULL", clientID).
		Order("completed_at DESC").
		Limit(recentErrorLimit).
		Find(&failed).Error
	if err != nil {
		return nil, storeError("load recent errors", err)
	}
	for i := range failed {
		activity.Errors = append(activity.Errors, model.RecentErrorDTO{
			TaskID:       failed[i].ID.String(),
			ErrorMessage: *failed[i].ErrorMessage,
			Timestamp:    failed[i].CompletedAt,
		})
	}

	return activity, nil
}

// generateAPIKey produces a fresh 64-hex-character worker secret.
func generateAPIKey() (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("failed to read random bytes: %w", err)
	}
	return hex.EncodeToString(buf), nil
}
