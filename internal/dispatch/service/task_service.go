package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/shepherdvovkes/reyestr/internal/cache"
	"github.com/shepherdvovkes/reyestr/internal/dispatch/model"
)

// inFlightTaskTTL caps staleness for tasks that are actively changing.
const inFlightTaskTTL = 5 * time.Second

// TaskService owns the download-task lifecycle: creation, exclusive
// assignment to clients, progress accounting, completion, cancellation and
// reclamation of stalled work.
//
// Every transition is a conditional update gated on the current status and
// holder, executed in a single short transaction, so concurrent clients are
// linearized through the store without any in-process locking.
type TaskService struct {
	db    *gorm.DB
	cache *cache.Cache
}

// NewTaskService creates a TaskService instance.
func NewTaskService(db *gorm.DB, c *cache.Cache) *TaskService {
	return &TaskService{db: db, cache: c}
}

// Create inserts a new pending task. Duplicate tasks are allowed and expected
// for re-runs; there is no uniqueness constraint across tasks.
func (s *TaskService) Create(ctx context.Context, req *model.CreateTaskDTO) (*model.DownloadTask, error) {
	if req == nil {
		return nil, BadRequestError("create request cannot be nil")
	}
	req.SearchParams.Normalize()

	conns := req.ConcurrentConnections
	if conns <= 0 {
		conns = model.DefaultConcurrentConnections
	}

	task := &model.DownloadTask{
		SearchParams:          req.SearchParams,
		StartPage:             req.StartPage,
		MaxDocuments:          req.MaxDocuments,
		ConcurrentConnections: conns,
		Status:                model.TaskStatusPending,
	}

	if err := s.db.WithContext(ctx).Create(task).Error; err != nil {
		return nil, storeError("create task", err)
	}

	slog.Info("created task",
		"task_id", task.ID,
		"start_page", task.StartPage,
		"max_documents", task.MaxDocuments,
	)

	s.cache.DeletePattern(ctx, cache.TasksSummaryPattern())
	return task, nil
}

// Request atomically claims the oldest pending task for the given client and
// transitions it to assigned. Returns (nil, nil) when the queue is empty; the
// claim is serialized through FOR UPDATE SKIP LOCKED so two concurrent
// requesters never receive the same task.
func (s *TaskService) Request(ctx context.Context, clientID uuid.UUID) (*model.DownloadTask, error) {
	var claimed *model.DownloadTask

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var task model.DownloadTask
		err := tx.
			Clauses(clause.Locking{Strength: "UPDATE", Options: "SKIP LOCKED"}).
			Where("status = ?", model.TaskStatusPending).
			Order("created_at ASC, id ASC").
			Limit(1).
			Take(&task).Error
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return nil
			}
			return storeError("select pending task", err)
		}

		now := time.Now().UTC()
		res := tx.Model(&model.DownloadTask{}).
			Where("id = ? AND status = ?", task.ID, model.TaskStatusPending).
			Updates(map[string]any{
				"status":      model.TaskStatusAssigned,
				"client_id":   clientID,
				"assigned_at": now,
				"updated_at":  now,
			})
		if res.Error != nil {
			return storeError("assign task", res.Error)
		}
		if res.RowsAffected == 0 {
			// Lost the claim race; the caller polls again after backoff.
			return nil
		}

		task.Status = model.TaskStatusAssigned
		task.ClientID = &clientID
		task.AssignedAt = &now
		task.UpdatedAt = now
		claimed = &task
		return nil
	})
	if err != nil {
		return nil, err
	}
	if claimed == nil {
		return nil, nil
	}

	slog.Info("assigned task", "task_id", claimed.ID, "client_id", clientID)

	s.cache.Delete(ctx, cache.TaskKey(claimed.ID.String()))
	s.cache.DeletePattern(ctx, cache.TasksSummaryPattern())
	return claimed, nil
}

// ReportProgress updates the counters of a task held by the given client. On
// the first report an assigned task moves to in_progress. Counter regressions
// are rejected as a conflict.
func (s *TaskService) ReportProgress(ctx context.Context, taskID, clientID uuid.UUID, counters model.TaskCounters) error {
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		task, err := lockTask(tx, taskID)
		if err != nil {
			return err
		}
		if err := requireHeldBy(task, clientID); err != nil {
			return err
		}
		if counters.Downloaded < task.DocumentsDownloaded ||
			counters.Failed < task.DocumentsFailed ||
			counters.Skipped < task.DocumentsSkipped {
			return &Error{
				Kind:    KindConflict,
				Message: "invalid progress: counters must not decrease",
				Details: fmt.Sprintf("stored %d/%d/%d, reported %d/%d/%d",
					task.DocumentsDownloaded, task.DocumentsFailed, task.DocumentsSkipped,
					counters.Downloaded, counters.Failed, counters.Skipped),
			}
		}

		now := time.Now().UTC()
		updates := map[string]any{
			"documents_downloaded": counters.Downloaded,
			"documents_failed":     counters.Failed,
			"documents_skipped":    counters.Skipped,
			"updated_at":           now,
		}
		if task.Status == model.TaskStatusAssigned {
			updates["status"] = model.TaskStatusInProgress
			updates["started_at"] = now
		}

		if err := tx.Model(&model.DownloadTask{}).Where("id = ?", task.ID).Updates(updates).Error; err != nil {
			return storeError("update task progress", err)
		}
		return nil
	})
	if err != nil {
		return err
	}

	s.cache.Delete(ctx, cache.TaskKey(taskID.String()))
	s.cache.DeletePattern(ctx, cache.TasksSummaryPattern())
	return nil
}

// Complete finalizes a task held by the given client, writing the final
// counters and bumping the client's lifetime counters inside the same
// transaction so dashboards always see a consistent pair.
func (s *TaskService) Complete(ctx context.Context, taskID, clientID uuid.UUID, req *model.CompleteTaskDTO) error {
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		task, err := lockTask(tx, taskID)
		if err != nil {
			return err
		}
		if err := requireHeldBy(task, clientID); err != nil {
			return err
		}

		now := time.Now().UTC()
		updates := map[string]any{
			"status":               model.TaskStatusCompleted,
			"completed_at":         now,
			"documents_downloaded": req.DocumentsDownloaded,
			"documents_failed":     req.DocumentsFailed,
			"documents_skipped":    req.DocumentsSkipped,
			"updated_at":           now,
		}
		if task.StartedAt == nil {
			updates["started_at"] = now
		}
		if len(req.ResultSummary) > 0 {
			updates["result_summary"] = []byte(req.ResultSummary)
		}

		if err := tx.Model(&model.DownloadTask{}).Where("id = ?", task.ID).Updates(updates).Error; err != nil {
			return storeError("complete task", err)
		}

		res := tx.Model(&model.DownloadClient{}).
			Where("id = ?", clientID).
			Updates(map[string]any{
				"total_tasks_completed":      gorm.Expr("total_tasks_completed + 1"),
				"total_documents_downloaded": gorm.Expr("total_documents_downloaded + ?", req.DocumentsDownloaded),
				"updated_at":                 now,
			})
		if res.Error != nil {
			return storeError("update client counters", res.Error)
		}
		return nil
	})
	if err != nil {
		return err
	}

	slog.Info("completed task",
		"task_id", taskID,
		"client_id", clientID,
		"downloaded", req.DocumentsDownloaded,
		"failed", req.DocumentsFailed,
	)

	s.invalidateTaskAndClient(ctx, taskID, clientID)
	return nil
}

// Fail transitions a task held by the given client to failed, records the
// error text, bumps the client's failed-task counter and flags the client
// itself as errored until its next heartbeat.
func (s *TaskService) Fail(ctx context.Context, taskID, clientID uuid.UUID, errorMessage string) error {
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		task, err := lockTask(tx, taskID)
		if err != nil {
			return err
		}
		if err := requireHeldBy(task, clientID); err != nil {
			return err
		}

		now := time.Now().UTC()
		updates := map[string]any{
			"status":        model.TaskStatusFailed,
			"completed_at":  now,
			"error_message": errorMessage,
			"updated_at":    now,
		}
		if task.StartedAt == nil {
			updates["started_at"] = now
		}
		if err := tx.Model(&model.DownloadTask{}).Where("id = ?", task.ID).Updates(updates).Error; err != nil {
			return storeError("fail task", err)
		}

		res := tx.Model(&model.DownloadClient{}).
			Where("id = ?", clientID).
			Updates(map[string]any{
				"total_tasks_failed": gorm.Expr("total_tasks_failed + 1"),
				"status":             model.ClientStatusError,
				"updated_at":         now,
			})
		if res.Error != nil {
			return storeError("update client counters", res.Error)
		}
		return nil
	})
	if err != nil {
		return err
	}

	slog.Warn("task failed", "task_id", taskID, "client_id", clientID, "error", errorMessage)

	s.invalidateTaskAndClient(ctx, taskID, clientID)
	return nil
}

// Cancel transitions a non-terminal task to cancelled. Admin only; terminal
// tasks are immutable and produce a conflict.
func (s *TaskService) Cancel(ctx context.Context, taskID uuid.UUID) error {
	now := time.Now().UTC()
	res := s.db.WithContext(ctx).Model(&model.DownloadTask{}).
		Where("id = ? AND status IN ?", taskID, []model.TaskStatus{
			model.TaskStatusPending, model.TaskStatusAssigned, model.TaskStatusInProgress,
		}).
		Updates(map[string]any{
			"status":     model.TaskStatusCancelled,
			"updated_at": now,
		})
	if res.Error != nil {
		return storeError("cancel task", res.Error)
	}
	if res.RowsAffected == 0 {
		var count int64
		if err := s.db.WithContext(ctx).Model(&model.DownloadTask{}).
			Where("id = ?", taskID).Count(&count).Error; err != nil {
			return storeError("check task", err)
		}
		if count == 0 {
			return NotFoundError("task %s not found", taskID)
		}
		return ConflictError("task %s is already in a terminal state", taskID)
	}

	slog.Info("cancelled task", "task_id", taskID)

	s.cache.Delete(ctx, cache.TaskKey(taskID.String()))
	s.cache.DeletePattern(ctx, cache.TasksSummaryPattern())
	return nil
}

// ReclaimStalled returns every assigned or in_progress task whose holding
// client has not heartbeated within the inactivity threshold back to pending.
// Reclamation is not a failure: the previous holder is not penalized and its
// registered documents stay registered.
func (s *TaskService) ReclaimStalled(ctx context.Context, inactivity time.Duration) (int64, error) {
	now := time.Now().UTC()
	cutoff := now.Add(-inactivity)

	res := s.db.WithContext(ctx).Exec(`
		UPDATE download_tasks
		SET status = 'pending', client_id = NULL, assigned_at = NULL, started_at = NULL, updated_at = ?
		WHERE status IN ('assigned', 'in_progress')
		  AND client_id IN (SELECT id FROM download_clients WHERE last_heartbeat < ?)`,
		now, cutoff)
	if res.Error != nil {
		return 0, storeError("reclaim stalled tasks", res.Error)
	}

	if res.RowsAffected > 0 {
		slog.Warn("reclaimed stalled tasks", "count", res.RowsAffected)
		s.cache.DeletePattern(ctx, cache.TasksSummaryPattern())
	}
	return res.RowsAffected, nil
}

// Get returns the full task view, read through the cache. In-flight tasks are
// cached for a few seconds only so dashboards track them closely.
func (s *TaskService) Get(ctx context.Context, taskID uuid.UUID) (*model.TaskStatusDTO, error) {
	key := cache.TaskKey(taskID.String())
	var cached model.TaskStatusDTO
	if s.cache.GetJSON(ctx, key, &cached) {
		return &cached, nil
	}

	var task model.DownloadTask
	if err := s.db.WithContext(ctx).Take(&task, "id = ?", taskID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, NotFoundError("task %s not found", taskID)
		}
		return nil, storeError("get task", err)
	}

	dto := model.TaskStatusFromModel(&task)
	ttl := s.cache.TaskTTL()
	if task.Status == model.TaskStatusAssigned || task.Status == model.TaskStatusInProgress {
		ttl = inFlightTaskTTL
	}
	s.cache.SetJSON(ctx, key, dto, ttl)
	return &dto, nil
}

// Summary lists recent tasks, optionally filtered by status, with per-status
// counts over the returned page.
func (s *TaskService) Summary(ctx context.Context, statusFilter string, limit int) (*model.TasksSummaryDTO, error) {
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	if statusFilter != "" && !model.TaskStatus(statusFilter).Valid() {
		return nil, BadRequestError("unknown status filter %q", statusFilter)
	}

	key := cache.TasksSummaryKey(statusFilter, limit)
	var cached model.TasksSummaryDTO
	if s.cache.GetJSON(ctx, key, &cached) {
		return &cached, nil
	}

	q := s.db.WithContext(ctx).Model(&model.DownloadTask{}).
		Order("created_at DESC").
		Limit(limit)
	if statusFilter != "" {
		q = q.Where("status = ?", statusFilter)
	}

	var tasks []model.DownloadTask
	if err := q.Find(&tasks).Error; err != nil {
		return nil, storeError("list tasks", err)
	}

	summary := &model.TasksSummaryDTO{
		TotalTasks: len(tasks),
		Tasks:      make([]model.TaskStatusDTO, 0, len(tasks)),
	}
	for i := range tasks {
		switch tasks[i].Status {
		case model.TaskStatusPending:
			summary.Pending++
		case model.TaskStatusAssigned:
			summary.Assigned++
		case model.TaskStatusInProgress:
			summary.InProgress++
		case model.TaskStatusCompleted:
			summary.Completed++
		case model.TaskStatusFailed:
			summary.Failed++
		case model.TaskStatusCancelled:
			summary.Cancelled++
		}
		summary.Tasks = append(summary.Tasks, model.TaskStatusFromModel(&tasks[i]))
	}

	s.cache.SetJSON(ctx, key, summary, s.cache.TaskTTL())
	return summary, nil
}

type taskIndexRow struct {
	CourtRegion     string
	InstanceType    string
	DateStart       time.Time
	DateEnd         time.Time
	TotalTasks      int
	PendingTasks    int
	AssignedTasks   int
	InProgressTasks int
	CompletedTasks  int
	FailedTasks     int
}

// Indexes groups tasks by (CourtRegion, INSType, creation date range) with
// per-status totals. These buckets are the canonical map of work the admin UI
// paginates through; tasks without both classification keys do not appear.
func (s *TaskService) Indexes(ctx context.Context) ([]model.TaskIndexDTO, error) {
	var rows []taskIndexRow
	err := s.db.WithContext(ctx).Raw(`
		SELECT
			search_params->>'CourtRegion' AS court_region,
			search_params->>'INSType' AS instance_type,
			MIN(created_at) AS date_start,
			MAX(created_at) AS date_end,
			COUNT(*) AS total_tasks,
			COUNT(CASE WHEN status = 'pending' THEN 1 END) AS pending_tasks,
			COUNT(CASE WHEN status = 'assigned' THEN 1 END) AS assigned_tasks,
			COUNT(CASE WHEN status = 'in_progress' THEN 1 END) AS in_progress_tasks,
			COUNT(CASE WHEN status = 'completed' THEN 1 END) AS completed_tasks,
			COUNT(CASE WHEN status = 'failed' THEN 1 END) AS failed_tasks
		FROM download_tasks
		WHERE search_params->>'CourtRegion' IS NOT NULL
		  AND search_params->>'INSType' IS NOT NULL
		GROUP BY search_params->>'CourtRegion', search_params->>'INSType'
		ORDER BY court_region, instance_type`).
		Scan(&rows).Error
	if err != nil {
		return nil, storeError("load task indexes", err)
	}

	indexes := make([]model.TaskIndexDTO, 0, len(rows))
	for _, row := range rows {
		indexes = append(indexes, model.TaskIndexDTO{
			CourtRegion:  row.CourtRegion,
			InstanceType: row.InstanceType,
			DateRange: model.DateRange{
				Start: row.DateStart.UTC().Format(time.RFC3339),
				End:   row.DateEnd.UTC().Format(time.RFC3339),
			},
			TotalTasks:     row.TotalTasks,
			PendingTasks:   row.PendingTasks,
			AssignedTasks:  row.AssignedTasks,
			InProgress:     row.InProgressTasks,
			CompletedTasks: row.CompletedTasks,
			FailedTasks:    row.FailedTasks,
		})
	}
	return indexes, nil
}

// TasksByIndex lists the tasks of one index bucket, newest first.
func (s *TaskService) TasksByIndex(ctx context.Context, courtRegion, instanceType string, dateStart, dateEnd *time.Time) ([]model.TaskStatusDTO, error) {
	if courtRegion == "" || instanceType == "" {
		return nil, BadRequestError("court_region and instance_type are required")
	}

	q := s.db.WithContext(ctx).Model(&model.DownloadTask{}).
		Where("search_params->>'CourtRegion' = ?", courtRegion).
		Where("search_params->>'INSType' = ?", instanceType)
	if dateStart != nil {
		q = q.Where("created_at >= ?", *dateStart)
	}
	if dateEnd != nil {
		q = q.Where("created_at <= ?", *dateEnd)
	}

	var tasks []model.DownloadTask
	if err := q.Order("created_at DESC").Find(&tasks).Error; err != nil {
		return nil, storeError("list tasks by index", err)
	}

	dtos := make([]model.TaskStatusDTO, 0, len(tasks))
	for i := range tasks {
		dtos = append(dtos, model.TaskStatusFromModel(&tasks[i]))
	}
	return dtos, nil
}

// DownloadStatistics computes throughput and ETA for a task from its
// per-document progress records. Speed is averaged over the ten most recent
// completions; both speed and ETA stay null until one document has completed.
func (s *TaskService) DownloadStatistics(ctx context.Context, taskID uuid.UUID) (*model.DownloadStatisticsDTO, error) {
	var task model.DownloadTask
	if err := s.db.WithContext(ctx).Take(&task, "id = ?", taskID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, NotFoundError("task %s not found", taskID)
		}
		return nil, storeError("get task", err)
	}

	var agg struct {
		StartedCount int
		AvgSeconds   *float64
	}
	err := s.db.WithContext(ctx).Raw(`
		SELECT
			COUNT(*) AS started_count,
			AVG(EXTRACT(EPOCH FROM (completed_at - started_at))) AS avg_seconds
		FROM document_download_progress
		WHERE task_id = ?`, taskID).
		Scan(&agg).Error
	if err != nil {
		return nil, storeError("aggregate download progress", err)
	}

	var recent []struct {
		Seconds float64
	}
	err = s.db.WithContext(ctx).Raw(`
		SELECT EXTRACT(EPOCH FROM (completed_at - started_at)) AS seconds
		FROM document_download_progress
		WHERE task_id = ? AND status = 'completed' AND completed_at IS NOT NULL
		ORDER BY completed_at DESC
		LIMIT 10`, taskID).
		Scan(&recent).Error
	if err != nil {
		return nil, storeError("load recent downloads", err)
	}

	stats := &model.DownloadStatisticsDTO{
		TotalDocuments:     task.MaxDocuments,
		StartedCount:       agg.StartedCount,
		CompletedCount:     task.DocumentsDownloaded,
		FailedCount:        task.DocumentsFailed,
		SkippedCount:       task.DocumentsSkipped,
		AvgDownloadSeconds: agg.AvgSeconds,
	}

	if len(recent) > 0 {
		var total float64
		for _, r := range recent {
			total += r.Seconds
		}
		avgRecent := total / float64(len(recent))
		if avgRecent > 0 {
			speed := 1.0 / avgRecent
			stats.SpeedDocsPerSecond = &speed

			remaining := task.MaxDocuments - task.DocumentsDownloaded - task.DocumentsFailed - task.DocumentsSkipped
			if remaining > 0 {
				eta := float64(remaining) / speed
				stats.ETASeconds = &eta
			}
		}
	}
	return stats, nil
}

// lockTask loads a task row under FOR UPDATE inside tx.
func lockTask(tx *gorm.DB, taskID uuid.UUID) (*model.DownloadTask, error) {
	var task model.DownloadTask
	err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
		Take(&task, "id = ?", taskID).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, NotFoundError("task %s not found", taskID)
		}
		return nil, storeError("lock task", err)
	}
	return &task, nil
}

// requireHeldBy rejects transitions on tasks the client does not currently
// hold: terminal tasks, reclaimed tasks, and tasks assigned to someone else
// all produce the same conflict so late callers discard local state and poll
// for new work.
func requireHeldBy(task *model.DownloadTask, clientID uuid.UUID) error {
	if task.Status.Terminal() {
		return ConflictError("task %s is already in terminal state %s", task.ID, task.Status)
	}
	if task.Status != model.TaskStatusAssigned && task.Status != model.TaskStatusInProgress {
		return ConflictError("task %s is not held: status is %s", task.ID, task.Status)
	}
	if task.ClientID == nil || *task.ClientID != clientID {
		return ConflictError("task %s is not held by client %s", task.ID, clientID)
	}
	return nil
}

func (s *TaskService) invalidateTaskAndClient(ctx context.Context, taskID, clientID uuid.UUID) {
	s.cache.Delete(ctx,
		cache.TaskKey(taskID.String()),
		cache.ClientStatisticsKey(clientID.String()),
	)
	s.cache.DeletePattern(ctx, cache.TasksSummaryPattern())
}
