package router

import (
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/shepherdvovkes/reyestr/internal/auth"
	"github.com/shepherdvovkes/reyestr/internal/config"
	"github.com/shepherdvovkes/reyestr/internal/dispatch/model"
	"github.com/shepherdvovkes/reyestr/internal/dispatch/service"
)

type TaskRouter struct {
	ts  *service.TaskService
	cfg config.TaskConfig
}

func NewTaskRouter(ts *service.TaskService, cfg config.TaskConfig) *TaskRouter {
	return &TaskRouter{ts: ts, cfg: cfg}
}

// HandleCreateTask handles POST /api/v1/tasks/create
// Request body: CreateTaskDTO
// Response: TaskCreateResponse
func (tr *TaskRouter) HandleCreateTask(w http.ResponseWriter, r *http.Request) {
	var req model.CreateTaskDTO
	if err := decodeValid(r, &req); err != nil {
		respondError(w, r, err)
		return
	}
	defer r.Body.Close()

	task, err := tr.ts.Create(r.Context(), &req)
	if err != nil {
		respondError(w, r, err)
		return
	}

	respondJSON(w, http.StatusCreated, model.TaskCreateResponse{
		TaskID:  task.ID.String(),
		Message: "task created",
	})
}

// HandleRequestTask handles POST /api/v1/tasks/request
// Claims the oldest pending task for the calling worker.
// Response: TaskDescriptor, or 204 when the queue is empty.
func (tr *TaskRouter) HandleRequestTask(w http.ResponseWriter, r *http.Request) {
	p := auth.FromContext(r.Context())

	task, err := tr.ts.Request(r.Context(), p.ClientID)
	if err != nil {
		respondError(w, r, err)
		return
	}
	if task == nil {
		w.WriteHeader(http.StatusNoContent)
		return
	}

	respondJSON(w, http.StatusOK, model.TaskDescriptor{
		TaskID:                task.ID.String(),
		SearchParams:          task.SearchParams,
		StartPage:             task.StartPage,
		MaxDocuments:          task.MaxDocuments,
		ConcurrentConnections: task.ConcurrentConnections,
		Status:                task.Status,
	})
}

// HandleReportProgress handles POST /api/v1/tasks/progress
// Request body: ReportProgressDTO
func (tr *TaskRouter) HandleReportProgress(w http.ResponseWriter, r *http.Request) {
	var req model.ReportProgressDTO
	if err := decodeValid(r, &req); err != nil {
		respondError(w, r, err)
		return
	}
	defer r.Body.Close()

	taskID, err := uuid.Parse(req.TaskID)
	if err != nil {
		respondError(w, r, service.BadRequestError("invalid task_id %q", req.TaskID))
		return
	}

	p := auth.FromContext(r.Context())
	counters := model.TaskCounters{Downloaded: req.Downloaded, Failed: req.Failed, Skipped: req.Skipped}
	if err := tr.ts.ReportProgress(r.Context(), taskID, p.ClientID, counters); err != nil {
		respondError(w, r, err)
		return
	}

	respondJSON(w, http.StatusOK, map[string]string{"message": "progress recorded"})
}

// HandleCompleteTask handles POST /api/v1/tasks/complete
// Request body: CompleteTaskDTO
func (tr *TaskRouter) HandleCompleteTask(w http.ResponseWriter, r *http.Request) {
	var req model.CompleteTaskDTO
	if err := decodeValid(r, &req); err != nil {
		respondError(w, r, err)
		return
	}
	defer r.Body.Close()

	taskID, err := uuid.Parse(req.TaskID)
	if err != nil {
		respondError(w, r, service.BadRequestError("invalid task_id %q", req.TaskID))
		return
	}

	p := auth.FromContext(r.Context())
	if err := tr.ts.Complete(r.Context(), taskID, p.ClientID, &req); err != nil {
		respondError(w, r, err)
		return
	}

	respondJSON(w, http.StatusOK, map[string]string{"message": "task completed"})
}

// HandleFailTask handles POST /api/v1/tasks/fail
// Request body: FailTaskDTO
func (tr *TaskRouter) HandleFailTask(w http.ResponseWriter, r *http.Request) {
	var req model.FailTaskDTO
	if err := decodeValid(r, &req); err != nil {
		respondError(w, r, err)
		return
	}
	defer r.Body.Close()

	taskID, err := uuid.Parse(req.TaskID)
	if err != nil {
		respondError(w, r, service.BadRequestError("invalid task_id %q", req.TaskID))
		return
	}

	p := auth.FromContext(r.Context())
	if err := tr.ts.Fail(r.Context(), taskID, p.ClientID, req.ErrorMessage); err != nil {
		respondError(w, r, err)
		return
	}

	respondJSON(w, http.StatusOK, map[string]string{"message": "task failed"})
}

// HandleCancelTask handles POST /api/v1/tasks/cancel
// Request body: CancelTaskDTO
func (tr *TaskRouter) HandleCancelTask(w http.ResponseWriter, r *http.Request) {
	var req model.CancelTaskDTO
	if err := decodeValid(r, &req); err != nil {
		respondError(w, r, err)
		return
	}
	defer r.Body.Close()

	taskID, err := uuid.Parse(req.TaskID)
	if err != nil {
		respondError(w, r, service.BadRequestError("invalid task_id %q", req.TaskID))
		return
	}

	if err := tr.ts.Cancel(r.Context(), taskID); err != nil {
		respondError(w, r, err)
		return
	}

	respondJSON(w, http.StatusOK, map[string]string{"message": "task cancelled"})
}

// HandleGetTasks handles GET /api/v1/tasks
// Optional query filters: status_filter, limit
func (tr *TaskRouter) HandleGetTasks(w http.ResponseWriter, r *http.Request) {
	limit := 0
	if limitStr := r.URL.Query().Get("limit"); limitStr != "" {
		parsed, err := strconv.Atoi(limitStr)
		if err != nil {
			respondError(w, r, service.BadRequestError("invalid 'limit' query parameter, must be an integer"))
			return
		}
		limit = parsed
	}

	summary, err := tr.ts.Summary(r.Context(), r.URL.Query().Get("status_filter"), limit)
	if err != nil {
		respondError(w, r, err)
		return
	}

	respondJSON(w, http.StatusOK, summary)
}

// HandleGetTask handles GET /api/v1/tasks/{id}
func (tr *TaskRouter) HandleGetTask(w http.ResponseWriter, r *http.Request) {
	taskID, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		respondError(w, r, service.BadRequestError("invalid task ID: %v", err))
		return
	}

	task, err := tr.ts.Get(r.Context(), taskID)
	if err != nil {
		respondError(w, r, err)
		return
	}

	respondJSON(w, http.StatusOK, task)
}

// HandleGetTaskIndexes handles GET /api/v1/tasks/indexes
// Response: task buckets grouped by (court_region, instance_type, date range).
func (tr *TaskRouter) HandleGetTaskIndexes(w http.ResponseWriter, r *http.Request) {
	indexes, err := tr.ts.Indexes(r.Context())
	if err != nil {
		respondError(w, r, err)
		return
	}

	respondJSON(w, http.StatusOK, map[string]any{"indexes": indexes, "total": len(indexes)})
}

// HandleGetTasksByIndex handles GET /api/v1/tasks/by-index
// Query params: court_region, instance_type; optional date_start, date_end.
func (tr *TaskRouter) HandleGetTasksByIndex(w http.ResponseWriter, r *http.Request) {
	courtRegion := r.URL.Query().Get("court_region")
	instanceType := r.URL.Query().Get("instance_type")
	if courtRegion == "" || instanceType == "" {
		respondError(w, r, service.BadRequestError("court_region and instance_type query parameters are required"))
		return
	}

	dateStart, err := parseQueryTime(r.URL.Query().Get("date_start"))
	if err != nil {
		respondError(w, r, service.BadRequestError("invalid 'date_start' query parameter: %v", err))
		return
	}
	dateEnd, err := parseQueryTime(r.URL.Query().Get("date_end"))
	if err != nil {
		respondError(w, r, service.BadRequestError("invalid 'date_end' query parameter: %v", err))
		return
	}

	tasks, err := tr.ts.TasksByIndex(r.Context(), courtRegion, instanceType, dateStart, dateEnd)
	if err != nil {
		respondError(w, r, err)
		return
	}

	respondJSON(w, http.StatusOK, map[string]any{"tasks": tasks, "total": len(tasks)})
}

// HandleDownloadStatistics handles GET /api/v1/tasks/{id}/download-statistics
func (tr *TaskRouter) HandleDownloadStatistics(w http.ResponseWriter, r *http.Request) {
	taskID, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		respondError(w, r, service.BadRequestError("invalid task ID: %v", err))
		return
	}

	stats, err := tr.ts.DownloadStatistics(r.Context(), taskID)
	if err != nil {
		respondError(w, r, err)
		return
	}

	respondJSON(w, http.StatusOK, stats)
}

// HandleResetStale handles POST /api/v1/tasks/reset-stale
// Manually runs the reclamation sweep and reports how many tasks it reset.
func (tr *TaskRouter) HandleResetStale(w http.ResponseWriter, r *http.Request) {
	reset, err := tr.ts.ReclaimStalled(r.Context(), tr.cfg.InactivityThreshold)
	if err != nil {
		respondError(w, r, err)
		return
	}

	respondJSON(w, http.StatusOK, map[string]any{
		"reset_count": reset,
		"message":     "stale tasks returned to queue",
	})
}

// parseQueryTime accepts RFC 3339 timestamps and bare YYYY-MM-DD dates.
func parseQueryTime(s string) (*time.Time, error) {
	if s == "" {
		return nil, nil
	}
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return &t, nil
	}
	t, err := time.Parse("2006-01-02", s)
	if err != nil {
		return nil, err
	}
	return &t, nil
}
