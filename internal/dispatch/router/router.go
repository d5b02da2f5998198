package router

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/shepherdvovkes/reyestr/internal/auth"
	"github.com/shepherdvovkes/reyestr/internal/config"
	"github.com/shepherdvovkes/reyestr/internal/dispatch/service"
)

// Router wires the dispatch API surface onto a ServeMux. All endpoints live
// under /api/v1; route access is enforced per pattern by the auth wrappers.
type Router struct {
	tasks     *TaskRouter
	clients   *ClientRouter
	documents *DocumentRouter
}

func New(ts *service.TaskService, cs *service.ClientService, ds *service.DocumentService, cfg config.TaskConfig) *Router {
	return &Router{
		tasks:     NewTaskRouter(ts, cfg),
		clients:   NewClientRouter(cs),
		documents: NewDocumentRouter(ds, ts),
	}
}

// Handler builds the full HTTP handler: routes, per-route authorization, the
// credential gate, the per-request deadline, and request logging, outermost
// last.
func (rt *Router) Handler(gate *auth.Middleware, requestTimeout time.Duration) http.Handler {
	mux := http.NewServeMux()

	worker := func(h http.HandlerFunc) http.Handler { return auth.RequireWorker(h) }
	admin := func(h http.HandlerFunc) http.Handler { return auth.RequireAdmin(h) }
	shared := func(h http.HandlerFunc) http.Handler { return auth.RequireWorkerOrAdmin(h) }

	mux.Handle("POST /api/v1/tasks/create", admin(rt.tasks.HandleCreateTask))
	mux.Handle("POST /api/v1/tasks/request", worker(rt.tasks.HandleRequestTask))
	mux.Handle("POST /api/v1/tasks/progress", worker(rt.tasks.HandleReportProgress))
	mux.Handle("POST /api/v1/tasks/complete", worker(rt.tasks.HandleCompleteTask))
	mux.Handle("POST /api/v1/tasks/fail", worker(rt.tasks.HandleFailTask))
	mux.Handle("POST /api/v1/tasks/cancel", admin(rt.tasks.HandleCancelTask))
	mux.Handle("POST /api/v1/tasks/reset-stale", admin(rt.tasks.HandleResetStale))
	mux.Handle("GET /api/v1/tasks", admin(rt.tasks.HandleGetTasks))
	mux.Handle("GET /api/v1/tasks/indexes", admin(rt.tasks.HandleGetTaskIndexes))
	mux.Handle("GET /api/v1/tasks/by-index", admin(rt.tasks.HandleGetTasksByIndex))
	mux.Handle("GET /api/v1/tasks/{id}", admin(rt.tasks.HandleGetTask))
	mux.Handle("GET /api/v1/tasks/{id}/download-statistics", shared(rt.tasks.HandleDownloadStatistics))

	mux.Handle("POST /api/v1/documents/register", worker(rt.documents.HandleRegisterDocument))
	mux.Handle("POST /api/v1/documents/download-start", worker(rt.documents.HandleDownloadStart))
	mux.Handle("POST /api/v1/documents/download-complete", worker(rt.documents.HandleDownloadComplete))
	mux.Handle("GET /api/v1/documents/{system_id}", shared(rt.documents.HandleGetDocument))

	mux.HandleFunc("POST /api/v1/clients/register", rt.clients.HandleRegisterClient)
	mux.Handle("POST /api/v1/clients/heartbeat", worker(rt.clients.HandleHeartbeat))
	mux.Handle("GET /api/v1/clients", admin(rt.clients.HandleGetClients))
	mux.Handle("GET /api/v1/clients/me/statistics", worker(rt.clients.HandleGetMyStatistics))
	mux.Handle("GET /api/v1/clients/{id}/statistics", shared(rt.clients.HandleGetClientStatistics))
	mux.Handle("GET /api/v1/clients/{id}/activity", admin(rt.clients.HandleGetClientActivity))

	mux.HandleFunc("GET /api/v1/health", HandleHealth)

	return logRequests(withDeadline(requestTimeout, gate.Authenticate(mux)))
}

// withDeadline bounds every request with a wall-clock deadline. Store calls
// inherit it through the request context, so a stalled query fails as Timeout
// and the surrounding transaction rolls back instead of parking the handler.
func withDeadline(d time.Duration, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), d)
		defer cancel()
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// HandleHealth handles GET /api/v1/health
func HandleHealth(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (sr *statusRecorder) WriteHeader(status int) {
	sr.status = status
	sr.ResponseWriter.WriteHeader(status)
}

func logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		slog.Info("request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", rec.status,
			"duration", time.Since(start))
	})
}
