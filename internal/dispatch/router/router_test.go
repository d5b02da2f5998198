package router

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/shepherdvovkes/reyestr/internal/auth"
	"github.com/shepherdvovkes/reyestr/internal/cache"
	"github.com/shepherdvovkes/reyestr/internal/config"
	"github.com/shepherdvovkes/reyestr/internal/dispatch/service"
)

func setupTestDB(t *testing.T) (*gorm.DB, sqlmock.Sqlmock) {
	t.Helper()

	sqlDB, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { sqlDB.Close() })

	db, err := gorm.Open(postgres.New(postgres.Config{
		Conn:                 sqlDB,
		PreferSimpleProtocol: true,
	}), &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	require.NoError(t, err)

	return db, mock
}

// setupHandler builds the full HTTP stack over a sqlmock database.
func setupHandler(t *testing.T, authEnabled bool) (http.Handler, sqlmock.Sqlmock) {
	t.Helper()

	db, mock := setupTestDB(t)

	c, err := cache.New(context.Background(), &config.CacheConfig{Enabled: false})
	require.NoError(t, err)

	taskCfg := config.TaskConfig{
		HeartbeatInterval:   time.Minute,
		InactivityThreshold: 3 * time.Minute,
		ReclaimInterval:     time.Minute,
		LivenessInterval:    30 * time.Second,
	}

	ts := service.NewTaskService(db, c)
	cs := service.NewClientService(db, c)
	ds := service.NewDocumentService(db, c)

	gate := auth.NewMiddleware(authEnabled, "admin-key", cs)
	return New(ts, cs, ds, taskCfg).Handler(gate, 30*time.Second), mock
}

func TestRouter_Health(t *testing.T) {
	handler, _ := setupHandler(t, true)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/health", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())
}

func TestRouter_CreateTask(t *testing.T) {
	t.Run("creates a task as admin", func(t *testing.T) {
		handler, mock := setupHandler(t, true)

		mock.ExpectBegin()
		mock.ExpectExec(`INSERT INTO "download_tasks"`).
			WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectCommit()

		body := `{"search_params":{"CourtRegion":"11","INSType":"1"},"start_page":1,"max_documents":100}`
		req := httptest.NewRequest(http.MethodPost, "/api/v1/tasks/create", strings.NewReader(body))
		req.Header.Set("X-API-Key", "admin-key")
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)

		assert.Equal(t, http.StatusCreated, rec.Code)
		assert.Contains(t, rec.Body.String(), "task_id")
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("rejects an invalid body before touching the store", func(t *testing.T) {
		handler, mock := setupHandler(t, true)

		body := `{"search_params":{},"start_page":0,"max_documents":5000}`
		req := httptest.NewRequest(http.MethodPost, "/api/v1/tasks/create", strings.NewReader(body))
		req.Header.Set("X-API-Key", "admin-key")
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)

		assert.Equal(t, http.StatusBadRequest, rec.Code)
		assert.Contains(t, rec.Body.String(), "validation failed")
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("rejects an unauthenticated caller", func(t *testing.T) {
		handler, mock := setupHandler(t, true)

		req := httptest.NewRequest(http.MethodPost, "/api/v1/tasks/create", strings.NewReader(`{}`))
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)

		assert.Equal(t, http.StatusUnauthorized, rec.Code)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("rejects a worker", func(t *testing.T) {
		handler, mock := setupHandler(t, true)

		mock.ExpectQuery(`SELECT \* FROM "download_clients" WHERE api_key = `).
			WillReturnRows(sqlmock.NewRows([]string{"id", "client_name"}).
				AddRow(uuid.NewString(), "worker-1"))

		req := httptest.NewRequest(http.MethodPost, "/api/v1/tasks/create", strings.NewReader(`{}`))
		req.Header.Set("X-API-Key", "worker-key")
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)

		assert.Equal(t, http.StatusForbidden, rec.Code)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestRouter_RequestTask_EmptyQueueReturnsNoContent(t *testing.T) {
	handler, mock := setupHandler(t, true)

	mock.ExpectQuery(`SELECT \* FROM "download_clients" WHERE api_key = `).
		WillReturnRows(sqlmock.NewRows([]string{"id", "client_name"}).
			AddRow(uuid.NewString(), "worker-1"))
	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT \* FROM "download_tasks" WHERE status = .+ FOR UPDATE SKIP LOCKED`).
		WillReturnRows(sqlmock.NewRows([]string{"id"}))
	mock.ExpectCommit()

	req := httptest.NewRequest(http.MethodPost, "/api/v1/tasks/request", nil)
	req.Header.Set("X-API-Key", "worker-key")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRouter_ClientStatistics_WorkerCannotReadOthers(t *testing.T) {
	handler, mock := setupHandler(t, true)

	mock.ExpectQuery(`SELECT \* FROM "download_clients" WHERE api_key = `).
		WillReturnRows(sqlmock.NewRows([]string{"id", "client_name"}).
			AddRow(uuid.NewString(), "worker-1"))

	other := uuid.NewString()
	req := httptest.NewRequest(http.MethodGet, "/api/v1/clients/"+other+"/statistics", nil)
	req.Header.Set("X-API-Key", "worker-key")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRouter_RequestDeadline(t *testing.T) {
	t.Run("every request context carries a wall-clock deadline", func(t *testing.T) {
		var deadline time.Time
		var ok bool
		inner := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			deadline, ok = r.Context().Deadline()
			w.WriteHeader(http.StatusOK)
		})

		rec := httptest.NewRecorder()
		withDeadline(5*time.Second, inner).
			ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/health", nil))

		require.True(t, ok)
		assert.WithinDuration(t, time.Now().Add(5*time.Second), deadline, time.Second)
	})

	t.Run("an exceeded deadline surfaces as a timeout envelope", func(t *testing.T) {
		handler, mock := setupHandler(t, true)

		mock.ExpectQuery(`SELECT \* FROM "download_tasks" WHERE id = `).
			WillReturnError(context.DeadlineExceeded)

		req := httptest.NewRequest(http.MethodGet, "/api/v1/tasks/"+uuid.NewString(), nil)
		req.Header.Set("X-API-Key", "admin-key")
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)

		assert.Equal(t, http.StatusRequestTimeout, rec.Code)
		assert.Contains(t, rec.Body.String(), `"kind":"Timeout"`)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestRouter_MyStatistics_ResolvesWorkerFromKey(t *testing.T) {
	handler, mock := setupHandler(t, true)

	clientID := uuid.NewString()
	mock.ExpectQuery(`SELECT \* FROM "download_clients" WHERE api_key = `).
		WillReturnRows(sqlmock.NewRows([]string{"id", "client_name", "status"}).
			AddRow(clientID, "worker-1", "active"))
	mock.ExpectQuery(`SELECT \* FROM "download_clients" WHERE id = `).
		WillReturnRows(sqlmock.NewRows([]string{"id", "client_name", "status"}).
			AddRow(clientID, "worker-1", "active"))
	mock.ExpectQuery(`FROM download_tasks`).
		WillReturnRows(sqlmock.NewRows([]string{"total_tasks", "completed_tasks"}).AddRow(3, 2))
	mock.ExpectQuery(`FROM documents`).
		WillReturnRows(sqlmock.NewRows([]string{"total_documents"}).AddRow(7))

	req := httptest.NewRequest(http.MethodGet, "/api/v1/clients/me/statistics", nil)
	req.Header.Set("X-API-Key", "worker-key")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), clientID)
	assert.Contains(t, rec.Body.String(), `"total_tasks":3`)
	assert.Contains(t, rec.Body.String(), `"total_documents":7`)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRouter_ErrorEnvelope(t *testing.T) {
	handler, mock := setupHandler(t, true)

	// Cancel of a terminal task surfaces the conflict envelope.
	mock.ExpectBegin()
	mock.ExpectExec(`UPDATE "download_tasks" SET`).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectCommit()
	mock.ExpectQuery(`SELECT count\(\*\) FROM "download_tasks"`).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(1))

	body := `{"task_id":"` + uuid.NewString() + `"}`
	req := httptest.NewRequest(http.MethodPost, "/api/v1/tasks/cancel", strings.NewReader(body))
	req.Header.Set("X-API-Key", "admin-key")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Contains(t, rec.Body.String(), `"kind":"Conflict"`)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestStatusForKind(t *testing.T) {
	assert.Equal(t, http.StatusBadRequest, statusForKind(service.KindBadRequest))
	assert.Equal(t, http.StatusUnauthorized, statusForKind(service.KindUnauthorized))
	assert.Equal(t, http.StatusForbidden, statusForKind(service.KindForbidden))
	assert.Equal(t, http.StatusNotFound, statusForKind(service.KindNotFound))
	assert.Equal(t, http.StatusConflict, statusForKind(service.KindConflict))
	assert.Equal(t, http.StatusRequestTimeout, statusForKind(service.KindTimeout))
	assert.Equal(t, http.StatusServiceUnavailable, statusForKind(service.KindStoreUnavailable))
	assert.Equal(t, http.StatusInternalServerError, statusForKind(service.KindInternal))
}
