package auth

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"

	"github.com/shepherdvovkes/reyestr/internal/dispatch/model"
	"github.com/shepherdvovkes/reyestr/internal/dispatch/service"
)

type stubLookup struct {
	clients map[string]*model.DownloadClient
}

func (s *stubLookup) GetByAPIKey(_ context.Context, apiKey string) (*model.DownloadClient, error) {
	if c, ok := s.clients[apiKey]; ok {
		return c, nil
	}
	return nil, service.NotFoundError("unknown api key")
}

func capturePrincipal(dst *Principal) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		*dst = FromContext(r.Context())
		w.WriteHeader(http.StatusOK)
	})
}

func TestMiddleware_Authenticate(t *testing.T) {
	workerID := uuid.New()
	lookup := &stubLookup{clients: map[string]*model.DownloadClient{
		"worker-key": {BaseModel: model.BaseModel{ID: workerID}, ClientName: "worker-1"},
	}}

	tests := []struct {
		name       string
		enabled    bool
		header     string
		wantStatus int
		wantKind   PrincipalKind
	}{
		{
			name:       "auth disabled treats everyone as admin",
			enabled:    false,
			wantStatus: http.StatusOK,
			wantKind:   PrincipalAdmin,
		},
		{
			name:       "auth disabled still resolves worker keys",
			enabled:    false,
			header:     "worker-key",
			wantStatus: http.StatusOK,
			wantKind:   PrincipalWorker,
		},
		{
			name:       "auth disabled ignores unknown keys",
			enabled:    false,
			header:     "bogus",
			wantStatus: http.StatusOK,
			wantKind:   PrincipalAdmin,
		},
		{
			name:       "missing key is anonymous",
			enabled:    true,
			wantStatus: http.StatusOK,
			wantKind:   PrincipalAnonymous,
		},
		{
			name:       "admin key resolves to admin",
			enabled:    true,
			header:     "admin-key",
			wantStatus: http.StatusOK,
			wantKind:   PrincipalAdmin,
		},
		{
			name:       "worker key resolves to worker",
			enabled:    true,
			header:     "worker-key",
			wantStatus: http.StatusOK,
			wantKind:   PrincipalWorker,
		},
		{
			name:       "unknown key is rejected",
			enabled:    true,
			header:     "bogus",
			wantStatus: http.StatusUnauthorized,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := NewMiddleware(tt.enabled, "admin-key", lookup)

			var got Principal
			handler := m.Authenticate(capturePrincipal(&got))

			req := httptest.NewRequest(http.MethodGet, "/api/v1/tasks", nil)
			if tt.header != "" {
				req.Header.Set("X-API-Key", tt.header)
			}
			rec := httptest.NewRecorder()
			handler.ServeHTTP(rec, req)

			assert.Equal(t, tt.wantStatus, rec.Code)
			if tt.wantStatus == http.StatusOK {
				assert.Equal(t, tt.wantKind, got.Kind)
				if tt.wantKind == PrincipalWorker {
					assert.Equal(t, workerID, got.ClientID)
				}
			}
		})
	}
}

func TestRequireWrappers(t *testing.T) {
	ok := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	worker := Principal{Kind: PrincipalWorker, ClientID: uuid.New()}
	admin := Principal{Kind: PrincipalAdmin}
	anonymous := Principal{Kind: PrincipalAnonymous}

	tests := []struct {
		name      string
		wrap      func(http.Handler) http.Handler
		principal Principal
		want      int
	}{
		{"worker route admits worker", RequireWorker, worker, http.StatusOK},
		{"worker route rejects admin", RequireWorker, admin, http.StatusForbidden},
		{"worker route rejects anonymous", RequireWorker, anonymous, http.StatusUnauthorized},
		{"admin route admits admin", RequireAdmin, admin, http.StatusOK},
		{"admin route rejects worker", RequireAdmin, worker, http.StatusForbidden},
		{"admin route rejects anonymous", RequireAdmin, anonymous, http.StatusUnauthorized},
		{"shared route admits worker", RequireWorkerOrAdmin, worker, http.StatusOK},
		{"shared route admits admin", RequireWorkerOrAdmin, admin, http.StatusOK},
		{"shared route rejects anonymous", RequireWorkerOrAdmin, anonymous, http.StatusUnauthorized},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			req = req.WithContext(WithPrincipal(req.Context(), tt.principal))

			rec := httptest.NewRecorder()
			tt.wrap(ok).ServeHTTP(rec, req)
			assert.Equal(t, tt.want, rec.Code)
		})
	}
}
