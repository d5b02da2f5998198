package auth

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/shepherdvovkes/reyestr/internal/dispatch/model"
	"github.com/shepherdvovkes/reyestr/internal/dispatch/service"
)

const apiKeyHeader = "X-API-Key"

// ClientLookup resolves worker API keys against the store.
type ClientLookup interface {
	GetByAPIKey(ctx context.Context, apiKey string) (*model.DownloadClient, error)
}

// Middleware authenticates requests by their X-API-Key header and injects the
// resulting principal into the request context.
type Middleware struct {
	enabled  bool
	adminKey string
	clients  ClientLookup
}

// NewMiddleware creates the credential gate. When enabled is false requests
// without a usable key run as admin, which matches operating in a trusted
// network; worker keys are still resolved so worker identity keeps working.
func NewMiddleware(enabled bool, adminKey string, clients ClientLookup) *Middleware {
	return &Middleware{enabled: enabled, adminKey: adminKey, clients: clients}
}

// Authenticate resolves the caller's credential. A missing key yields an
// anonymous principal; the Require wrappers decide whether that is acceptable
// per route. A key that matches nothing is rejected outright.
func (m *Middleware) Authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		serve := func(p Principal) {
			next.ServeHTTP(w, r.WithContext(WithPrincipal(r.Context(), p)))
		}

		key := r.Header.Get(apiKeyHeader)
		if key == "" {
			if !m.enabled {
				serve(Principal{Kind: PrincipalAdmin})
				return
			}
			serve(Principal{Kind: PrincipalAnonymous})
			return
		}

		if m.adminKey != "" && key == m.adminKey {
			serve(Principal{Kind: PrincipalAdmin})
			return
		}

		client, err := m.clients.GetByAPIKey(r.Context(), key)
		if err != nil {
			if !m.enabled {
				serve(Principal{Kind: PrincipalAdmin})
				return
			}
			if service.KindOf(err) == service.KindNotFound {
				writeAuthError(w, http.StatusUnauthorized, service.KindUnauthorized, "invalid API key")
				return
			}
			slog.Error("api key lookup failed", "error", err)
			writeAuthError(w, http.StatusServiceUnavailable, service.KindStoreUnavailable, "credential store unavailable")
			return
		}

		serve(Principal{Kind: PrincipalWorker, ClientID: client.ID})
	})
}

// RequireWorker admits registered workers only.
func RequireWorker(next http.Handler) http.Handler {
	return requireKind(next, func(p Principal) bool { return p.IsWorker() })
}

// RequireAdmin admits the admin credential only.
func RequireAdmin(next http.Handler) http.Handler {
	return requireKind(next, func(p Principal) bool { return p.IsAdmin() })
}

// RequireWorkerOrAdmin admits any authenticated caller.
func RequireWorkerOrAdmin(next http.Handler) http.Handler {
	return requireKind(next, func(p Principal) bool { return p.IsWorker() || p.IsAdmin() })
}

func requireKind(next http.Handler, allowed func(Principal) bool) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		p := FromContext(r.Context())
		if allowed(p) {
			next.ServeHTTP(w, r)
			return
		}
		if p.Kind == PrincipalAnonymous {
			writeAuthError(w, http.StatusUnauthorized, service.KindUnauthorized, "missing API key")
			return
		}
		writeAuthError(w, http.StatusForbidden, service.KindForbidden, "insufficient permissions")
	})
}

func writeAuthError(w http.ResponseWriter, status int, kind service.Kind, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]any{
		"kind":    kind,
		"message": message,
	})
}
