package router

import (
	"net/http"

	"github.com/google/uuid"

	"github.com/shepherdvovkes/reyestr/internal/auth"
	"github.com/shepherdvovkes/reyestr/internal/dispatch/model"
	"github.com/shepherdvovkes/reyestr/internal/dispatch/service"
)

type ClientRouter struct {
	cs *service.ClientService
}

func NewClientRouter(cs *service.ClientService) *ClientRouter {
	return &ClientRouter{cs: cs}
}

// HandleRegisterClient handles POST /api/v1/clients/register
// Request body: RegisterClientDTO
// Response: RegisterClientResponse
//
// Registration is open so new workers can join, but a supplied api_key must
// match the client it was issued to.
func (cr *ClientRouter) HandleRegisterClient(w http.ResponseWriter, r *http.Request) {
	var req model.RegisterClientDTO
	if err := decodeValid(r, &req); err != nil {
		respondError(w, r, err)
		return
	}
	defer r.Body.Close()

	client, apiKey, err := cr.cs.Register(r.Context(), &req)
	if err != nil {
		respondError(w, r, err)
		return
	}

	respondJSON(w, http.StatusOK, model.RegisterClientResponse{
		ClientID: client.ID.String(),
		APIKey:   apiKey,
		Message:  "client registered",
	})
}

// HandleHeartbeat handles POST /api/v1/clients/heartbeat
// The calling worker is identified by its API key; no body needed.
func (cr *ClientRouter) HandleHeartbeat(w http.ResponseWriter, r *http.Request) {
	p := auth.FromContext(r.Context())

	if err := cr.cs.Heartbeat(r.Context(), p.ClientID); err != nil {
		respondError(w, r, err)
		return
	}

	respondJSON(w, http.StatusOK, map[string]string{"message": "heartbeat recorded"})
}

// HandleGetClients handles GET /api/v1/clients
func (cr *ClientRouter) HandleGetClients(w http.ResponseWriter, r *http.Request) {
	clients, err := cr.cs.List(r.Context())
	if err != nil {
		respondError(w, r, err)
		return
	}

	respondJSON(w, http.StatusOK, clients)
}

// HandleGetMyStatistics handles GET /api/v1/clients/me/statistics
// Alias for workers: the client is resolved from the caller's API key.
func (cr *ClientRouter) HandleGetMyStatistics(w http.ResponseWriter, r *http.Request) {
	p := auth.FromContext(r.Context())

	stats, err := cr.cs.Statistics(r.Context(), p.ClientID)
	if err != nil {
		respondError(w, r, err)
		return
	}

	respondJSON(w, http.StatusOK, stats)
}

// HandleGetClientStatistics handles GET /api/v1/clients/{id}/statistics
// Admins can read any client; a worker can read only its own.
func (cr *ClientRouter) HandleGetClientStatistics(w http.ResponseWriter, r *http.Request) {
	clientID, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		respondError(w, r, service.BadRequestError("invalid client ID: %v", err))
		return
	}

	p := auth.FromContext(r.Context())
	if !p.IsAdmin() && p.ClientID != clientID {
		respondError(w, r, service.ForbiddenError("statistics belong to another client"))
		return
	}

	stats, err := cr.cs.Statistics(r.Context(), clientID)
	if err != nil {
		respondError(w, r, err)
		return
	}

	respondJSON(w, http.StatusOK, stats)
}

// HandleGetClientActivity handles GET /api/v1/clients/{id}/activity
func (cr *ClientRouter) HandleGetClientActivity(w http.ResponseWriter, r *http.Request) {
	clientID, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		respondError(w, r, service.BadRequestError("invalid client ID: %v", err))
		return
	}

	activity, err := cr.cs.Activity(r.Context(), clientID)
	if err != nil {
		respondError(w, r, err)
		return
	}

	respondJSON(w, http.StatusOK, activity)
}
