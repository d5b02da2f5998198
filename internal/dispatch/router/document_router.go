package router

import (
	"net/http"

	"github.com/google/uuid"

	"github.com/shepherdvovkes/reyestr/internal/auth"
	"github.com/shepherdvovkes/reyestr/internal/dispatch/model"
	"github.com/shepherdvovkes/reyestr/internal/dispatch/service"
)

type DocumentRouter struct {
	ds *service.DocumentService
	ts *service.TaskService
}

func NewDocumentRouter(ds *service.DocumentService, ts *service.TaskService) *DocumentRouter {
	return &DocumentRouter{ds: ds, ts: ts}
}

// HandleRegisterDocument handles POST /api/v1/documents/register
// Request body: RegisterDocumentDTO
// Response: RegisterDocumentResponse
func (dr *DocumentRouter) HandleRegisterDocument(w http.ResponseWriter, r *http.Request) {
	var req model.RegisterDocumentDTO
	if err := decodeValid(r, &req); err != nil {
		respondError(w, r, err)
		return
	}
	defer r.Body.Close()

	p := auth.FromContext(r.Context())
	var clientID *uuid.UUID
	if p.IsWorker() {
		id := p.ClientID
		clientID = &id
	}

	resp, err := dr.ds.Register(r.Context(), &req, clientID)
	if err != nil {
		respondError(w, r, err)
		return
	}

	respondJSON(w, http.StatusOK, resp)
}

// HandleGetDocument handles GET /api/v1/documents/{system_id}
func (dr *DocumentRouter) HandleGetDocument(w http.ResponseWriter, r *http.Request) {
	systemID, err := uuid.Parse(r.PathValue("system_id"))
	if err != nil {
		respondError(w, r, service.BadRequestError("invalid document system ID: %v", err))
		return
	}

	doc, err := dr.ds.GetBySystemID(r.Context(), systemID)
	if err != nil {
		respondError(w, r, err)
		return
	}

	respondJSON(w, http.StatusOK, doc)
}

// HandleDownloadStart handles POST /api/v1/documents/download-start
// Request body: DownloadStartDTO
// Response: current download statistics for the task.
func (dr *DocumentRouter) HandleDownloadStart(w http.ResponseWriter, r *http.Request) {
	var req model.DownloadStartDTO
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
	var clientID *uuid.UUID
	if p.IsWorker() {
		id := p.ClientID
		clientID = &id
	}

	if err := dr.ds.OpenProgress(r.Context(), &req, clientID); err != nil {
		respondError(w, r, err)
		return
	}

	stats, err := dr.ts.DownloadStatistics(r.Context(), taskID)
	if err != nil {
		respondError(w, r, err)
		return
	}

	respondJSON(w, http.StatusOK, stats)
}

// HandleDownloadComplete handles POST /api/v1/documents/download-complete
// Request body: DownloadCompleteDTO
func (dr *DocumentRouter) HandleDownloadComplete(w http.ResponseWriter, r *http.Request) {
	var req model.DownloadCompleteDTO
	if err := decodeValid(r, &req); err != nil {
		respondError(w, r, err)
		return
	}
	defer r.Body.Close()

	if err := dr.ds.CloseProgress(r.Context(), &req); err != nil {
		respondError(w, r, err)
		return
	}

	respondJSON(w, http.StatusOK, map[string]string{"message": "download recorded"})
}
