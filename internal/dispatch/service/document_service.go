package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/shepherdvovkes/reyestr/internal/cache"
	"github.com/shepherdvovkes/reyestr/internal/dispatch/model"
)

// DocumentService is the document registrar: idempotent registration under a
// stable system ID, classification, and the per-document progress records that
// feed throughput estimates.
type DocumentService struct {
	db    *gorm.DB
	cache *cache.Cache
}

// NewDocumentService creates a DocumentService instance.
func NewDocumentService(db *gorm.DB, c *cache.Cache) *DocumentService {
	return &DocumentService{db: db, cache: c}
}

// Register registers one downloaded document.
//
// The first registration of an external ID creates the row and assigns its
// system ID. Later registrations merge: fields already non-null are
// preserved, null fields are filled from the incoming metadata, and the
// system ID never changes. Registering identical metadata twice is a no-op
// that leaves updated_at untouched.
//
// Classification runs inside the same transaction and its outputs are stored
// only when both fields were determined. The registering client's document
// counter is bumped in the same transaction when the document is new to it.
func (s *DocumentService) Register(ctx context.Context, req *model.RegisterDocumentDTO, clientID *uuid.UUID) (*model.RegisterDocumentResponse, error) {
	if req == nil {
		return nil, BadRequestError("register request cannot be nil")
	}

	meta := normalizeMetadata(req.Metadata)
	externalID := meta.ExternalID
	if externalID == "" {
		externalID = meta.RegNumber
	}
	if externalID == "" {
		return nil, BadRequestError("metadata must carry external_id or reg_number")
	}

	if req.SearchParams != nil {
		req.SearchParams.Normalize()
	}
	classification := ClassifyDocument(meta.CourtName, req.SearchParams)

	var taskID *uuid.UUID
	if req.TaskID != nil && *req.TaskID != "" {
		parsed, err := uuid.Parse(*req.TaskID)
		if err != nil {
			return nil, BadRequestError("invalid task_id %q", *req.TaskID)
		}
		taskID = &parsed
	}

	var doc model.Document
	countedForClient := false

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		storedTaskID := taskID
		if storedTaskID != nil {
			// A vanished task reference is dropped, not fatal: the document
			// itself is still worth keeping.
			var count int64
			if err := tx.Model(&model.DownloadTask{}).Where("id = ?", *storedTaskID).Count(&count).Error; err != nil {
				return storeError("check task reference", err)
			}
			if count == 0 {
				storedTaskID = nil
			}
		}

		err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Take(&doc, "external_id = ?", externalID).Error
		switch {
		case errors.Is(err, gorm.ErrRecordNotFound):
			doc = buildDocument(externalID, meta, classification, storedTaskID, clientID)
			if err := tx.Create(&doc).Error; err != nil {
				return storeError("create document", err)
			}
			if clientID != nil {
				countedForClient = true
			}

		case err != nil:
			return storeError("look up document", err)

		default:
			updates := mergeDocument(&doc, meta, classification, storedTaskID)
			if doc.ClientID == nil && clientID != nil {
				updates["client_id"] = *clientID
				doc.ClientID = clientID
				countedForClient = true
			}
			if len(updates) > 0 {
				updates["updated_at"] = time.Now().UTC()
				if err := tx.Model(&model.Document{}).
					Where("system_id = ?", doc.SystemID).
					Updates(updates).Error; err != nil {
					return storeError("update document", err)
				}
			}
		}

		if countedForClient {
			res := tx.Model(&model.DownloadClient{}).
				Where("id = ?", *clientID).
				Updates(map[string]any{
					"total_documents_downloaded": gorm.Expr("total_documents_downloaded + 1"),
					"updated_at":                 time.Now().UTC(),
				})
			if res.Error != nil {
				return storeError("update client document counter", res.Error)
			}
		}

		if storedTaskID != nil {
			// First registration against an assigned task starts it.
			if err := startAssignedTask(tx, *storedTaskID); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.cache.Delete(ctx, cache.DocumentKey(doc.SystemID.String()))
	if countedForClient {
		s.cache.Delete(ctx, cache.ClientStatisticsKey(clientID.String()))
	}

	resp := &model.RegisterDocumentResponse{
		SystemID:   doc.SystemID.String(),
		ExternalID: doc.ExternalID,
		Classified: doc.Classified(),
		Message:    "document registered",
	}
	if doc.RegNumber != nil {
		resp.RegNumber = *doc.RegNumber
	}
	if doc.Classified() {
		resp.Classification = &model.Classification{
			CourtRegion:  *doc.CourtRegion,
			InstanceType: *doc.InstanceType,
			Source:       *doc.ClassificationSource,
		}
	}
	return resp, nil
}

// GetBySystemID returns one registered document, read through the cache.
func (s *DocumentService) GetBySystemID(ctx context.Context, systemID uuid.UUID) (*model.Document, error) {
	key := cache.DocumentKey(systemID.String())
	var cached model.Document
	if s.cache.GetJSON(ctx, key, &cached) {
		return &cached, nil
	}

	var doc model.Document
	if err := s.db.WithContext(ctx).Take(&doc, "system_id = ?", systemID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, NotFoundError("document %s not found", systemID)
		}
		return nil, storeError("get document", err)
	}

	s.cache.SetJSON(ctx, key, doc, s.cache.DocumentTTL())
	return &doc, nil
}

// OpenProgress upserts the (task, document) progress record into in_progress.
// Re-opening an existing record restarts its clock, which keeps retried
// downloads from skewing the throughput estimate.
func (s *DocumentService) OpenProgress(ctx context.Context, req *model.DownloadStartDTO, clientID *uuid.UUID) error {
	taskID, err := uuid.Parse(req.TaskID)
	if err != nil {
		return BadRequestError("invalid task_id %q", req.TaskID)
	}

	now := time.Now().UTC()
	progress := model.DocumentProgress{
		TaskID:     taskID,
		DocumentID: req.DocumentID,
		ClientID:   clientID,
		Status:     model.ProgressStatusInProgress,
		StartedAt:  now,
	}
	if reg := strings.TrimSpace(req.RegNumber); reg != "" {
		progress.RegNumber = &reg
	}

	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var count int64
		if err := tx.Model(&model.DownloadTask{}).Where("id = ?", taskID).Count(&count).Error; err != nil {
			return storeError("check task", err)
		}
		if count == 0 {
			return NotFoundError("task %s not found", taskID)
		}

		err := tx.Clauses(clause.OnConflict{
			Columns: []clause.Column{{Name: "task_id"}, {Name: "document_id"}},
			DoUpdates: clause.Assignments(map[string]any{
				"started_at":   now,
				"status":       model.ProgressStatusInProgress,
				"completed_at": nil,
			}),
		}).Create(&progress).Error
		if err != nil {
			return storeError("upsert download progress", err)
		}

		return startAssignedTask(tx, taskID)
	})
}

// CloseProgress finalizes the (task, document) progress record with its
// outcome and completion time.
func (s *DocumentService) CloseProgress(ctx context.Context, req *model.DownloadCompleteDTO) error {
	taskID, err := uuid.Parse(req.TaskID)
	if err != nil {
		return BadRequestError("invalid task_id %q", req.TaskID)
	}
	if req.Status != model.ProgressStatusCompleted && req.Status != model.ProgressStatusFailed {
		return BadRequestError("status must be completed or failed")
	}

	now := time.Now().UTC()
	res := s.db.WithContext(ctx).Model(&model.DocumentProgress{}).
		Where("task_id = ? AND document_id = ?", taskID, req.DocumentID).
		Updates(map[string]any{
			"status":       req.Status,
			"completed_at": now,
		})
	if res.Error != nil {
		return storeError("close download progress", res.Error)
	}
	if res.RowsAffected == 0 {
		return NotFoundError("no download progress for task %s document %s", taskID, req.DocumentID)
	}
	return nil
}

// startAssignedTask flips an assigned task to in_progress on first document
// activity. Tasks in any other state are left alone.
func startAssignedTask(tx *gorm.DB, taskID uuid.UUID) error {
	now := time.Now().UTC()
	res := tx.Model(&model.DownloadTask{}).
		Where("id = ? AND status = ?", taskID, model.TaskStatusAssigned).
		Updates(map[string]any{
			"status":     model.TaskStatusInProgress,
			"started_at": now,
			"updated_at": now,
		})
	if res.Error != nil {
		return storeError("start task", res.Error)
	}
	return nil
}

// normalizeMetadata trims every metadata field so blank values behave as
// absent.
func normalizeMetadata(meta model.DocumentMetadataDTO) model.DocumentMetadataDTO {
	meta.ExternalID = strings.TrimSpace(meta.ExternalID)
	meta.RegNumber = strings.TrimSpace(meta.RegNumber)
	meta.URL = strings.TrimSpace(meta.URL)
	meta.CourtName = strings.TrimSpace(meta.CourtName)
	meta.JudgeName = strings.TrimSpace(meta.JudgeName)
	meta.DecisionType = strings.TrimSpace(meta.DecisionType)
	meta.DecisionDate = strings.TrimSpace(meta.DecisionDate)
	meta.LawDate = strings.TrimSpace(meta.LawDate)
	meta.CaseType = strings.TrimSpace(meta.CaseType)
	meta.CaseNumber = strings.TrimSpace(meta.CaseNumber)
	return meta
}

// buildDocument assembles a fresh document row from registration input.
func buildDocument(externalID string, meta model.DocumentMetadataDTO, c model.Classification, taskID, clientID *uuid.UUID) model.Document {
	doc := model.Document{
		ExternalID:     externalID,
		RegNumber:      optional(meta.RegNumber),
		URL:            optional(meta.URL),
		DecisionType:   optional(meta.DecisionType),
		DecisionDate:   parseRegistryDate(meta.DecisionDate),
		LawDate:        parseRegistryDate(meta.LawDate),
		CaseType:       optional(meta.CaseType),
		CaseNumber:     optional(meta.CaseNumber),
		CourtName:      optional(meta.CourtName),
		JudgeName:      optional(meta.JudgeName),
		DownloadTaskID: taskID,
		ClientID:       clientID,
	}
	if doc.RegNumber == nil {
		doc.RegNumber = &externalID
	}
	if classificationComplete(c) {
		now := time.Now().UTC()
		doc.CourtRegion = &c.CourtRegion
		doc.InstanceType = &c.InstanceType
		doc.ClassificationSource = &c.Source
		doc.ClassificationDate = &now
	}
	return doc
}

// mergeDocument fills null fields of the stored document from the incoming
// metadata, mutating doc in place and returning the column updates. Non-null
// stored scalars are never overwritten.
func mergeDocument(doc *model.Document, meta model.DocumentMetadataDTO, c model.Classification, taskID *uuid.UUID) map[string]any {
	updates := map[string]any{}

	fillString := func(column string, stored **string, incoming string) {
		if *stored == nil && incoming != "" {
			v := incoming
			*stored = &v
			updates[column] = v
		}
	}
	fillString("reg_number", &doc.RegNumber, meta.RegNumber)
	fillString("url", &doc.URL, meta.URL)
	fillString("decision_type", &doc.DecisionType, meta.DecisionType)
	fillString("case_type", &doc.CaseType, meta.CaseType)
	fillString("case_number", &doc.CaseNumber, meta.CaseNumber)
	fillString("court_name", &doc.CourtName, meta.CourtName)
	fillString("judge_name", &doc.JudgeName, meta.JudgeName)

	if doc.DecisionDate == nil {
		if parsed := parseRegistryDate(meta.DecisionDate); parsed != nil {
			doc.DecisionDate = parsed
			updates["decision_date"] = *parsed
		}
	}
	if doc.LawDate == nil {
		if parsed := parseRegistryDate(meta.LawDate); parsed != nil {
			doc.LawDate = parsed
			updates["law_date"] = *parsed
		}
	}

	if !doc.Classified() && classificationComplete(c) {
		now := time.Now().UTC()
		doc.CourtRegion = &c.CourtRegion
		doc.InstanceType = &c.InstanceType
		doc.ClassificationSource = &c.Source
		doc.ClassificationDate = &now
		updates["court_region"] = c.CourtRegion
		updates["instance_type"] = c.InstanceType
		updates["classification_source"] = c.Source
		updates["classification_date"] = now
	}

	if doc.DownloadTaskID == nil && taskID != nil {
		doc.DownloadTaskID = taskID
		updates["download_task_id"] = *taskID
	}

	return updates
}

func optional(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
