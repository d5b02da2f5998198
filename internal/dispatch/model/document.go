package model

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Classification source tags for registered documents.
const (
	ClassificationSourceSearchParams = "search_params" // Taken from the search query that produced the document
	ClassificationSourceExtracted    = "extracted"     // Derived from the court-name string
	ClassificationSourceNone         = "none"          // Document registered unclassified
)

// Document represents a registered artifact downloaded from the court registry.
//
// SystemID is assigned on first registration of an ExternalID and never
// changes afterwards; re-registrations may only fill fields that are still
// null (merge, never overwrite).
type Document struct {
	SystemID             uuid.UUID  `gorm:"type:uuid;column:system_id;not null;primaryKey" json:"systemId"`
	ExternalID           string     `gorm:"type:varchar(64);column:external_id;not null;uniqueIndex" json:"externalId"`
	RegNumber            *string    `gorm:"type:varchar(64);column:reg_number;index" json:"regNumber,omitempty"`
	URL                  *string    `gorm:"type:text;column:url" json:"url,omitempty"`
	DecisionType         *string    `gorm:"type:varchar(128);column:decision_type" json:"decisionType,omitempty"`
	DecisionDate         *time.Time `gorm:"type:date;column:decision_date" json:"decisionDate,omitempty"`
	LawDate              *time.Time `gorm:"type:date;column:law_date" json:"lawDate,omitempty"`
	CaseType             *string    `gorm:"type:varchar(128);column:case_type" json:"caseType,omitempty"`
	CaseNumber           *string    `gorm:"type:varchar(64);column:case_number" json:"caseNumber,omitempty"`
	CourtName            *string    `gorm:"type:varchar(255);column:court_name" json:"courtName,omitempty"`
	JudgeName            *string    `gorm:"type:varchar(255);column:judge_name" json:"judgeName,omitempty"`
	CourtRegion          *string    `gorm:"type:varchar(8);column:court_region;index" json:"courtRegion,omitempty"`
	InstanceType         *string    `gorm:"type:varchar(8);column:instance_type;index" json:"instanceType,omitempty"`
	ClassificationSource *string    `gorm:"type:varchar(32);column:classification_source" json:"classificationSource,omitempty"`
	ClassificationDate   *time.Time `gorm:"type:timestamptz;column:classification_date" json:"classificationDate,omitempty"`
	DownloadTaskID       *uuid.UUID `gorm:"type:uuid;column:download_task_id;index" json:"downloadTaskId,omitempty"`
	ClientID             *uuid.UUID `gorm:"type:uuid;column:client_id;index" json:"clientId,omitempty"`
	CreatedAt            time.Time  `gorm:"type:timestamptz;column:created_at;not null" json:"createdAt"`
	UpdatedAt            time.Time  `gorm:"type:timestamptz;column:updated_at;not null" json:"updatedAt"`
}

func (d *Document) TableName() string {
	return "documents"
}

// BeforeCreate assigns the stable system ID and creation timestamps.
func (d *Document) BeforeCreate(tx *gorm.DB) (err error) {
	if d.SystemID == uuid.Nil {
		d.SystemID, err = uuid.NewRandom()
		if err != nil {
			return
		}
	}
	d.CreatedAt = time.Now().UTC()
	d.UpdatedAt = time.Now().UTC()
	return
}

// Classified reports whether both classification fields are set.
func (d *Document) Classified() bool {
	return d.CourtRegion != nil && d.InstanceType != nil
}
