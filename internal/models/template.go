// internal/models/template.go
package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// PromptTemplate is immutable once created. A remix is a new row whose
// ParentID points at the remixed template.
type PromptTemplate struct {
	ID                uuid.UUID                   `json:"id" gorm:"type:uuid;primaryKey"`
	OwnerID           uuid.UUID                   `json:"owner_id" gorm:"type:uuid;not null;index"`
	RootID            uuid.UUID                   `json:"root_id" gorm:"type:uuid;not null;uniqueIndex:idx_template_root_version,priority:1"`
	ParentID          *uuid.UUID                  `json:"parent_id,omitempty" gorm:"type:uuid;index"`
	Version           int                         `json:"version" gorm:"not null;uniqueIndex:idx_template_root_version,priority:2"`
	Depth             int                         `json:"depth" gorm:"not null;default:0"`
	Body              string                      `json:"body" gorm:"type:text;not null"`
	RequiredVariables datatypes.JSONSlice[string] `json:"required_variables"`
	Defaults          StringMap                   `json:"defaults"`
	BodyHash          string                      `json:"body_hash" gorm:"size:64;not null"`
	LineageHash       string                      `json:"lineage_hash" gorm:"size:64;not null"`
	CreatedAt         time.Time                   `json:"created_at" gorm:"not null;index"`
}

func (t *PromptTemplate) BeforeCreate(tx *gorm.DB) error {
	if t.ID == uuid.Nil {
		t.ID = uuid.New()
	}
	return nil
}

func (t *PromptTemplate) IsRoot() bool {
	return t.ParentID == nil
}

// HasVariable reports whether name is one of the template's placeholders.
func (t *PromptTemplate) HasVariable(name string) bool {
	for _, v := range t.RequiredVariables {
		if v == name {
			return true
		}
	}
	return false
}
