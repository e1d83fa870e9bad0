// internal/models/admin.go
package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type AuditLog struct {
	ID           uuid.UUID         `json:"id" gorm:"type:uuid;primaryKey"`
	UserID       *uuid.UUID        `json:"user_id" gorm:"type:uuid;index"`
	Action       string            `json:"action" gorm:"size:100;not null;index"`
	ResourceType string            `json:"resource_type" gorm:"size:50;not null;index"`
	ResourceID   *uuid.UUID        `json:"resource_id" gorm:"type:uuid;index"`
	Status       int               `json:"status"`
	NewValues    datatypes.JSONMap `json:"new_values"`
	IPAddress    string            `json:"ip_address" gorm:"size:45"`
	UserAgent    string            `json:"user_agent" gorm:"type:text"`
	CreatedAt    time.Time         `json:"created_at" gorm:"index"`
}

func (a *AuditLog) BeforeCreate(tx *gorm.DB) error {
	if a.ID == uuid.Nil {
		a.ID = uuid.New()
	}
	return nil
}
