// internal/models/royalty.go
package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// RoyaltyEntry is one beneficiary's cut of one usage event. Amount is in
// minor currency units; entries for an event always sum to its revenue.
type RoyaltyEntry struct {
	ID               uuid.UUID `json:"id" gorm:"type:uuid;primaryKey"`
	UsageEventID     uuid.UUID `json:"usage_event_id" gorm:"type:uuid;not null;uniqueIndex:idx_royalty_event_beneficiary,priority:1"`
	BeneficiaryID    uuid.UUID `json:"beneficiary_id" gorm:"type:uuid;not null;uniqueIndex:idx_royalty_event_beneficiary,priority:2;index"`
	TemplateID       uuid.UUID `json:"template_id" gorm:"type:uuid;not null;index"`
	ShareBasisPoints int       `json:"share_basis_points" gorm:"not null"`
	Amount           int64     `json:"amount" gorm:"not null"`
	CreatedAt        time.Time `json:"created_at" gorm:"index"`
}

func (r *RoyaltyEntry) BeforeCreate(tx *gorm.DB) error {
	if r.ID == uuid.Nil {
		r.ID = uuid.New()
	}
	return nil
}

// Share is the entry's fraction of the event revenue.
func (r *RoyaltyEntry) Share() float64 {
	return float64(r.ShareBasisPoints) / FullShareBasisPoints
}

// DeadLetter parks a usage event whose royalties could not be computed.
// Rows are never deleted; a redrive stamps RedrivenAt.
type DeadLetter struct {
	ID           uuid.UUID      `json:"id" gorm:"type:uuid;primaryKey"`
	UsageEventID uuid.UUID      `json:"usage_event_id" gorm:"type:uuid;not null;uniqueIndex"`
	Consumer     string         `json:"consumer" gorm:"size:100;not null"`
	ErrorKind    DeadLetterKind `json:"error_kind" gorm:"type:varchar(30);not null;index"`
	Reason       string         `json:"reason" gorm:"type:text"`
	CreatedAt    time.Time      `json:"created_at" gorm:"index"`
	RedrivenAt   *time.Time     `json:"redriven_at"`
}

func (DeadLetter) TableName() string { return "royalty_dead_letters" }

func (d *DeadLetter) BeforeCreate(tx *gorm.DB) error {
	if d.ID == uuid.Nil {
		d.ID = uuid.New()
	}
	return nil
}
