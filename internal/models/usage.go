// internal/models/usage.go
package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// UsageEvent is a ledger row. Sequence is the append order consumers read by;
// it is allocated from LedgerHead inside the appending transaction, so
// sequences are contiguous and become visible in order.
// RevenueAmount is in minor currency units (cents).
type UsageEvent struct {
	Sequence          uint64      `json:"sequence" gorm:"primaryKey;autoIncrement:false"`
	ID                uuid.UUID   `json:"id" gorm:"type:uuid;not null;uniqueIndex"`
	DedupKey          string      `json:"dedup_key" gorm:"size:255;not null;uniqueIndex"`
	TemplateID        uuid.UUID   `json:"template_id" gorm:"type:uuid;not null;index"`
	OccurredAt        time.Time   `json:"occurred_at" gorm:"not null;index"`
	RenderedVariables StringMap   `json:"rendered_variables"`
	RevenueAmount     int64       `json:"revenue_amount" gorm:"not null;default:0"`
	Source            UsageSource `json:"source" gorm:"type:varchar(20);not null;index"`
	CreatedAt         time.Time   `json:"created_at"`
}

func (e *UsageEvent) BeforeCreate(tx *gorm.DB) error {
	if e.ID == uuid.Nil {
		e.ID = uuid.New()
	}
	return nil
}

func (e *UsageEvent) IsMonetized() bool {
	return e.RevenueAmount > 0
}

// ConsumerCursor is the last ledger sequence a named consumer has finished.
type ConsumerCursor struct {
	Name      string    `json:"name" gorm:"size:100;primaryKey"`
	Position  uint64    `json:"position" gorm:"not null;default:0"`
	UpdatedAt time.Time `json:"updated_at"`
}

// UsageLedgerName is the LedgerHead row that allocates usage event sequences.
const UsageLedgerName = "usage_events"

// LedgerHead holds the last sequence handed out for a ledger. Appends update
// it first, so the row lock orders concurrent appends by commit.
type LedgerHead struct {
	Name     string `gorm:"size:100;primaryKey"`
	Position uint64 `gorm:"not null;default:0"`
}
