// internal/models/trending.go
package models

import (
	"time"

	"github.com/google/uuid"
)

// TrendingScore is a point-in-time view of one template's trailing window.
// It is held in memory by the trending aggregator, never persisted.
type TrendingScore struct {
	TemplateID       uuid.UUID `json:"template_id"`
	WindowUses       int64     `json:"window_uses"`
	WindowRemixes    int64     `json:"window_remixes"`
	ViralCoefficient float64   `json:"viral_coefficient"`
	DecayedScore     float64   `json:"decayed_score"`
	Viral            bool      `json:"viral"`
	CreatedAt        time.Time `json:"created_at"`
}

// LifetimeActivity counts a template's uses and direct remixes since it was created.
type LifetimeActivity struct {
	Uses    int64 `json:"uses"`
	Remixes int64 `json:"remixes"`
}
