// internal/services/ledger_service.go
package services

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/javajoker/remix-engine/internal/apperrors"
	"github.com/javajoker/remix-engine/internal/database"
	"github.com/javajoker/remix-engine/internal/models"
	"github.com/javajoker/remix-engine/internal/utils"
)

// LedgerService is the append-only usage ledger. Append is idempotent on the
// dedup key; readers page through events by sequence.
type LedgerService struct {
	db        *gorm.DB
	templates *TemplateService
}

type AppendUsageRequest struct {
	TemplateID        uuid.UUID          `json:"template_id" validate:"required"`
	RenderedVariables map[string]string  `json:"rendered_variables,omitempty"`
	RevenueAmount     int64              `json:"revenue_amount" validate:"min=0"`
	Source            models.UsageSource `json:"source" validate:"required,usage_source"`
	DedupKey          string             `json:"dedup_key,omitempty" validate:"max=255"`
	OccurredAt        *time.Time         `json:"occurred_at,omitempty"`
}

type UsageSearchParams struct {
	utils.PaginationParams
	TemplateID *uuid.UUID
	Source     models.UsageSource
}

type LedgerStats struct {
	Events          int64  `json:"events"`
	LastSequence    uint64 `json:"last_sequence"`
	TotalRevenue    int64  `json:"total_revenue"`
	RoyaltyEntries  int64  `json:"royalty_entries"`
	OpenDeadLetters int64  `json:"open_dead_letters"`
}

func NewLedgerService(db *gorm.DB, templates *TemplateService) *LedgerService {
	return &LedgerService{
		db:        db,
		templates: templates,
	}
}

// maxClockSkew bounds how far in the future a caller-supplied OccurredAt may be.
const maxClockSkew = 5 * time.Minute

var errDuplicateEvent = errors.New("usage event already recorded")

// Append records a usage event. A repeated dedup key returns the event
// already on the ledger with duplicate set; nothing new is written.
//
// The sequence is taken from the ledger head row inside the same
// transaction as the insert. The head row lock is held until commit, so a
// later sequence can never become visible before an earlier one.
func (s *LedgerService) Append(ctx context.Context, req *AppendUsageRequest) (*models.UsageEvent, bool, error) {
	if req.RevenueAmount < 0 {
		return nil, false, apperrors.Validationf("revenue amount must not be negative, got %d", req.RevenueAmount)
	}
	if !req.Source.Valid() {
		return nil, false, apperrors.Validationf("unknown usage source %q", req.Source)
	}
	if err := utils.ValidateStruct(req); err != nil {
		return nil, false, apperrors.WrapValidation(err, "invalid usage event")
	}

	now := time.Now().UTC()
	if req.OccurredAt != nil && req.OccurredAt.After(now.Add(maxClockSkew)) {
		return nil, false, apperrors.Validationf("occurred_at %s is in the future", req.OccurredAt.UTC().Format(time.RFC3339))
	}

	if _, err := s.templates.Get(ctx, req.TemplateID); err != nil {
		return nil, false, err
	}

	event := &models.UsageEvent{
		ID:                uuid.New(),
		DedupKey:          req.DedupKey,
		TemplateID:        req.TemplateID,
		OccurredAt:        now,
		RenderedVariables: models.StringMap(req.RenderedVariables),
		RevenueAmount:     req.RevenueAmount,
		Source:            req.Source,
	}
	if event.DedupKey == "" {
		event.DedupKey = event.ID.String()
	}
	if req.OccurredAt != nil {
		event.OccurredAt = req.OccurredAt.UTC()
	}

	err := database.WithTransaction(s.db.WithContext(ctx), func(tx *gorm.DB) error {
		sequence, err := nextSequence(tx, models.UsageLedgerName)
		if err != nil {
			return err
		}
		event.Sequence = sequence

		result := tx.Clauses(clause.OnConflict{Columns: []clause.Column{{Name: "dedup_key"}}, DoNothing: true}).
			Create(event)
		if result.Error != nil {
			return apperrors.Wrap(result.Error, "failed to append usage event")
		}
		if result.RowsAffected == 0 {
			// rolls back the head so the sequence is not skipped
			return errDuplicateEvent
		}
		return nil
	})

	if errors.Is(err, errDuplicateEvent) {
		var existing models.UsageEvent
		if err := s.db.WithContext(ctx).Where("dedup_key = ?", event.DedupKey).First(&existing).Error; err != nil {
			return nil, false, apperrors.Wrap(err, "failed to load deduplicated usage event")
		}
		logrus.WithFields(logrus.Fields{
			"dedup_key": event.DedupKey,
			"event_id":  existing.ID,
		}).Debug("Duplicate usage event ignored")
		return &existing, true, nil
	}
	if err != nil {
		return nil, false, apperrors.Wrap(err, "failed to append usage event")
	}

	logrus.WithFields(logrus.Fields{
		"event_id":    event.ID,
		"sequence":    event.Sequence,
		"template_id": event.TemplateID,
		"revenue":     event.RevenueAmount,
		"source":      event.Source,
	}).Debug("Usage event appended")

	return event, false, nil
}

// nextSequence bumps the named ledger head and returns the new position. The
// update takes the row lock that serializes appends.
func nextSequence(tx *gorm.DB, ledger string) (uint64, error) {
	result := tx.Model(&models.LedgerHead{}).
		Where("name = ?", ledger).
		UpdateColumn("position", gorm.Expr("position + 1"))
	if result.Error != nil {
		return 0, apperrors.Wrap(result.Error, "failed to advance ledger head")
	}
	if result.RowsAffected == 0 {
		return 0, apperrors.Newf("ledger head %q is missing, run migrations", ledger)
	}

	var head models.LedgerHead
	if err := tx.First(&head, "name = ?", ledger).Error; err != nil {
		return 0, apperrors.Wrap(err, "failed to read ledger head")
	}
	return head.Position, nil
}

func (s *LedgerService) Get(ctx context.Context, id uuid.UUID) (*models.UsageEvent, error) {
	var event models.UsageEvent
	if err := s.db.WithContext(ctx).First(&event, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperrors.NotFoundf("usage event %s not found", id)
		}
		return nil, apperrors.Wrap(err, "failed to load usage event")
	}
	return &event, nil
}

// EventsAfter returns up to limit events with sequence > after, in order.
func (s *LedgerService) EventsAfter(ctx context.Context, after uint64, limit int) ([]models.UsageEvent, error) {
	var events []models.UsageEvent
	err := s.db.WithContext(ctx).
		Where("sequence > ?", after).
		Order("sequence ASC").
		Limit(limit).
		Find(&events).Error
	if err != nil {
		return nil, apperrors.Wrap(err, "failed to read ledger")
	}
	return events, nil
}

// FirstSequenceSince returns the cursor position just before the first event
// that occurred at or after t, so a consumer seeded with it starts there.
func (s *LedgerService) FirstSequenceSince(ctx context.Context, t time.Time) (uint64, error) {
	var first models.UsageEvent
	err := s.db.WithContext(ctx).
		Where("occurred_at >= ?", t.UTC()).
		Order("sequence ASC").
		Limit(1).
		Find(&first).Error
	if err != nil {
		return 0, apperrors.Wrap(err, "failed to seek ledger")
	}
	if first.Sequence == 0 {
		return s.LastSequence(ctx)
	}
	return first.Sequence - 1, nil
}

func (s *LedgerService) LastSequence(ctx context.Context) (uint64, error) {
	var last uint64
	err := s.db.WithContext(ctx).
		Model(&models.UsageEvent{}).
		Select("COALESCE(MAX(sequence), 0)").
		Scan(&last).Error
	if err != nil {
		return 0, apperrors.Wrap(err, "failed to read ledger head")
	}
	return last, nil
}

func (s *LedgerService) List(ctx context.Context, params UsageSearchParams) ([]models.UsageEvent, int64, error) {
	query := s.db.WithContext(ctx).Model(&models.UsageEvent{})
	if params.TemplateID != nil {
		query = query.Where("template_id = ?", *params.TemplateID)
	}
	if params.Source != "" {
		query = query.Where("source = ?", params.Source)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, apperrors.Wrap(err, "failed to count usage events")
	}

	var events []models.UsageEvent
	query = utils.ApplySort(query, params.PaginationParams, []string{"sequence", "occurred_at", "revenue_amount"})
	if err := utils.ApplyPagination(query, params.PaginationParams).Find(&events).Error; err != nil {
		return nil, 0, apperrors.Wrap(err, "failed to list usage events")
	}
	return events, total, nil
}

func (s *LedgerService) Count(ctx context.Context) (int64, error) {
	var count int64
	if err := s.db.WithContext(ctx).Model(&models.UsageEvent{}).Count(&count).Error; err != nil {
		return 0, apperrors.Wrap(err, "failed to count usage events")
	}
	return count, nil
}

// CountByTemplate is the number of usage events ever recorded for a template.
func (s *LedgerService) CountByTemplate(ctx context.Context, templateID uuid.UUID) (int64, error) {
	var count int64
	err := s.db.WithContext(ctx).Model(&models.UsageEvent{}).Where("template_id = ?", templateID).Count(&count).Error
	if err != nil {
		return 0, apperrors.Wrap(err, "failed to count usage events")
	}
	return count, nil
}

func (s *LedgerService) Stats(ctx context.Context) (*LedgerStats, error) {
	db := s.db.WithContext(ctx)
	stats := &LedgerStats{}

	if err := db.Model(&models.UsageEvent{}).Count(&stats.Events).Error; err != nil {
		return nil, apperrors.Wrap(err, "failed to count usage events")
	}
	last, err := s.LastSequence(ctx)
	if err != nil {
		return nil, err
	}
	stats.LastSequence = last

	if err := db.Model(&models.UsageEvent{}).Select("COALESCE(SUM(revenue_amount), 0)").Scan(&stats.TotalRevenue).Error; err != nil {
		return nil, apperrors.Wrap(err, "failed to sum revenue")
	}
	if err := db.Model(&models.RoyaltyEntry{}).Count(&stats.RoyaltyEntries).Error; err != nil {
		return nil, apperrors.Wrap(err, "failed to count royalty entries")
	}
	if err := db.Model(&models.DeadLetter{}).Where("redriven_at IS NULL").Count(&stats.OpenDeadLetters).Error; err != nil {
		return nil, apperrors.Wrap(err, "failed to count dead letters")
	}
	return stats, nil
}
