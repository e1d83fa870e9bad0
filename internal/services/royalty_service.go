// internal/services/royalty_service.go
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
	"github.com/javajoker/remix-engine/internal/models"
	"github.com/javajoker/remix-engine/internal/utils"
)

const RoyaltyConsumerName = "royalty"

// RoyaltyService splits monetized usage events across template lineage.
// It is the royalty ledger consumer's handler.
type RoyaltyService struct {
	db      *gorm.DB
	ledger  *LedgerService
	lineage *LineageService
	policy  SplitPolicy
	alerts  *AlertService
}

type Earnings struct {
	BeneficiaryID uuid.UUID  `json:"beneficiary_id"`
	TotalAmount   int64      `json:"total_amount"`
	EntryCount    int64      `json:"entry_count"`
	LastEarnedAt  *time.Time `json:"last_earned_at,omitempty"`
}

type DeadLetterParams struct {
	utils.PaginationParams
	IncludeRedriven bool
}

func NewRoyaltyService(db *gorm.DB, ledger *LedgerService, lineage *LineageService, policy SplitPolicy, alerts *AlertService) *RoyaltyService {
	return &RoyaltyService{
		db:      db,
		ledger:  ledger,
		lineage: lineage,
		policy:  policy,
		alerts:  alerts,
	}
}

func (s *RoyaltyService) Policy() SplitPolicy {
	return s.policy
}

// HandleEvent writes the royalty entries for one event. Lineage faults park
// the event as a dead letter and return nil so the consumer moves on; any
// other failure is returned and the event is retried.
func (s *RoyaltyService) HandleEvent(ctx context.Context, event *models.UsageEvent) error {
	if !event.IsMonetized() {
		return nil
	}

	_, err := s.distribute(ctx, event)
	if err == nil {
		return nil
	}
	if apperrors.IsNotFound(err) || apperrors.IsCorruptLineage(err) {
		return s.deadLetter(ctx, event, err)
	}
	return err
}

func (s *RoyaltyService) distribute(ctx context.Context, event *models.UsageEvent) ([]models.RoyaltyEntry, error) {
	chain, err := s.lineage.Ancestors(ctx, event.TemplateID)
	if err != nil {
		return nil, err
	}

	shares := s.policy.Shares(chain)
	if len(shares) == 0 {
		return nil, nil
	}
	amounts := allocate(event.RevenueAmount, shares)

	entries := make([]models.RoyaltyEntry, len(shares))
	for i, share := range shares {
		entries[i] = models.RoyaltyEntry{
			UsageEventID:     event.ID,
			BeneficiaryID:    share.BeneficiaryID,
			TemplateID:       share.TemplateID,
			ShareBasisPoints: share.BasisPoints,
			Amount:           amounts[i],
		}
	}

	// one statement, so a cancelled call leaves either all entries or none
	err = s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "usage_event_id"}, {Name: "beneficiary_id"}},
		DoNothing: true,
	}).Create(&entries).Error
	if err != nil {
		return nil, apperrors.Wrapf(err, "failed to write royalty entries for event %s", event.ID)
	}

	logrus.WithFields(logrus.Fields{
		"event_id":    event.ID,
		"template_id": event.TemplateID,
		"revenue":     event.RevenueAmount,
		"policy":      s.policy.Name(),
		"entries":     len(entries),
	}).Debug("Royalties distributed")

	return entries, nil
}

func (s *RoyaltyService) deadLetter(ctx context.Context, event *models.UsageEvent, cause error) error {
	kind := models.DeadLetterKindCorruptLineage
	if apperrors.IsNotFound(cause) {
		kind = models.DeadLetterKindNotFound
	}

	dl := &models.DeadLetter{
		UsageEventID: event.ID,
		Consumer:     RoyaltyConsumerName,
		ErrorKind:    kind,
		Reason:       cause.Error(),
	}
	result := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "usage_event_id"}},
		DoNothing: true,
	}).Create(dl)
	if result.Error != nil {
		return apperrors.Wrapf(result.Error, "failed to dead-letter event %s", event.ID)
	}

	if result.RowsAffected > 0 && s.alerts != nil {
		s.alerts.DeadLetter(dl)
	}
	return nil
}

func (s *RoyaltyService) EntriesForEvent(ctx context.Context, eventID uuid.UUID) ([]models.RoyaltyEntry, error) {
	var entries []models.RoyaltyEntry
	err := s.db.WithContext(ctx).
		Where("usage_event_id = ?", eventID).
		Order("share_basis_points DESC").
		Order("created_at ASC").
		Find(&entries).Error
	if err != nil {
		return nil, apperrors.Wrap(err, "failed to load royalty entries")
	}
	return entries, nil
}

func (s *RoyaltyService) EntriesForBeneficiary(ctx context.Context, beneficiaryID uuid.UUID, params utils.PaginationParams) ([]models.RoyaltyEntry, int64, error) {
	query := s.db.WithContext(ctx).Model(&models.RoyaltyEntry{}).Where("beneficiary_id = ?", beneficiaryID)

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, apperrors.Wrap(err, "failed to count royalty entries")
	}

	var entries []models.RoyaltyEntry
	query = utils.ApplySort(query, params, []string{"created_at", "amount"})
	if err := utils.ApplyPagination(query, params).Find(&entries).Error; err != nil {
		return nil, 0, apperrors.Wrap(err, "failed to list royalty entries")
	}
	return entries, total, nil
}

func (s *RoyaltyService) Earnings(ctx context.Context, beneficiaryID uuid.UUID) (*Earnings, error) {
	var row struct {
		Total int64
		Count int64
	}
	err := s.db.WithContext(ctx).
		Model(&models.RoyaltyEntry{}).
		Select("COALESCE(SUM(amount), 0) AS total, COUNT(*) AS count").
		Where("beneficiary_id = ?", beneficiaryID).
		Scan(&row).Error
	if err != nil {
		return nil, apperrors.Wrap(err, "failed to total earnings")
	}

	earnings := &Earnings{
		BeneficiaryID: beneficiaryID,
		TotalAmount:   row.Total,
		EntryCount:    row.Count,
	}

	if row.Count > 0 {
		var latest models.RoyaltyEntry
		if err := s.db.WithContext(ctx).Where("beneficiary_id = ?", beneficiaryID).Order("created_at DESC").First(&latest).Error; err == nil {
			earnings.LastEarnedAt = &latest.CreatedAt
		}
	}
	return earnings, nil
}

func (s *RoyaltyService) DeadLetters(ctx context.Context, params DeadLetterParams) ([]models.DeadLetter, int64, error) {
	query := s.db.WithContext(ctx).Model(&models.DeadLetter{})
	if !params.IncludeRedriven {
		query = query.Where("redriven_at IS NULL")
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, apperrors.Wrap(err, "failed to count dead letters")
	}

	var letters []models.DeadLetter
	query = utils.ApplySort(query, params.PaginationParams, []string{"created_at"})
	if err := utils.ApplyPagination(query, params.PaginationParams).Find(&letters).Error; err != nil {
		return nil, 0, apperrors.Wrap(err, "failed to list dead letters")
	}
	return letters, total, nil
}

// Redrive retries a dead-lettered event after its lineage was repaired. On
// success the dead letter is stamped; it is never deleted.
func (s *RoyaltyService) Redrive(ctx context.Context, deadLetterID uuid.UUID) ([]models.RoyaltyEntry, error) {
	var dl models.DeadLetter
	if err := s.db.WithContext(ctx).First(&dl, "id = ?", deadLetterID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperrors.NotFoundf("dead letter %s not found", deadLetterID)
		}
		return nil, apperrors.Wrap(err, "failed to load dead letter")
	}
	if dl.RedrivenAt != nil {
		return nil, apperrors.Validationf("dead letter %s was already redriven at %s", dl.ID, dl.RedrivenAt.Format(time.RFC3339))
	}

	event, err := s.ledger.Get(ctx, dl.UsageEventID)
	if err != nil {
		return nil, err
	}

	if _, err := s.distribute(ctx, event); err != nil {
		return nil, apperrors.Wrapf(err, "redrive of event %s", event.ID)
	}

	now := time.Now().UTC()
	if err := s.db.WithContext(ctx).Model(&dl).Update("redriven_at", now).Error; err != nil {
		return nil, apperrors.Wrap(err, "failed to mark dead letter redriven")
	}

	logrus.WithFields(logrus.Fields{
		"dead_letter_id": dl.ID,
		"event_id":       event.ID,
	}).Info("Dead letter redriven")

	return s.EntriesForEvent(ctx, event.ID)
}
