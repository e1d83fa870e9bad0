// internal/services/statement_service.go
package services

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"github.com/javajoker/remix-engine/internal/apperrors"
	"github.com/javajoker/remix-engine/internal/models"
)

// StatementService exports a beneficiary's royalty entries for a period so
// the billing system can pay them out.
type StatementService struct {
	db      *gorm.DB
	storage *StorageService
}

type StatementRequest struct {
	From time.Time `json:"from" validate:"required"`
	To   time.Time `json:"to" validate:"required"`
}

type RoyaltyStatement struct {
	BeneficiaryID uuid.UUID             `json:"beneficiary_id"`
	From          time.Time             `json:"from"`
	To            time.Time             `json:"to"`
	TotalAmount   int64                 `json:"total_amount"`
	Entries       []models.RoyaltyEntry `json:"entries"`
	GeneratedAt   time.Time             `json:"generated_at"`
}

// statementLinkTTL bounds the presigned download link handed out for an
// exported statement.
const statementLinkTTL = 15 * time.Minute

type StatementExport struct {
	Statement   *RoyaltyStatement `json:"statement"`
	Object      *StoredObject     `json:"object"`
	DownloadURL string            `json:"download_url,omitempty"`
	ExpiresAt   *time.Time        `json:"expires_at,omitempty"`
}

func NewStatementService(db *gorm.DB, storage *StorageService) *StatementService {
	return &StatementService{
		db:      db,
		storage: storage,
	}
}

// Build collects entries created in [From, To).
func (s *StatementService) Build(ctx context.Context, beneficiaryID uuid.UUID, req *StatementRequest) (*RoyaltyStatement, error) {
	from, to := req.From.UTC(), req.To.UTC()
	if !to.After(from) {
		return nil, apperrors.Validationf("statement period end %s must be after start %s", to.Format(time.RFC3339), from.Format(time.RFC3339))
	}

	var entries []models.RoyaltyEntry
	err := s.db.WithContext(ctx).
		Where("beneficiary_id = ? AND created_at >= ? AND created_at < ?", beneficiaryID, from, to).
		Order("created_at ASC").
		Find(&entries).Error
	if err != nil {
		return nil, apperrors.Wrap(err, "failed to load statement entries")
	}

	statement := &RoyaltyStatement{
		BeneficiaryID: beneficiaryID,
		From:          from,
		To:            to,
		Entries:       entries,
		GeneratedAt:   time.Now().UTC(),
	}
	for _, e := range entries {
		statement.TotalAmount += e.Amount
	}
	return statement, nil
}

func (s *StatementService) Export(ctx context.Context, beneficiaryID uuid.UUID, req *StatementRequest) (*StatementExport, error) {
	statement, err := s.Build(ctx, beneficiaryID, req)
	if err != nil {
		return nil, err
	}

	data, err := json.MarshalIndent(statement, "", "  ")
	if err != nil {
		return nil, apperrors.Wrap(err, "failed to encode statement")
	}

	key := fmt.Sprintf("statements/%s/%s_%s.json",
		beneficiaryID, statement.From.Format("20060102"), statement.To.Format("20060102"))
	object, err := s.storage.Put(ctx, key, data, "application/json")
	if err != nil {
		return nil, err
	}

	export := &StatementExport{Statement: statement, Object: object}
	if s.storage.Remote() {
		url, err := s.storage.GeneratePresignedURL(object.Key, statementLinkTTL)
		if err != nil {
			return nil, apperrors.Wrapf(err, "failed to sign statement %s", object.Key)
		}
		expiresAt := time.Now().UTC().Add(statementLinkTTL)
		export.DownloadURL = url
		export.ExpiresAt = &expiresAt
	}

	logrus.WithFields(logrus.Fields{
		"beneficiary_id": beneficiaryID,
		"entries":        len(statement.Entries),
		"total_amount":   statement.TotalAmount,
		"key":            object.Key,
		"signed":         export.DownloadURL != "",
	}).Info("Royalty statement exported")

	return export, nil
}
