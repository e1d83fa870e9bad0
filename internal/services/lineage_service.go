// internal/services/lineage_service.go
package services

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"github.com/javajoker/remix-engine/internal/apperrors"
	"github.com/javajoker/remix-engine/internal/models"
	"github.com/javajoker/remix-engine/internal/utils"
)

type LineageService struct {
	db          *gorm.DB
	maxDepth    int
	walkTimeout time.Duration
}

type ChainVerification struct {
	TemplateID  uuid.UUID   `json:"template_id"`
	Chain       []uuid.UUID `json:"chain"`
	LineageHash string      `json:"lineage_hash"`
	Valid       bool        `json:"valid"`
}

func NewLineageService(db *gorm.DB, maxDepth int, walkTimeout time.Duration) *LineageService {
	return &LineageService{
		db:          db,
		maxDepth:    maxDepth,
		walkTimeout: walkTimeout,
	}
}

// GetAncestorChain returns [id, parent, ..., root].
func (s *LineageService) GetAncestorChain(ctx context.Context, id uuid.UUID) ([]uuid.UUID, error) {
	templates, err := s.walk(ctx, id)
	if err != nil {
		return nil, err
	}

	chain := make([]uuid.UUID, len(templates))
	for i, t := range templates {
		chain[i] = t.ID
	}
	return chain, nil
}

// Ancestors is GetAncestorChain with the full rows, used by royalty splits
// that need each ancestor's owner.
func (s *LineageService) Ancestors(ctx context.Context, id uuid.UUID) ([]models.PromptTemplate, error) {
	return s.walk(ctx, id)
}

// walk follows parent links one row per hop. A repeated id, a dangling
// parent or more than maxDepth hops means the stored lineage is corrupt.
func (s *LineageService) walk(ctx context.Context, id uuid.UUID) ([]models.PromptTemplate, error) {
	ctx, cancel := context.WithTimeout(ctx, s.walkTimeout)
	defer cancel()

	db := s.db.WithContext(ctx)
	visited := make(map[uuid.UUID]struct{})
	var chain []models.PromptTemplate

	current := id
	for {
		if _, seen := visited[current]; seen {
			return nil, apperrors.CorruptLineagef("cycle at template %s in lineage of %s", current, id)
		}
		if len(chain) > s.maxDepth {
			return nil, apperrors.CorruptLineagef("lineage of %s exceeds %d hops", id, s.maxDepth)
		}
		visited[current] = struct{}{}
		if err := ctx.Err(); err != nil {
			return nil, apperrors.Wrapf(err, "lineage walk of %s", id)
		}

		var tmpl models.PromptTemplate
		if err := db.First(&tmpl, "id = ?", current).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				if len(chain) == 0 {
					return nil, apperrors.NotFoundf("template %s not found", id)
				}
				return nil, apperrors.CorruptLineagef("template %s references missing parent %s", chain[len(chain)-1].ID, current)
			}
			return nil, apperrors.Wrapf(err, "lineage walk of %s", id)
		}

		chain = append(chain, tmpl)
		if tmpl.ParentID == nil {
			return chain, nil
		}
		current = *tmpl.ParentID
	}
}

func (s *LineageService) GetChildren(ctx context.Context, id uuid.UUID) ([]models.PromptTemplate, error) {
	db := s.db.WithContext(ctx)

	var count int64
	if err := db.Model(&models.PromptTemplate{}).Where("id = ?", id).Count(&count).Error; err != nil {
		return nil, apperrors.Wrap(err, "failed to look up template")
	}
	if count == 0 {
		return nil, apperrors.NotFoundf("template %s not found", id)
	}

	var children []models.PromptTemplate
	if err := db.Where("parent_id = ?", id).Order("created_at ASC").Order("id ASC").Find(&children).Error; err != nil {
		return nil, apperrors.Wrap(err, "failed to list children")
	}
	return children, nil
}

// CountChildren is the number of direct remixes of a template.
func (s *LineageService) CountChildren(ctx context.Context, id uuid.UUID) (int64, error) {
	var count int64
	if err := s.db.WithContext(ctx).Model(&models.PromptTemplate{}).Where("parent_id = ?", id).Count(&count).Error; err != nil {
		return 0, apperrors.Wrap(err, "failed to count children")
	}
	return count, nil
}

// VerifyChain recomputes every body and lineage hash from the root down.
func (s *LineageService) VerifyChain(ctx context.Context, id uuid.UUID) (*ChainVerification, error) {
	templates, err := s.walk(ctx, id)
	if err != nil {
		return nil, err
	}

	parentHash := ""
	for i := len(templates) - 1; i >= 0; i-- {
		t := &templates[i]
		if utils.HashString(t.Body) != t.BodyHash {
			return nil, apperrors.CorruptLineagef("body hash mismatch at template %s", t.ID)
		}
		if lineageHash(parentHash, t) != t.LineageHash {
			logrus.WithFields(logrus.Fields{
				"template_id": id,
				"broken_at":   t.ID,
			}).Error("Lineage hash mismatch")
			return nil, apperrors.CorruptLineagef("lineage hash mismatch at template %s", t.ID)
		}
		parentHash = t.LineageHash
	}

	chain := make([]uuid.UUID, len(templates))
	for i, t := range templates {
		chain[i] = t.ID
	}

	return &ChainVerification{
		TemplateID:  id,
		Chain:       chain,
		LineageHash: templates[0].LineageHash,
		Valid:       true,
	}, nil
}
