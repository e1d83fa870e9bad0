// internal/services/template_service.go
package services

import (
	"context"
	"errors"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/javajoker/remix-engine/internal/apperrors"
	"github.com/javajoker/remix-engine/internal/database"
	"github.com/javajoker/remix-engine/internal/models"
	"github.com/javajoker/remix-engine/internal/prompt"
	"github.com/javajoker/remix-engine/internal/utils"
)

const versionAllocationAttempts = 5

// RemixObserver is told about every committed remix, keyed by the parent.
type RemixObserver interface {
	RecordRemix(parent *models.PromptTemplate, at time.Time)
}

type TemplateService struct {
	db       *gorm.DB
	maxDepth int

	// templates are immutable, so a fetched row never goes stale
	cache sync.Map

	mu        sync.RWMutex
	observers []RemixObserver
}

type CreateTemplateRequest struct {
	Body     string            `json:"body" validate:"required"`
	Defaults map[string]string `json:"defaults,omitempty" validate:"omitempty,dive,keys,variable_name,endkeys"`
	ParentID *uuid.UUID        `json:"parent_id,omitempty"`
}

// RemixRequest derives a child body from its parent. Body, when set, is used
// as is. Otherwise Replace, Prepend and Append are applied to the parent body
// in that order.
type RemixRequest struct {
	Body     string            `json:"body,omitempty"`
	Prepend  string            `json:"prepend,omitempty"`
	Append   string            `json:"append,omitempty"`
	Replace  map[string]string `json:"replace,omitempty"`
	Defaults map[string]string `json:"defaults,omitempty" validate:"omitempty,dive,keys,variable_name,endkeys"`
}

func NewTemplateService(db *gorm.DB, maxDepth int) *TemplateService {
	return &TemplateService{
		db:       db,
		maxDepth: maxDepth,
	}
}

func (s *TemplateService) AddRemixObserver(o RemixObserver) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.observers = append(s.observers, o)
}

func (s *TemplateService) Create(ctx context.Context, ownerID uuid.UUID, req *CreateTemplateRequest) (*models.PromptTemplate, error) {
	if err := utils.ValidateStruct(req); err != nil {
		return nil, apperrors.WrapValidation(err, "invalid template request")
	}
	if ownerID == uuid.Nil {
		return nil, apperrors.Validationf("owner id is required")
	}
	if strings.TrimSpace(req.Body) == "" {
		return nil, apperrors.Validationf("template body is empty")
	}

	variables, err := prompt.ExtractVariables(req.Body)
	if err != nil {
		return nil, apperrors.Validationf("malformed template body: %v", err)
	}
	if len(variables) == 0 {
		return nil, apperrors.Validationf("template body declares no placeholders")
	}

	tmpl := &models.PromptTemplate{
		ID:                uuid.New(),
		OwnerID:           ownerID,
		Body:              req.Body,
		RequiredVariables: variables,
		Defaults:          models.StringMap{},
		BodyHash:          utils.HashString(req.Body),
	}
	if req.ParentID != nil {
		parentID := *req.ParentID
		tmpl.ParentID = &parentID
	}
	for name, value := range req.Defaults {
		if !tmpl.HasVariable(name) {
			return nil, apperrors.Validationf("default %q is not a placeholder of the template", name)
		}
		tmpl.Defaults[name] = value
	}

	var parent *models.PromptTemplate
	for attempt := 1; ; attempt++ {
		parent, err = s.insert(ctx, tmpl)
		if err == nil {
			break
		}
		if !errors.Is(err, gorm.ErrDuplicatedKey) || attempt == versionAllocationAttempts {
			return nil, err
		}
		logrus.WithFields(logrus.Fields{
			"root_id": tmpl.RootID,
			"attempt": attempt,
		}).Debug("Template version taken, retrying")
	}

	s.cache.Store(tmpl.ID, tmpl)

	logrus.WithFields(logrus.Fields{
		"template_id": tmpl.ID,
		"owner_id":    tmpl.OwnerID,
		"parent_id":   tmpl.ParentID,
		"version":     tmpl.Version,
		"depth":       tmpl.Depth,
	}).Info("Template created")

	if parent != nil {
		s.notifyRemix(parent, tmpl.CreatedAt)
	}

	return s.copyOf(tmpl), nil
}

// insert resolves the parent link, allocates the next version in the root's
// tree and writes the row, all in one transaction.
func (s *TemplateService) insert(ctx context.Context, tmpl *models.PromptTemplate) (*models.PromptTemplate, error) {
	var parent *models.PromptTemplate

	err := database.WithTransaction(s.db.WithContext(ctx), func(tx *gorm.DB) error {
		parentLineageHash := ""
		tmpl.RootID = tmpl.ID
		tmpl.Depth = 0
		tmpl.Version = 1

		if tmpl.ParentID != nil {
			var p models.PromptTemplate
			if err := tx.First(&p, "id = ?", *tmpl.ParentID).Error; err != nil {
				if errors.Is(err, gorm.ErrRecordNotFound) {
					return apperrors.Validationf("parent template %s does not exist", *tmpl.ParentID)
				}
				return apperrors.Wrap(err, "failed to load parent template")
			}
			if p.Depth+1 > s.maxDepth {
				return apperrors.Validationf("remix would exceed the maximum lineage depth of %d", s.maxDepth)
			}

			var maxVersion int
			if err := tx.Model(&models.PromptTemplate{}).
				Where("root_id = ?", p.RootID).
				Select("COALESCE(MAX(version), 0)").
				Scan(&maxVersion).Error; err != nil {
				return apperrors.Wrap(err, "failed to allocate template version")
			}

			tmpl.RootID = p.RootID
			tmpl.Depth = p.Depth + 1
			tmpl.Version = maxVersion + 1
			parentLineageHash = p.LineageHash
			parent = &p
		}

		tmpl.LineageHash = lineageHash(parentLineageHash, tmpl)

		return tx.Create(tmpl).Error
	})

	return parent, err
}

func lineageHash(parentLineageHash string, tmpl *models.PromptTemplate) string {
	return utils.HashParts(parentLineageHash, tmpl.ID.String(), tmpl.OwnerID.String(), tmpl.BodyHash)
}

func (s *TemplateService) notifyRemix(parent *models.PromptTemplate, at time.Time) {
	s.mu.RLock()
	observers := append([]RemixObserver(nil), s.observers...)
	s.mu.RUnlock()

	for _, o := range observers {
		o.RecordRemix(parent, at)
	}
}

// Remix creates a child of parentID owned by ownerID.
func (s *TemplateService) Remix(ctx context.Context, ownerID, parentID uuid.UUID, req *RemixRequest) (*models.PromptTemplate, error) {
	if err := utils.ValidateStruct(req); err != nil {
		return nil, apperrors.WrapValidation(err, "invalid remix request")
	}

	parent, err := s.Get(ctx, parentID)
	if err != nil {
		return nil, err
	}

	body := req.Body
	if body == "" {
		body = applyModifications(parent.Body, req)
	}

	variables, err := prompt.ExtractVariables(body)
	if err != nil {
		return nil, apperrors.Validationf("malformed template body: %v", err)
	}

	defaults := make(map[string]string)
	for _, name := range variables {
		if value, ok := parent.Defaults[name]; ok {
			defaults[name] = value
		}
	}
	for name, value := range req.Defaults {
		defaults[name] = value
	}

	return s.Create(ctx, ownerID, &CreateTemplateRequest{
		Body:     body,
		Defaults: defaults,
		ParentID: &parent.ID,
	})
}

func applyModifications(body string, req *RemixRequest) string {
	if len(req.Replace) > 0 {
		olds := make([]string, 0, len(req.Replace))
		for old := range req.Replace {
			olds = append(olds, old)
		}
		sort.Strings(olds)
		for _, old := range olds {
			if old == "" {
				continue
			}
			body = strings.ReplaceAll(body, old, req.Replace[old])
		}
	}
	if req.Prepend != "" {
		body = req.Prepend + "\n" + body
	}
	if req.Append != "" {
		body = body + "\n" + req.Append
	}
	return body
}

func (s *TemplateService) Get(ctx context.Context, id uuid.UUID) (*models.PromptTemplate, error) {
	if cached, ok := s.cache.Load(id); ok {
		return s.copyOf(cached.(*models.PromptTemplate)), nil
	}

	var tmpl models.PromptTemplate
	if err := s.db.WithContext(ctx).First(&tmpl, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperrors.NotFoundf("template %s not found", id)
		}
		return nil, apperrors.Wrap(err, "failed to load template")
	}

	s.cache.Store(tmpl.ID, &tmpl)
	return s.copyOf(&tmpl), nil
}

func (s *TemplateService) ListByOwner(ctx context.Context, ownerID uuid.UUID, params utils.PaginationParams) ([]models.PromptTemplate, int64, error) {
	query := s.db.WithContext(ctx).Model(&models.PromptTemplate{}).Where("owner_id = ?", ownerID)

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, apperrors.Wrap(err, "failed to count templates")
	}

	var templates []models.PromptTemplate
	query = utils.ApplySort(query, params, []string{"created_at", "version", "depth"})
	if err := utils.ApplyPagination(query, params).Find(&templates).Error; err != nil {
		return nil, 0, apperrors.Wrap(err, "failed to list templates")
	}

	return templates, total, nil
}

// ListCreatedSince returns templates created at or after since, oldest first.
func (s *TemplateService) ListCreatedSince(ctx context.Context, since time.Time) ([]models.PromptTemplate, error) {
	var templates []models.PromptTemplate
	err := s.db.WithContext(ctx).
		Where("created_at >= ?", since.UTC()).
		Order("created_at ASC").
		Find(&templates).Error
	if err != nil {
		return nil, apperrors.Wrap(err, "failed to list recent templates")
	}
	return templates, nil
}

// copyOf hands callers their own struct so the cached row stays untouched.
// Maps, slices and the parent pointer are copied too.
func (s *TemplateService) copyOf(t *models.PromptTemplate) *models.PromptTemplate {
	cp := *t
	if t.ParentID != nil {
		parentID := *t.ParentID
		cp.ParentID = &parentID
	}
	if t.RequiredVariables != nil {
		cp.RequiredVariables = append(datatypes.JSONSlice[string]{}, t.RequiredVariables...)
	}
	if t.Defaults != nil {
		cp.Defaults = t.Defaults.Clone()
	}
	return &cp
}
