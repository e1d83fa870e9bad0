// internal/services/render_service.go
package services

import (
	"sync"

	"github.com/google/uuid"

	"github.com/javajoker/remix-engine/internal/apperrors"
	"github.com/javajoker/remix-engine/internal/models"
	"github.com/javajoker/remix-engine/internal/prompt"
)

// RenderService substitutes variables into templates. It never writes;
// compiled bodies are cached by template id since templates are immutable.
type RenderService struct {
	mu       sync.RWMutex
	compiled map[uuid.UUID]*prompt.Compiled
}

type RenderRequest struct {
	Variables map[string]string `json:"variables"`
}

type RenderResult struct {
	TemplateID uuid.UUID `json:"template_id"`
	Output     string    `json:"output"`
}

func NewRenderService() *RenderService {
	return &RenderService{
		compiled: make(map[uuid.UUID]*prompt.Compiled),
	}
}

// Render fails with a MissingVariable error naming the first placeholder, in
// body order, that has neither a supplied value nor a default.
func (s *RenderService) Render(tmpl *models.PromptTemplate, variables map[string]string) (string, error) {
	compiled, err := s.compile(tmpl)
	if err != nil {
		return "", err
	}

	out, missing, ok := compiled.Execute(variables, tmpl.Defaults)
	if !ok {
		return "", apperrors.MissingVariable(missing)
	}
	return out, nil
}

func (s *RenderService) compile(tmpl *models.PromptTemplate) (*prompt.Compiled, error) {
	s.mu.RLock()
	compiled, ok := s.compiled[tmpl.ID]
	s.mu.RUnlock()
	if ok {
		return compiled, nil
	}

	compiled, err := prompt.Compile(tmpl.Body)
	if err != nil {
		// stored bodies were validated at create time
		return nil, apperrors.CorruptLineagef("template %s body no longer parses: %v", tmpl.ID, err)
	}

	s.mu.Lock()
	s.compiled[tmpl.ID] = compiled
	s.mu.Unlock()
	return compiled, nil
}
