// internal/handlers/template.go
package handlers

import (
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/javajoker/remix-engine/internal/i18n"
	"github.com/javajoker/remix-engine/internal/services"
	"github.com/javajoker/remix-engine/internal/utils"
)

type TemplateHandler struct {
	templates *services.TemplateService
	lineage   *services.LineageService
	renderer  *services.RenderService
}

func NewTemplateHandler(templates *services.TemplateService, lineage *services.LineageService, renderer *services.RenderService) *TemplateHandler {
	return &TemplateHandler{
		templates: templates,
		lineage:   lineage,
		renderer:  renderer,
	}
}

// POST /templates
func (h *TemplateHandler) CreateTemplate(c *gin.Context) {
	lang := utils.GetLangFromContext(c)
	ownerID, ok := currentUserID(c)
	if !ok {
		return
	}

	var req services.CreateTemplateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.BadRequestResponse(c, i18n.T(lang, i18n.KeyValidationInvalid, "input"), err.Error())
		return
	}

	if validationErrors := utils.GetValidationErrors(utils.ValidateStruct(&req)); len(validationErrors) > 0 {
		utils.ValidationErrorResponse(c, validationErrors)
		return
	}

	tmpl, err := h.templates.Create(c.Request.Context(), ownerID, &req)
	if err != nil {
		respondError(c, err, i18n.KeyTemplateNotFound)
		return
	}

	utils.CreatedResponse(c, gin.H{
		"message":  i18n.T(lang, i18n.KeyTemplateCreated),
		"template": tmpl,
	})
}

// POST /templates/:id/remix
func (h *TemplateHandler) RemixTemplate(c *gin.Context) {
	lang := utils.GetLangFromContext(c)
	ownerID, ok := currentUserID(c)
	if !ok {
		return
	}
	parentID, ok := parseIDParam(c, "id")
	if !ok {
		return
	}

	var req services.RemixRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.BadRequestResponse(c, i18n.T(lang, i18n.KeyValidationInvalid, "input"), err.Error())
		return
	}

	tmpl, err := h.templates.Remix(c.Request.Context(), ownerID, parentID, &req)
	if err != nil {
		respondError(c, err, i18n.KeyTemplateNotFound)
		return
	}

	utils.CreatedResponse(c, gin.H{
		"message":  i18n.T(lang, i18n.KeyTemplateCreated),
		"template": tmpl,
	})
}

// GET /templates?owner_id=
func (h *TemplateHandler) ListTemplates(c *gin.Context) {
	params := utils.GetPaginationParams(c)

	ownerID, err := uuid.Parse(c.Query("owner_id"))
	if err != nil {
		utils.BadRequestResponse(c, i18n.T(utils.GetLangFromContext(c), i18n.KeyValidationInvalid, "owner_id"), nil)
		return
	}

	templates, total, err := h.templates.ListByOwner(c.Request.Context(), ownerID, params)
	if err != nil {
		respondError(c, err, i18n.KeyTemplateNotFound)
		return
	}

	utils.PaginatedResponse(c, utils.CreatePaginationResult(templates, total, params))
}

// GET /templates/:id
func (h *TemplateHandler) GetTemplate(c *gin.Context) {
	id, ok := parseIDParam(c, "id")
	if !ok {
		return
	}

	tmpl, err := h.templates.Get(c.Request.Context(), id)
	if err != nil {
		respondError(c, err, i18n.KeyTemplateNotFound)
		return
	}

	utils.SuccessResponse(c, gin.H{"template": tmpl})
}

// GET /templates/:id/lineage
func (h *TemplateHandler) GetLineage(c *gin.Context) {
	id, ok := parseIDParam(c, "id")
	if !ok {
		return
	}

	chain, err := h.lineage.GetAncestorChain(c.Request.Context(), id)
	if err != nil {
		respondError(c, err, i18n.KeyTemplateNotFound)
		return
	}

	utils.SuccessResponse(c, gin.H{
		"template_id": id,
		"chain":       chain,
		"root_id":     chain[len(chain)-1],
		"depth":       len(chain) - 1,
	})
}

// GET /templates/:id/children
func (h *TemplateHandler) GetChildren(c *gin.Context) {
	id, ok := parseIDParam(c, "id")
	if !ok {
		return
	}

	children, err := h.lineage.GetChildren(c.Request.Context(), id)
	if err != nil {
		respondError(c, err, i18n.KeyTemplateNotFound)
		return
	}

	utils.SuccessResponse(c, gin.H{"children": children})
}

// GET /templates/:id/verify
func (h *TemplateHandler) VerifyLineage(c *gin.Context) {
	id, ok := parseIDParam(c, "id")
	if !ok {
		return
	}

	result, err := h.lineage.VerifyChain(c.Request.Context(), id)
	if err != nil {
		respondError(c, err, i18n.KeyTemplateNotFound)
		return
	}

	utils.SuccessResponse(c, gin.H{
		"message":      i18n.T(utils.GetLangFromContext(c), i18n.KeyLineageVerified),
		"verification": result,
	})
}

// POST /templates/:id/render
func (h *TemplateHandler) RenderTemplate(c *gin.Context) {
	id, ok := parseIDParam(c, "id")
	if !ok {
		return
	}

	var req services.RenderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.BadRequestResponse(c, i18n.T(utils.GetLangFromContext(c), i18n.KeyValidationInvalid, "input"), err.Error())
		return
	}

	tmpl, err := h.templates.Get(c.Request.Context(), id)
	if err != nil {
		respondError(c, err, i18n.KeyTemplateNotFound)
		return
	}

	output, err := h.renderer.Render(tmpl, req.Variables)
	if err != nil {
		respondError(c, err, i18n.KeyTemplateNotFound)
		return
	}

	utils.SuccessResponse(c, services.RenderResult{TemplateID: tmpl.ID, Output: output})
}
