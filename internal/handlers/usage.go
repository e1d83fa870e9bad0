// internal/handlers/usage.go
package handlers

import (
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/javajoker/remix-engine/internal/i18n"
	"github.com/javajoker/remix-engine/internal/models"
	"github.com/javajoker/remix-engine/internal/services"
	"github.com/javajoker/remix-engine/internal/utils"
)

type UsageHandler struct {
	ledger    *services.LedgerService
	royalties *services.RoyaltyService
}

func NewUsageHandler(ledger *services.LedgerService, royalties *services.RoyaltyService) *UsageHandler {
	return &UsageHandler{
		ledger:    ledger,
		royalties: royalties,
	}
}

// POST /usage
// Responds 201 for a new event and 200 with the original event when the
// dedup key was already recorded.
func (h *UsageHandler) RecordUsage(c *gin.Context) {
	lang := utils.GetLangFromContext(c)

	var req services.AppendUsageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.BadRequestResponse(c, i18n.T(lang, i18n.KeyValidationInvalid, "input"), err.Error())
		return
	}

	if validationErrors := utils.GetValidationErrors(utils.ValidateStruct(&req)); len(validationErrors) > 0 {
		utils.ValidationErrorResponse(c, validationErrors)
		return
	}

	event, duplicate, err := h.ledger.Append(c.Request.Context(), &req)
	if err != nil {
		respondError(c, err, i18n.KeyTemplateNotFound)
		return
	}

	if duplicate {
		utils.SuccessResponse(c, gin.H{
			"message":   i18n.T(lang, i18n.KeyUsageDuplicate),
			"duplicate": true,
			"event":     event,
		})
		return
	}

	utils.CreatedResponse(c, gin.H{
		"message":   i18n.T(lang, i18n.KeyUsageRecorded),
		"duplicate": false,
		"event":     event,
	})
}

// GET /usage
func (h *UsageHandler) ListUsage(c *gin.Context) {
	params := utils.GetPaginationParams(c)

	searchParams := services.UsageSearchParams{PaginationParams: params}
	if templateIDStr := c.Query("template_id"); templateIDStr != "" {
		if templateID, err := uuid.Parse(templateIDStr); err == nil {
			searchParams.TemplateID = &templateID
		}
	}
	if source := c.Query("source"); source != "" {
		searchParams.Source = models.UsageSource(source)
	}

	events, total, err := h.ledger.List(c.Request.Context(), searchParams)
	if err != nil {
		respondError(c, err, i18n.KeyUsageNotFound)
		return
	}

	utils.PaginatedResponse(c, utils.CreatePaginationResult(events, total, params))
}

// GET /usage/:id
func (h *UsageHandler) GetUsage(c *gin.Context) {
	id, ok := parseIDParam(c, "id")
	if !ok {
		return
	}

	event, err := h.ledger.Get(c.Request.Context(), id)
	if err != nil {
		respondError(c, err, i18n.KeyUsageNotFound)
		return
	}

	utils.SuccessResponse(c, gin.H{"event": event})
}

// GET /usage/:id/royalties
func (h *UsageHandler) GetUsageRoyalties(c *gin.Context) {
	id, ok := parseIDParam(c, "id")
	if !ok {
		return
	}

	event, err := h.ledger.Get(c.Request.Context(), id)
	if err != nil {
		respondError(c, err, i18n.KeyUsageNotFound)
		return
	}

	entries, err := h.royalties.EntriesForEvent(c.Request.Context(), event.ID)
	if err != nil {
		respondError(c, err, i18n.KeyUsageNotFound)
		return
	}

	var distributed int64
	for _, e := range entries {
		distributed += e.Amount
	}

	utils.SuccessResponse(c, gin.H{
		"event_id":    event.ID,
		"revenue":     event.RevenueAmount,
		"distributed": distributed,
		"entries":     entries,
	})
}
