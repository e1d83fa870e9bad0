// internal/handlers/royalty.go
package handlers

import (
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/javajoker/remix-engine/internal/i18n"
	"github.com/javajoker/remix-engine/internal/services"
	"github.com/javajoker/remix-engine/internal/utils"
)

type RoyaltyHandler struct {
	royalties  *services.RoyaltyService
	statements *services.StatementService
}

func NewRoyaltyHandler(royalties *services.RoyaltyService, statements *services.StatementService) *RoyaltyHandler {
	return &RoyaltyHandler{
		royalties:  royalties,
		statements: statements,
	}
}

// GET /royalties/me
func (h *RoyaltyHandler) GetMyRoyalties(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		return
	}
	h.respondBeneficiary(c, userID)
}

// GET /royalties/beneficiaries/:id
// Creators can read their own ledger; admins can read anyone's.
func (h *RoyaltyHandler) GetBeneficiaryRoyalties(c *gin.Context) {
	beneficiaryID, ok := parseIDParam(c, "id")
	if !ok {
		return
	}
	userID, ok := currentUserID(c)
	if !ok {
		return
	}

	if role, _ := utils.GetRoleFromContext(c); userID != beneficiaryID && role != utils.RoleAdmin {
		utils.ForbiddenResponse(c, "")
		return
	}

	h.respondBeneficiary(c, beneficiaryID)
}

func (h *RoyaltyHandler) respondBeneficiary(c *gin.Context, beneficiaryID uuid.UUID) {
	params := utils.GetPaginationParams(c)

	earnings, err := h.royalties.Earnings(c.Request.Context(), beneficiaryID)
	if err != nil {
		respondError(c, err, i18n.KeyUsageNotFound)
		return
	}

	entries, total, err := h.royalties.EntriesForBeneficiary(c.Request.Context(), beneficiaryID, params)
	if err != nil {
		respondError(c, err, i18n.KeyUsageNotFound)
		return
	}

	result := utils.CreatePaginationResult(entries, total, params)
	utils.SetPaginationHeaders(c, result)
	utils.SuccessResponseWithMeta(c, gin.H{
		"earnings": earnings,
		"entries":  entries,
	}, gin.H{
		"pagination": gin.H{
			"page":        result.Page,
			"limit":       result.Limit,
			"total":       result.Total,
			"total_pages": result.TotalPages,
		},
	})
}

// POST /royalties/statements
func (h *RoyaltyHandler) ExportStatement(c *gin.Context) {
	lang := utils.GetLangFromContext(c)
	userID, ok := currentUserID(c)
	if !ok {
		return
	}

	var req services.StatementRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.BadRequestResponse(c, i18n.T(lang, i18n.KeyValidationInvalid, "input"), err.Error())
		return
	}

	if validationErrors := utils.GetValidationErrors(utils.ValidateStruct(&req)); len(validationErrors) > 0 {
		utils.ValidationErrorResponse(c, validationErrors)
		return
	}

	export, err := h.statements.Export(c.Request.Context(), userID, &req)
	if err != nil {
		respondError(c, err, i18n.KeyUsageNotFound)
		return
	}

	utils.CreatedResponse(c, gin.H{
		"message": i18n.T(lang, i18n.KeyStatementExported),
		"export":  export,
	})
}
