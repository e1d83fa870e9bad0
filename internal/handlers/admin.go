// internal/handlers/admin.go
package handlers

import (
	"github.com/gin-gonic/gin"

	"github.com/javajoker/remix-engine/internal/i18n"
	"github.com/javajoker/remix-engine/internal/services"
	"github.com/javajoker/remix-engine/internal/utils"
)

type AdminHandler struct {
	royalties *services.RoyaltyService
	ledger    *services.LedgerService
}

func NewAdminHandler(royalties *services.RoyaltyService, ledger *services.LedgerService) *AdminHandler {
	return &AdminHandler{
		royalties: royalties,
		ledger:    ledger,
	}
}

// GET /admin/dead-letters
func (h *AdminHandler) GetDeadLetters(c *gin.Context) {
	params := utils.GetPaginationParams(c)

	letters, total, err := h.royalties.DeadLetters(c.Request.Context(), services.DeadLetterParams{
		PaginationParams: params,
		IncludeRedriven:  c.Query("include_redriven") == "true",
	})
	if err != nil {
		respondError(c, err, i18n.KeyDeadLetterNotFound)
		return
	}

	utils.PaginatedResponse(c, utils.CreatePaginationResult(letters, total, params))
}

// POST /admin/dead-letters/:id/redrive
func (h *AdminHandler) RedriveDeadLetter(c *gin.Context) {
	id, ok := parseIDParam(c, "id")
	if !ok {
		return
	}

	entries, err := h.royalties.Redrive(c.Request.Context(), id)
	if err != nil {
		respondError(c, err, i18n.KeyDeadLetterNotFound)
		return
	}

	utils.SuccessResponse(c, gin.H{
		"message": i18n.T(utils.GetLangFromContext(c), i18n.KeyDeadLetterRedriven),
		"entries": entries,
	})
}

// GET /admin/ledger/stats
func (h *AdminHandler) GetLedgerStats(c *gin.Context) {
	stats, err := h.ledger.Stats(c.Request.Context())
	if err != nil {
		respondError(c, err, i18n.KeyUsageNotFound)
		return
	}

	utils.SuccessResponse(c, gin.H{"stats": stats})
}
