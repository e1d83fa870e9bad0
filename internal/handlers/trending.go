// internal/handlers/trending.go
package handlers

import (
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/javajoker/remix-engine/internal/i18n"
	"github.com/javajoker/remix-engine/internal/models"
	"github.com/javajoker/remix-engine/internal/services"
	"github.com/javajoker/remix-engine/internal/utils"
)

const (
	defaultTrendingLimit = 20
	maxTrendingLimit     = 100
)

type TrendingHandler struct {
	trending  *services.TrendingService
	templates *services.TemplateService
	ledger    *services.LedgerService
	lineage   *services.LineageService
}

func NewTrendingHandler(trending *services.TrendingService, templates *services.TemplateService, ledger *services.LedgerService, lineage *services.LineageService) *TrendingHandler {
	return &TrendingHandler{
		trending:  trending,
		templates: templates,
		ledger:    ledger,
		lineage:   lineage,
	}
}

// GET /trending?limit=
func (h *TrendingHandler) GetTrending(c *gin.Context) {
	limit, err := strconv.Atoi(c.DefaultQuery("limit", strconv.Itoa(defaultTrendingLimit)))
	if err != nil || limit < 1 {
		limit = defaultTrendingLimit
	}
	if limit > maxTrendingLimit {
		limit = maxTrendingLimit
	}

	utils.SuccessResponse(c, gin.H{
		"trending": h.trending.GetTrending(limit),
	})
}

// GET /trending/:id
func (h *TrendingHandler) GetTemplateTrending(c *gin.Context) {
	id, ok := parseIDParam(c, "id")
	if !ok {
		return
	}

	tmpl, err := h.templates.Get(c.Request.Context(), id)
	if err != nil {
		respondError(c, err, i18n.KeyTemplateNotFound)
		return
	}

	score, _ := h.trending.Score(id)
	score.TemplateID = tmpl.ID
	score.CreatedAt = tmpl.CreatedAt

	var lifetime models.LifetimeActivity
	if lifetime.Uses, err = h.ledger.CountByTemplate(c.Request.Context(), id); err != nil {
		respondError(c, err, i18n.KeyTemplateNotFound)
		return
	}
	if lifetime.Remixes, err = h.lineage.CountChildren(c.Request.Context(), id); err != nil {
		respondError(c, err, i18n.KeyTemplateNotFound)
		return
	}

	utils.SuccessResponse(c, gin.H{
		"score":    score,
		"lifetime": lifetime,
	})
}
