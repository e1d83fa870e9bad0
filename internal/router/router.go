// internal/router/router.go
package router

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/javajoker/remix-engine/internal/handlers"
	"github.com/javajoker/remix-engine/internal/middleware"
	"github.com/javajoker/remix-engine/internal/services"
	"github.com/javajoker/remix-engine/internal/utils"
)

func Initialize(engine *services.Engine) *gin.Engine {
	cfg := engine.Config

	// Initialize handlers
	templateHandler := handlers.NewTemplateHandler(engine.Templates, engine.Lineage, engine.Renderer)
	usageHandler := handlers.NewUsageHandler(engine.Ledger, engine.Royalties)
	royaltyHandler := handlers.NewRoyaltyHandler(engine.Royalties, engine.Statements)
	trendingHandler := handlers.NewTrendingHandler(engine.Trending, engine.Templates, engine.Ledger, engine.Lineage)
	adminHandler := handlers.NewAdminHandler(engine.Royalties, engine.Ledger)

	// Set JWT secret
	utils.SetJWTSecret(cfg.JWT.SecretKey)

	// Initialize Gin router
	r := gin.New()

	// Global middleware
	r.Use(gin.Recovery())
	r.Use(middleware.CORS(cfg.Environment))
	r.Use(middleware.I18nMiddleware())
	if cfg.Server.RateLimit {
		r.Use(middleware.GeneralRateLimit())
	}
	r.Use(middleware.AuditLogMiddleware(engine.DB))

	// Health check
	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":    "healthy",
			"version":   "1.0.0",
			"consumers": cfg.Consumer.Enabled,
		})
	})

	// API v1 routes
	v1 := r.Group("/v1")
	{
		// Template authoring and execution
		templates := v1.Group("/templates")
		{
			templates.GET("", templateHandler.ListTemplates)
			templates.GET("/:id", templateHandler.GetTemplate)
			templates.GET("/:id/lineage", templateHandler.GetLineage)
			templates.GET("/:id/children", templateHandler.GetChildren)
			templates.GET("/:id/verify", templateHandler.VerifyLineage)
			templates.POST("/:id/render", middleware.OptionalAuth(), templateHandler.RenderTemplate)

			protected := templates.Group("")
			protected.Use(middleware.AuthRequired())
			{
				protected.POST("", templateHandler.CreateTemplate)
				protected.POST("/:id/remix", templateHandler.RemixTemplate)
			}
		}

		// Usage ledger
		recordUsage := []gin.HandlerFunc{middleware.AuthRequired(), usageHandler.RecordUsage}
		if cfg.Server.RateLimit {
			recordUsage = append([]gin.HandlerFunc{middleware.UsageRateLimit()}, recordUsage...)
		}

		usage := v1.Group("/usage")
		{
			usage.GET("", usageHandler.ListUsage)
			usage.GET("/:id", usageHandler.GetUsage)
			usage.GET("/:id/royalties", usageHandler.GetUsageRoyalties)
			usage.POST("", recordUsage...)
		}

		// Royalty billing
		royalties := v1.Group("/royalties")
		royalties.Use(middleware.AuthRequired())
		{
			royalties.GET("/me", royaltyHandler.GetMyRoyalties)
			royalties.GET("/beneficiaries/:id", royaltyHandler.GetBeneficiaryRoyalties)
			royalties.POST("/statements", royaltyHandler.ExportStatement)
		}

		// Trending dashboard
		trending := v1.Group("/trending")
		{
			trending.GET("", trendingHandler.GetTrending)
			trending.GET("/:id", trendingHandler.GetTemplateTrending)
		}

		// Admin routes
		admin := v1.Group("/admin")
		admin.Use(middleware.AuthRequired())
		admin.Use(middleware.AdminRequired())
		{
			admin.GET("/dead-letters", adminHandler.GetDeadLetters)
			admin.POST("/dead-letters/:id/redrive", adminHandler.RedriveDeadLetter)
			admin.GET("/ledger/stats", adminHandler.GetLedgerStats)
		}
	}

	return r
}
