package router

import (
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/hirepath/assess-backend/internal/config"
	"github.com/hirepath/assess-backend/internal/handler"
	"github.com/hirepath/assess-backend/internal/middleware"
	"github.com/hirepath/assess-backend/internal/response"
)

// Handlers groups all handler instances for route setup.
type Handlers struct {
	Session     *handler.SessionHandler
	Entitlement *handler.EntitlementHandler
	WS          *handler.WSHandler
}

// SetupRouter configures all Gin route groups with appropriate middlewares.
func SetupRouter(handlers *Handlers, cfg *config.Config) *gin.Engine {
	gin.SetMode(cfg.GinMode)
	router := gin.Default()

	// ─── CORS ──────────────────────────────────────────────────────────
	// If AllowedOrigins is set in config, restrict to that list;
	// otherwise allow all (*) so dev works without extra config.
	corsConfig := cors.DefaultConfig()
	if len(cfg.AllowedOrigins) > 0 {
		corsConfig.AllowOrigins = cfg.AllowedOrigins
	} else {
		corsConfig.AllowAllOrigins = true
	}
	corsConfig.AllowMethods = []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"}
	corsConfig.AllowHeaders = []string{"Origin", "Content-Type", "Authorization", "X-Request-ID"}
	corsConfig.ExposeHeaders = []string{"X-Request-ID"}
	corsConfig.MaxAge = 12 * time.Hour
	router.Use(cors.New(corsConfig))

	// Apply request ID middleware globally so every response includes metadata.
	router.Use(response.RequestIDMiddleware())

	// Health check.
	router.GET("/health", func(c *gin.Context) {
		response.Success(c, http.StatusOK, gin.H{"status": "ok"})
	})

	// ─── 1. Candidate Group (Platform JWT) ─────────────────────────────
	api := router.Group("/api/v1")
	api.Use(middleware.RequireUserJWT(cfg.JWTSecret))
	{
		api.POST("/sessions", handlers.Session.CreateSession)
		api.GET("/sessions", handlers.Session.ListSessions)
		api.GET("/sessions/:session_id", handlers.Session.GetSession)
		api.GET("/sessions/:session_id/time", handlers.Session.GetRemainingTime)
		api.POST("/sessions/:session_id/questions/:question_id/answer", handlers.Session.SubmitAnswer)
		api.POST("/sessions/:session_id/violations", handlers.Session.ReportViolation)
		api.GET("/sessions/:session_id/violations", handlers.Session.ListViolations)
		api.POST("/sessions/:session_id/complete", handlers.Session.CompleteSession)
		api.POST("/sessions/:session_id/cancel", handlers.Session.CancelSession)

		api.GET("/entitlements/me", handlers.Entitlement.GetMyEntitlement)
		api.GET("/entitlements/me/eligibility", handlers.Entitlement.CheckEligibility)
	}

	// ─── 2. WebSocket Group (WS Auth via query token) ──────────────────
	ws := router.Group("/ws/v1")
	ws.Use(middleware.RequireUserWSAuth(cfg.JWTSecret))
	{
		ws.GET("/sessions/:session_id/monitor", handlers.WS.MonitorStream)
	}

	// ─── 3. Internal Group (Service Token) ─────────────────────────────
	internalAPI := router.Group("/api/v1/internal")
	internalAPI.Use(middleware.RequireServiceToken(cfg.ServiceToken))
	{
		internalAPI.POST("/users/:user_id/credits", handlers.Entitlement.GrantCredits)
	}

	return router
}
