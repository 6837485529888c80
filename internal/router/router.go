package router

import (
	"time"

	"github.com/andybalholm/brotli"
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"github.com/stemsi/quizguard/internal/config"
	"github.com/stemsi/quizguard/internal/handler"
	"github.com/stemsi/quizguard/internal/middleware"
	"github.com/stemsi/quizguard/internal/response"
)

// Handlers groups all handler instances for route setup.
type Handlers struct {
	Attempt *handler.AttemptHandler
	Stream  *handler.StreamHandler
	Monitor *handler.MonitorHandler
	Health  *handler.HealthHandler
}

// Middlewares groups the stateful middlewares built in main.
type Middlewares struct {
	RateLimiter *middleware.RateLimiter
	Attempts    middleware.AttemptVerifier
}

// SetupRouter configures all Gin route groups with appropriate middlewares.
func SetupRouter(handlers *Handlers, mw *Middlewares, cfg *config.Config, log zerolog.Logger) *gin.Engine {
	gin.SetMode(cfg.GinMode)
	router := gin.New()
	router.Use(gin.Recovery())

	// ─── CORS ──────────────────────────────────────────────────────────
	corsConfig := cors.DefaultConfig()
	if len(cfg.AllowedOrigins) > 0 {
		corsConfig.AllowOrigins = cfg.AllowedOrigins
	} else {
		corsConfig.AllowAllOrigins = true
	}
	corsConfig.AllowMethods = []string{"GET", "POST", "OPTIONS"}
	corsConfig.AllowHeaders = []string{"Origin", "Content-Type", "Authorization", "X-Request-ID"}
	corsConfig.ExposeHeaders = []string{"X-Request-ID", "X-RateLimit-Limit", "X-RateLimit-Remaining"}
	corsConfig.MaxAge = 12 * time.Hour
	router.Use(cors.New(corsConfig))

	router.Use(response.RequestIDMiddleware())
	router.Use(middleware.RequestLogger(log))
	router.Use(middleware.Brotli(brotli.DefaultCompression))

	router.GET("/health", handlers.Health.Health)

	// ─── 1. Attempt API (public, rate limited) ─────────────────────────
	attemptAPI := router.Group("/api/v1/attempt")
	attemptAPI.Use(middleware.NoStore())
	if mw.RateLimiter != nil {
		attemptAPI.Use(mw.RateLimiter.Middleware())
	}
	{
		attemptAPI.POST("/start", handlers.Attempt.StartAttempt)
		attemptAPI.POST("/flag", handlers.Attempt.FlagAttempt)
		attemptAPI.POST("/submit", handlers.Attempt.SubmitAttempt)
		attemptAPI.GET("/:token", handlers.Attempt.GetAttempt)
	}

	// ─── 2. Autosave stream (attempt token) ────────────────────────────
	ws := router.Group("/ws/v1")
	ws.Use(middleware.RequireAttemptToken(mw.Attempts))
	{
		ws.GET("/attempt/:token/stream", handlers.Stream.AttemptStream)
	}

	// ─── 3. Monitor (shared proctor key) ───────────────────────────────
	monitor := router.Group("/api/v1/monitor")
	monitor.Use(middleware.RequireMonitorKey(cfg.MonitorKey), middleware.NoStore())
	{
		monitor.GET("/quizzes/:quiz_id", handlers.Monitor.GetSnapshot)
		monitor.GET("/quizzes/:quiz_id/stream", handlers.Monitor.StreamQuiz)
	}

	return router
}
