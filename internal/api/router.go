package api

import (
	"ibisync/internal/metrics"
	"ibisync/internal/middleware"
	"ibisync/internal/repository"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
)

func RegisterRoutes(
	queueHandler *QueueHandler,
	ceisaHandler *CeisaHandler,
	streamHandler *StreamHandler,
	authHandler *AuthHandler,
	clientRepo repository.ClientRepository,
	rdb *redis.Client,
	requestsPerSecond int,
	env string,
) *gin.Engine {
	r := gin.New()

	// Entity services skip API key checks only in local development.
	bypassAuth := env == "development"

	// Global Middleware
	r.Use(
		middleware.CorsMiddleware(),
		middleware.RequestID(),
		middleware.GinZapLogger(),
		middleware.GinZapRecovery(),
		middleware.HttpMiddleware(),
		middleware.TraceMiddleware(),
	)
	r.SetTrustedProxies(nil)

	// Public Routes
	r.GET("/health", queueHandler.HealthCheck)
	r.GET("/metrics", gin.WrapH(metrics.Handler()))

	// Auth Routes (Public)
	auth := r.Group("/v1/auth")
	{
		auth.POST("/login", authHandler.Login)
		auth.POST("/refresh", authHandler.Refresh)
	}

	// Auth Routes (Protected)
	authProtected := r.Group("/v1/auth")
	authProtected.Use(middleware.JWTMiddleware(true))
	{
		authProtected.GET("/me", authHandler.GetProfile)
		authProtected.POST("/logout", authHandler.Logout)
	}

	// Sync Routes (Protected by API Key). These are what the inbound,
	// outbound, production and stock mutation services call.
	sync := r.Group("/v1/sync")
	sync.Use(middleware.APIKeyMiddleware(clientRepo, bypassAuth))
	{
		sync.POST("/queue", queueHandler.Enqueue)
		sync.GET("/queue", queueHandler.List)
		sync.GET("/queue/:id", queueHandler.Get)
		sync.POST("/ceisa/documents", ceisaHandler.Submit)
		sync.GET("/ceisa/documents/:reference", ceisaHandler.CheckStatus)
	}

	// Operator Routes (Control Plane)
	// Enable Dev-Pass=true for debugging
	protected := r.Group("/v1/admin")
	protected.Use(middleware.JWTMiddleware(true))

	// Rate Limiter for Write Operations
	writeLimiter := middleware.RateLimitMiddleware(rdb, requestsPerSecond)

	{
		protected.GET("/queue", queueHandler.List)
		protected.GET("/queue/:id", queueHandler.Get)
		protected.GET("/queue/:id/audits", queueHandler.Audits)
		protected.GET("/audits", queueHandler.AuditLog)
		protected.POST("/queue/process", writeLimiter, queueHandler.Process)
		protected.POST("/queue/:id/retry", writeLimiter, queueHandler.Retry)
		protected.POST("/queue/:id/cancel", writeLimiter, queueHandler.Cancel)
		protected.DELETE("/queue/completed", writeLimiter, queueHandler.ClearCompleted)
		protected.GET("/ceisa/documents", ceisaHandler.List)
		protected.GET("/ceisa/documents/:reference", ceisaHandler.CheckStatus)
		protected.GET("/stream", streamHandler.WatchEvents)
	}
	return r
}
