package main

import (
	"github.com/gin-gonic/gin"
	"github.com/huangang/cocode/internal/handlers"
	"github.com/huangang/cocode/internal/middleware"
	"github.com/huangang/cocode/pkg/logger"
)

// registerRoutes sets up all HTTP routes on the given Gin engine.
func registerRoutes(r *gin.Engine, svc *appServices) {
	r.Use(logger.GinLogger(), logger.GinRecovery())
	r.RedirectTrailingSlash = false
	r.RedirectFixedPath = false
	r.Use(middleware.CORS(svc.cfg.Realtime.AllowedOrigins))

	limiter := middleware.NewRateLimiter(svc.cfg.RateLimit.RPS, svc.cfg.RateLimit.Burst)

	r.GET("/health", svc.healthHandler.CheckHealth)
	r.GET("/metrics", handlers.Metrics(svc.db))

	// websocket handshake authenticates with the token query parameter
	r.GET("/ws", svc.realtimeHandler.Connect)

	audit := middleware.AuditLog(svc.activity)

	users := r.Group("/users", limiter.Middleware(), audit)
	{
		users.POST("/register", svc.authHandler.Register)
		users.POST("/login", svc.authHandler.Login)
		users.POST("/refresh", svc.authHandler.Refresh)
		users.GET("/config", svc.authHandler.Config)

		authed := users.Group("", middleware.AuthRequired())
		authed.POST("/logout", svc.authHandler.Logout)
		authed.GET("/profile", svc.authHandler.Profile)
		authed.GET("/all", svc.authHandler.All)
	}

	projects := r.Group("/projects", middleware.AuthRequired(), audit)
	{
		projects.POST("/create", svc.projectHandler.Create)
		projects.GET("/all", svc.projectHandler.All)
		projects.PUT("/add-user", svc.projectHandler.AddUser)
		projects.GET("/get-project/:projectId", svc.projectHandler.Get)
		projects.PUT("/update-file-tree", svc.projectHandler.UpdateFileTree)
		projects.GET("/activity/:projectId", svc.projectHandler.Activity)
	}

	ai := r.Group("/ai", limiter.Middleware())
	{
		ai.GET("/get-result", svc.aiHandler.GetResult)
	}
}
