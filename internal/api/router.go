package api

import (
	"github.com/gin-gonic/gin"

	"github.com/jeswintom22/ClassSight/internal/api/handler"
	"github.com/jeswintom22/ClassSight/internal/api/middleware"
	"github.com/jeswintom22/ClassSight/internal/config"
	"github.com/jeswintom22/ClassSight/internal/repository"
	"github.com/jeswintom22/ClassSight/internal/service"
)

func SetupRouter(as *service.AuthService, pipeline *service.PipelineService, cache *service.CacheService,
	analysisLogRepo repository.AnalysisLogRepository, authMw *middleware.AuthMiddleware,
	wsManager *handler.WebSocketManager, cfg *config.Config) *gin.Engine {
	r := gin.Default()
	r.Use(gin.Logger())
	r.Use(gin.Recovery())

	r.Use(func(c *gin.Context) {
		c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
		c.Writer.Header().Set("Access-Control-Allow-Credentials", "true")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Content-Type, Content-Length, Accept-Encoding, X-CSRF-Token, Authorization, accept, origin, Cache-Control, X-Requested-With")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "POST, OPTIONS, GET, PUT, DELETE")
		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(204)
			return
		}
		c.Next()
	})

	// WebSocket endpoint (không cần auth cho real-time connection)
	wsHandler := handler.NewWebSocketHandler(wsManager, pipeline, cfg.MaxFrameBytes)
	r.GET("/ws/stream", wsHandler.HandleStream)

	authHandler := handler.NewAuthHandler(as)
	authRoutes := r.Group("/auth")
	{
		authRoutes.POST("/login", authHandler.Login)
	}

	v1 := r.Group("/api/v1")
	{
		analysisHandler := handler.NewAnalysisHandler(pipeline, cache)
		analysisRoutes := v1.Group("/analysis")
		{
			analysisRoutes.POST("/analyze", analysisHandler.AnalyzeFrame) // fallback đồng bộ cho client không có WebSocket
			analysisRoutes.GET("/health", analysisHandler.Health)
		}

		historyHandler := handler.NewHistoryHandler(analysisLogRepo)
		v1.GET("/analyses", historyHandler.GetRecentAnalyses)

		// Admin routes - chỉ operator đã đăng nhập
		adminHandler := handler.NewAdminHandler(cache, pipeline, wsManager)
		adminRoutes := v1.Group("/admin")
		adminRoutes.Use(authMw.Authenticate(), authMw.AuthorizeRole("admin"))
		{
			adminRoutes.POST("/cache/clear", adminHandler.ClearCache)
			adminRoutes.GET("/cache/stats", adminHandler.CacheStats)
		}
	}
	return r
}
