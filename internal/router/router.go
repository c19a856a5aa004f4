package router

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"studyplan/backend/internal/handler"
	"studyplan/backend/internal/middleware"
	"studyplan/backend/internal/service"
)

func New(
	authService *service.AuthService,
	authHandler *handler.AuthHandler,
	sessionHandler *handler.SessionHandler,
	corsOrigins []string,
) *gin.Engine {
	engine := gin.New()
	engine.Use(middleware.RequestLogger(), gin.Recovery(), middleware.CORS(corsOrigins))

	engine.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	engine.GET("/metrics", gin.WrapH(promhttp.Handler()))

	api := engine.Group("/api")
	auth := api.Group("/auth")
	auth.POST("/register", authHandler.Register)
	auth.POST("/login", authHandler.Login)

	protected := api.Group("")
	protected.Use(middleware.Auth(authService))

	sessions := protected.Group("/sessions")
	sessions.GET("/current", sessionHandler.Current)
	sessions.POST("/start", sessionHandler.Start)
	sessions.POST("/pause", sessionHandler.Pause)
	sessions.POST("/resume", sessionHandler.Resume)
	sessions.POST("/end", sessionHandler.End)
	sessions.POST("/cancel", sessionHandler.Cancel)
	sessions.POST("/reset", sessionHandler.Reset)
	sessions.POST("/tick", sessionHandler.Tick)
	sessions.GET("/history", sessionHandler.GetHistory)

	protected.GET("/statistics", sessionHandler.GetStatistics)

	return engine
}
