package server

import (
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	"github.com/ai-shifu/shifu-backend/internal/handlers"
	"github.com/ai-shifu/shifu-backend/internal/middleware"
)

type RouterConfig struct {
	AuthMiddleware *middleware.AuthMiddleware
	AuthHandler    *handlers.AuthHandler
	ShifuHandler   *handlers.ShifuHandler
	StudyHandler   *handlers.StudyHandler
	AllowOrigins   []string
}

func NewRouter(cfg RouterConfig) *gin.Engine {
	r := gin.Default()

	r.Use(cors.New(cors.Config{
		AllowOrigins:     cfg.AllowOrigins,
		AllowMethods:     []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Authorization", "Accept", "Cache-Control"},
		ExposeHeaders:    []string{"Content-Length"},
		AllowCredentials: true,
	}))

	r.GET("/healthcheck", handlers.Healthcheck)

	api := r.Group("/api")
	api.POST("/register", cfg.AuthHandler.Register)
	api.POST("/login", cfg.AuthHandler.Login)

	auth := api.Group("")
	auth.Use(cfg.AuthMiddleware.RequireAuth())

	auth.GET("/shifu/:shifu_bid", cfg.ShifuHandler.GetInfo)
	auth.GET("/shifu/:shifu_bid/tree", cfg.ShifuHandler.GetTree)
	auth.POST("/shifu/:shifu_bid/publish", cfg.ShifuHandler.Publish)

	auth.POST("/study/run", cfg.StudyHandler.Run)
	auth.POST("/study/ask", cfg.StudyHandler.Ask)
	auth.GET("/study/running", cfg.StudyHandler.Running)
	auth.GET("/study/records", cfg.StudyHandler.Records)
	auth.POST("/study/like", cfg.StudyHandler.Like)
	auth.POST("/study/reset", cfg.StudyHandler.Reset)

	return r
}
