// Package routes mounts every HTTP and websocket endpoint of the chat API.
package routes

import (
	"log/slog"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/kendall-kelly/portfolio-chat-api/config"
	"github.com/kendall-kelly/portfolio-chat-api/controllers"
	"github.com/kendall-kelly/portfolio-chat-api/middleware"
	"github.com/kendall-kelly/portfolio-chat-api/realtime"
)

// Setup builds the router. Visitor endpoints are public, the conversation
// directory and the read/archive state changes require an admin token.
func Setup(cfg *config.Config, gateway *realtime.Gateway, log *slog.Logger) (*gin.Engine, error) {
	requireToken, err := middleware.EnsureValidToken(cfg)
	if err != nil {
		return nil, err
	}

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(middleware.Tracing(config.ServiceName))
	router.Use(middleware.RequestLogger(log))
	if cfg.FrontendURL != "" {
		router.Use(cors.New(cors.Config{
			AllowOrigins:     []string{cfg.FrontendURL},
			AllowMethods:     []string{"GET", "POST", "OPTIONS"},
			AllowHeaders:     []string{"Origin", "Content-Type", "Authorization", middleware.RequestIDHeader},
			ExposeHeaders:    []string{middleware.RequestIDHeader},
			AllowCredentials: true,
			MaxAge:           12 * time.Hour,
		}))
	}

	api := router.Group("/api")
	{
		api.GET("/health", controllers.HealthCheck)
		api.GET("/database/status", controllers.DatabaseStatus)
		api.POST("/auth/login", controllers.Login)
		api.GET("/uploads/chat/:filename", controllers.GetUploadedFile)

		chat := api.Group("/chat")
		{
			chat.POST("/start", controllers.StartConversation)
			chat.POST("/messages", controllers.CreateMessage)
			chat.GET("/messages/:conversationId", controllers.ListMessages)
			chat.POST("/upload", controllers.UploadChatFile)
			chat.GET("/ws", gateway.Handle)

			admin := chat.Group("", requireToken, middleware.RequireAdmin())
			{
				admin.GET("/conversations", controllers.ListConversations)
				admin.POST("/mark-read/:conversationId", controllers.MarkRead)
				admin.POST("/archive/:conversationId", controllers.ArchiveConversation)
			}
		}
	}

	return router, nil
}
