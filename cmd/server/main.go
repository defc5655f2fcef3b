package main

import (
	"whatsapp-admin/internal/api"
	"whatsapp-admin/internal/config"
	"whatsapp-admin/internal/database"
	"whatsapp-admin/internal/service"
	"whatsapp-admin/internal/webhook"
	"whatsapp-admin/internal/whatsapp"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

func main() {
	log := logrus.New()
	log.SetFormatter(&logrus.JSONFormatter{})

	cfg := config.LoadConfig()

	db, err := database.Connect(cfg)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	if err := database.Migrate(db); err != nil {
		log.Fatalf("Failed to run migrations: %v", err)
	}
	if err := database.SeedRoles(db, cfg.DefaultUserRole); err != nil {
		log.Fatalf("Failed to seed roles: %v", err)
	}

	r := gin.Default()

	// CORS Middleware
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

	gateway := whatsapp.NewClient(cfg)
	svc := service.NewWhatsAppService(db, gateway, log, cfg.DefaultUserRole)
	webhookHandler := webhook.NewHandler(cfg, svc, log)
	userHandler := api.NewUserHandler(db, log)
	conversationHandler := api.NewConversationHandler(db, svc, log)

	// Webhook Routes
	r.GET("/webhook", webhookHandler.Verify)
	r.POST("/webhook", webhookHandler.Handle)

	// Admin API Routes
	apiGroup := r.Group("/api")
	{
		usersGroup := apiGroup.Group("/whatsapp-users")
		{
			usersGroup.GET("", userHandler.ListUsers)
			usersGroup.GET("/:id", userHandler.GetUser)
			usersGroup.PUT("/:id/role", userHandler.UpdateRole)
			usersGroup.PUT("/:id/toggle-active", userHandler.ToggleActive)
			usersGroup.POST("/:id/conversations/get-or-create", conversationHandler.GetOrCreate)
		}

		conversationsGroup := apiGroup.Group("/conversations")
		{
			conversationsGroup.GET("/:id/messages", conversationHandler.Messages)
			conversationsGroup.POST("/:id/send", conversationHandler.SendMessage)
			conversationsGroup.POST("/:id/send-template", conversationHandler.SendTemplate)
			conversationsGroup.PUT("/:id/close", conversationHandler.Close)
		}
	}

	log.Infof("Server starting on port %s", cfg.Port)
	if err := r.Run(":" + cfg.Port); err != nil {
		log.Fatalf("Failed to run server: %v", err)
	}
}
