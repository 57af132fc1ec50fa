package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/policyvoice/server/internal/auth"
	"github.com/policyvoice/server/internal/config"
	"github.com/policyvoice/server/internal/conversation"
	"github.com/policyvoice/server/internal/llm"
	"github.com/policyvoice/server/internal/logger"
	"github.com/policyvoice/server/internal/metrics"
	"github.com/policyvoice/server/internal/profile"
	"github.com/policyvoice/server/internal/realtime"
	"github.com/policyvoice/server/internal/storage/pg"
	"github.com/policyvoice/server/internal/tag"
	"github.com/policyvoice/server/internal/tagging"
	"github.com/policyvoice/server/internal/titlegen"
	"github.com/robfig/cron/v3"
)

func main() {
	config.LoadConfig()

	log := logger.New(logger.FromConfig(config.AppConfig.LogLevel, config.AppConfig.LogFormat))

	log.Info("setting gin mode", slog.String("mode", config.AppConfig.GinMode))
	gin.SetMode(config.AppConfig.GinMode)

	db, err := pg.InitDatabase(config.AppConfig.DatabaseURL)
	if err != nil {
		log.Error("failed to initialize database", slog.String("error", err.Error()))
		os.Exit(1)
	}

	tokenValidator, err := auth.NewTokenValidator(config.AppConfig.ClerkJWKSURL)
	if err != nil {
		log.Error("failed to initialize token validator", slog.String("error", err.Error()))
		os.Exit(1)
	}
	authMiddleware := auth.NewMiddleware(tokenValidator)

	llmClient := llm.NewClient(config.AppConfig.LLM.BaseURL, config.AppConfig.LLMAPIKey)

	// Stores.
	conversationStore := conversation.NewStore(log, db.DB)
	tagStore := tag.NewStore(log, db.DB)
	profileStore := profile.NewStore(log, db.DB)

	// Services.
	titleGenerator := titlegen.NewGenerator(llmClient, config.AppConfig.LLM.TitleTask, log)
	titleService := titlegen.NewService(log, titleGenerator, conversationStore,
		config.AppConfig.TitleWorkerPoolSize,
		config.AppConfig.TitleQueueSize,
		time.Duration(config.AppConfig.TitleTimeoutSeconds)*time.Second)
	conversationService := conversation.NewService(log, conversationStore, titleGenerator, titleService)
	tagSuggester := tagging.NewSuggester(llmClient, config.AppConfig.LLM.TagSuggestTask, log)
	tagService := tag.NewService(tagStore, conversationService, tagSuggester, log)
	hub := realtime.NewHub(log)

	// Handlers.
	conversationHandler := conversation.NewHandler(conversationService, log)
	tagHandler := tag.NewHandler(tagService, log)
	profileHandler := profile.NewHandler(profileStore, log)
	realtimeHandler := realtime.NewHandler(hub, conversationService, log)

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(requestIDMiddleware())
	router.Use(corsMiddleware(config.AppConfig.CORSAllowedOrigins))
	router.Use(metrics.Middleware())

	router.GET("/health", func(c *gin.Context) {
		if err := db.DB.PingContext(c.Request.Context()); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "degraded", "database": "down"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	router.GET("/metrics", metrics.Handler())

	api := router.Group("/api/v1")
	api.Use(authMiddleware.RequireAuth())
	{
		api.POST("/profile/sync", profileHandler.Sync)
		api.GET("/profile", profileHandler.Get)

		conversations := api.Group("/conversations")
		{
			conversations.POST("", conversationHandler.Create)
			conversations.GET("", conversationHandler.List)
			conversations.GET("/:id", conversationHandler.Get)
			conversations.PATCH("/:id/title", conversationHandler.Rename)
			conversations.POST("/:id/title/generate", conversationHandler.RegenerateTitle)
			conversations.DELETE("/:id", conversationHandler.Delete)
			conversations.POST("/:id/messages", conversationHandler.AddMessage)
			conversations.GET("/:id/messages", conversationHandler.ListMessages)

			conversations.GET("/:id/tags", tagHandler.ListForConversation)
			conversations.POST("/:id/tags", tagHandler.Assign)
			conversations.POST("/:id/tags/suggest", tagHandler.Suggest)
			conversations.DELETE("/:id/tags/:tagId", tagHandler.Unassign)
		}

		voice := api.Group("/voice/conversations")
		{
			voice.GET("/:id/events", realtimeHandler.Subscribe)
			voice.POST("/:id/events", realtimeHandler.Publish)
		}

		tags := api.Group("/tags")
		{
			tags.POST("", tagHandler.Create)
			tags.GET("", tagHandler.List)
			tags.PATCH("/:id", tagHandler.Update)
			tags.DELETE("/:id", tagHandler.Delete)
		}
	}

	// Nightly removal of abandoned empty conversations.
	var scheduler *cron.Cron
	if config.AppConfig.CleanupEnabled {
		scheduler = cron.New()
		maxAge := time.Duration(config.AppConfig.CleanupMaxAgeHours) * time.Hour
		_, err := scheduler.AddFunc(config.AppConfig.CleanupSchedule, func() {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
			defer cancel()
			conversationService.CleanupStale(ctx, maxAge)
		})
		if err != nil {
			log.Error("invalid cleanup schedule", slog.String("error", err.Error()))
			os.Exit(1)
		}
		scheduler.Start()
		log.Info("cleanup scheduler started",
			slog.String("schedule", config.AppConfig.CleanupSchedule),
			slog.Int("max_age_hours", config.AppConfig.CleanupMaxAgeHours))
	}

	port := ":" + config.AppConfig.Port
	srv := &http.Server{
		Addr:    port,
		Handler: router,
	}

	go func() {
		log.Info("server listening", slog.String("addr", port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error("failed to start server", slog.String("error", err.Error()))
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info("shutting down server")

	if scheduler != nil {
		<-scheduler.Stop().Done()
	}

	// Drain pending title jobs before closing listeners.
	titleService.Shutdown()

	ctx, cancel := context.WithTimeout(context.Background(),
		time.Duration(config.AppConfig.ServerShutdownTimeoutSeconds)*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		log.Error("server forced to shutdown", slog.String("error", err.Error()))
		os.Exit(1)
	}

	log.Info("server exited")
}

func requestIDMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		requestID := c.GetHeader("X-Request-ID")
		if requestID == "" {
			requestID = logger.GenerateRequestID()
		}
		c.Request = c.Request.WithContext(logger.WithRequestID(c.Request.Context(), requestID))
		c.Header("X-Request-ID", requestID)
		c.Next()
	}
}

func corsMiddleware(allowedOrigins string) gin.HandlerFunc {
	allowAll := allowedOrigins == "" || allowedOrigins == "*"
	allowed := map[string]bool{}
	for _, origin := range strings.Split(allowedOrigins, ",") {
		allowed[strings.TrimSpace(origin)] = true
	}

	return func(c *gin.Context) {
		origin := c.GetHeader("Origin")
		if allowAll {
			c.Header("Access-Control-Allow-Origin", "*")
		} else if allowed[origin] {
			c.Header("Access-Control-Allow-Origin", origin)
			c.Header("Vary", "Origin")
		}
		c.Header("Access-Control-Allow-Methods", "GET, POST, PATCH, DELETE, OPTIONS")
		c.Header("Access-Control-Allow-Headers", "Origin, Content-Type, Content-Length, Accept-Encoding, Authorization, X-Request-ID")

		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}

		c.Next()
	}
}
