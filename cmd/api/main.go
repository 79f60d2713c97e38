package main

import (
	"log"

	"github.com/applytrack/applytrack/internal/config"
	"github.com/applytrack/applytrack/internal/database"
	"github.com/applytrack/applytrack/internal/handlers"
	"github.com/applytrack/applytrack/internal/logging"
	"github.com/applytrack/applytrack/internal/middleware"
	"github.com/applytrack/applytrack/internal/services"
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
)

func main() {
	// 1. Load Environment
	if err := godotenv.Load(); err != nil {
		log.Println("no .env file found, using process environment")
	}
	cfg, err := config.Load()
	if err != nil {
		log.Fatal("invalid configuration: ", err)
	}

	logger, err := logging.New(cfg.Env)
	if err != nil {
		log.Fatal("could not build logger: ", err)
	}
	defer logger.Sync() //nolint:errcheck

	// 2. Database Connection
	db, err := database.Connect(cfg.DatabaseDSN)
	if err != nil {
		logger.Fatalw("database connection failed", "error", err)
	}
	logger.Info("database connection established")

	// 3. Initialize Core Services
	llmService, err := services.NewLLMService(cfg.AI, logger)
	if err != nil {
		logger.Fatalw("llm client setup failed", "error", err)
	}
	if !llmService.Configured() {
		logger.Warn("no AI credential configured; generation endpoints will report AI_PROVIDER_NOT_CONFIGURED")
	}
	appService := services.NewApplicationService(db, logger)
	evidenceService := services.NewEvidenceService(db, logger)
	versionStore := services.NewVersionStore(db, logger)
	letterService := services.NewLetterService(cfg.AI, llmService, evidenceService, versionStore, appService, logger)

	// 4. Initialize Handlers
	appHandler := handlers.NewApplicationHandler(appService, evidenceService)
	letterHandler := handlers.NewLetterHandler(letterService, versionStore, appService, logger)

	// 5. Setup Router & CORS
	if cfg.AI.ProductionLike() {
		gin.SetMode(gin.ReleaseMode)
	}
	r := gin.Default()
	corsConfig := cors.DefaultConfig()
	corsConfig.AllowAllOrigins = true // For development only
	corsConfig.AllowHeaders = []string{"Origin", "Content-Length", "Content-Type", "Authorization"}
	r.Use(cors.New(corsConfig))

	// 6. Define Routes
	api := r.Group("/api/v1")
	{
		api.GET("/health", handlers.HealthCheck)
	}

	authed := api.Group("", middleware.Auth(cfg.JWTSecret))
	{
		// Applications
		authed.POST("/applications", appHandler.Create)
		authed.GET("/applications", appHandler.List)
		authed.GET("/applications/:id", appHandler.Get)
		authed.GET("/applications/:id/timeline", appHandler.Timeline)

		// Evidence
		authed.POST("/evidence", appHandler.CreateEvidence)
		authed.GET("/evidence", appHandler.ListEvidence)

		// Cover letters
		authed.POST("/cover-letters/generate", letterHandler.Generate)
		authed.POST("/cover-letters", letterHandler.GenerateSync)
		authed.PATCH("/cover-letters/:id/submission", letterHandler.PatchSubmission)
		authed.GET("/applications/:id/cover-letters/latest", letterHandler.Latest)
		authed.GET("/applications/:id/cover-letters/submitted", letterHandler.SubmittedHistory)
		authed.POST("/applications/:id/cover-letters/submit", letterHandler.Submit)
	}

	logger.Infow("server starting", "port", cfg.Port)
	if err := r.Run(":" + cfg.Port); err != nil {
		logger.Fatalw("server failed to start", "error", err)
	}
}
