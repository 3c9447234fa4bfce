package main

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/ai-shifu/shifu-backend/internal/clients/openai"
	redisclient "github.com/ai-shifu/shifu-backend/internal/clients/redis"
	"github.com/ai-shifu/shifu-backend/internal/db"
	"github.com/ai-shifu/shifu-backend/internal/handlers"
	"github.com/ai-shifu/shifu-backend/internal/logger"
	"github.com/ai-shifu/shifu-backend/internal/middleware"
	"github.com/ai-shifu/shifu-backend/internal/repos"
	"github.com/ai-shifu/shifu-backend/internal/runner"
	"github.com/ai-shifu/shifu-backend/internal/server"
	"github.com/ai-shifu/shifu-backend/internal/services"
	"github.com/ai-shifu/shifu-backend/internal/utils"
)

func main() {
	// Logger
	logMode := os.Getenv("LOG_MODE")
	if logMode == "" {
		logMode = "development"
	}
	log, err := logger.New(logMode)
	if err != nil {
		fmt.Printf("Failed to init logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	// Env
	log.Info("Loading environment variables from main...")
	jwtSecretKey := utils.GetEnv("JWT_SECRET_KEY", "defaultsecret", log)
	accessTokenTTL := utils.GetEnvAsInt("ACCESS_TOKEN_TTL", 86400, log)
	port := utils.GetEnv("PORT", "8080", log)
	allowOrigins := strings.Split(utils.GetEnv("CORS_ALLOW_ORIGINS", "http://localhost:3000", log), ",")

	// Postgres
	postgresService, err := db.NewPostgresService(log)
	if err != nil {
		log.Fatal("Postgres init failed", "error", err)
	}
	if err = postgresService.AutoMigrateAll(); err != nil {
		log.Fatal("Postgres auto migration failed", "error", err)
	}
	thePG := postgresService.DB()

	// Redis run lock
	runLock, err := redisclient.NewRunLock(log)
	if err != nil {
		log.Fatal("Redis init failed", "error", err)
	}
	defer runLock.Close()

	// LLM client
	llm, err := openai.NewClient(log)
	if err != nil {
		log.Fatal("OpenAI client init failed", "error", err)
	}

	// Repos
	log.Info("Setting up Repos from main...")
	userRepo := repos.NewUserRepo(thePG, log)
	shifuRepo := repos.NewShifuRepo(thePG, log)
	progressRepo := repos.NewProgressRepo(thePG, log)
	generatedRepo := repos.NewGeneratedBlockRepo(thePG, log)
	profileRepo := repos.NewProfileRepo(thePG, log)

	// Services
	log.Info("Setting up Services from main...")
	authService := services.NewAuthService(log, userRepo, jwtSecretKey, time.Duration(accessTokenTTL)*time.Second)
	resolver := services.NewStructResolver(shifuRepo, log)
	shifuService := services.NewShifuService(thePG, shifuRepo, log)
	profileService := services.NewProfileService(profileRepo, log)
	moderationService := services.NewModerationService(log)
	askService := services.NewAskService(resolver, llm, log)

	// Run engine
	runConfig, err := runner.LoadConfig()
	if err != nil {
		log.Fatal("Run config load failed", "error", err)
	}
	store := runner.NewStore(thePG, progressRepo, generatedRepo, log)
	controller := runner.NewStudyController(runner.Deps{
		Log:       log,
		Resolver:  resolver,
		LLM:       llm,
		Moderator: moderationService,
		Profile:   profileService,
		Store:     store,
		Config:    runConfig,
	}, runLock, log)

	// HTTP surface
	authMiddleware := middleware.NewAuthMiddleware(log, authService)
	authHandler := handlers.NewAuthHandler(log, authService)
	shifuHandler := handlers.NewShifuHandler(log, resolver, shifuService, progressRepo)
	studyHandler := handlers.NewStudyHandler(log, controller, askService)

	r := server.NewRouter(server.RouterConfig{
		AuthMiddleware: authMiddleware,
		AuthHandler:    authHandler,
		ShifuHandler:   shifuHandler,
		StudyHandler:   studyHandler,
		AllowOrigins:   allowOrigins,
	})

	log.Info("Starting server", "port", port)
	if err := r.Run(":" + port); err != nil {
		log.Fatal("Server exited", "error", err)
	}
}
