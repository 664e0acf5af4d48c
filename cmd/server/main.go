package main

import (
	"context"
	"encoding/json"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/luminachat/server-go/internal/config"
	"github.com/luminachat/server-go/internal/database"
	"github.com/luminachat/server-go/internal/genai"
	"github.com/luminachat/server-go/internal/handler"
	"github.com/luminachat/server-go/internal/jobs"
	"github.com/luminachat/server-go/internal/middleware"
	"github.com/luminachat/server-go/internal/redis"
	"github.com/luminachat/server-go/internal/repository"
	"github.com/luminachat/server-go/internal/service"
	"github.com/luminachat/server-go/internal/token"
)

func main() {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load config")
	}

	setLogLevel(cfg.LogLevel)

	isProduction := os.Getenv("FLY_APP_NAME") != ""
	if err := cfg.Validate(isProduction); err != nil {
		log.Fatal().Err(err).Msg("invalid configuration")
	}

	db, err := database.Connect(cfg.DatabaseURL)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to database")
	}
	defer db.Close()

	ctx, cancel := context.WithTimeout(context.Background(), config.DBPingTimeout)
	if err := db.Ping(ctx); err != nil {
		log.Fatal().Err(err).Msg("failed to ping database")
	}
	cancel()
	log.Info().Msg("database connected")

	redisClient, err := redis.NewClient(cfg.RedisURL)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to redis")
	}
	defer redisClient.Close()
	log.Info().Msg("redis connected")

	genaiClient, err := genai.NewClient(context.Background(), cfg.GeminiAPIKey)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to create model provider client")
	}
	defer genaiClient.Close()

	userRepo := repository.NewUserRepository(db.DB)
	codeRepo := repository.NewActivationCodeRepository(db.DB)
	deviceRepo := repository.NewDeviceRepository(db.DB)
	msgRepo := repository.NewChatMessageRepository(db.DB)
	chunkRepo := repository.NewMemoryChunkRepository(db.DB)
	vectorRepo := repository.NewPersonalVectorRepository(db.DB)
	appConfigRepo := repository.NewAppConfigRepository(db.DB)
	sysInstructionRepo := repository.NewSystemInstructionRepository(db.DB)
	adminSessionRepo := repository.NewAdminSessionRepository(db.DB)

	issuer := token.NewIssuer(cfg.ActivationSecret, config.ActivationTokenTTL)

	configProvider := service.NewConfigProvider(appConfigRepo)
	activationService := service.NewActivationService(db, codeRepo, userRepo, deviceRepo, issuer)
	memoryService := service.NewMemoryService(msgRepo, chunkRepo, vectorRepo, genaiClient, genaiClient, configProvider)
	chatService := service.NewChatService(memoryService, genaiClient, genaiClient, sysInstructionRepo, configProvider)
	adminService := service.NewAdminService(
		userRepo, codeRepo, deviceRepo, msgRepo, chunkRepo, vectorRepo,
		adminSessionRepo, configProvider,
		cfg.AdminPasswordHash, cfg.AdminSecret,
	)

	deviceAuthMiddleware := middleware.NewDeviceAuthMiddleware(issuer, userRepo, deviceRepo)
	rateLimitMiddleware := middleware.NewRedisRateLimitMiddleware(redisClient.Client)
	adminSessionMiddleware := middleware.NewAdminSessionMiddleware(
		adminSessionRepo, cfg.AdminPasswordHash, cfg.AdminSecret,
	)
	csrfMiddleware := middleware.NewCSRFMiddleware(isProduction)
	bodyLimitMiddleware := middleware.NewBodyLimitMiddleware(0)
	securityHeadersMiddleware := middleware.NewSecurityHeadersMiddleware(isProduction)

	activateHandler := handler.NewActivateHandler(activationService)
	chatHandler := handler.NewChatHandler(chatService)
	memoryHandler := handler.NewMemoryHandler(memoryService)
	configHandler := handler.NewConfigHandler(configProvider)
	adminHandler := handler.NewAdminHandler(adminService, adminSessionMiddleware.Handler, isProduction)

	r := chi.NewRouter()

	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(middleware.RequestLogger)
	r.Use(chimiddleware.Recoverer)
	r.Use(chimiddleware.Timeout(config.ServerRequestTimeout))
	r.Use(bodyLimitMiddleware.Handler)

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		json.NewEncoder(w).Encode(map[string]any{
			"status":    "ok",
			"timestamp": time.Now().UnixMilli(),
		})
	})

	r.Route("/api", func(r chi.Router) {
		r.Post("/activate", activateHandler.Activate)

		r.Group(func(r chi.Router) {
			r.Use(deviceAuthMiddleware.Handler)
			r.Use(rateLimitMiddleware.Handler)

			r.Post("/chat", chatHandler.Chat)
			r.Get("/config", configHandler.GetConfig)

			r.Get("/system-instruction", chatHandler.GetSystemInstruction)
			r.Post("/system-instruction", chatHandler.SetSystemInstruction)

			r.Post("/memory/sync", memoryHandler.SyncMemory)
			r.Post("/vectorize", memoryHandler.Vectorize)
			r.Get("/memories", memoryHandler.ListMemories)
			r.Put("/memories", memoryHandler.UpdateMemory)
			r.Delete("/memories", memoryHandler.DeleteMemory)
		})
	})

	r.Route("/admin", func(r chi.Router) {
		r.Use(securityHeadersMiddleware.Handler)
		r.Use(csrfMiddleware.Handler)
		r.Mount("/", adminHandler.Routes())
	})

	cleanupJob := jobs.NewCleanupJob(adminSessionRepo, config.CleanupJobInterval)
	cleanupJob.Start()
	defer cleanupJob.Stop()

	server := &http.Server{
		Addr:         cfg.Addr(),
		Handler:      r,
		ReadTimeout:  config.ServerReadTimeout,
		WriteTimeout: 0, // streaming responses manage their own deadline
		IdleTimeout:  config.ServerIdleTimeout,
	}

	go func() {
		log.Info().Str("addr", cfg.Addr()).Msg("starting server")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("server error")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info().Msg("shutting down server")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), config.ServerShutdownTimeout)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("server forced to shutdown")
	}

	log.Info().Msg("server stopped")
}

func setLogLevel(level string) {
	switch level {
	case "debug":
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	case "info":
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
	case "warn":
		zerolog.SetGlobalLevel(zerolog.WarnLevel)
	case "error":
		zerolog.SetGlobalLevel(zerolog.ErrorLevel)
	default:
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
	}
}
