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
	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/quickcal/quickcal-server-go/internal/auth"
	"github.com/quickcal/quickcal-server-go/internal/calendar"
	"github.com/quickcal/quickcal-server-go/internal/commit"
	"github.com/quickcal/quickcal-server-go/internal/config"
	"github.com/quickcal/quickcal-server-go/internal/extract"
	"github.com/quickcal/quickcal-server-go/internal/handler"
	"github.com/quickcal/quickcal-server-go/internal/jobs"
	"github.com/quickcal/quickcal-server-go/internal/middleware"
	"github.com/quickcal/quickcal-server-go/internal/registry"
	"github.com/quickcal/quickcal-server-go/internal/session"
	"github.com/quickcal/quickcal-server-go/internal/store"
)

func main() {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})

	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load config")
	}

	setLogLevel(cfg.LogLevel)

	isProduction := os.Getenv("ENVIRONMENT") == "production"
	if err := cfg.Validate(isProduction); err != nil {
		log.Fatal().Err(err).Msg("invalid config")
	}

	defaultZone, err := cfg.Location()
	if err != nil {
		log.Fatal().Err(err).Msg("invalid default time zone")
	}

	var registryStore store.Store
	if cfg.DatabaseURL != "" {
		pg, err := store.NewPostgresStore(cfg.DatabaseURL)
		if err != nil {
			log.Fatal().Err(err).Msg("failed to connect to database")
		}
		defer pg.Close()

		ctx, cancel := context.WithTimeout(context.Background(), config.DBPingTimeout)
		if err := pg.Ping(ctx); err != nil {
			log.Fatal().Err(err).Msg("failed to ping database")
		}
		cancel()
		log.Info().Msg("database connected")
		registryStore = pg
	} else {
		registryStore = store.NewFileStore(cfg.StateFile)
		log.Info().Str("path", cfg.StateFile).Msg("using file store")
	}

	reg := registry.New(registryStore)
	if err := reg.Restore(context.Background()); err != nil {
		log.Fatal().Err(err).Msg("failed to restore registry")
	}

	var states auth.StateStore
	var cleanupJob *jobs.CleanupJob
	if cfg.RedisURL != "" {
		opts, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			log.Fatal().Err(err).Msg("invalid redis url")
		}
		redisClient := redis.NewClient(opts)
		if err := redisClient.Ping(context.Background()).Err(); err != nil {
			log.Fatal().Err(err).Msg("failed to connect to redis")
		}
		defer redisClient.Close()
		log.Info().Msg("redis connected")
		states = auth.NewRedisStateStore(redisClient)
	} else {
		memStates := auth.NewMemoryStateStore()
		states = memStates
		cleanupJob = jobs.NewCleanupJob(memStates, config.CleanupJobInterval)
	}

	googleProvider := calendar.NewGoogleProvider(cfg.GoogleClientID, cfg.GoogleClientSecret, cfg.RedirectURL())
	clientFactory := calendar.NewFactory(googleProvider)

	generators := make([]extract.Generator, 0, len(cfg.LLMModels))
	for _, model := range cfg.LLMModels {
		generators = append(generators, extract.NewChatBackend(cfg.LLMBaseURL, cfg.LLMAPIKey, model))
	}
	engine := extract.NewEngine(generators...)

	executor := commit.NewExecutor(reg, clientFactory, defaultZone)
	sessions := session.NewManager(engine, reg, executor, defaultZone)
	authService := auth.NewService(googleProvider, states, reg, cfg.AuthStateTTL())

	webhookHandler := handler.NewWebhookHandler(authService, reg, sessions)
	oauthHandler := handler.NewOAuthHandler(authService)
	signatureMiddleware := middleware.NewSignatureMiddleware(cfg.WebhookSignatureSecret)

	r := chi.NewRouter()

	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(middleware.RequestLogger)
	r.Use(chimiddleware.Recoverer)
	r.Use(chimiddleware.Timeout(config.ServerRequestTimeout))

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		json.NewEncoder(w).Encode(map[string]any{
			"status":    "ok",
			"timestamp": time.Now().UnixMilli(),
		})
	})

	r.Route("/webhook", func(r chi.Router) {
		r.Use(signatureMiddleware.Handler)
		r.Post("/", webhookHandler.Webhook)
	})

	r.Get("/oauth/callback", oauthHandler.Callback)

	if cleanupJob != nil {
		cleanupJob.Start()
		defer cleanupJob.Stop()
	}

	server := &http.Server{
		Addr:        cfg.Addr(),
		Handler:     r,
		ReadTimeout: config.ServerReadTimeout,
		IdleTimeout: config.ServerIdleTimeout,
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
