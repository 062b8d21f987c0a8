package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/rs/zerolog/log"

	"github.com/picthaisky/english-speaking-coach/internal/config"
	"github.com/picthaisky/english-speaking-coach/internal/database"
	"github.com/picthaisky/english-speaking-coach/internal/handlers"
	"github.com/picthaisky/english-speaking-coach/internal/logger"
	"github.com/picthaisky/english-speaking-coach/internal/middleware"
	"github.com/picthaisky/english-speaking-coach/internal/repository"
	"github.com/picthaisky/english-speaking-coach/internal/router"
	"github.com/picthaisky/english-speaking-coach/internal/scheduler"
	"github.com/picthaisky/english-speaking-coach/internal/services"
	"github.com/picthaisky/english-speaking-coach/internal/websocket"
	"github.com/picthaisky/english-speaking-coach/internal/worker"
	"github.com/picthaisky/english-speaking-coach/migrations"
)

func main() {
	// ──── Step 1: Load Environment Variables ────
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}

	logCloser := logger.Setup(logger.Options{
		Level:       cfg.LogLevel,
		Development: cfg.IsDevelopment(),
		File:        cfg.LogFile,
		MaxSizeMB:   cfg.LogMaxSizeMB,
		MaxBackups:  cfg.LogMaxBackups,
		MaxAgeDays:  cfg.LogMaxAgeDays,
	})
	defer logCloser.Close()
	log.Info().Str("env", cfg.Env).Str("provider", string(cfg.AnalysisProvider)).Msg("starting speaking coach backend")

	ctx := context.Background()

	// ──── Step 2: Initialize PostgreSQL Connection Pool ────
	pool, err := database.NewPostgresPool(ctx, cfg.DatabaseURL, database.DefaultPoolOptions())
	if err != nil {
		log.Fatal().Err(err).Msg("PostgreSQL connection failed")
	}
	defer pool.Close()
	log.Info().Msg("PostgreSQL connected")

	// ──── Step 3: Run Database Migrations ────
	if err := database.RunMigrations(ctx, pool, migrations.FS); err != nil {
		log.Fatal().Err(err).Msg("database migration failed")
	}

	// ──── Step 4: Initialize Redis Clients ────
	redisClients, err := database.NewRedisClients(ctx, cfg.RedisURL)
	if err != nil {
		log.Fatal().Err(err).Msg("Redis connection failed")
	}
	defer redisClients.Close()
	log.Info().Msg("Redis connected")

	// ──── Initialize Repositories ────
	recordingRepo := repository.NewRecordingRepo(pool)
	feedbackRepo := repository.NewFeedbackRepo(pool)
	sessionRepo := repository.NewSessionRepo(pool)
	progressRepo := repository.NewProgressRepo(pool)

	// ──── Step 5: Initialize Analysis Provider ────
	var objects *minio.Client
	if cfg.MinioEnabled() {
		objects, err = services.NewMinioClient(cfg.MinioEndpoint, cfg.MinioAccessKey, cfg.MinioSecretKey, cfg.MinioUseSSL)
		if err != nil {
			log.Fatal().Err(err).Msg("MinIO client initialization failed")
		}
	}
	audio := services.NewAudioSource(cfg.StoragePath, objects, cfg.AudioAllowedHosts...)

	provider, closeProvider, err := newProvider(cfg, audio)
	if err != nil {
		log.Fatal().Err(err).Msg("analysis provider initialization failed")
	}
	defer closeProvider()

	provider = services.WithRetry(provider, services.RetryPolicy{
		MaxRetries:        cfg.AnalysisMaxRetries,
		InitialInterval:   cfg.AnalysisInitialBackoff,
		MaxInterval:       30 * time.Second,
		PerAttemptTimeout: cfg.AnalysisTimeout,
	})

	// ──── Initialize Services ────
	queue := worker.NewRedisQueue(redisClients.Queue, cfg.QueueMaxDepth)
	notifier := services.NewRedisNotifier(redisClients.PubSub)
	processor := services.NewRecordingProcessor(recordingRepo, sessionRepo, provider, queue, notifier)
	aggregator := services.NewProgressAggregator(sessionRepo, progressRepo)
	sessionService := services.NewSessionService(sessionRepo, recordingRepo)

	// ──── Step 6: Recover Interrupted Recordings ────
	recovery := worker.NewRecovery(recordingRepo, queue, cfg.StaleProcessingAfter)
	if _, err := recovery.Run(ctx, 0); err != nil {
		log.Error().Err(err).Msg("startup recovery failed")
	}

	// ──── Step 7: Start Worker Pool ────
	workerPool := worker.NewPool(queue, processor, worker.Options{
		WorkerCount: cfg.WorkerCount,
		JobTimeout:  cfg.StaleProcessingAfter,
	})
	workerPool.Start(ctx)

	jobs := scheduler.New(sessionRepo, aggregator, recovery, scheduler.Options{
		SnapshotSpec: cfg.SnapshotCron,
		SweepSpec:    cfg.SweepCron,
		PendingAge:   cfg.StaleProcessingAfter,
	})
	if err := jobs.Start(); err != nil {
		log.Fatal().Err(err).Msg("scheduler start failed")
	}

	// ──── Step 8: Start WebSocket Hub ────
	wsHub := websocket.NewHub(redisClients.PubSub, cfg.FrontendURL)

	// ──── Step 9: Start HTTP Server ────
	limitStore, err := middleware.NewRateLimitStore(redisClients.Queue)
	if err != nil {
		log.Fatal().Err(err).Msg("rate limit store initialization failed")
	}
	submitLimit, err := middleware.RateLimit(cfg.SubmitRate, limitStore, "submit_recording")
	if err != nil {
		log.Fatal().Err(err).Msg("invalid SUBMIT_RATE")
	}

	checks := map[string]router.HealthCheck{
		"postgres": pool.Ping,
		"redis":    redisClients.Ping,
	}
	if objects != nil {
		bucket := cfg.MinioBucket
		checks["minio"] = func(ctx context.Context) error {
			ok, err := objects.BucketExists(ctx, bucket)
			if err != nil {
				return err
			}
			if !ok {
				return fmt.Errorf("bucket %s does not exist", bucket)
			}
			return nil
		}
	}

	r := router.New(router.Deps{
		Sessions:    handlers.NewSessionHandler(sessionService, recordingRepo),
		Recordings:  handlers.NewRecordingHandler(processor, recordingRepo, feedbackRepo),
		Progress:    handlers.NewProgressHandler(aggregator, cfg.SummaryCacheTTL),
		WebSocket:   wsHub.HandleWebSocket,
		SubmitLimit: submitLimit,
		FrontendURL: cfg.FrontendURL,
		Checks:      checks,
	})

	server := &http.Server{
		Addr:         fmt.Sprintf(":%s", cfg.Port),
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Graceful shutdown
	shutdownDone := make(chan struct{})
	go func() {
		defer close(shutdownDone)
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
		<-sigChan

		log.Info().Msg("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		if err := server.Shutdown(shutdownCtx); err != nil {
			log.Error().Err(err).Msg("HTTP server shutdown failed")
		}
		wsHub.Close()
		jobs.Stop(shutdownCtx)
		if err := workerPool.Stop(shutdownCtx); err != nil {
			log.Error().Err(err).Msg("workers did not finish before the shutdown deadline")
		}
	}()

	log.Info().Str("port", cfg.Port).Msg("speaking coach backend ready")

	if err := server.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
		log.Fatal().Err(err).Msg("server error")
	}
	<-shutdownDone
}

// newProvider builds the configured analysis provider and a cleanup func.
func newProvider(cfg *config.Config, audio *services.AudioSource) (services.AnalysisProvider, func(), error) {
	switch cfg.AnalysisProvider {
	case config.ProviderGemini:
		gemini, err := services.NewGeminiAnalyzer(cfg.GeminiAPIKey, cfg.GeminiModel, cfg.GeminiConcurrent, audio)
		if err != nil {
			return nil, nil, err
		}
		return gemini, gemini.Close, nil
	case config.ProviderOpenAI:
		return services.NewOpenAIAnalyzer(cfg.OpenAIAPIKey, cfg.OpenAIBaseURL, cfg.OpenAIModel, audio), func() {}, nil
	default:
		return services.NewMockAnalyzer(cfg.MockDelay), func() {}, nil
	}
}
