package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hirepath/assess-backend/internal/config"
	"github.com/hirepath/assess-backend/internal/database"
	"github.com/hirepath/assess-backend/internal/handler"
	"github.com/hirepath/assess-backend/internal/logger"
	"github.com/hirepath/assess-backend/internal/repository"
	"github.com/hirepath/assess-backend/internal/router"
	"github.com/hirepath/assess-backend/internal/sandbox"
	"github.com/hirepath/assess-backend/internal/service"
	"github.com/hirepath/assess-backend/internal/textgen"
	"github.com/hirepath/assess-backend/internal/validator"
	"github.com/hirepath/assess-backend/internal/worker"
	"github.com/rs/zerolog"
)

func main() {
	// ─── Load Configuration ────────────────────────────────────────────
	cfg := config.Load()

	// ─── Initialize Logger ─────────────────────────────────────────────
	log := logger.Setup(cfg.LogLevel, cfg.LogFormat)
	log.Info().
		Str("port", cfg.ServerPort).
		Str("mode", cfg.GinMode).
		Str("log_level", cfg.LogLevel).
		Msg("Starting Assess Backend")

	// ─── Initialize Validator ──────────────────────────────────────────
	validator.Setup()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// ─── Connect to PostgreSQL ─────────────────────────────────────────
	pool, err := database.NewPostgresPool(ctx, cfg, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to PostgreSQL")
	}
	defer pool.Close()

	// ─── Connect to Redis ──────────────────────────────────────────────
	rdb, err := database.NewRedisClient(ctx, cfg, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to Redis")
	}
	defer rdb.Close()

	// ─── Text Generation ───────────────────────────────────────────────
	// The engine runs without a generator: provisioning falls back to the
	// bank only and scoring degrades to neutral fallbacks.
	var gen textgen.Generator
	if cfg.GCPProject != "" {
		vertex, err := textgen.NewVertexGemini(ctx, cfg.GCPProject, cfg.GCPLocation, cfg.GeminiModel, cfg.GCPCredentialsFile)
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to initialize Vertex AI client")
		}
		defer vertex.Close()
		gen = vertex
		log.Info().Str("model", cfg.GeminiModel).Msg("Vertex AI text generation enabled")
	} else {
		gen = textgen.GeneratorFunc(func(ctx context.Context, prompt string) (string, error) {
			return "", errors.New("text generation is not configured")
		})
		log.Warn().Msg("GCP_PROJECT not set, text generation disabled (degraded mode)")
	}

	// ─── Initialize Repositories ───────────────────────────────────────
	entitlementRepo := repository.NewEntitlementRepository(pool)
	sessionRepo := repository.NewSessionRepository(pool, entitlementRepo)
	questionRepo := repository.NewQuestionRepository(pool)
	violationRepo := repository.NewViolationRepository(pool)
	bankRepo := repository.NewBankRepository(pool)

	// ─── Initialize Services ──────────────────────────────────────────
	clock := service.Clock(time.Now)
	runner := sandbox.NewSubprocessRunner(cfg.SandboxTimeout, cfg.SandboxMemoryMB, cfg.SandboxOutputCap, log)
	startCache := service.NewRedisStartCache(rdb, log)
	publisher := service.NewRedisEventPublisher(rdb, log)

	entitlementService := service.NewEntitlementService(entitlementRepo, cfg.FreeTestQuota, cfg.FreeInterviewQuota, log)
	provisionService := service.NewProvisionService(bankRepo, gen, cfg.TextGenTimeout, clock, log)
	scorerService := service.NewScorerService(runner, gen, cfg.TextGenTimeout, cfg.NoTestCaseScore, log)
	integrityService := service.NewIntegrityService(sessionRepo, publisher, cfg.ViolationThreshold, clock, log)
	sessionService := service.NewSessionService(
		sessionRepo, questionRepo, provisionService, scorerService,
		integrityService, entitlementService, violationRepo, startCache,
		gen, cfg.TextGenTimeout,
		cfg.DefaultQuestions, cfg.MaxQuestions,
		clock, log,
	)

	// ─── Initialize Handlers ──────────────────────────────────────────
	handlers := &router.Handlers{
		Session:     handler.NewSessionHandler(sessionService, log),
		Entitlement: handler.NewEntitlementHandler(entitlementService, log),
		WS:          handler.NewWSHandler(rdb, sessionService, log, cfg.AllowedOrigins),
	}

	// ─── Start Background Workers ─────────────────────────────────────
	workerCtx, workerCancel := context.WithCancel(context.Background())

	violationWorker := worker.NewViolationWorker(violationRepo, rdb, log)
	go violationWorker.Start(workerCtx)

	// ─── Setup Router ──────────────────────────────────────────────────
	r := router.SetupRouter(handlers, cfg)

	// ─── Create HTTP Server ────────────────────────────────────────────
	srv := &http.Server{
		Addr:    ":" + cfg.ServerPort,
		Handler: r,
	}

	// ─── Start Server in Goroutine ─────────────────────────────────────
	go func() {
		log.Info().Str("addr", ":"+cfg.ServerPort).Msg("Server listening")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("Server error")
		}
	}()

	// ─── Graceful Shutdown ─────────────────────────────────────────────
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	sig := <-quit

	log.Info().Str("signal", sig.String()).Msg("Shutting down gracefully...")

	// 1. Stop accepting new HTTP requests (5s timeout).
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("HTTP server shutdown error")
	}

	// 2. Stop background workers and wait for queues to drain.
	workerCancel()
	time.Sleep(2 * time.Second) // Allow workers to drain.

	log.Info().Msg("Shutdown complete")
}

// init sets zerolog global defaults before main runs.
func init() {
	zerolog.TimeFieldFormat = time.RFC3339
}
