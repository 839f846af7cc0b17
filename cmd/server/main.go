package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prepware/examhall-backend/internal/clock"
	"github.com/prepware/examhall-backend/internal/config"
	"github.com/prepware/examhall-backend/internal/database"
	"github.com/prepware/examhall-backend/internal/handler"
	"github.com/prepware/examhall-backend/internal/logger"
	"github.com/prepware/examhall-backend/internal/repository"
	"github.com/prepware/examhall-backend/internal/router"
	"github.com/prepware/examhall-backend/internal/service"
	"github.com/prepware/examhall-backend/internal/store"
	"github.com/prepware/examhall-backend/internal/validator"
	"github.com/prepware/examhall-backend/internal/worker"
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
		Msg("Starting ExamHall Backend")

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

	// ─── Session Directory + Clock ─────────────────────────────────────
	directory := store.NewDirectory(rdb, log)

	clk := clock.NewSynchronizer()
	if err := clk.Sync(ctx, directory); err != nil {
		log.Warn().Err(err).Msg("Clock sync failed, using local time")
	} else {
		log.Info().Dur("offset", clk.Offset()).Msg("Clock synchronized")
	}

	// ─── Initialize Repositories ───────────────────────────────────────
	studentRepo := repository.NewStudentRepository(pool)
	adminRepo := repository.NewAdminRepository(pool)
	sessionRepo := repository.NewExamSessionRepository(pool)
	submissionRepo := repository.NewSubmissionRepository(pool)

	// ─── Initialize Services ──────────────────────────────────────────
	authService := service.NewAuthService(cfg, rdb)
	lifecycleService := service.NewLifecycleService(sessionRepo, submissionRepo, directory, clk, log)
	submissionService := service.NewSubmissionService(submissionRepo, sessionRepo, rdb, log)

	// ─── Initialize Handlers ──────────────────────────────────────────
	handlers := &router.Handlers{
		Auth:       handler.NewAuthHandler(authService, studentRepo, adminRepo),
		Lifecycle:  handler.NewLifecycleHandler(lifecycleService, directory),
		Submission: handler.NewSubmissionHandler(submissionService),
		ExamWS:     handler.NewExamWSHandler(lifecycleService, submissionService, directory, clk, log, cfg.AllowedOrigins),
	}

	// ─── Start Background Workers ─────────────────────────────────────
	workerCtx, workerCancel := context.WithCancel(context.Background())

	submissionWorker := worker.NewSubmissionWorker(submissionRepo, rdb, log)
	countdownWorker := worker.NewCountdownWorker(directory, lifecycleService, cfg.CountdownPollInterval, clk.Now, log)
	autoStopWorker := worker.NewAutoStopWorker(lifecycleService, cfg.AutoStopInterval, log)

	go submissionWorker.Start(workerCtx)
	go countdownWorker.Start(workerCtx)
	go autoStopWorker.Start(workerCtx)

	// ─── Setup Router ──────────────────────────────────────────────────
	r := router.SetupRouter(authService, handlers, cfg)

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
