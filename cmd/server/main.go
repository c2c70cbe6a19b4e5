package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/toanlab/lms-backend/internal/composer"
	"github.com/toanlab/lms-backend/internal/config"
	"github.com/toanlab/lms-backend/internal/database"
	"github.com/toanlab/lms-backend/internal/handler"
	"github.com/toanlab/lms-backend/internal/logger"
	"github.com/toanlab/lms-backend/internal/repository"
	"github.com/toanlab/lms-backend/internal/retry"
	"github.com/toanlab/lms-backend/internal/router"
	"github.com/toanlab/lms-backend/internal/service"
	"github.com/toanlab/lms-backend/internal/validator"
	"github.com/toanlab/lms-backend/internal/worker"
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
		Dur("heartbeat", cfg.HeartbeatInterval).
		Msg("Starting LMS quiz backend")

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

	// ─── Initialize Repositories ───────────────────────────────────────
	questionRepo := repository.NewQuestionRepository(pool)
	examRepo := repository.NewExamRepository(pool)
	theoryRepo := repository.NewTheoryRepository(pool)
	progressRepo := repository.NewProgressRepository(pool)

	// ─── Initialize Services ──────────────────────────────────────────
	policy := retry.Policy{
		MaxRetries:      cfg.RetryMaxAttempts,
		InitialInterval: cfg.RetryInitial,
		MaxInterval:     4 * cfg.RetryInitial,
	}

	var composerOpts []composer.Option
	if cfg.StrictFill {
		composerOpts = append(composerOpts, composer.WithStrictFill())
	}

	authService := service.NewAuthService(cfg, rdb)
	sessionService := service.NewSessionService(rdb, log)
	questionService := service.NewQuestionService(questionRepo, rdb, cfg.PoolCacheTTL, policy, log)
	composerService := service.NewComposerService(questionService, examRepo, log, composerOpts...)
	resultService := service.NewResultService(theoryRepo, rdb, cfg.PassThreshold, log)
	violationService := service.NewViolationService(rdb, log)
	eventBus := service.NewAttemptEventBus(rdb, log)
	progressService := service.NewProgressService(progressRepo, service.NewRedisProgressOverlay(rdb), rdb, log)

	quizService := service.NewQuizService(service.QuizDeps{
		Bank:      questionService,
		Exams:     composerService,
		Submitter: resultService,
		Sessions:  sessionService,
		Reporter:  violationService,
		Events:    eventBus,
		Answers:   service.NewAnswerMirror(rdb, log),
		Progress:  progressService,
	}, service.QuizConfig{
		HeartbeatInterval: cfg.HeartbeatInterval,
		TickInterval:      cfg.TickInterval,
		TimeLimit:         cfg.QuizTimeLimit,
		RetryPolicy:       policy,
	}, log)

	// ─── Initialize Handlers ──────────────────────────────────────────
	handlers := &router.Handlers{
		Question: handler.NewQuestionHandler(questionService, log),
		Composer: handler.NewComposerHandler(composerService, log),
		Exam:     handler.NewExamHandler(composerService, log),
		Quiz:     handler.NewQuizHandler(quizService, log),
		Progress: handler.NewProgressHandler(progressService, log),
		Session:  handler.NewSessionHandler(sessionService, log),
		WS:       handler.NewWSHandler(quizService, eventBus, log, cfg.AllowedOrigins),
		Health:   handler.NewHealthHandler(pool, rdb, quizService),
	}

	// ─── Start Background Workers ─────────────────────────────────────
	workerCtx, workerCancel := context.WithCancel(context.Background())
	var workers sync.WaitGroup

	for _, w := range []interface{ Start(context.Context) }{
		worker.NewViolationWorker(pool, rdb, log),
		worker.NewResultWorker(pool, rdb, log),
		worker.NewAnswerWorker(pool, rdb, log),
	} {
		workers.Add(1)
		go func() {
			defer workers.Done()
			w.Start(workerCtx)
		}()
	}

	// ─── Setup Router ──────────────────────────────────────────────────
	r := router.SetupRouter(authService, sessionService, handlers, cfg, log)

	// ─── Create HTTP Server ────────────────────────────────────────────
	srv := &http.Server{
		Addr:              ":" + cfg.ServerPort,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
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

	// 2. Stop attempt schedulers and wait for in-flight violation reports.
	quizService.Close()

	// 3. Stop background workers; each flushes its buffered batch first.
	workerCancel()
	workers.Wait()

	log.Info().Msg("Shutdown complete")
}

// init sets zerolog global defaults before main runs.
func init() {
	zerolog.TimeFieldFormat = time.RFC3339
}
