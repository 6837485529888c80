package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"syscall"
	"time"

	"github.com/oklog/run"
	"github.com/rs/zerolog"
	"github.com/stemsi/quizguard/internal/config"
	"github.com/stemsi/quizguard/internal/database"
	"github.com/stemsi/quizguard/internal/handler"
	"github.com/stemsi/quizguard/internal/logger"
	"github.com/stemsi/quizguard/internal/middleware"
	"github.com/stemsi/quizguard/internal/repository"
	"github.com/stemsi/quizguard/internal/router"
	"github.com/stemsi/quizguard/internal/service"
	"github.com/stemsi/quizguard/internal/validator"
	"github.com/stemsi/quizguard/internal/worker"
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
		Msg("Starting quizguard server")

	if cfg.AttemptSecret == "change-this-to-a-secure-random-string" && cfg.GinMode == "release" {
		log.Fatal().Msg("ATTEMPT_SECRET must be set in release mode")
	}

	validator.Setup()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// ─── Connect to PostgreSQL & Redis ─────────────────────────────────
	pool, err := database.NewPostgresPool(ctx, cfg, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to PostgreSQL")
	}
	defer pool.Close()

	rdb, err := database.NewRedisClient(ctx, cfg, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to Redis")
	}
	defer rdb.Close()

	// ─── Repositories & Services ───────────────────────────────────────
	quizRepo := repository.NewQuizRepository(pool)
	invitationRepo := repository.NewInvitationRepository(pool)
	attemptRepo := repository.NewAttemptRepository(pool)
	flagRepo := repository.NewFlagRepository(pool)
	monitorRepo := repository.NewMonitorRepository(pool)

	tokens := service.NewTokenService(cfg.AttemptSecret)
	attemptService := service.NewAttemptService(quizRepo, invitationRepo, attemptRepo, tokens, rdb, cfg, log)
	monitorService := service.NewMonitorService(monitorRepo, rdb, log)

	// ─── Handlers & Router ─────────────────────────────────────────────
	handlers := &router.Handlers{
		Attempt: handler.NewAttemptHandler(attemptService, log),
		Stream:  handler.NewStreamHandler(attemptService, log, cfg.AllowedOrigins),
		Monitor: handler.NewMonitorHandler(rdb, monitorService, log),
		Health: handler.NewHealthHandler(map[string]handler.Pinger{
			"postgres": pool.Ping,
			"redis":    func(ctx context.Context) error { return rdb.Ping(ctx).Err() },
		}),
	}
	mws := &router.Middlewares{
		RateLimiter: middleware.NewRateLimiter(rdb, cfg.RateLimitPerMinute, time.Minute, log),
		Attempts:    attemptService,
	}

	// Load caches BEFORE accepting traffic so resuming clients do not stampede
	// the database after a restart.
	if err := attemptService.PrewarmActive(ctx); err != nil {
		log.Warn().Err(err).Msg("Cache prewarm failed")
	}

	srv := &http.Server{
		Addr:              ":" + cfg.ServerPort,
		Handler:           router.SetupRouter(handlers, mws, cfg, log),
		ReadHeaderTimeout: 10 * time.Second,
	}

	// ─── Actors ────────────────────────────────────────────────────────
	var g run.Group

	g.Add(run.SignalHandler(ctx, os.Interrupt, syscall.SIGTERM))

	g.Add(func() error {
		log.Info().Str("addr", srv.Addr).Msg("Server listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	}, func(error) {
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer shutdownCancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.Error().Err(err).Msg("HTTP server shutdown error")
		}
	})

	addWorker(&g, worker.NewFlagWorker(flagRepo, attemptRepo, rdb, log).Start)
	addWorker(&g, worker.NewAutosaveWorker(attemptRepo, rdb, log).Start)

	err = g.Run()
	var sigErr run.SignalError
	switch {
	case errors.As(err, &sigErr):
		log.Info().Str("signal", sigErr.Signal.String()).Msg("Shut down gracefully")
	case err != nil:
		log.Error().Err(err).Msg("Server stopped")
		os.Exit(1)
	}
}

// addWorker runs a queue worker until the group is interrupted. The worker
// flushes its buffer before execute returns.
func addWorker(g *run.Group, start func(context.Context)) {
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	g.Add(func() error {
		defer close(done)
		start(ctx)
		return nil
	}, func(error) {
		cancel()
		<-done
	})
}

func init() {
	zerolog.TimeFieldFormat = time.RFC3339
}
