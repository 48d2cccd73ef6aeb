// Command server runs the venue matching backend: HTTP API, per-session
// matching loops, and the automated reply orchestrator.
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/jmallia/go-match-backend/internal/ai"
	"github.com/jmallia/go-match-backend/internal/bus"
	"github.com/jmallia/go-match-backend/internal/config"
	httpapi "github.com/jmallia/go-match-backend/internal/http"
	"github.com/jmallia/go-match-backend/internal/observability"
	"github.com/jmallia/go-match-backend/internal/presence"
	"github.com/jmallia/go-match-backend/internal/repo"
	"github.com/jmallia/go-match-backend/internal/services"
	"github.com/jmallia/go-match-backend/internal/session"
	"github.com/jmallia/go-match-backend/internal/sysutil"
)

const version = "1.0.0"

func main() {
	// .env is optional; real deployments set the environment directly.
	_ = godotenv.Load()

	cfg := config.MustLoad()

	sysutil.SetLogLevel(cfg.LogLevel)
	if cfg.LogPretty {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})
	}

	ctx := context.Background()

	// Tracing (no-op unless enabled).
	shutdownOTel, err := observability.SetupOTel(ctx, cfg.OTEL, version)
	if err != nil {
		log.Fatal().Err(err).Msg("otel setup failed")
	}

	// SQLite for profiles, matches, messages, idempotency.
	db, err := repo.OpenSQLite(cfg.DBPath)
	if err != nil {
		log.Fatal().Err(err).Str("path", cfg.DBPath).Msg("open database failed")
	}
	if err := repo.AutoMigrate(db); err != nil {
		log.Fatal().Err(err).Msg("migrate database failed")
	}
	if err := repo.PurgeExpiredIdempotency(ctx, db, time.Now().UTC()); err != nil {
		log.Warn().Err(err).Msg("purge expired idempotency records failed")
	}

	// Redis for presence.
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	presenceStore := presence.NewStore(rdb, cfg.Redis.TTL)
	if err := presenceStore.Ping(ctx); err != nil {
		log.Fatal().Err(err).Str("addr", cfg.Redis.Addr).Msg("redis unreachable")
	}

	// AI backend behind a circuit breaker.
	var aiClient ai.Client = ai.NewBreakerClient(&ai.HTTPClient{
		BaseURL: cfg.AI.BaseURL,
		APIKey:  cfg.AI.APIKey,
		Model:   cfg.AI.Model,
		HTTP:    &http.Client{Timeout: cfg.AI.Timeout},
	})

	// Core wiring.
	eventBus := bus.New()
	matchSvc := services.NewMatchService(db, presenceStore, aiClient, eventBus)
	replySvc := services.NewReplyService(db, aiClient, eventBus)
	replySvc.WindowSize = cfg.Match.WindowSize
	replySvc.Temperature = cfg.AI.Temperature
	replySvc.MaxTokens = cfg.AI.MaxTokens

	sessions := session.NewManager(matchSvc, session.Config{
		PollInterval:  cfg.Match.PollInterval,
		EscalateTick:  cfg.Match.EscalateTick,
		ForceAfterMin: cfg.Match.ForceAfterMin,
		ForceAfterMax: cfg.Match.ForceAfterMax,
		ReplyDelay:    cfg.Match.ReplyDelay,
	})

	orchestrator := session.NewReplyOrchestrator(replySvc, cfg.Match.ReplyDelay)
	orchestrator.Start(eventBus)

	// HTTP transport.
	gin.SetMode(cfg.GinMode)
	router := gin.New()
	httpapi.RegisterRoutes(router, httpapi.Deps{
		DB:       db,
		MatchSvc: matchSvc,
		ReplySvc: replySvc,
		Sessions: sessions,
	}, cfg)

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           router,
		ReadTimeout:       cfg.ReadTimeout,
		ReadHeaderTimeout: cfg.ReadHeaderTimeout,
		WriteTimeout:      cfg.WriteTimeout,
		IdleTimeout:       cfg.IdleTimeout,
		MaxHeaderBytes:    cfg.MaxHeaderBytes,
	}

	go func() {
		log.Info().Str("addr", srv.Addr).Msg("http server listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("http server failed")
		}
	}()

	// Graceful shutdown: stop accepting, then wind down sessions and timers.
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info().Msg("shutting down")

	shutdownCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("http shutdown failed")
	}

	sessions.StopAll()
	orchestrator.Stop()

	if err := rdb.Close(); err != nil {
		log.Error().Err(err).Msg("redis close failed")
	}
	if shutdownOTel != nil {
		if err := shutdownOTel(shutdownCtx); err != nil {
			log.Error().Err(err).Msg("otel shutdown failed")
		}
	}
	log.Info().Msg("bye")
}
