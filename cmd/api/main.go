package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"scholar-assistant/internal/config"
	"scholar-assistant/internal/db"
	"scholar-assistant/internal/domain"
	apihttp "scholar-assistant/internal/http"
	"scholar-assistant/internal/repository"
	"scholar-assistant/internal/service"

	"github.com/google/uuid"
	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

func main() {
	ctx := context.Background()

	if err := godotenv.Load(); err != nil {
		log.Printf("warning: loading .env: %v", err)
	}

	cfg, err := config.LoadConfig()
	if err != nil {
		panic(err)
	}

	logger, _ := zap.NewProduction()
	defer logger.Sync()

	catalog := loadCatalog(ctx, cfg, logger)
	rnd := service.NewRandomSource(cfg.RandomSeed)
	classifier, err := service.NewIntentClassifier(catalog, rnd)
	if err != nil {
		logger.Fatal("intent classifier", zap.Error(err))
	}

	var (
		publisher service.SnapshotPublisher
		limiter   = service.NewMemorySessionRateLimiter(cfg.SessionOpenWindow, cfg.SessionOpenLimit)
	)
	if cfg.RedisAddr != "" {
		redisClient := redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		defer redisClient.Close()
		ctxPing, cancel := context.WithTimeout(ctx, 2*time.Second)
		if err := redisClient.Ping(ctxPing).Err(); err != nil {
			logger.Warn("redis ping failed", zap.Error(err))
		} else {
			publisher = service.NewRedisSnapshotPublisher(redisClient, cfg.SnapshotChannelPrefix)
			limiter = service.NewRedisSessionRateLimiter(redisClient, cfg.SessionOpenWindow, cfg.SessionOpenLimit)
		}
		cancel()
	}

	secret := cfg.JWTSecret
	if secret == "" {
		secret = uuid.NewString()
		logger.Warn("jwt secret not configured, using ephemeral secret")
	}
	tokens := service.NewSessionTokenService(secret, time.Duration(cfg.JWTTTLMinutes)*time.Minute)

	opts := service.EngineOptions{
		TypingMinDelay:  cfg.TypingMinDelay,
		TypingMaxDelay:  cfg.TypingMaxDelay,
		VoiceDelay:      cfg.VoiceCaptureDelay,
		VoiceTranscript: cfg.VoiceTranscript,
		IdleTTL:         cfg.SessionIdleTTL,
		MaxSessions:     cfg.MaxSessions,
	}
	hub := service.NewSessionHub(logger, classifier, service.NewTimeScheduler(), rnd, opts, publisher)
	sweepDone := make(chan struct{})
	if opts.IdleTTL > 0 {
		go sweepIdleSessions(hub, opts.IdleTTL, sweepDone, logger)
	}

	sessionHandler := apihttp.NewSessionHandler(logger, hub, tokens, limiter)
	router := apihttp.NewRouter(logger, sessionHandler, tokens)

	server := &http.Server{
		Addr:              ":" + cfg.HTTPPort,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		logger.Info("starting server", zap.String("port", cfg.HTTPPort))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("server error", zap.Error(err))
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	// Cerrar las sesiones primero termina los streams de eventos abiertos.
	close(sweepDone)
	hub.CloseAll()
	shutdownCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown", zap.Error(err))
	}
	logger.Info("server stopped")
}

// sweepIdleSessions cierra periódicamente las sesiones abandonadas, aunque
// nadie intente abrir una nueva.
func sweepIdleSessions(hub *service.SessionHub, ttl time.Duration, done <-chan struct{}, logger *zap.Logger) {
	interval := ttl / 4
	if interval < time.Second {
		interval = time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-done:
			return
		case <-ticker.C:
			if n := hub.SweepIdle(); n > 0 {
				logger.Info("idle sessions swept", zap.Int("count", n), zap.Int("open", hub.Len()))
			}
		}
	}
}

// loadCatalog lee las reglas de Postgres si hay DATABASE_URL; si no, o si
// falla, queda el catálogo integrado.
func loadCatalog(ctx context.Context, cfg *config.Config, logger *zap.Logger) domain.Catalog {
	if cfg.DatabaseURL == "" {
		return service.LoadCatalog(ctx, nil, logger)
	}

	pool, err := db.NewPool(ctx, cfg)
	if err != nil {
		logger.Warn("db connect", zap.Error(err))
		return service.LoadCatalog(ctx, nil, logger)
	}
	defer pool.Close()

	repo := repository.NewPgCatalogRepository(pool)
	if err := repo.EnsureSchema(ctx); err != nil {
		logger.Warn("catalog schema", zap.Error(err))
	}
	return service.LoadCatalog(ctx, service.MergedCatalogSource{Source: repo}, logger)
}
