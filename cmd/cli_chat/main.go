package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"path/filepath"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"scholar-assistant/internal/config"
	"scholar-assistant/internal/db"
	"scholar-assistant/internal/domain"
	"scholar-assistant/internal/repository"
	"scholar-assistant/internal/service"
)

func main() {
	ctx := context.Background()

	_ = godotenv.Load()

	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatal(err)
	}

	// La TUI ocupa la terminal: los logs van a un archivo.
	logCfg := zap.NewDevelopmentConfig()
	logCfg.OutputPaths = []string{filepath.Join(os.TempDir(), "scholar-assistant-cli.log")}
	logCfg.ErrorOutputPaths = logCfg.OutputPaths
	logger, err := logCfg.Build()
	if err != nil {
		logger = zap.NewNop()
	}
	defer logger.Sync()

	catalog := loadCatalog(ctx, cfg, logger)
	rnd := service.NewRandomSource(cfg.RandomSeed)
	classifier, err := service.NewIntentClassifier(catalog, rnd)
	if err != nil {
		log.Fatal(err)
	}

	opts := service.EngineOptions{
		TypingMinDelay:  cfg.TypingMinDelay,
		TypingMaxDelay:  cfg.TypingMaxDelay,
		VoiceDelay:      cfg.VoiceCaptureDelay,
		VoiceTranscript: cfg.VoiceTranscript,
		MaxSessions:     1,
	}
	hub := service.NewSessionHub(logger, classifier, service.NewTimeScheduler(), rnd, opts, nil)
	defer hub.CloseAll()

	ctrl, err := hub.Open()
	if err != nil {
		log.Fatal(err)
	}

	changes := make(chan struct{}, 1)
	ctrl.Subscribe(func(domain.SessionSnapshot) {
		select {
		case changes <- struct{}{}:
		default:
		}
	})

	p := tea.NewProgram(newChatModel(ctrl, changes), tea.WithAltScreen())
	if _, err := p.Run(); err != nil {
		fmt.Fprintf(os.Stderr, "cli chat: %v\n", err)
		os.Exit(1)
	}
}

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
	return service.LoadCatalog(ctx, service.MergedCatalogSource{Source: repository.NewPgCatalogRepository(pool)}, logger)
}
