package main

import (
	"context"
	"errors"
	"log"
	"log/slog"
	"os/signal"
	"syscall"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/zamaraev97-gif/ai-bot/internal/admin"
	"github.com/zamaraev97-gif/ai-bot/internal/config"
	"github.com/zamaraev97-gif/ai-bot/internal/database"
	"github.com/zamaraev97-gif/ai-bot/internal/provider"
	"github.com/zamaraev97-gif/ai-bot/internal/repository"
	"github.com/zamaraev97-gif/ai-bot/internal/service"
	"github.com/zamaraev97-gif/ai-bot/internal/storage"
	"github.com/zamaraev97-gif/ai-bot/internal/telegram"
	"github.com/zamaraev97-gif/ai-bot/pkg/logger"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	logr := logger.New(slog.LevelInfo)

	db, err := database.Connect(cfg)
	if err != nil {
		log.Fatalf("database connect: %v", err)
	}
	defer db.Close()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := database.Migrate(ctx, db); err != nil {
		log.Fatalf("database migrate: %v", err)
	}

	botAPI, err := tgbotapi.NewBotAPI(cfg.BotToken)
	if err != nil {
		log.Fatalf("telegram bot: %v", err)
	}

	planRepo := repository.NewPlanRepository(db)
	usageRepo := repository.NewUsageRepository(db)
	historyRepo := repository.NewHistoryRepository(db)
	settingsRepo := repository.NewSettingsRepository(db)

	openAI := provider.NewOpenAI(cfg.OpenAIAPIKey, cfg.OpenAIBaseURL, cfg.RequestTimeout)

	limits := service.Limits{
		FreeDailyText:         cfg.FreeDailyText,
		FreeDailyImages:       cfg.FreeDailyImages,
		StandardMonthlyImages: cfg.StandardMonthlyImages,
	}
	entitlement := service.NewEntitlement(limits, planRepo, usageRepo)
	planService := service.NewPlanService(planRepo, planRepo)
	assistant := service.NewAssistant(service.DispatchConfig{
		ChatModels:       cfg.ChatModels,
		VisionModels:     cfg.VisionModels,
		ImageModels:      cfg.ImageModels,
		TranscribeModels: cfg.TranscribeModels,
		SpeechModels:     cfg.SpeechModels,
		SystemPrompt:     cfg.SystemPrompt,
		ImageSize:        cfg.ImageSize,
		TTSVoice:         cfg.TTSVoice,
	}, logr, entitlement, usageRepo, historyRepo, service.Providers{
		Chat:        openAI,
		Vision:      openAI,
		Image:       openAI,
		Transcriber: openAI,
		Speech:      openAI,
	})

	var photos telegram.PhotoStorage
	if cfg.S3Enabled() {
		uploader, err := storage.NewUploader(storage.Options{
			Endpoint:      cfg.S3Endpoint,
			Region:        cfg.S3Region,
			AccessKey:     cfg.S3AccessKey,
			SecretKey:     cfg.S3SecretKey,
			Bucket:        cfg.S3Bucket,
			PublicBaseURL: cfg.S3PublicBaseURL,
			UsePathStyle:  cfg.S3UsePathStyle,
			Prefix:        cfg.S3Prefix,
		})
		if err != nil {
			log.Fatalf("storage uploader: %v", err)
		}
		photos = uploader
	} else {
		logr.Info("photo re-hosting disabled, using telegram file urls")
	}

	bot := telegram.NewBot(cfg, botAPI, logr, assistant, planService, settingsRepo, photos)

	adminServer := admin.NewServer(cfg.AdminListenAddr, cfg.AdminUsername, cfg.AdminPassword, logr, planService, assistant)
	go func() {
		if err := adminServer.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			logr.Error("admin server stopped", "err", err)
		}
	}()

	if err := bot.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logr.Error("bot stopped", "err", err)
	}
}
