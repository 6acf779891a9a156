package main

import (
	"context"
	"errors"
	"log"
	"os/signal"
	"syscall"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/sorapixel/studio/internal/api"
	"github.com/sorapixel/studio/internal/config"
	"github.com/sorapixel/studio/internal/database"
	"github.com/sorapixel/studio/internal/fal"
	"github.com/sorapixel/studio/internal/gemini"
	"github.com/sorapixel/studio/internal/imaging"
	"github.com/sorapixel/studio/internal/ledger"
	"github.com/sorapixel/studio/internal/ratelimit"
	"github.com/sorapixel/studio/internal/repository"
	"github.com/sorapixel/studio/internal/service"
	"github.com/sorapixel/studio/internal/storage"
	"github.com/sorapixel/studio/internal/telegram"
	"github.com/sorapixel/studio/pkg/logger"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	logr := logger.New(cfg.AppEnv, cfg.LogLevel)

	db, err := database.Connect(cfg)
	if err != nil {
		logr.Fatal().Err(err).Msg("database connect")
	}
	defer db.Close()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := database.Migrate(ctx, db); err != nil {
		logr.Fatal().Err(err).Msg("database migrate")
	}

	accountRepo := repository.NewAccountRepository(db)
	usageRepo := repository.NewUsageRepository(db)
	projectRepo := repository.NewProjectRepository(db)
	paymentRepo := repository.NewPaymentRepository(db)

	credits := ledger.New(accountRepo, ledger.Config{
		FreeTierLimit:     cfg.FreeTierLimit,
		CostPerGeneration: cfg.TokensPerImage,
		DailyReward:       cfg.DailyRewardTokens,
		Location:          cfg.RewardTimezone,
	}, logr)

	geminiClient, err := gemini.NewClient(ctx, cfg, logr)
	if err != nil {
		logr.Fatal().Err(err).Msg("gemini client")
	}
	falClient := fal.NewClient(cfg, logr)
	if !falClient.Enabled() {
		logr.Warn().Msg("FAL_KEY not set, hd upscale disabled")
	}

	blobs, err := storage.NewBlob(storage.ConfigFrom(cfg))
	if err != nil {
		logr.Fatal().Err(err).Msg("blob storage")
	}

	usage := service.NewUsageTracker(usageRepo)

	alerts := telegram.NewNotifier(nil, 0, logr)
	if cfg.TelegramBotToken != "" {
		botAPI, err := tgbotapi.NewBotAPI(cfg.TelegramBotToken)
		if err != nil {
			logr.Error().Err(err).Msg("telegram bot unavailable, alerts will only be logged")
		} else {
			alerts = telegram.NewNotifier(botAPI, cfg.TelegramAlertChatID, logr)
			if cfg.TelegramAlertChatID != 0 {
				ops := telegram.NewOpsBot(botAPI, cfg.TelegramAlertChatID, usage, credits, logr)
				go func() {
					if err := ops.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
						logr.Error().Err(err).Msg("ops bot stopped")
					}
				}()
			}
		}
	}

	var limiter ratelimit.Limiter = ratelimit.Noop{}
	if rdb := ratelimit.Connect(cfg, logr); rdb != nil {
		defer rdb.Close()
		limiter = ratelimit.NewRedisLimiter(rdb, cfg.RateLimitPerMinute, time.Minute, logr)
	}

	accountService := service.NewAccountService(accountRepo)
	projectService := service.NewProjectService(projectRepo, blobs, cfg.SignedURLTTL, logr)
	paymentService := service.NewPaymentService(cfg, paymentRepo, credits, alerts, logr)
	if !paymentService.Enabled() {
		logr.Warn().Msg("razorpay keys not set, payment endpoints disabled")
	}
	generationService := service.NewGenerationService(service.GenerationDeps{
		Generator: geminiClient,
		Upscaler:  falClient,
		Ledger:    credits,
		Usage:     usage,
		Projects:  projectService,
		Logos:     imaging.NewLogoFetcher(5*time.Second, logr),
		Alerts:    alerts,
	}, cfg.Pricing(), cfg.WatermarkText, logr)

	server := api.NewServer(api.Options{
		Addr:           cfg.ListenAddr,
		JWTSecret:      cfg.JWTSecret,
		RequestTimeout: cfg.RequestTimeout,
		Pricing:        cfg.Pricing(),
	}, api.Deps{
		Generations: generationService,
		Accounts:    accountService,
		Credits:     credits,
		Projects:    projectService,
		Payments:    paymentService,
		Stats:       usage,
		Limiter:     limiter,
		DB:          db,
	}, logr)

	if err := server.Run(ctx); err != nil {
		logr.Error().Err(err).Msg("http server stopped")
	}
}
