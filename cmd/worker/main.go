package main

import (
	"context"
	"log"
	"os/signal"
	"syscall"

	"github.com/go-telegram/bot"
	"go.uber.org/zap"

	"github.com/studhelper/timetable-notifier/internal/app"
	"github.com/studhelper/timetable-notifier/internal/config"
	"github.com/studhelper/timetable-notifier/internal/dedup"
	"github.com/studhelper/timetable-notifier/internal/delivery"
	"github.com/studhelper/timetable-notifier/internal/queue"
	"github.com/studhelper/timetable-notifier/internal/worker"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	logger := app.NewLogger(cfg.Environment)
	defer logger.Sync()

	if cfg.TelegramToken == "" {
		logger.Fatal("TELEGRAM_TOKEN is required for the delivery worker")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	redisClient, err := app.NewRedisClient(ctx, cfg)
	if err != nil {
		logger.Fatal("Failed to connect to redis", zap.Error(err))
	}
	defer redisClient.Close()

	// Бот используется только для отправки, polling не запускается
	b, err := bot.New(cfg.TelegramToken)
	if err != nil {
		logger.Fatal("Failed to create telegram bot", zap.Error(err))
	}

	dedupStore := dedup.NewStore(redisClient, cfg.DedupRetention)
	deliveryQueue := queue.NewRedisQueue(redisClient, logger)
	sender := delivery.NewTelegramSender(b)

	w := worker.New(deliveryQueue, dedupStore, sender, worker.Config{
		MaxAttempts: cfg.MaxDeliveryAttempts,
		SendTimeout: cfg.SendTimeout,
	}, logger)

	logger.Sugar().Infow("Starting delivery worker",
		"environment", cfg.Environment,
		"concurrency", cfg.WorkerConcurrency,
		"max_attempts", cfg.MaxDeliveryAttempts)

	if err := w.Run(ctx, cfg.WorkerConcurrency); err != nil && ctx.Err() == nil {
		logger.Fatal("Delivery worker stopped with error", zap.Error(err))
	}
	logger.Info("Delivery worker stopped")
}
