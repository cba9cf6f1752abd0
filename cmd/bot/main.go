package main

import (
	"context"
	"log"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-telegram/bot"
	"go.uber.org/zap"

	"github.com/studhelper/timetable-notifier/internal/app"
	"github.com/studhelper/timetable-notifier/internal/config"
	"github.com/studhelper/timetable-notifier/internal/controller"
	"github.com/studhelper/timetable-notifier/internal/dedup"
	"github.com/studhelper/timetable-notifier/internal/planner"
	"github.com/studhelper/timetable-notifier/internal/queue"
	"github.com/studhelper/timetable-notifier/internal/repository"
	"github.com/studhelper/timetable-notifier/internal/timetable"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	logger := app.NewLogger(cfg.Environment)
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	loc, err := time.LoadLocation(cfg.TimezoneName)
	if err != nil {
		logger.Fatal("Failed to load timezone", zap.String("tz", cfg.TimezoneName), zap.Error(err))
	}

	pool, err := app.NewPostgresPool(ctx, cfg.DBDSN)
	if err != nil {
		logger.Fatal("Failed to connect to postgres", zap.Error(err))
	}
	defer pool.Close()

	migrator, err := app.NewMigrator(pool, cfg.MigrationsPath, logger)
	if err != nil {
		logger.Fatal("Failed to create migrator", zap.Error(err))
	}
	if err := migrator.Run(ctx); err != nil {
		logger.Fatal("Failed to apply migrations", zap.Error(err))
	}
	if err := migrator.Close(); err != nil {
		logger.Warn("Failed to close migrator connection", zap.Error(err))
	}

	redisClient, err := app.NewRedisClient(ctx, cfg)
	if err != nil {
		logger.Fatal("Failed to connect to redis", zap.Error(err))
	}
	defer redisClient.Close()

	userRepo := repository.NewUserRepository(pool)
	lessonRepo := repository.NewLessonRepository(pool)
	semesterRepo := repository.NewSemesterRepository(pool)

	calendar := timetable.NewCalendar(loc)
	index := timetable.NewIndex(lessonRepo, cfg.TimetableRefresh, logger)

	plan, err := planner.New(calendar, index, cfg.MorningSummaryTime, cfg.EveningDigestTime, logger)
	if err != nil {
		logger.Fatal("Failed to create planner", zap.Error(err))
	}

	dedupStore := dedup.NewStore(redisClient, cfg.DedupRetention)
	deliveryQueue := queue.NewRedisQueue(redisClient, logger)

	scheduler := app.NewScheduler(
		semesterRepo, userRepo, plan, dedupStore, deliveryQueue,
		cfg.TickInterval, cfg.Lookahead, cfg.UserRetention,
		logger,
	)

	logger.Sugar().Infow("Starting notification scheduler service",
		"environment", cfg.Environment,
		"timezone", cfg.TimezoneName,
		"tick_interval", cfg.TickInterval,
		"lookahead", cfg.Lookahead)

	// Бот нужен планировщику только ради административной команды
	// /semester; без токена сервис работает, команда недоступна
	if cfg.TelegramToken != "" {
		b, err := bot.New(cfg.TelegramToken)
		if err != nil {
			logger.Fatal("Failed to create telegram bot", zap.Error(err))
		}
		admin := controller.NewAdminController(semesterRepo, lessonRepo, index, deliveryQueue, cfg.IsAdmin, loc, logger)
		admin.RegisterHandlers(b)
		go b.Start(ctx)
	} else {
		logger.Warn("TELEGRAM_TOKEN is not set, admin commands are disabled")
	}

	scheduler.Start(ctx)

	<-ctx.Done()
	scheduler.Stop()
	logger.Info("Scheduler service stopped")
}
