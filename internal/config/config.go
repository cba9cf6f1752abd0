package config

import (
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config конфигурация сервиса уведомлений
type Config struct {
	TelegramToken string
	DBDSN         string
	Environment   string

	RedisAddr     string
	RedisPassword string
	RedisDB       int

	TimezoneName string
	AdminIDs     []int64

	TickInterval        time.Duration
	Lookahead           time.Duration
	MorningSummaryTime  string // HH:MM в локальной таймзоне
	EveningDigestTime   string // HH:MM в локальной таймзоне
	MaxDeliveryAttempts int
	DedupRetention      time.Duration
	SendTimeout         time.Duration
	TimetableRefresh    time.Duration
	UserRetention       time.Duration
	WorkerConcurrency   int
	MigrationsPath      string
}

// Load загружает конфигурацию из .env файла и переменных окружения
func Load() (*Config, error) {
	// Пытаемся загрузить .env файл (игнорируем ошибку, если файла нет)
	if err := godotenv.Load(".env"); err != nil {
		log.Println("⚠️  No .env file found, using environment variables")
	} else {
		log.Println("✅ Loaded configuration from .env file")
	}

	cfg := &Config{
		TelegramToken: os.Getenv("TELEGRAM_TOKEN"),
		DBDSN:         os.Getenv("DB_DSN"),
		Environment:   getEnv("ENV", "development"),

		RedisAddr:     os.Getenv("REDIS_ADDR"),
		RedisPassword: os.Getenv("REDIS_PASSWORD"),
		RedisDB:       getEnvInt("REDIS_DB", 0),

		TimezoneName: getEnv("TZ_NAME", "Europe/Moscow"),

		TickInterval:        time.Duration(getEnvInt("TICK_INTERVAL_SECONDS", 60)) * time.Second,
		Lookahead:           time.Duration(getEnvInt("LOOKAHEAD_HOURS", 24)) * time.Hour,
		MorningSummaryTime:  getEnv("MORNING_SUMMARY_TIME", "08:00"),
		EveningDigestTime:   getEnv("EVENING_DIGEST_TIME", "20:00"),
		MaxDeliveryAttempts: getEnvInt("MAX_DELIVERY_ATTEMPTS", 5),
		DedupRetention:      time.Duration(getEnvInt("DEDUP_RETENTION_HOURS", 72)) * time.Hour,
		SendTimeout:         time.Duration(getEnvInt("SEND_TIMEOUT_SECONDS", 30)) * time.Second,
		TimetableRefresh:    time.Duration(getEnvInt("TIMETABLE_REFRESH_MINUTES", 30)) * time.Minute,
		UserRetention:       time.Duration(getEnvInt("USER_RETENTION_DAYS", 180)) * 24 * time.Hour,
		WorkerConcurrency:   getEnvInt("WORKER_CONCURRENCY", 4),
		MigrationsPath:      getEnv("MIGRATIONS_PATH", "migrations"),
	}

	// Парсим список администраторов (через запятую)
	if raw := os.Getenv("ADMIN_IDS"); raw != "" {
		for _, part := range strings.Split(raw, ",") {
			id, err := strconv.ParseInt(strings.TrimSpace(part), 10, 64)
			if err != nil {
				return nil, fmt.Errorf("parse ADMIN_IDS: %w", err)
			}
			cfg.AdminIDs = append(cfg.AdminIDs, id)
		}
	}

	// Проверяем обязательные поля
	if cfg.DBDSN == "" {
		return nil, fmt.Errorf("DB_DSN is required but not set")
	}
	if cfg.RedisAddr == "" {
		return nil, fmt.Errorf("REDIS_ADDR is required but not set")
	}

	// Время рассылок должно быть валидным HH:MM
	for _, tod := range []string{cfg.MorningSummaryTime, cfg.EveningDigestTime} {
		if _, err := time.Parse("15:04", tod); err != nil {
			return nil, fmt.Errorf("invalid time of day %q: %w", tod, err)
		}
	}

	if cfg.TickInterval <= 0 || cfg.Lookahead <= 0 {
		return nil, fmt.Errorf("tick interval and lookahead must be positive")
	}

	log.Printf("Config loaded\n")

	return cfg, nil
}

// IsAdmin проверяет, входит ли Telegram ID в список администраторов
func (c *Config) IsAdmin(telegramID int64) bool {
	for _, id := range c.AdminIDs {
		if id == telegramID {
			return true
		}
	}
	return false
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		log.Printf("⚠️  Invalid value for %s=%q, using default %d", key, v, fallback)
		return fallback
	}
	return n
}
