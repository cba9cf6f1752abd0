package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setRequiredEnv(t *testing.T) {
	t.Helper()
	t.Setenv("DB_DSN", "postgres://localhost:5432/notifier")
	t.Setenv("REDIS_ADDR", "localhost:6379")
}

func TestLoadDefaults(t *testing.T) {
	setRequiredEnv(t)

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "Europe/Moscow", cfg.TimezoneName)
	assert.Equal(t, time.Minute, cfg.TickInterval)
	assert.Equal(t, 24*time.Hour, cfg.Lookahead)
	assert.Equal(t, "08:00", cfg.MorningSummaryTime)
	assert.Equal(t, "20:00", cfg.EveningDigestTime)
	assert.Equal(t, 5, cfg.MaxDeliveryAttempts)
	assert.Equal(t, 72*time.Hour, cfg.DedupRetention)
	assert.Equal(t, 4, cfg.WorkerConcurrency)
	assert.Empty(t, cfg.AdminIDs)
}

func TestLoadMissingDSN(t *testing.T) {
	t.Setenv("DB_DSN", "")
	t.Setenv("REDIS_ADDR", "localhost:6379")

	_, err := Load()
	assert.ErrorContains(t, err, "DB_DSN")
}

func TestLoadMissingRedisAddr(t *testing.T) {
	t.Setenv("DB_DSN", "postgres://localhost:5432/notifier")
	t.Setenv("REDIS_ADDR", "")

	_, err := Load()
	assert.ErrorContains(t, err, "REDIS_ADDR")
}

func TestLoadInvalidTimeOfDay(t *testing.T) {
	setRequiredEnv(t)
	t.Setenv("MORNING_SUMMARY_TIME", "25:99")

	_, err := Load()
	assert.ErrorContains(t, err, "25:99")
}

func TestLoadAdminIDs(t *testing.T) {
	setRequiredEnv(t)
	t.Setenv("ADMIN_IDS", "123, 456,789")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, []int64{123, 456, 789}, cfg.AdminIDs)

	assert.True(t, cfg.IsAdmin(456))
	assert.False(t, cfg.IsAdmin(999))
}

func TestLoadBadAdminIDs(t *testing.T) {
	setRequiredEnv(t)
	t.Setenv("ADMIN_IDS", "123,abc")

	_, err := Load()
	assert.ErrorContains(t, err, "ADMIN_IDS")
}
