package controller

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/studhelper/timetable-notifier/internal/model"
	"github.com/studhelper/timetable-notifier/internal/queue"
)

func TestDLQLimit(t *testing.T) {
	tests := []struct {
		name string
		args []string
		want int
	}{
		{"без аргументов", nil, 10},
		{"явный размер", []string{"25"}, 25},
		{"не число", []string{"abc"}, 10},
		{"отрицательное", []string{"-5"}, 10},
		{"ноль", []string{"0"}, 10},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, dlqLimit(tt.args))
		})
	}
}

func TestFormatDLQTextEmpty(t *testing.T) {
	assert.Contains(t, formatDLQText(nil), "DLQ пуст")
}

func TestFormatDLQText(t *testing.T) {
	failed := []*queue.FailedMessage{
		{
			Message: &queue.Message{
				UserID:   100,
				Kind:     model.KindLessonReminder,
				DedupKey: "lesson_reminder:100:2024-09-09:10:50:abc",
			},
			Error:    "bot was blocked by the user",
			FailedAt: time.Date(2024, 9, 9, 10, 0, 0, 0, time.UTC),
			Attempts: 5,
		},
	}

	text := formatDLQText(failed)
	assert.Contains(t, text, "Сообщений в DLQ: 1")
	assert.Contains(t, text, "lesson_reminder")
	assert.Contains(t, text, "попыток: 5")
	assert.Contains(t, text, "bot was blocked")
	assert.Contains(t, text, "09.09.2024 10:00")
}
