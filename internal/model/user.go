package model

import "time"

type User struct {
	ID                    int64     `json:"id"`
	TelegramID            int64     `json:"telegram_id"`
	Username              string    `json:"username"`
	Group                 string    `json:"group"` // номер группы; пустая строка = группа не указана
	ReminderOffsetMinutes int       `json:"reminder_offset_minutes"`
	EveningNotify         bool      `json:"evening_notify"`
	MorningSummary        bool      `json:"morning_summary"`
	LessonReminders       bool      `json:"lesson_reminders"`
	LastActiveAt          time.Time `json:"last_active_at"`
	CreatedAt             time.Time `json:"created_at"`
}
