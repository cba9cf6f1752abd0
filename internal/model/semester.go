package model

import "time"

// SemesterSettings даты начала семестров. Обе даты — понедельники,
// с которых начинается нечётная неделя. Активна ровно одна запись.
type SemesterSettings struct {
	ID          int64     `json:"id"`
	FallStart   time.Time `json:"fall_start"`
	SpringStart time.Time `json:"spring_start"`
	UpdatedAt   time.Time `json:"updated_at"`
	UpdatedBy   int64     `json:"updated_by"` // Telegram ID администратора
}
