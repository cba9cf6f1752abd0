package model

import "time"

// Kind тип уведомления. Закрытый набор — обработка через switch
// с веткой default на случай повреждённого сообщения в очереди.
type Kind string

const (
	KindLessonReminder Kind = "lesson_reminder"
	KindMorningSummary Kind = "morning_summary"
	KindEveningDigest  Kind = "evening_digest"
)

// Valid проверяет, что kind принадлежит закрытому набору
func (k Kind) Valid() bool {
	switch k {
	case KindLessonReminder, KindMorningSummary, KindEveningDigest:
		return true
	}
	return false
}

// Status состояние уведомления в dedup-хранилище
type Status string

const (
	StatusPending    Status = "pending"    // допущено планировщиком, ждёт отправки
	StatusDispatched Status = "dispatched" // взято воркером
	StatusDelivered  Status = "delivered"  // успешно отправлено, терминальное
	StatusFailed     Status = "failed"     // исчерпаны попытки, терминальное
)

// Terminal true для состояний, из которых нет переходов
func (s Status) Terminal() bool {
	return s == StatusDelivered || s == StatusFailed
}

// NotificationEvent кандидат на отправку, построенный планировщиком.
// DedupKey детерминирован: повторное планирование того же окна
// даёт байт-в-байт те же ключи.
type NotificationEvent struct {
	UserID      int64     `json:"user_id"` // Telegram ID получателя
	Kind        Kind      `json:"kind"`
	DedupKey    string    `json:"dedup_key"`
	ScheduledAt time.Time `json:"scheduled_at"`
	Payload     string    `json:"payload"`
}
