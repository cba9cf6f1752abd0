package queue

import (
	"time"

	"github.com/google/uuid"
	"github.com/studhelper/timetable-notifier/internal/model"
)

// Message сообщение очереди доставки. Очередь даёт at-least-once:
// защита от повторной доставки лежит на dedup-хранилище, не здесь.
type Message struct {
	ID          string     `json:"id"`
	DedupKey    string     `json:"dedup_key"`
	UserID      int64      `json:"user_id"`
	Kind        model.Kind `json:"kind"`
	Payload     string     `json:"payload"`
	ScheduledAt time.Time  `json:"scheduled_at"`
	EnqueuedAt  time.Time  `json:"enqueued_at"`
}

// NewMessage упаковывает событие планировщика в сообщение очереди
func NewMessage(event model.NotificationEvent) *Message {
	return &Message{
		ID:          uuid.NewString(),
		DedupKey:    event.DedupKey,
		UserID:      event.UserID,
		Kind:        event.Kind,
		Payload:     event.Payload,
		ScheduledAt: event.ScheduledAt,
		EnqueuedAt:  time.Now().UTC(),
	}
}

// FailedMessage сообщение, попавшее в DLQ после исчерпания попыток
type FailedMessage struct {
	Message  *Message  `json:"message"`
	Error    string    `json:"error"`
	FailedAt time.Time `json:"failed_at"`
	Attempts int       `json:"attempts"`
}
