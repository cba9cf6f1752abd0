package dedup

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/studhelper/timetable-notifier/internal/model"
)

const keyPrefix = "notifier:dedup:"

// Record состояние уведомления по dedup-ключу
type Record struct {
	Status        model.Status `json:"status"`
	Attempts      int          `json:"attempts"`
	LastAttemptAt time.Time    `json:"last_attempt_at"`
	AdmittedAt    time.Time    `json:"admitted_at"`
}

// Store dedup-хранилище поверх Redis. Допуск ключа — атомарный SETNX:
// двойной допуск невозможен даже при случайном запуске второго
// планировщика. Записи живут retention и истекают сами.
type Store struct {
	client    *redis.Client
	retention time.Duration
}

// NewStore создаёт dedup-хранилище. retention должен превышать
// максимальное окно планирования плюс горизонт ретраев.
func NewStore(client *redis.Client, retention time.Duration) *Store {
	return &Store{client: client, retention: retention}
}

// Admit атомарно допускает ключ: true — ключ новый, запись Pending
// создана; false — ключ уже обрабатывался, кандидата надо отбросить.
func (s *Store) Admit(ctx context.Context, key string) (bool, error) {
	record := Record{
		Status:     model.StatusPending,
		AdmittedAt: time.Now().UTC(),
	}
	data, err := json.Marshal(record)
	if err != nil {
		return false, fmt.Errorf("marshal dedup record: %w", err)
	}

	ok, err := s.client.SetNX(ctx, keyPrefix+key, data, s.retention).Result()
	if err != nil {
		return false, fmt.Errorf("admit dedup key: %w", err)
	}
	return ok, nil
}

// Get читает запись по ключу; nil — ключ не допускался или истёк
func (s *Store) Get(ctx context.Context, key string) (*Record, error) {
	data, err := s.client.Get(ctx, keyPrefix+key).Bytes()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get dedup record: %w", err)
	}

	var record Record
	if err := json.Unmarshal(data, &record); err != nil {
		return nil, fmt.Errorf("unmarshal dedup record: %w", err)
	}
	return &record, nil
}

// RecordAttempt отмечает очередную попытку отправки и возвращает
// обновлённую запись
func (s *Store) RecordAttempt(ctx context.Context, key string) (*Record, error) {
	record, err := s.Get(ctx, key)
	if err != nil {
		return nil, err
	}
	if record == nil {
		// Запись истекла, но сообщение ещё в очереди: восстанавливаем
		record = &Record{}
	}
	record.Status = model.StatusDispatched
	record.Attempts++
	record.LastAttemptAt = time.Now().UTC()
	if err := s.put(ctx, key, record); err != nil {
		return nil, err
	}
	return record, nil
}

// MarkDelivered переводит запись в терминальное Delivered
func (s *Store) MarkDelivered(ctx context.Context, key string) error {
	return s.mark(ctx, key, model.StatusDelivered)
}

// MarkFailed переводит запись в терминальное Failed
func (s *Store) MarkFailed(ctx context.Context, key string) error {
	return s.mark(ctx, key, model.StatusFailed)
}

func (s *Store) mark(ctx context.Context, key string, status model.Status) error {
	record, err := s.Get(ctx, key)
	if err != nil {
		return err
	}
	if record == nil {
		record = &Record{}
	}
	record.Status = status
	return s.put(ctx, key, record)
}

func (s *Store) put(ctx context.Context, key string, record *Record) error {
	data, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("marshal dedup record: %w", err)
	}
	if err := s.client.Set(ctx, keyPrefix+key, data, s.retention).Err(); err != nil {
		return fmt.Errorf("update dedup record: %w", err)
	}
	return nil
}
