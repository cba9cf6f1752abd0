package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const (
	mainQueueKey      = "notifier:queue"
	delayedQueueKey   = "notifier:queue:delayed"
	processingKey     = "notifier:queue:processing"
	dlqKey            = "notifier:queue:dlq"
	consumeTimeout    = 5 * time.Second
	delayedPumpPeriod = 5 * time.Second
)

// Handler обрабатывает сообщение. Ненулевая ошибка возвращает сообщение
// в основную очередь (повторная доставка); терминальные исходы обработчик
// фиксирует сам и возвращает nil.
type Handler func(ctx context.Context, msg *Message) error

// RedisQueue очередь доставки поверх Redis: основной список, zset
// отложенных сообщений, processing-список для восстановления после
// падения воркера и DLQ.
type RedisQueue struct {
	client *redis.Client
	logger *zap.Logger
}

// NewRedisQueue создаёт очередь на существующем клиенте Redis
func NewRedisQueue(client *redis.Client, logger *zap.Logger) *RedisQueue {
	return &RedisQueue{client: client, logger: logger}
}

// Publish кладёт сообщение в очередь. Сообщения с будущим ScheduledAt
// уходят в отложенный zset и будут подняты насосом, когда настанет срок.
func (q *RedisQueue) Publish(ctx context.Context, msg *Message) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshal queue message: %w", err)
	}

	if msg.ScheduledAt.After(time.Now()) {
		score := float64(msg.ScheduledAt.UnixNano()) / 1e9
		if err := q.client.ZAdd(ctx, delayedQueueKey, redis.Z{Score: score, Member: data}).Err(); err != nil {
			return fmt.Errorf("publish delayed message: %w", err)
		}
		return nil
	}

	if err := q.client.LPush(ctx, mainQueueKey, data).Err(); err != nil {
		return fmt.Errorf("publish message: %w", err)
	}
	return nil
}

// PublishBatch кладёт несколько сообщений одним pipeline
func (q *RedisQueue) PublishBatch(ctx context.Context, msgs []*Message) error {
	if len(msgs) == 0 {
		return nil
	}

	pipe := q.client.Pipeline()
	now := time.Now()
	for _, msg := range msgs {
		data, err := json.Marshal(msg)
		if err != nil {
			return fmt.Errorf("marshal queue message %s: %w", msg.ID, err)
		}
		if msg.ScheduledAt.After(now) {
			score := float64(msg.ScheduledAt.UnixNano()) / 1e9
			pipe.ZAdd(ctx, delayedQueueKey, redis.Z{Score: score, Member: data})
		} else {
			pipe.LPush(ctx, mainQueueKey, data)
		}
	}

	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("publish batch: %w", err)
	}
	return nil
}

// Consume блокирующий цикл потребления из основной очереди.
// Запускается в нескольких горутинах для параллельной обработки.
func (q *RedisQueue) Consume(ctx context.Context, handler Handler) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		// Атомарный перенос в processing: упавший воркер не теряет сообщение
		data, err := q.client.BLMove(ctx, mainQueueKey, processingKey, "RIGHT", "LEFT", consumeTimeout).Result()
		if err == redis.Nil {
			continue // таймаут, очередь пуста
		}
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			q.logger.Error("Failed to pop queue message", zap.Error(err))
			time.Sleep(time.Second)
			continue
		}

		q.handleMessage(ctx, data, handler)
	}
}

func (q *RedisQueue) handleMessage(ctx context.Context, data string, handler Handler) {
	// Из processing сообщение убирается при любом исходе: повторная
	// доставка идёт через возврат в основную очередь, не через processing
	defer func() {
		if err := q.client.LRem(ctx, processingKey, 1, data).Err(); err != nil {
			q.logger.Error("Failed to remove message from processing queue", zap.Error(err))
		}
	}()

	var msg Message
	if err := json.Unmarshal([]byte(data), &msg); err != nil {
		q.logger.Error("Dropping malformed queue message", zap.Error(err))
		q.pushDLQRaw(ctx, data, fmt.Errorf("malformed message: %w", err))
		return
	}

	if err := handler(ctx, &msg); err != nil {
		q.logger.Warn("Message handling failed, requeueing",
			zap.String("message_id", msg.ID),
			zap.String("dedup_key", msg.DedupKey),
			zap.Error(err))
		if pushErr := q.client.LPush(ctx, mainQueueKey, data).Err(); pushErr != nil {
			q.logger.Error("Failed to requeue message", zap.String("message_id", msg.ID), zap.Error(pushErr))
		}
	}
}

// RunDelayedPump переносит созревшие отложенные сообщения в основную
// очередь. Запускается одной горутиной на процесс воркера.
func (q *RedisQueue) RunDelayedPump(ctx context.Context) {
	ticker := time.NewTicker(delayedPumpPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			q.logger.Info("Delayed pump stopped")
			return
		case <-ticker.C:
			if err := q.pumpDelayed(ctx); err != nil {
				q.logger.Error("Failed to pump delayed messages", zap.Error(err))
			}
		}
	}
}

func (q *RedisQueue) pumpDelayed(ctx context.Context) error {
	now := strconv.FormatFloat(float64(time.Now().UnixNano())/1e9, 'f', -1, 64)

	msgs, err := q.client.ZRangeByScore(ctx, delayedQueueKey, &redis.ZRangeBy{Min: "0", Max: now}).Result()
	if err != nil {
		return fmt.Errorf("get ready delayed messages: %w", err)
	}
	if len(msgs) == 0 {
		return nil
	}

	pipe := q.client.Pipeline()
	for _, data := range msgs {
		pipe.LPush(ctx, mainQueueKey, data)
		pipe.ZRem(ctx, delayedQueueKey, data)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("move delayed messages: %w", err)
	}

	q.logger.Debug("Moved delayed messages to main queue", zap.Int("count", len(msgs)))
	return nil
}

// RecoverProcessing возвращает в основную очередь сообщения, зависшие
// в processing после падения воркера. Вызывается на старте процесса.
func (q *RedisQueue) RecoverProcessing(ctx context.Context) error {
	for {
		_, err := q.client.LMove(ctx, processingKey, mainQueueKey, "RIGHT", "LEFT").Result()
		if err == redis.Nil {
			return nil
		}
		if err != nil {
			return fmt.Errorf("recover processing queue: %w", err)
		}
		q.logger.Warn("Recovered stuck message from processing queue")
	}
}

// PushDLQ кладёт сообщение в DLQ после исчерпания попыток доставки
func (q *RedisQueue) PushDLQ(ctx context.Context, msg *Message, attempts int, cause error) {
	failed := &FailedMessage{
		Message:  msg,
		Error:    cause.Error(),
		FailedAt: time.Now().UTC(),
		Attempts: attempts,
	}
	data, err := json.Marshal(failed)
	if err != nil {
		q.logger.Error("Failed to marshal DLQ message", zap.Error(err))
		return
	}

	score := float64(failed.FailedAt.UnixNano()) / 1e9
	if err := q.client.ZAdd(ctx, dlqKey, redis.Z{Score: score, Member: data}).Err(); err != nil {
		q.logger.Error("Failed to push message to DLQ", zap.Error(err))
		return
	}

	q.logger.Warn("Message moved to DLQ",
		zap.String("message_id", msg.ID),
		zap.String("dedup_key", msg.DedupKey),
		zap.Int("attempts", attempts),
		zap.Error(cause))
}

func (q *RedisQueue) pushDLQRaw(ctx context.Context, data string, cause error) {
	failed := map[string]interface{}{
		"raw":       data,
		"error":     cause.Error(),
		"failed_at": time.Now().UTC(),
	}
	payload, err := json.Marshal(failed)
	if err != nil {
		return
	}
	score := float64(time.Now().UnixNano()) / 1e9
	if err := q.client.ZAdd(ctx, dlqKey, redis.Z{Score: score, Member: payload}).Err(); err != nil {
		q.logger.Error("Failed to push raw message to DLQ", zap.Error(err))
	}
}

// FailedMessages читает последние сообщения DLQ для оператора
func (q *RedisQueue) FailedMessages(ctx context.Context, limit int) ([]*FailedMessage, error) {
	if limit <= 0 {
		limit = 50
	}

	entries, err := q.client.ZRevRange(ctx, dlqKey, 0, int64(limit-1)).Result()
	if err != nil {
		return nil, fmt.Errorf("get DLQ messages: %w", err)
	}

	var failed []*FailedMessage
	for _, data := range entries {
		var fm FailedMessage
		if err := json.Unmarshal([]byte(data), &fm); err != nil {
			continue // немаршалящиеся записи пропускаем
		}
		failed = append(failed, &fm)
	}
	return failed, nil
}

// Stats длины очередей для диагностики
type Stats struct {
	Main       int64 `json:"main"`
	Delayed    int64 `json:"delayed"`
	Processing int64 `json:"processing"`
	DLQ        int64 `json:"dlq"`
}

// GetStats возвращает текущие длины всех очередей
func (q *RedisQueue) GetStats(ctx context.Context) (*Stats, error) {
	pipe := q.client.Pipeline()
	mainLen := pipe.LLen(ctx, mainQueueKey)
	delayedLen := pipe.ZCard(ctx, delayedQueueKey)
	processingLen := pipe.LLen(ctx, processingKey)
	dlqLen := pipe.ZCard(ctx, dlqKey)

	if _, err := pipe.Exec(ctx); err != nil {
		return nil, fmt.Errorf("get queue stats: %w", err)
	}

	return &Stats{
		Main:       mainLen.Val(),
		Delayed:    delayedLen.Val(),
		Processing: processingLen.Val(),
		DLQ:        dlqLen.Val(),
	}, nil
}
