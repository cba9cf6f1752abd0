package worker

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sethvargo/go-retry"
	"github.com/studhelper/timetable-notifier/internal/dedup"
	"github.com/studhelper/timetable-notifier/internal/delivery"
	"github.com/studhelper/timetable-notifier/internal/queue"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

const statsReportPeriod = time.Minute

// errAttemptTracking учёт попытки в dedup-хранилище не удался;
// отправка при этом не выполнялась
var errAttemptTracking = errors.New("record delivery attempt")

// DedupStore операции dedup-хранилища, нужные воркеру
type DedupStore interface {
	Get(ctx context.Context, key string) (*dedup.Record, error)
	RecordAttempt(ctx context.Context, key string) (*dedup.Record, error)
	MarkDelivered(ctx context.Context, key string) error
	MarkFailed(ctx context.Context, key string) error
}

// Queue операции очереди доставки, нужные воркеру
type Queue interface {
	Consume(ctx context.Context, handler queue.Handler) error
	RunDelayedPump(ctx context.Context)
	RecoverProcessing(ctx context.Context) error
	PushDLQ(ctx context.Context, msg *queue.Message, attempts int, cause error)
	GetStats(ctx context.Context) (*queue.Stats, error)
}

// Worker потребитель очереди доставки. Несколько экземпляров работают
// параллельно: порядок между сообщениями не гарантируется, подавление
// дублей обеспечивает атомарный допуск в dedup-хранилище.
type Worker struct {
	queue       Queue
	dedup       DedupStore
	sender      delivery.Sender
	logger      *zap.Logger
	maxAttempts int
	sendTimeout time.Duration
	baseDelay   time.Duration
}

// Config параметры воркера доставки
type Config struct {
	MaxAttempts int
	SendTimeout time.Duration
	BaseDelay   time.Duration
}

// New создаёт воркера доставки
func New(q Queue, d DedupStore, sender delivery.Sender, cfg Config, logger *zap.Logger) *Worker {
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 5
	}
	if cfg.SendTimeout <= 0 {
		cfg.SendTimeout = 30 * time.Second
	}
	if cfg.BaseDelay <= 0 {
		cfg.BaseDelay = time.Second
	}
	return &Worker{
		queue:       q,
		dedup:       d,
		sender:      sender,
		logger:      logger,
		maxAttempts: cfg.MaxAttempts,
		sendTimeout: cfg.SendTimeout,
		baseDelay:   cfg.BaseDelay,
	}
}

// Run запускает потребление очереди в concurrency горутин и блокируется
// до отмены контекста
func (w *Worker) Run(ctx context.Context, concurrency int) error {
	if concurrency <= 0 {
		concurrency = 1
	}

	// Сообщения, зависшие в processing после падения предыдущего
	// экземпляра, возвращаются в очередь
	if err := w.queue.RecoverProcessing(ctx); err != nil {
		w.logger.Error("Failed to recover processing queue", zap.Error(err))
	}

	w.logger.Info("Starting delivery worker", zap.Int("concurrency", concurrency))

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		w.queue.RunDelayedPump(gctx)
		return nil
	})
	g.Go(func() error {
		w.reportStats(gctx)
		return nil
	})
	for i := 0; i < concurrency; i++ {
		g.Go(func() error {
			return w.queue.Consume(gctx, w.Handle)
		})
	}

	err := g.Wait()
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

// Handle обрабатывает одно сообщение очереди. Ненулевая ошибка означает
// временную недоступность инфраструктуры: очередь вернёт сообщение на
// повторную доставку. Терминальные исходы (Delivered/Failed) фиксируются
// здесь и наружу не отдаются.
func (w *Worker) Handle(ctx context.Context, msg *queue.Message) error {
	if !msg.Kind.Valid() {
		w.queue.PushDLQ(ctx, msg, 0, errors.New("unknown notification kind"))
		return nil
	}

	// Проверка статуса перед отправкой защищает от повторной доставки
	// из at-least-once очереди
	record, err := w.dedup.Get(ctx, msg.DedupKey)
	if err != nil {
		return err
	}
	if record != nil && record.Status.Terminal() {
		w.logger.Debug("Dropping already handled message",
			zap.String("dedup_key", msg.DedupKey),
			zap.String("status", string(record.Status)))
		return nil
	}

	var lastAttempts int
	backoff := retry.WithMaxRetries(uint64(w.maxAttempts-1), retry.NewExponential(w.baseDelay))
	sendErr := retry.Do(ctx, backoff, func(ctx context.Context) error {
		rec, err := w.dedup.RecordAttempt(ctx, msg.DedupKey)
		if err != nil {
			// Сбой учёта попыток не тратит бюджет отправки: без записи
			// в хранилище отправлять нельзя, прерываем ретраи
			return fmt.Errorf("%w: %v", errAttemptTracking, err)
		}
		lastAttempts = rec.Attempts

		sctx, cancel := context.WithTimeout(ctx, w.sendTimeout)
		defer cancel()

		if err := w.sender.Send(sctx, msg.UserID, msg.Payload); err != nil {
			if errors.Is(err, delivery.ErrPermanent) {
				return err // прерывает ретраи немедленно
			}
			// Таймаут и сетевые ошибки — временные, уходят на backoff
			return retry.RetryableError(err)
		}
		return nil
	})

	if sendErr == nil {
		if err := w.dedup.MarkDelivered(ctx, msg.DedupKey); err != nil {
			// Сообщение уже у получателя: не возвращаем его в очередь,
			// иначе рискуем дублем
			w.logger.Error("Failed to mark message delivered",
				zap.String("dedup_key", msg.DedupKey), zap.Error(err))
		}
		w.logger.Info("Notification delivered",
			zap.Int64("user_id", msg.UserID),
			zap.String("kind", string(msg.Kind)),
			zap.Int("attempts", lastAttempts))
		return nil
	}

	if errors.Is(sendErr, errAttemptTracking) {
		// Dedup-хранилище недоступно: сообщение возвращается в очередь,
		// в DLQ с нулём реальных отправок ему делать нечего
		return sendErr
	}

	if ctx.Err() != nil {
		// Остановка процесса, а не отказ получателя: сообщение вернётся
		// в очередь и будет доставлено после рестарта
		return ctx.Err()
	}

	// Либо необратимая ошибка, либо исчерпан бюджет попыток
	if err := w.dedup.MarkFailed(ctx, msg.DedupKey); err != nil {
		w.logger.Error("Failed to mark message failed",
			zap.String("dedup_key", msg.DedupKey), zap.Error(err))
	}
	w.queue.PushDLQ(ctx, msg, lastAttempts, sendErr)
	w.logger.Error("Notification failed",
		zap.Int64("user_id", msg.UserID),
		zap.String("kind", string(msg.Kind)),
		zap.Int("attempts", lastAttempts),
		zap.Bool("permanent", errors.Is(sendErr, delivery.ErrPermanent)),
		zap.Error(sendErr))
	return nil
}

// reportStats периодически пишет длины очередей в лог
func (w *Worker) reportStats(ctx context.Context) {
	ticker := time.NewTicker(statsReportPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			stats, err := w.queue.GetStats(ctx)
			if err != nil {
				w.logger.Error("Failed to collect queue stats", zap.Error(err))
				continue
			}
			w.logger.Info("Queue stats",
				zap.Int64("main", stats.Main),
				zap.Int64("delayed", stats.Delayed),
				zap.Int64("processing", stats.Processing),
				zap.Int64("dlq", stats.DLQ))
		}
	}
}
