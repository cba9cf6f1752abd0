package app

import (
	"context"
	"time"

	"github.com/studhelper/timetable-notifier/internal/model"
	"github.com/studhelper/timetable-notifier/internal/queue"
	"go.uber.org/zap"
)

// SemesterSource снапшот настроек семестров на тик
type SemesterSource interface {
	Get(ctx context.Context) (*model.SemesterSettings, error)
}

// UserSource выборка пользователей для планирования
type UserSource interface {
	GetActiveUsers(ctx context.Context, since time.Time) ([]*model.User, error)
}

// EventPlanner построение кандидатов-уведомлений пользователя
type EventPlanner interface {
	Plan(ctx context.Context, user *model.User, settings model.SemesterSettings, now time.Time, window time.Duration) ([]model.NotificationEvent, error)
}

// Admitter атомарный допуск dedup-ключа
type Admitter interface {
	Admit(ctx context.Context, key string) (bool, error)
}

// Publisher постановка сообщений в очередь доставки
type Publisher interface {
	PublishBatch(ctx context.Context, msgs []*queue.Message) error
}

// Scheduler периодический драйвер планирования. План-затем-фильтр:
// после рестарта повторное планирование даёт те же детерминированные
// кандидаты, а dedup-хранилище отсекает уже допущенные.
type Scheduler struct {
	semesters SemesterSource
	users     UserSource
	planner   EventPlanner
	dedup     Admitter
	publisher Publisher
	logger    *zap.Logger

	tickInterval  time.Duration
	lookahead     time.Duration
	userRetention time.Duration

	stopChan chan struct{}
}

// NewScheduler создаёт драйвер планирования
func NewScheduler(
	semesters SemesterSource,
	users UserSource,
	planner EventPlanner,
	dedup Admitter,
	publisher Publisher,
	tickInterval, lookahead, userRetention time.Duration,
	logger *zap.Logger,
) *Scheduler {
	return &Scheduler{
		semesters:     semesters,
		users:         users,
		planner:       planner,
		dedup:         dedup,
		publisher:     publisher,
		logger:        logger,
		tickInterval:  tickInterval,
		lookahead:     lookahead,
		userRetention: userRetention,
		stopChan:      make(chan struct{}),
	}
}

// Start запускает цикл планирования в фоне
func (s *Scheduler) Start(ctx context.Context) {
	s.logger.Info("Starting notification scheduler",
		zap.Duration("tick_interval", s.tickInterval),
		zap.Duration("lookahead", s.lookahead))

	go s.run(ctx)
}

// Stop останавливает цикл планирования
func (s *Scheduler) Stop() {
	s.logger.Info("Stopping notification scheduler")
	close(s.stopChan)
}

func (s *Scheduler) run(ctx context.Context) {
	// Первый тик сразу при старте
	s.Tick(ctx, time.Now())

	ticker := time.NewTicker(s.tickInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.Tick(ctx, time.Now())
		case <-s.stopChan:
			s.logger.Info("Scheduler loop stopped")
			return
		case <-ctx.Done():
			s.logger.Info("Scheduler loop cancelled")
			return
		}
	}
}

// Tick один проход планирования: снапшот настроек, план по каждому
// активному пользователю, допуск и постановка в очередь событий,
// наступающих до следующего тика.
func (s *Scheduler) Tick(ctx context.Context, now time.Time) {
	settings, err := s.semesters.Get(ctx)
	if err != nil {
		s.logger.Error("Failed to load semester settings, skipping tick", zap.Error(err))
		return
	}
	if settings == nil {
		// Без якоря семестра планировать нечего; ошибка конфигурации,
		// а не сбой — на следующем тике будет то же самое
		s.logger.Warn("Semester settings are not configured, skipping tick")
		return
	}

	users, err := s.users.GetActiveUsers(ctx, now.Add(-s.userRetention))
	if err != nil {
		s.logger.Error("Failed to load active users, skipping tick", zap.Error(err))
		return
	}

	var planned, admitted int
	for _, user := range users {
		events, err := s.planner.Plan(ctx, user, *settings, now, s.lookahead)
		if err != nil {
			// Ошибка одного пользователя не роняет тик
			s.logger.Error("Failed to plan user notifications",
				zap.Int64("user_id", user.TelegramID),
				zap.Error(err))
			continue
		}
		planned += len(events)

		// Допущенные события пользователя уходят в очередь одним pipeline
		var batch []*queue.Message
		for _, event := range events {
			if !s.dueThisTick(event, now) {
				continue
			}
			ok, err := s.dedup.Admit(ctx, event.DedupKey)
			if err != nil {
				// Dedup-хранилище недоступно: тик закрывается целиком,
				// лучше отложить отправку, чем рискнуть дублем
				s.logger.Error("Dedup store unavailable, aborting tick", zap.Error(err))
				return
			}
			if !ok {
				// Уже допущено предыдущим тиком или другим экземпляром
				continue
			}
			batch = append(batch, queue.NewMessage(event))
		}
		if len(batch) == 0 {
			continue
		}

		if err := s.publisher.PublishBatch(ctx, batch); err != nil {
			// Ключи допущены, но сообщения не встали в очередь: уведомления
			// потеряны до истечения dedup-записей, об этом громко в лог
			s.logger.Error("Failed to enqueue admitted events",
				zap.Int64("user_id", user.TelegramID),
				zap.Int("count", len(batch)),
				zap.Error(err))
			continue
		}
		admitted += len(batch)
	}

	s.logger.Info("Scheduler tick completed",
		zap.Int("users", len(users)),
		zap.Int("planned", planned),
		zap.Int("enqueued", admitted))
}

// dueThisTick true для событий, наступающих до следующего тика
func (s *Scheduler) dueThisTick(event model.NotificationEvent, now time.Time) bool {
	return !event.ScheduledAt.Before(now) && event.ScheduledAt.Before(now.Add(s.tickInterval))
}
