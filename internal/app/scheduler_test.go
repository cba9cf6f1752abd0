package app

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/studhelper/timetable-notifier/internal/model"
	"github.com/studhelper/timetable-notifier/internal/queue"
	"go.uber.org/zap"
)

type fakeSemesters struct {
	settings *model.SemesterSettings
	err      error
}

func (f *fakeSemesters) Get(context.Context) (*model.SemesterSettings, error) {
	return f.settings, f.err
}

type fakeUsers struct {
	users  []*model.User
	called bool
}

func (f *fakeUsers) GetActiveUsers(context.Context, time.Time) ([]*model.User, error) {
	f.called = true
	return f.users, nil
}

// fakePlanner отдаёт заранее заданные события по пользователю
type fakePlanner struct {
	perUser map[int64][]model.NotificationEvent
	failFor int64
}

func (f *fakePlanner) Plan(_ context.Context, user *model.User, _ model.SemesterSettings, _ time.Time, _ time.Duration) ([]model.NotificationEvent, error) {
	if f.failFor != 0 && user.TelegramID == f.failFor {
		return nil, errors.New("timetable source down")
	}
	return f.perUser[user.TelegramID], nil
}

// fakeDedup допуск в памяти: первый Admit по ключу true, повторные false
type fakeDedup struct {
	admitted map[string]bool
	err      error
}

func (f *fakeDedup) Admit(_ context.Context, key string) (bool, error) {
	if f.err != nil {
		return false, f.err
	}
	if f.admitted == nil {
		f.admitted = make(map[string]bool)
	}
	if f.admitted[key] {
		return false, nil
	}
	f.admitted[key] = true
	return true, nil
}

type fakePublisher struct {
	published []*queue.Message
	batches   int
	err       error
}

func (f *fakePublisher) PublishBatch(_ context.Context, msgs []*queue.Message) error {
	if f.err != nil {
		return f.err
	}
	f.batches++
	f.published = append(f.published, msgs...)
	return nil
}

func newTestScheduler(semesters SemesterSource, users UserSource, planner EventPlanner, dedup Admitter, publisher Publisher) *Scheduler {
	return NewScheduler(semesters, users, planner, dedup, publisher,
		5*time.Minute, 24*time.Hour, 90*24*time.Hour, zap.NewNop())
}

func testSettings() *model.SemesterSettings {
	return &model.SemesterSettings{
		FallStart:   time.Date(2024, 9, 2, 0, 0, 0, 0, time.UTC),
		SpringStart: time.Date(2025, 2, 10, 0, 0, 0, 0, time.UTC),
	}
}

func event(key string, scheduledAt time.Time) model.NotificationEvent {
	return model.NotificationEvent{
		UserID:      100,
		Kind:        model.KindLessonReminder,
		DedupKey:    key,
		ScheduledAt: scheduledAt,
		Payload:     "text",
	}
}

// TestTickPublishesOnlyDueEvents в очередь попадают только события,
// наступающие до следующего тика
func TestTickPublishesOnlyDueEvents(t *testing.T) {
	now := time.Date(2024, 9, 9, 9, 0, 0, 0, time.UTC)
	publisher := &fakePublisher{}
	s := newTestScheduler(
		&fakeSemesters{settings: testSettings()},
		&fakeUsers{users: []*model.User{{TelegramID: 100}}},
		&fakePlanner{perUser: map[int64][]model.NotificationEvent{100: {
			event("due", now.Add(time.Minute)),
			event("far", now.Add(10*time.Minute)), // позже следующего тика
			event("past", now.Add(-time.Minute)),  // уже в прошлом
		}}},
		&fakeDedup{},
		publisher,
	)

	s.Tick(context.Background(), now)

	require.Len(t, publisher.published, 1)
	assert.Equal(t, "due", publisher.published[0].DedupKey)
	assert.Equal(t, int64(100), publisher.published[0].UserID)
}

// TestTickIdempotent повторный тик с теми же кандидатами не даёт
// ни одного нового сообщения в очереди
func TestTickIdempotent(t *testing.T) {
	now := time.Date(2024, 9, 9, 9, 0, 0, 0, time.UTC)
	publisher := &fakePublisher{}
	s := newTestScheduler(
		&fakeSemesters{settings: testSettings()},
		&fakeUsers{users: []*model.User{{TelegramID: 100}}},
		&fakePlanner{perUser: map[int64][]model.NotificationEvent{100: {
			event("reminder-a", now.Add(time.Minute)),
			event("reminder-b", now.Add(2*time.Minute)),
		}}},
		&fakeDedup{},
		publisher,
	)

	s.Tick(context.Background(), now)
	require.Len(t, publisher.published, 2)
	// Оба события пользователя уходят одним pipeline
	assert.Equal(t, 1, publisher.batches)

	// Рестарт или параллельный экземпляр: те же кандидаты ещё раз
	s.Tick(context.Background(), now)
	assert.Len(t, publisher.published, 2)
}

// TestTickFailClosedOnDedupError при недоступном dedup-хранилище
// тик прерывается без единой публикации
func TestTickFailClosedOnDedupError(t *testing.T) {
	now := time.Date(2024, 9, 9, 9, 0, 0, 0, time.UTC)
	publisher := &fakePublisher{}
	s := newTestScheduler(
		&fakeSemesters{settings: testSettings()},
		&fakeUsers{users: []*model.User{{TelegramID: 100}}},
		&fakePlanner{perUser: map[int64][]model.NotificationEvent{100: {
			event("due", now.Add(time.Minute)),
		}}},
		&fakeDedup{err: errors.New("redis: connection refused")},
		publisher,
	)

	s.Tick(context.Background(), now)

	assert.Empty(t, publisher.published)
}

// TestTickSkipsWithoutSettings без настроек семестра тик пропускается,
// до выборки пользователей дело не доходит
func TestTickSkipsWithoutSettings(t *testing.T) {
	users := &fakeUsers{users: []*model.User{{TelegramID: 100}}}
	s := newTestScheduler(
		&fakeSemesters{settings: nil},
		users,
		&fakePlanner{},
		&fakeDedup{},
		&fakePublisher{},
	)

	s.Tick(context.Background(), time.Now())

	assert.False(t, users.called)
}

// TestTickPlannerErrorSkipsUser сбой планирования одного пользователя
// не мешает остальным
func TestTickPlannerErrorSkipsUser(t *testing.T) {
	now := time.Date(2024, 9, 9, 9, 0, 0, 0, time.UTC)
	publisher := &fakePublisher{}
	healthy := event("healthy", now.Add(time.Minute))
	healthy.UserID = 200
	s := newTestScheduler(
		&fakeSemesters{settings: testSettings()},
		&fakeUsers{users: []*model.User{{TelegramID: 100}, {TelegramID: 200}}},
		&fakePlanner{
			perUser: map[int64][]model.NotificationEvent{200: {healthy}},
			failFor: 100,
		},
		&fakeDedup{},
		publisher,
	)

	s.Tick(context.Background(), now)

	require.Len(t, publisher.published, 1)
	assert.Equal(t, int64(200), publisher.published[0].UserID)
}
