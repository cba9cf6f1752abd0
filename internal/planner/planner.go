package planner

import (
	"context"
	"errors"
	"fmt"
	"hash/fnv"
	"time"

	"github.com/studhelper/timetable-notifier/internal/model"
	"github.com/studhelper/timetable-notifier/internal/timetable"
	"go.uber.org/zap"
)

const defaultReminderOffsetMinutes = 60

// Planner строит множество кандидатов-уведомлений для одного
// пользователя в окне планирования. Вычисления чистые и read-only,
// безопасны для конкурентного запуска по пользователям.
type Planner struct {
	calendar *timetable.Calendar
	lessons  timetable.LessonSource
	logger   *zap.Logger

	morningHour, morningMinute int
	eveningHour, eveningMinute int
}

// New создаёт планировщик. morningTOD и eveningTOD — время рассылок
// в формате HH:MM в таймзоне календаря.
func New(calendar *timetable.Calendar, lessons timetable.LessonSource, morningTOD, eveningTOD string, logger *zap.Logger) (*Planner, error) {
	morning, err := time.Parse("15:04", morningTOD)
	if err != nil {
		return nil, fmt.Errorf("parse morning time of day: %w", err)
	}
	evening, err := time.Parse("15:04", eveningTOD)
	if err != nil {
		return nil, fmt.Errorf("parse evening time of day: %w", err)
	}

	return &Planner{
		calendar:      calendar,
		lessons:       lessons,
		logger:        logger,
		morningHour:   morning.Hour(),
		morningMinute: morning.Minute(),
		eveningHour:   evening.Hour(),
		eveningMinute: evening.Minute(),
	}, nil
}

// Plan перечисляет кандидатов-уведомлений пользователя в окне
// [now, now+window]. Кандидаты с временем отправки в прошлом
// отбрасываются: задним числом не напоминаем. Повторный вызов
// для того же окна даёт те же dedup-ключи.
func (p *Planner) Plan(ctx context.Context, user *model.User, settings model.SemesterSettings, now time.Time, window time.Duration) ([]model.NotificationEvent, error) {
	var events []model.NotificationEvent
	windowEnd := now.Add(window)

	for date := p.calendar.Midnight(now); !date.After(windowEnd); date = date.AddDate(0, 0, 1) {
		parity, occurrences, err := p.dayOccurrences(ctx, user.Group, settings, date)
		if err != nil {
			if errors.Is(err, timetable.ErrNoSemester) {
				// Вне семестра расписания нет — день пропускается
				continue
			}
			return nil, fmt.Errorf("plan day %s: %w", date.Format("2006-01-02"), err)
		}

		if user.LessonReminders {
			events = append(events, p.lessonReminders(user, occurrences, now, windowEnd)...)
		}
		if user.MorningSummary {
			scheduledAt := p.timeOfDay(date, p.morningHour, p.morningMinute)
			if inWindow(scheduledAt, now, windowEnd) {
				events = append(events, model.NotificationEvent{
					UserID:      user.TelegramID,
					Kind:        model.KindMorningSummary,
					DedupKey:    digestDedupKey(model.KindMorningSummary, user.TelegramID, date),
					ScheduledAt: scheduledAt,
					Payload:     formatMorningSummaryText(date, parity, occurrences),
				})
			}
		}
		if user.EveningNotify {
			scheduledAt := p.timeOfDay(date, p.eveningHour, p.eveningMinute)
			if inWindow(scheduledAt, now, windowEnd) {
				if event, ok := p.eveningDigest(ctx, user, settings, date, scheduledAt); ok {
					events = append(events, event)
				}
			}
		}
	}

	return events, nil
}

// lessonReminders кандидаты-напоминания о парах
func (p *Planner) lessonReminders(user *model.User, occurrences []model.Occurrence, now, windowEnd time.Time) []model.NotificationEvent {
	offset := user.ReminderOffsetMinutes
	if offset <= 0 {
		offset = defaultReminderOffsetMinutes
	}

	var events []model.NotificationEvent
	for _, occ := range occurrences {
		scheduledAt := occ.StartsAt.Add(-time.Duration(offset) * time.Minute)
		if !inWindow(scheduledAt, now, windowEnd) {
			continue
		}
		events = append(events, model.NotificationEvent{
			UserID:      user.TelegramID,
			Kind:        model.KindLessonReminder,
			DedupKey:    reminderDedupKey(user.TelegramID, occ),
			ScheduledAt: scheduledAt,
			Payload:     formatReminderText(occ, offset),
		})
	}
	return events
}

// eveningDigest вечерняя сводка на следующий день. Чётность завтрашнего
// дня вычисляется по его собственной дате: на границе недель она
// отличается от сегодняшней.
func (p *Planner) eveningDigest(ctx context.Context, user *model.User, settings model.SemesterSettings, date, scheduledAt time.Time) (model.NotificationEvent, bool) {
	tomorrow := date.AddDate(0, 0, 1)
	parity, occurrences, err := p.dayOccurrences(ctx, user.Group, settings, tomorrow)
	if err != nil {
		if errors.Is(err, timetable.ErrNoSemester) {
			// Завтра ещё не семестр — сводка с явным "занятий нет"
			return model.NotificationEvent{
				UserID:      user.TelegramID,
				Kind:        model.KindEveningDigest,
				DedupKey:    digestDedupKey(model.KindEveningDigest, user.TelegramID, date),
				ScheduledAt: scheduledAt,
				Payload:     formatEveningDigestText(tomorrow, model.ParityOdd, nil),
			}, true
		}
		p.logger.Warn("Failed to plan evening digest",
			zap.Int64("user_id", user.TelegramID),
			zap.Error(err))
		return model.NotificationEvent{}, false
	}

	return model.NotificationEvent{
		UserID:      user.TelegramID,
		Kind:        model.KindEveningDigest,
		DedupKey:    digestDedupKey(model.KindEveningDigest, user.TelegramID, date),
		ScheduledAt: scheduledAt,
		Payload:     formatEveningDigestText(tomorrow, parity, occurrences),
	}, true
}

// dayOccurrences материализует пары пользователя на дату. Пустая группа
// и воскресенье дают пустой список без ошибки: сводки всё равно уходят
// с явным сообщением об отсутствии занятий.
func (p *Planner) dayOccurrences(ctx context.Context, group string, settings model.SemesterSettings, date time.Time) (model.Parity, []model.Occurrence, error) {
	anchor, err := p.calendar.ResolveAnchor(settings, date)
	if err != nil {
		return "", nil, err
	}
	parity := p.calendar.ParityFor(anchor, date)

	weekday := timetable.WeekdayNumber(date)
	if group == "" || weekday == 7 {
		return parity, nil, nil
	}

	lessons, err := p.lessons.LessonsFor(ctx, group, weekday, parity)
	if err != nil {
		return parity, nil, fmt.Errorf("lessons for %s: %w", group, err)
	}

	occurrences := make([]model.Occurrence, 0, len(lessons))
	for _, lesson := range lessons {
		occ, err := model.NewOccurrence(lesson, date, p.calendar.Location())
		if err != nil {
			// Битое время в каталоге не должно ронять весь день
			p.logger.Warn("Skipping lesson with invalid time",
				zap.Int64("lesson_id", lesson.ID),
				zap.Error(err))
			continue
		}
		occurrences = append(occurrences, occ)
	}
	return parity, occurrences, nil
}

func (p *Planner) timeOfDay(date time.Time, hour, minute int) time.Time {
	return time.Date(date.Year(), date.Month(), date.Day(), hour, minute, 0, 0, p.calendar.Location())
}

func inWindow(t, now, windowEnd time.Time) bool {
	return !t.Before(now) && !t.After(windowEnd)
}

// reminderDedupKey детерминированный ключ напоминания: пользователь,
// дата, время начала и идентичность пары
func reminderDedupKey(userID int64, occ model.Occurrence) string {
	h := fnv.New64a()
	h.Write([]byte(occ.Lesson.Title))
	h.Write([]byte{0})
	h.Write([]byte(occ.Lesson.Room))
	return fmt.Sprintf("%s:%d:%s:%s:%016x",
		model.KindLessonReminder, userID, occ.Date.Format("2006-01-02"), occ.Lesson.StartTime, h.Sum64())
}

// digestDedupKey детерминированный ключ сводки: одна на пользователя и дату
func digestDedupKey(kind model.Kind, userID int64, date time.Time) string {
	return fmt.Sprintf("%s:%d:%s", kind, userID, date.Format("2006-01-02"))
}
