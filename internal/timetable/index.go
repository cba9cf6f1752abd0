package timetable

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/studhelper/timetable-notifier/internal/model"
	"go.uber.org/zap"
)

// LessonSource внешний источник шаблонов пар (каталог расписания)
type LessonSource interface {
	LessonsFor(ctx context.Context, group string, weekday int, parity model.Parity) ([]model.Lesson, error)
}

type indexKey struct {
	group   string
	weekday int
	parity  model.Parity
}

type indexEntry struct {
	lessons   []model.Lesson
	fetchedAt time.Time
}

// Index read-through кэш расписания с ключом (группа, день, чётность).
// Устаревшие записи отдаются сразу, обновление идёт в фоне: чтение
// никогда не блокирует тик планировщика дольше первого запроса группы.
type Index struct {
	source     LessonSource
	refresh    time.Duration
	logger     *zap.Logger
	mu         sync.RWMutex
	entries    map[indexKey]indexEntry
	refreshing map[indexKey]bool
}

// NewIndex создаёт кэш расписания с заданным интервалом обновления
func NewIndex(source LessonSource, refresh time.Duration, logger *zap.Logger) *Index {
	return &Index{
		source:     source,
		refresh:    refresh,
		logger:     logger,
		entries:    make(map[indexKey]indexEntry),
		refreshing: make(map[indexKey]bool),
	}
}

// LessonsFor возвращает упорядоченный список пар группы на день недели
// и чётность. Неизвестная группа — пустой список, не ошибка: такие
// пользователи просто не получают напоминаний о парах.
func (i *Index) LessonsFor(ctx context.Context, group string, weekday int, parity model.Parity) ([]model.Lesson, error) {
	group = strings.ToUpper(strings.TrimSpace(group))
	if group == "" {
		return nil, nil
	}
	key := indexKey{group: group, weekday: weekday, parity: parity}

	i.mu.RLock()
	entry, ok := i.entries[key]
	i.mu.RUnlock()

	if ok {
		if time.Since(entry.fetchedAt) > i.refresh {
			i.refreshAsync(key)
		}
		return entry.lessons, nil
	}

	// Первое обращение к ключу — синхронная загрузка
	lessons, err := i.load(ctx, key)
	if err != nil {
		return nil, fmt.Errorf("load timetable for %s: %w", group, err)
	}
	return lessons, nil
}

// Invalidate сбрасывает кэш по группе (например, после обновления каталога)
func (i *Index) Invalidate(group string) {
	group = strings.ToUpper(strings.TrimSpace(group))
	i.mu.Lock()
	defer i.mu.Unlock()
	for key := range i.entries {
		if key.group == group {
			delete(i.entries, key)
		}
	}
}

// InvalidateAll сбрасывает весь кэш
func (i *Index) InvalidateAll() {
	i.mu.Lock()
	defer i.mu.Unlock()
	i.entries = make(map[indexKey]indexEntry)
}

func (i *Index) load(ctx context.Context, key indexKey) ([]model.Lesson, error) {
	lessons, err := i.source.LessonsFor(ctx, key.group, key.weekday, key.parity)
	if err != nil {
		return nil, err
	}

	// Детерминированный порядок: по времени начала, затем по аудитории
	sort.SliceStable(lessons, func(a, b int) bool {
		if lessons[a].StartTime != lessons[b].StartTime {
			return lessons[a].StartTime < lessons[b].StartTime
		}
		return lessons[a].Room < lessons[b].Room
	})

	i.mu.Lock()
	i.entries[key] = indexEntry{lessons: lessons, fetchedAt: time.Now()}
	i.mu.Unlock()

	return lessons, nil
}

// refreshAsync запускает фоновое обновление ключа, если оно ещё не идёт
func (i *Index) refreshAsync(key indexKey) {
	i.mu.Lock()
	if i.refreshing[key] {
		i.mu.Unlock()
		return
	}
	i.refreshing[key] = true
	i.mu.Unlock()

	go func() {
		defer func() {
			i.mu.Lock()
			delete(i.refreshing, key)
			i.mu.Unlock()
		}()

		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		if _, err := i.load(ctx, key); err != nil {
			// Осталась устаревшая запись, отдаём её до следующей попытки
			i.logger.Warn("Failed to refresh timetable entry",
				zap.String("group", key.group),
				zap.Int("weekday", key.weekday),
				zap.String("parity", string(key.parity)),
				zap.Error(err))
		}
	}()
}
