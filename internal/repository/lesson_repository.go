package repository

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/studhelper/timetable-notifier/internal/model"
)

// LessonRepository каталог шаблонов пар. Для ядра уведомлений
// read-only: каталог наполняет внешний загрузчик расписания.
type LessonRepository struct {
	pool *pgxpool.Pool
}

func NewLessonRepository(pool *pgxpool.Pool) *LessonRepository {
	return &LessonRepository{pool: pool}
}

// LessonsFor получает пары группы на день недели и чётность.
// Пары с parity='every' попадают в выборку для обеих недель.
func (r *LessonRepository) LessonsFor(ctx context.Context, group string, weekday int, parity model.Parity) ([]model.Lesson, error) {
	query := `
		SELECT id, group_name, title, room, start_time, end_time, weekday, parity
		FROM lessons
		WHERE group_name = $1 AND weekday = $2 AND parity IN ($3, 'every')
		ORDER BY start_time, room
	`

	rows, err := r.pool.Query(ctx, query, group, weekday, string(parity))
	if err != nil {
		return nil, fmt.Errorf("get lessons: %w", err)
	}
	defer rows.Close()

	var lessons []model.Lesson
	for rows.Next() {
		var lesson model.Lesson
		err := rows.Scan(
			&lesson.ID,
			&lesson.Group,
			&lesson.Title,
			&lesson.Room,
			&lesson.StartTime,
			&lesson.EndTime,
			&lesson.Weekday,
			&lesson.Parity,
		)
		if err != nil {
			return nil, fmt.Errorf("scan lesson: %w", err)
		}
		lessons = append(lessons, lesson)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate lessons: %w", err)
	}

	return lessons, nil
}

// Groups возвращает список групп, присутствующих в каталоге
func (r *LessonRepository) Groups(ctx context.Context) ([]string, error) {
	rows, err := r.pool.Query(ctx, `SELECT DISTINCT group_name FROM lessons ORDER BY group_name`)
	if err != nil {
		return nil, fmt.Errorf("get groups: %w", err)
	}
	defer rows.Close()

	var groups []string
	for rows.Next() {
		var g string
		if err := rows.Scan(&g); err != nil {
			return nil, fmt.Errorf("scan group: %w", err)
		}
		groups = append(groups, g)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate groups: %w", err)
	}

	return groups, nil
}
