package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/studhelper/timetable-notifier/internal/model"
)

// UserRepository доступ к пользователям. Ядро уведомлений только
// читает настройки, записью владеет подсистема аккаунтов.
type UserRepository struct {
	pool *pgxpool.Pool
}

func NewUserRepository(pool *pgxpool.Pool) *UserRepository {
	return &UserRepository{pool: pool}
}

// GetActiveUsers получает пользователей, активных после since и с хотя бы
// одной включённой рассылкой. Остальные не планируются, чтобы не тратить
// тик на заведомо пустую работу.
func (r *UserRepository) GetActiveUsers(ctx context.Context, since time.Time) ([]*model.User, error) {
	query := `
		SELECT id, telegram_id, username, COALESCE(group_name, ''), reminder_offset_minutes,
		       evening_notify, morning_summary, lesson_reminders, last_active_at, created_at
		FROM users
		WHERE last_active_at >= $1
		  AND (evening_notify OR morning_summary OR lesson_reminders)
		ORDER BY id
	`

	rows, err := r.pool.Query(ctx, query, since)
	if err != nil {
		return nil, fmt.Errorf("get active users: %w", err)
	}
	defer rows.Close()

	var users []*model.User
	for rows.Next() {
		var user model.User
		err := rows.Scan(
			&user.ID,
			&user.TelegramID,
			&user.Username,
			&user.Group,
			&user.ReminderOffsetMinutes,
			&user.EveningNotify,
			&user.MorningSummary,
			&user.LessonReminders,
			&user.LastActiveAt,
			&user.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("scan active user: %w", err)
		}
		users = append(users, &user)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate active users: %w", err)
	}

	return users, nil
}
