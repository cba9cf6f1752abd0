package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/studhelper/timetable-notifier/internal/model"
)

// SemesterRepository настройки семестров. Планировщик читает их
// снапшотом раз в тик, меняет только административная команда.
type SemesterRepository struct {
	pool *pgxpool.Pool
}

func NewSemesterRepository(pool *pgxpool.Pool) *SemesterRepository {
	return &SemesterRepository{pool: pool}
}

// Get получает актуальные настройки семестров
func (r *SemesterRepository) Get(ctx context.Context) (*model.SemesterSettings, error) {
	query := `
		SELECT id, fall_start, spring_start, updated_at, updated_by
		FROM semester_settings
		ORDER BY id DESC
		LIMIT 1
	`

	var s model.SemesterSettings
	err := r.pool.QueryRow(ctx, query).Scan(
		&s.ID,
		&s.FallStart,
		&s.SpringStart,
		&s.UpdatedAt,
		&s.UpdatedBy,
	)

	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, nil // Настройки ещё не заданы
		}
		return nil, fmt.Errorf("get semester settings: %w", err)
	}

	return &s, nil
}

// Update обновляет даты семестров с аудитом (updated_at, updated_by).
// Если настроек ещё нет — создаёт запись.
func (r *SemesterRepository) Update(ctx context.Context, fall, spring time.Time, updatedBy int64) error {
	existing, err := r.Get(ctx)
	if err != nil {
		return fmt.Errorf("check existing settings: %w", err)
	}

	if existing != nil {
		query := `
			UPDATE semester_settings
			SET fall_start = $1, spring_start = $2, updated_at = now(), updated_by = $3
			WHERE id = $4
		`
		result, err := r.pool.Exec(ctx, query, fall, spring, updatedBy, existing.ID)
		if err != nil {
			return fmt.Errorf("update semester settings: %w", err)
		}
		if result.RowsAffected() == 0 {
			return fmt.Errorf("semester settings not found")
		}
		return nil
	}

	query := `
		INSERT INTO semester_settings (fall_start, spring_start, updated_by)
		VALUES ($1, $2, $3)
	`
	if _, err := r.pool.Exec(ctx, query, fall, spring, updatedBy); err != nil {
		return fmt.Errorf("insert semester settings: %w", err)
	}

	return nil
}
