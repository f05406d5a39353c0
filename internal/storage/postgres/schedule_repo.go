package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/announcehq/broadcastq/internal/config"
	"github.com/announcehq/broadcastq/internal/models"
	"gorm.io/gorm"
)

type ScheduleRepository struct {
	db *gorm.DB
}

func NewScheduleRepository(db *gorm.DB) *ScheduleRepository {
	return &ScheduleRepository{db: db}
}

func (r *ScheduleRepository) Create(ctx context.Context, s *models.Schedule) error {
	if s.Status == "" {
		s.Status = config.ScheduleStatusScheduled
	}
	if err := r.db.WithContext(ctx).Create(s).Error; err != nil {
		return fmt.Errorf("create schedule: %w", err)
	}
	return nil
}

func (r *ScheduleRepository) Get(ctx context.Context, id uint) (*models.Schedule, error) {
	var s models.Schedule
	if err := r.db.WithContext(ctx).First(&s, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("schedule not found: %w", err)
		}
		return nil, fmt.Errorf("get schedule: %w", err)
	}
	return &s, nil
}

// ListDue returns active schedules whose next execution time has arrived.
func (r *ScheduleRepository) ListDue(ctx context.Context, now time.Time) ([]models.Schedule, error) {
	var due []models.Schedule
	if err := r.db.WithContext(ctx).
		Where("status = ?", config.ScheduleStatusScheduled).
		Where("next_execution_at <= ?", now).
		Order("next_execution_at asc").
		Find(&due).Error; err != nil {
		return nil, fmt.Errorf("list due schedules: %w", err)
	}
	return due, nil
}

// Advance records one fired occurrence and the next execution time.
// current_occurrence only ever moves forward.
func (r *ScheduleRepository) Advance(ctx context.Context, id uint, occurrence int, next time.Time) error {
	if err := r.db.WithContext(ctx).Model(&models.Schedule{}).
		Where("id = ?", id).
		Where("current_occurrence < ?", occurrence).
		Updates(map[string]any{
			"current_occurrence": occurrence,
			"next_execution_at":  next,
		}).Error; err != nil {
		return fmt.Errorf("advance schedule: %w", err)
	}
	return nil
}

// Complete terminates a finished series (occurrences exhausted or end date
// passed). Also records the final occurrence count.
func (r *ScheduleRepository) Complete(ctx context.Context, id uint, occurrence int) error {
	if err := r.db.WithContext(ctx).Model(&models.Schedule{}).
		Where("id = ?", id).
		Updates(map[string]any{
			"status":             config.ScheduleStatusCompleted,
			"current_occurrence": occurrence,
		}).Error; err != nil {
		return fmt.Errorf("complete schedule: %w", err)
	}
	return nil
}

func (r *ScheduleRepository) Cancel(ctx context.Context, id uint) error {
	res := r.db.WithContext(ctx).Model(&models.Schedule{}).
		Where("id = ?", id).
		Where("status = ?", config.ScheduleStatusScheduled).
		Update("status", config.ScheduleStatusCancelled)
	if res.Error != nil {
		return fmt.Errorf("cancel schedule: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("schedule not cancellable: %w", gorm.ErrRecordNotFound)
	}
	return nil
}
