package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/announcehq/broadcastq/internal/config"
	"github.com/announcehq/broadcastq/internal/models"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type JobRepository struct {
	db *gorm.DB
}

func NewJobRepository(db *gorm.DB) *JobRepository {
	return &JobRepository{db: db}
}

// Create inserts a new job record. A zero ScheduledAt means the job is
// eligible immediately.
func (r *JobRepository) Create(ctx context.Context, job *models.Job) error {
	if job.Status == "" {
		job.Status = config.JobStatusPending
	}
	if job.ScheduledAt.IsZero() {
		job.ScheduledAt = time.Now()
	}
	if job.MaxAttempts == 0 {
		job.MaxAttempts = 3
	}
	if err := r.db.WithContext(ctx).Create(job).Error; err != nil {
		return fmt.Errorf("create job: %w", err)
	}
	return nil
}

// CreateBatch inserts N jobs with staggered scheduled_at timestamps
// (now + i*delayPerJob) so a burst of work spreads out over time.
func (r *JobRepository) CreateBatch(ctx context.Context, jobs []*models.Job, delayPerJob time.Duration) error {
	now := time.Now()
	for i, job := range jobs {
		if job.Status == "" {
			job.Status = config.JobStatusPending
		}
		if job.MaxAttempts == 0 {
			job.MaxAttempts = 3
		}
		job.ScheduledAt = now.Add(time.Duration(i) * delayPerJob)
	}
	if err := r.db.WithContext(ctx).Create(&jobs).Error; err != nil {
		return fmt.Errorf("create job batch: %w", err)
	}
	return nil
}

// Get retrieves a single job record by its ID.
func (r *JobRepository) Get(ctx context.Context, id uint) (*models.Job, error) {
	var job models.Job
	if err := r.db.WithContext(ctx).First(&job, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("job not found: %w", err)
		}
		return nil, fmt.Errorf("get job: %w", err)
	}
	return &job, nil
}

// Claim atomically transitions up to limit eligible jobs to processing and
// returns them. Eligibility: status pending or retry, scheduled_at due, and
// next_retry_at either unset or due. Each candidate is claimed with a
// conditional single-row UPDATE, so two dispatchers racing over the same job
// see exactly one RowsAffected==1; the loser skips the row. This is the only
// cross-process synchronization point in the queue.
func (r *JobRepository) Claim(ctx context.Context, limit int) ([]models.Job, error) {
	if limit <= 0 {
		return nil, nil
	}
	now := time.Now()

	var candidates []models.Job
	if err := r.db.WithContext(ctx).
		Where("status IN ?", []string{config.JobStatusPending, config.JobStatusRetry}).
		Where("scheduled_at <= ?", now).
		Where("next_retry_at IS NULL OR next_retry_at <= ?", now).
		Order("created_at asc").
		Limit(limit).
		Find(&candidates).Error; err != nil {
		return nil, fmt.Errorf("select eligible jobs: %w", err)
	}

	claimed := make([]models.Job, 0, len(candidates))
	for _, candidate := range candidates {
		res := r.db.WithContext(ctx).Model(&models.Job{}).
			Where("id = ?", candidate.ID).
			Where("status IN ?", []string{config.JobStatusPending, config.JobStatusRetry}).
			Where("scheduled_at <= ?", now).
			Where("next_retry_at IS NULL OR next_retry_at <= ?", now).
			Updates(map[string]any{
				"status":     config.JobStatusProcessing,
				"started_at": now,
			})
		if res.Error != nil {
			return nil, fmt.Errorf("claim job %d: %w", candidate.ID, res.Error)
		}
		if res.RowsAffected == 1 {
			startedAt := now
			candidate.Status = config.JobStatusProcessing
			candidate.StartedAt = &startedAt
			claimed = append(claimed, candidate)
		}
	}
	return claimed, nil
}

// MarkCompleted stores the processor result and finishes the job.
func (r *JobRepository) MarkCompleted(ctx context.Context, id uint, result datatypes.JSON) error {
	now := time.Now()
	if err := r.db.WithContext(ctx).Model(&models.Job{}).
		Where("id = ?", id).
		Updates(map[string]any{
			"status":       config.JobStatusCompleted,
			"result":       result,
			"completed_at": now,
		}).Error; err != nil {
		return fmt.Errorf("mark completed: %w", err)
	}
	return nil
}

// RetryLater records a failed attempt and schedules the next one.
func (r *JobRepository) RetryLater(ctx context.Context, id uint, attempts int, nextRetryAt time.Time, errMsg string) error {
	if err := r.db.WithContext(ctx).Model(&models.Job{}).
		Where("id = ?", id).
		Updates(map[string]any{
			"status":        config.JobStatusRetry,
			"attempts":      attempts,
			"next_retry_at": nextRetryAt,
			"error":         errMsg,
		}).Error; err != nil {
		return fmt.Errorf("retry later: %w", err)
	}
	return nil
}

// MarkFailed terminally fails a job after its attempts are exhausted.
func (r *JobRepository) MarkFailed(ctx context.Context, id uint, attempts int, errMsg string) error {
	now := time.Now()
	if err := r.db.WithContext(ctx).Model(&models.Job{}).
		Where("id = ?", id).
		Updates(map[string]any{
			"status":       config.JobStatusFailed,
			"attempts":     attempts,
			"error":        errMsg,
			"completed_at": now,
		}).Error; err != nil {
		return fmt.Errorf("mark failed: %w", err)
	}
	return nil
}

// ResetForRetry is the manual retry operation: attempts back to zero,
// status pending, retry gate cleared, so the job re-enters the eligible pool.
func (r *JobRepository) ResetForRetry(ctx context.Context, id uint) error {
	res := r.db.WithContext(ctx).Model(&models.Job{}).
		Where("id = ?", id).
		Updates(map[string]any{
			"status":        config.JobStatusPending,
			"attempts":      0,
			"next_retry_at": nil,
			"error":         "",
		})
	if res.Error != nil {
		return fmt.Errorf("reset for retry: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("reset for retry: %w", gorm.ErrRecordNotFound)
	}
	return nil
}

// RequeueStuck sweeps jobs abandoned in processing by a crashed dispatcher:
// anything still processing whose started_at is older than the timeout goes
// back to retry, immediately eligible. Returns the number of requeued jobs.
func (r *JobRepository) RequeueStuck(ctx context.Context, olderThan time.Duration) (int64, error) {
	cutoff := time.Now().Add(-olderThan)
	res := r.db.WithContext(ctx).Model(&models.Job{}).
		Where("status = ?", config.JobStatusProcessing).
		Where("started_at < ?", cutoff).
		Updates(map[string]any{
			"status":        config.JobStatusRetry,
			"next_retry_at": nil,
		})
	if res.Error != nil {
		return 0, fmt.Errorf("requeue stuck jobs: %w", res.Error)
	}
	return res.RowsAffected, nil
}

// List retrieves all jobs belonging to a specific queue.
func (r *JobRepository) List(ctx context.Context, queue string) ([]models.Job, error) {
	var jobs []models.Job
	if err := r.db.WithContext(ctx).
		Where("queue = ?", queue).
		Order("created_at asc").
		Find(&jobs).Error; err != nil {
		return nil, fmt.Errorf("list jobs: %w", err)
	}
	return jobs, nil
}

// CountByStatus returns the per-status job counts for a queue, for the
// admin stats endpoint.
func (r *JobRepository) CountByStatus(ctx context.Context, queue string) (map[string]int64, error) {
	type row struct {
		Status string
		N      int64
	}
	var rows []row
	if err := r.db.WithContext(ctx).Model(&models.Job{}).
		Select("status, count(*) as n").
		Where("queue = ?", queue).
		Group("status").
		Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("count jobs by status: %w", err)
	}
	counts := make(map[string]int64, len(rows))
	for _, r := range rows {
		counts[r.Status] = r.N
	}
	return counts, nil
}
