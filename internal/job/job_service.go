package job

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"slices"
	"strings"
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/announcehq/broadcastq/common"
	"github.com/announcehq/broadcastq/internal/config"
	"github.com/announcehq/broadcastq/internal/dto"
	"github.com/announcehq/broadcastq/internal/models"
)

type JobService struct {
	repo JobRepoInterface
}

func NewJobService(repo JobRepoInterface) *JobService {
	return &JobService{repo: repo}
}

var _ JobServiceInterface = (*JobService)(nil)

// CreateJob validates the enqueue request, applies defaults, and persists
// the job. Delay shifts scheduled_at into the future.
func (s *JobService) CreateJob(ctx context.Context, req *dto.JobCreateDTO) error {
	if err := ctx.Err(); err != nil {
		return common.Errf(http.StatusRequestTimeout, "request canceled or timed out")
	}

	if !json.Valid(req.Payload) {
		return common.Errf(http.StatusBadRequest, "payload must be valid JSON")
	}

	if !slices.Contains(config.AllowedQueues, req.Queue) {
		return common.NewAPIError(
			http.StatusBadRequest,
			"invalid queue",
			map[string]any{
				"provided": req.Queue,
				"allowed":  config.AllowedQueues,
			},
		)
	}

	if !slices.Contains(config.AllowedJobTypes, req.Type) {
		return common.NewAPIError(
			http.StatusBadRequest,
			"invalid job type",
			map[string]any{
				"provided": req.Type,
				"allowed":  config.AllowedJobTypes,
			},
		)
	}

	maxAttempts := req.MaxAttempts
	if maxAttempts == 0 {
		maxAttempts = 3
	}

	job := models.Job{
		Queue:       req.Queue,
		Type:        req.Type,
		Payload:     datatypes.JSON(req.Payload),
		MaxAttempts: maxAttempts,
	}
	if req.DelayMs > 0 {
		job.ScheduledAt = time.Now().Add(time.Duration(req.DelayMs) * time.Millisecond)
	}

	if err := s.repo.Create(ctx, &job); err != nil {
		switch {
		case errors.Is(err, context.Canceled):
			return common.Errf(http.StatusRequestTimeout, "request was canceled")
		case errors.Is(err, context.DeadlineExceeded):
			return common.Errf(http.StatusRequestTimeout, "request timeout")
		default:
			return common.Errf(http.StatusInternalServerError, "failed to add job to database")
		}
	}

	return nil
}

// GetJobByID retrieves a job by its ID and maps repository errors to API
// errors (not found, timeout, internal failure).
func (s *JobService) GetJobByID(ctx context.Context, id uint) (*dto.JobResponseDTO, error) {
	if err := ctx.Err(); err != nil {
		return nil, common.Errf(http.StatusRequestTimeout, "request timed out")
	}

	job, err := s.repo.Get(ctx, id)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
			return nil, common.Errf(http.StatusRequestTimeout, "request timed out")
		}
		if errors.Is(err, gorm.ErrRecordNotFound) || strings.Contains(err.Error(), "job not found") {
			return nil, common.NotFound("job")
		}
		return nil, common.Errf(http.StatusInternalServerError, "failed to get job")
	}

	resp := toJobResponse(job)
	return &resp, nil
}

// ListJobs retrieves all jobs belonging to a specific queue.
func (s *JobService) ListJobs(ctx context.Context, queue string) ([]dto.JobResponseDTO, error) {
	if err := ctx.Err(); err != nil {
		return nil, common.Errf(http.StatusRequestTimeout, "request timed out")
	}

	jobs, err := s.repo.List(ctx, queue)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
			return nil, common.Errf(http.StatusRequestTimeout, "request timed out")
		}
		return nil, common.Errf(http.StatusInternalServerError, "failed to list jobs")
	}

	dtos := make([]dto.JobResponseDTO, len(jobs))
	for i := range jobs {
		dtos[i] = toJobResponse(&jobs[i])
	}
	return dtos, nil
}

// RetryJob is the manual remediation path: the job re-enters the eligible
// pool with a fresh attempt budget.
func (s *JobService) RetryJob(ctx context.Context, id uint) error {
	if err := ctx.Err(); err != nil {
		return common.Errf(http.StatusRequestTimeout, "request timed out")
	}

	if err := s.repo.ResetForRetry(ctx, id); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return common.NotFound("job")
		}
		return common.Errf(http.StatusInternalServerError, "failed to retry job")
	}
	return nil
}

// QueueStats returns per-status job counts for one queue.
func (s *JobService) QueueStats(ctx context.Context, queue string) (*dto.QueueStatsDTO, error) {
	if err := ctx.Err(); err != nil {
		return nil, common.Errf(http.StatusRequestTimeout, "request timed out")
	}

	counts, err := s.repo.CountByStatus(ctx, queue)
	if err != nil {
		return nil, common.Errf(http.StatusInternalServerError, "failed to count jobs")
	}
	return &dto.QueueStatsDTO{Queue: queue, Counts: counts}, nil
}

func toJobResponse(job *models.Job) dto.JobResponseDTO {
	return dto.JobResponseDTO{
		ID:          job.ID,
		Queue:       job.Queue,
		Type:        job.Type,
		Payload:     json.RawMessage(job.Payload),
		Status:      job.Status,
		Attempts:    job.Attempts,
		MaxAttempts: job.MaxAttempts,
		ScheduledAt: job.ScheduledAt,
		NextRetryAt: job.NextRetryAt,
		Result:      json.RawMessage(job.Result),
		Error:       job.Error,
		StartedAt:   job.StartedAt,
		CompletedAt: job.CompletedAt,
		CreatedAt:   job.CreatedAt,
		UpdatedAt:   job.UpdatedAt,
	}
}
