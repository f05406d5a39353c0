package schedule

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/announcehq/broadcastq/common"
	"github.com/announcehq/broadcastq/internal/config"
	"github.com/announcehq/broadcastq/internal/dto"
	"github.com/announcehq/broadcastq/internal/models"
)

// AdminStore is the schedule persistence surface of the admin service.
type AdminStore interface {
	Create(ctx context.Context, s *models.Schedule) error
	Get(ctx context.Context, id uint) (*models.Schedule, error)
	Cancel(ctx context.Context, id uint) error
}

type Service struct {
	schedules AdminStore
}

func NewService(schedules AdminStore) *Service {
	return &Service{schedules: schedules}
}

// CreateSchedule validates the recurrence rule and persists the schedule,
// armed for its first run.
func (s *Service) CreateSchedule(ctx context.Context, req *dto.ScheduleCreateDTO) (*dto.ScheduleResponseDTO, error) {
	if err := ctx.Err(); err != nil {
		return nil, common.Errf(http.StatusRequestTimeout, "request canceled or timed out")
	}

	if err := ValidatePattern(req.Pattern, req.CronExpr); err != nil {
		return nil, common.Errf(http.StatusBadRequest, "invalid recurrence: %v", err)
	}
	if req.EndDate != nil && req.EndDate.Before(req.FirstRunAt) {
		return nil, common.Errf(http.StatusBadRequest, "end_date precedes first_run_at")
	}

	content, err := json.Marshal(req.Content)
	if err != nil {
		return nil, common.Errf(http.StatusBadRequest, "invalid content")
	}

	sched := &models.Schedule{
		Content:         datatypes.JSON(content),
		TargetSpec:      datatypes.JSON(req.TargetSpec),
		MediaRef:        req.MediaRef,
		Pattern:         req.Pattern,
		CronExpr:        req.CronExpr,
		EndDate:         req.EndDate,
		MaxOccurrences:  req.MaxOccurrences,
		NextExecutionAt: req.FirstRunAt,
		Status:          config.ScheduleStatusScheduled,
	}
	if err := s.schedules.Create(ctx, sched); err != nil {
		return nil, common.Errf(http.StatusInternalServerError, "failed to create schedule")
	}

	return toScheduleResponse(sched), nil
}

func (s *Service) GetSchedule(ctx context.Context, id uint) (*dto.ScheduleResponseDTO, error) {
	sched, err := s.schedules.Get(ctx, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, common.NotFound("schedule")
		}
		return nil, common.Errf(http.StatusInternalServerError, "failed to get schedule")
	}
	return toScheduleResponse(sched), nil
}

func (s *Service) CancelSchedule(ctx context.Context, id uint) error {
	if err := s.schedules.Cancel(ctx, id); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return common.Errf(http.StatusConflict, "schedule cannot be cancelled")
		}
		return common.Errf(http.StatusInternalServerError, "failed to cancel schedule")
	}
	return nil
}

func toScheduleResponse(s *models.Schedule) *dto.ScheduleResponseDTO {
	content := map[string]string{}
	if len(s.Content) > 0 {
		_ = json.Unmarshal(s.Content, &content)
	}
	return &dto.ScheduleResponseDTO{
		ID:                s.ID,
		Content:           content,
		Pattern:           s.Pattern,
		CronExpr:          s.CronExpr,
		EndDate:           s.EndDate,
		MaxOccurrences:    s.MaxOccurrences,
		CurrentOccurrence: s.CurrentOccurrence,
		NextExecutionAt:   s.NextExecutionAt,
		Status:            s.Status,
		CreatedAt:         s.CreatedAt,
	}
}
