package broadcast

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/announcehq/broadcastq/common"
	"github.com/announcehq/broadcastq/internal/config"
	"github.com/announcehq/broadcastq/internal/dto"
	"github.com/announcehq/broadcastq/internal/models"
)

// AdminStore is the broadcast persistence surface of the admin service.
type AdminStore interface {
	Create(ctx context.Context, b *models.Broadcast) error
	Get(ctx context.Context, id string) (*models.Broadcast, error)
	Cancel(ctx context.Context, id string) error
}

// RecipientReader exposes the ledger for remediation queries.
type RecipientReader interface {
	ListByBroadcast(ctx context.Context, broadcastID, status string) ([]models.Recipient, error)
}

// Enqueuer queues the dispatch job for a created broadcast.
type Enqueuer interface {
	Create(ctx context.Context, job *models.Job) error
}

// Service is the thin administrative layer over broadcasts: create (which
// enqueues the dispatch job), cancel, and inspect.
type Service struct {
	broadcasts AdminStore
	recipients RecipientReader
	jobs       Enqueuer
}

func NewService(broadcasts AdminStore, recipients RecipientReader, jobs Enqueuer) *Service {
	return &Service{broadcasts: broadcasts, recipients: recipients, jobs: jobs}
}

// CreateBroadcast persists the broadcast and enqueues its dispatch job.
func (s *Service) CreateBroadcast(ctx context.Context, req *dto.BroadcastCreateDTO) (*dto.BroadcastResponseDTO, error) {
	if err := ctx.Err(); err != nil {
		return nil, common.Errf(http.StatusRequestTimeout, "request canceled or timed out")
	}

	for locale, text := range req.Content {
		if strings.TrimSpace(text) == "" {
			return nil, common.Errf(http.StatusBadRequest, "empty content for locale %q", locale)
		}
	}
	if len(req.TargetSpec) > 0 {
		var spec TargetSpec
		if err := json.Unmarshal(req.TargetSpec, &spec); err != nil {
			return nil, common.Errf(http.StatusBadRequest, "invalid target spec")
		}
	}

	content, err := json.Marshal(req.Content)
	if err != nil {
		return nil, common.Errf(http.StatusBadRequest, "invalid content")
	}

	b := &models.Broadcast{
		ID:         uuid.NewString(),
		Content:    datatypes.JSON(content),
		TargetSpec: datatypes.JSON(req.TargetSpec),
		MediaRef:   req.MediaRef,
		Status:     config.BroadcastStatusPending,
	}
	if err := s.broadcasts.Create(ctx, b); err != nil {
		return nil, common.Errf(http.StatusInternalServerError, "failed to create broadcast")
	}

	payload, _ := json.Marshal(SendPayload{BroadcastID: b.ID})
	job := &models.Job{
		Queue:   config.QueueBroadcasts,
		Type:    config.JobTypeBroadcastSend,
		Payload: payload,
	}
	if err := s.jobs.Create(ctx, job); err != nil {
		return nil, common.Errf(http.StatusInternalServerError, "failed to enqueue broadcast job")
	}

	return toBroadcastResponse(b), nil
}

// GetBroadcast returns the broadcast with its aggregate counters.
func (s *Service) GetBroadcast(ctx context.Context, id string) (*dto.BroadcastResponseDTO, error) {
	b, err := s.broadcasts.Get(ctx, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, common.NotFound("broadcast")
		}
		return nil, common.Errf(http.StatusInternalServerError, "failed to get broadcast")
	}
	return toBroadcastResponse(b), nil
}

// CancelBroadcast flips the stored status; the in-flight dispatch loop
// observes it cooperatively.
func (s *Service) CancelBroadcast(ctx context.Context, id string) error {
	if err := s.broadcasts.Cancel(ctx, id); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return common.Errf(http.StatusConflict, "broadcast cannot be cancelled")
		}
		return common.Errf(http.StatusInternalServerError, "failed to cancel broadcast")
	}
	return nil
}

// ListRecipients returns ledger rows, optionally filtered by status.
func (s *Service) ListRecipients(ctx context.Context, broadcastID, status string) ([]dto.RecipientResponseDTO, error) {
	recs, err := s.recipients.ListByBroadcast(ctx, broadcastID, status)
	if err != nil {
		return nil, common.Errf(http.StatusInternalServerError, "failed to list recipients")
	}
	out := make([]dto.RecipientResponseDTO, len(recs))
	for i, r := range recs {
		out[i] = dto.RecipientResponseDTO{
			RecipientID:  r.RecipientID,
			Status:       r.Status,
			MessageID:    r.MessageID,
			ErrorCode:    r.ErrorCode,
			ErrorMessage: r.ErrorMessage,
			SentAt:       r.SentAt,
		}
	}
	return out, nil
}

func toBroadcastResponse(b *models.Broadcast) *dto.BroadcastResponseDTO {
	content := map[string]string{}
	if len(b.Content) > 0 {
		_ = json.Unmarshal(b.Content, &content)
	}
	return &dto.BroadcastResponseDTO{
		ID:               b.ID,
		Content:          content,
		TargetSpec:       json.RawMessage(b.TargetSpec),
		MediaRef:         b.MediaRef,
		Status:           b.Status,
		TotalRecipients:  b.TotalRecipients,
		SentCount:        b.SentCount,
		FailedCount:      b.FailedCount,
		BlockedCount:     b.BlockedCount,
		DeactivatedCount: b.DeactivatedCount,
		ErrorCount:       b.ErrorCount,
		Progress:         b.Progress,
		StartedAt:        b.StartedAt,
		CompletedAt:      b.CompletedAt,
		CreatedAt:        b.CreatedAt,
	}
}
