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

type BroadcastRepository struct {
	db *gorm.DB
}

func NewBroadcastRepository(db *gorm.DB) *BroadcastRepository {
	return &BroadcastRepository{db: db}
}

func (r *BroadcastRepository) Create(ctx context.Context, b *models.Broadcast) error {
	if b.Status == "" {
		b.Status = config.BroadcastStatusPending
	}
	if err := r.db.WithContext(ctx).Create(b).Error; err != nil {
		return fmt.Errorf("create broadcast: %w", err)
	}
	return nil
}

func (r *BroadcastRepository) Get(ctx context.Context, id string) (*models.Broadcast, error) {
	var b models.Broadcast
	if err := r.db.WithContext(ctx).First(&b, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("broadcast not found: %w", err)
		}
		return nil, fmt.Errorf("get broadcast: %w", err)
	}
	return &b, nil
}

// GetStatus re-reads just the status column. The dispatch loop polls this
// at a fixed recipient interval to observe cooperative cancellation.
func (r *BroadcastRepository) GetStatus(ctx context.Context, id string) (string, error) {
	var status string
	if err := r.db.WithContext(ctx).Model(&models.Broadcast{}).
		Where("id = ?", id).
		Pluck("status", &status).Error; err != nil {
		return "", fmt.Errorf("get broadcast status: %w", err)
	}
	if status == "" {
		return "", fmt.Errorf("broadcast not found: %w", gorm.ErrRecordNotFound)
	}
	return status, nil
}

// MarkSending is the dispatch idempotency guard: a conditional transition
// from pending/scheduled to sending. RowsAffected==0 means another run (or
// a retried duplicate job) already owns or finished this broadcast, and the
// caller must return the stored counters without re-sending.
func (r *BroadcastRepository) MarkSending(ctx context.Context, id string) (bool, error) {
	now := time.Now()
	res := r.db.WithContext(ctx).Model(&models.Broadcast{}).
		Where("id = ?", id).
		Where("status IN ?", []string{config.BroadcastStatusPending, config.BroadcastStatusScheduled}).
		Updates(map[string]any{
			"status":     config.BroadcastStatusSending,
			"started_at": now,
		})
	if res.Error != nil {
		return false, fmt.Errorf("mark sending: %w", res.Error)
	}
	return res.RowsAffected == 1, nil
}

// SetTotalRecipients persists the audience size before the send loop starts,
// so observers see an accurate denominator while the broadcast is in flight.
func (r *BroadcastRepository) SetTotalRecipients(ctx context.Context, id string, total int) error {
	if err := r.db.WithContext(ctx).Model(&models.Broadcast{}).
		Where("id = ?", id).
		Update("total_recipients", total).Error; err != nil {
		return fmt.Errorf("set total recipients: %w", err)
	}
	return nil
}

// FlushCounters writes the in-memory aggregate counters. Called at a fixed
// interval during the loop rather than per recipient, to bound write
// amplification.
func (r *BroadcastRepository) FlushCounters(ctx context.Context, id string, c models.Counters) error {
	if err := r.db.WithContext(ctx).Model(&models.Broadcast{}).
		Where("id = ?", id).
		Updates(map[string]any{
			"sent_count":        c.SentCount,
			"failed_count":      c.FailedCount,
			"blocked_count":     c.BlockedCount,
			"deactivated_count": c.DeactivatedCount,
			"error_count":       c.ErrorCount,
			"progress":          c.Progress,
		}).Error; err != nil {
		return fmt.Errorf("flush counters: %w", err)
	}
	return nil
}

// MarkCompleted finishes a broadcast, but only if it is still sending; a
// broadcast cancelled mid-loop stays cancelled.
func (r *BroadcastRepository) MarkCompleted(ctx context.Context, id string) error {
	now := time.Now()
	if err := r.db.WithContext(ctx).Model(&models.Broadcast{}).
		Where("id = ?", id).
		Where("status = ?", config.BroadcastStatusSending).
		Updates(map[string]any{
			"status":       config.BroadcastStatusCompleted,
			"completed_at": now,
		}).Error; err != nil {
		return fmt.Errorf("mark completed: %w", err)
	}
	return nil
}

func (r *BroadcastRepository) MarkFailed(ctx context.Context, id string) error {
	if err := r.db.WithContext(ctx).Model(&models.Broadcast{}).
		Where("id = ?", id).
		Update("status", config.BroadcastStatusFailed).Error; err != nil {
		return fmt.Errorf("mark broadcast failed: %w", err)
	}
	return nil
}

// Cancel flips a broadcast to cancelled. The in-flight loop observes the
// flag cooperatively; already-sent recipients are preserved.
func (r *BroadcastRepository) Cancel(ctx context.Context, id string) error {
	res := r.db.WithContext(ctx).Model(&models.Broadcast{}).
		Where("id = ?", id).
		Where("status IN ?", []string{
			config.BroadcastStatusPending,
			config.BroadcastStatusScheduled,
			config.BroadcastStatusSending,
		}).
		Update("status", config.BroadcastStatusCancelled)
	if res.Error != nil {
		return fmt.Errorf("cancel broadcast: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("broadcast not cancellable: %w", gorm.ErrRecordNotFound)
	}
	return nil
}
