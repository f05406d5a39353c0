package postgres

import (
	"context"
	"fmt"

	"github.com/announcehq/broadcastq/internal/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type RecipientRepository struct {
	db *gorm.DB
}

func NewRecipientRepository(db *gorm.DB) *RecipientRepository {
	return &RecipientRepository{db: db}
}

// Upsert records the delivery outcome for one (broadcast, recipient) pair.
// Conflicts on the composite key overwrite the previous row, which makes
// the per-recipient loop safely re-runnable after a crash.
func (r *RecipientRepository) Upsert(ctx context.Context, rec *models.Recipient) error {
	if err := r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "broadcast_id"}, {Name: "recipient_id"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"status", "message_id", "error_code", "error_message", "sent_at", "updated_at",
		}),
	}).Create(rec).Error; err != nil {
		return fmt.Errorf("upsert recipient: %w", err)
	}
	return nil
}

// ListByBroadcast returns the ledger rows for one broadcast, optionally
// filtered by status ("" means all). Used for manual remediation queries.
func (r *RecipientRepository) ListByBroadcast(ctx context.Context, broadcastID, status string) ([]models.Recipient, error) {
	q := r.db.WithContext(ctx).Where("broadcast_id = ?", broadcastID)
	if status != "" {
		q = q.Where("status = ?", status)
	}
	var recs []models.Recipient
	if err := q.Order("recipient_id asc").Find(&recs).Error; err != nil {
		return nil, fmt.Errorf("list recipients: %w", err)
	}
	return recs, nil
}

func (r *RecipientRepository) CountByBroadcast(ctx context.Context, broadcastID string) (int64, error) {
	var n int64
	if err := r.db.WithContext(ctx).Model(&models.Recipient{}).
		Where("broadcast_id = ?", broadcastID).
		Count(&n).Error; err != nil {
		return 0, fmt.Errorf("count recipients: %w", err)
	}
	return n, nil
}
