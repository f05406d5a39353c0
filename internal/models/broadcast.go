package models

import (
	"time"

	"gorm.io/datatypes"
)

type Broadcast struct {
	ID         string         `gorm:"type:varchar(36);primaryKey"`
	Content    datatypes.JSON `gorm:"type:jsonb"`
	TargetSpec datatypes.JSON `gorm:"type:jsonb"`
	MediaRef   string         `gorm:"type:text"`
	Status     string         `gorm:"type:varchar(50);not null;default:'pending';index"`

	TotalRecipients  int `gorm:"default:0;not null"`
	SentCount        int `gorm:"default:0;not null"`
	FailedCount      int `gorm:"default:0;not null"`
	BlockedCount     int `gorm:"default:0;not null"`
	DeactivatedCount int `gorm:"default:0;not null"`
	ErrorCount       int `gorm:"default:0;not null"`
	Progress         int `gorm:"default:0;not null"`

	StartedAt   *time.Time
	CompletedAt *time.Time
	CreatedAt   time.Time `gorm:"autoCreateTime"`
	UpdatedAt   time.Time `gorm:"autoUpdateTime"`
}

// Counters is the aggregate delivery outcome of a broadcast, flushed
// periodically during dispatch and returned unchanged on duplicate runs.
type Counters struct {
	TotalRecipients  int `json:"total_recipients"`
	SentCount        int `json:"sent_count"`
	FailedCount      int `json:"failed_count"`
	BlockedCount     int `json:"blocked_count"`
	DeactivatedCount int `json:"deactivated_count"`
	ErrorCount       int `json:"error_count"`
	Progress         int `json:"progress_percentage"`
}

func (b *Broadcast) Counters() Counters {
	return Counters{
		TotalRecipients:  b.TotalRecipients,
		SentCount:        b.SentCount,
		FailedCount:      b.FailedCount,
		BlockedCount:     b.BlockedCount,
		DeactivatedCount: b.DeactivatedCount,
		ErrorCount:       b.ErrorCount,
		Progress:         b.Progress,
	}
}
