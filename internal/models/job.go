package models

import (
	"time"

	"gorm.io/datatypes"
)

type Job struct {
	ID          uint           `gorm:"primaryKey;autoIncrement"`
	Queue       string         `gorm:"type:varchar(255);not null;index"`
	Type        string         `gorm:"type:varchar(255);not null"`
	Payload     datatypes.JSON `gorm:"type:jsonb"`
	Status      string         `gorm:"type:varchar(50);not null;default:'pending';index"`
	Attempts    int            `gorm:"default:0;not null"`
	MaxAttempts int            `gorm:"default:3"`
	ScheduledAt time.Time      `gorm:"index"`
	NextRetryAt *time.Time
	Result      datatypes.JSON `gorm:"type:jsonb"`
	Error       string         `gorm:"type:text"`
	StartedAt   *time.Time
	CompletedAt *time.Time
	CreatedAt   time.Time `gorm:"autoCreateTime"`
	UpdatedAt   time.Time `gorm:"autoUpdateTime"`
}

// Eligible reports whether the job can be claimed at the given instant:
// pending or retry, past its scheduled time, and past its retry gate.
func (j *Job) Eligible(now time.Time) bool {
	if j.Status != "pending" && j.Status != "retry" {
		return false
	}
	if j.ScheduledAt.After(now) {
		return false
	}
	if j.NextRetryAt != nil && j.NextRetryAt.After(now) {
		return false
	}
	return true
}
