package models

import (
	"time"

	"gorm.io/datatypes"
)

// Schedule drives recurring broadcasts. It owns the broadcast template
// (content and target spec) and its own occurrence bookkeeping.
type Schedule struct {
	ID         uint           `gorm:"primaryKey;autoIncrement"`
	Content    datatypes.JSON `gorm:"type:jsonb"`
	TargetSpec datatypes.JSON `gorm:"type:jsonb"`
	MediaRef   string         `gorm:"type:text"`

	Pattern           string `gorm:"type:varchar(50);not null"`
	CronExpr          string `gorm:"type:varchar(255)"`
	EndDate           *time.Time
	MaxOccurrences    int       `gorm:"default:0;not null"`
	CurrentOccurrence int       `gorm:"default:0;not null"`
	NextExecutionAt   time.Time `gorm:"index"`
	Status            string    `gorm:"type:varchar(50);not null;default:'scheduled';index"`

	CreatedAt time.Time `gorm:"autoCreateTime"`
	UpdatedAt time.Time `gorm:"autoUpdateTime"`
}
