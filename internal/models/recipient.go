package models

import "time"

// Recipient is one delivery record of a broadcast. The composite unique
// index makes re-processing after a crash an overwrite, not a duplicate.
type Recipient struct {
	ID           uint   `gorm:"primaryKey;autoIncrement"`
	BroadcastID  string `gorm:"type:varchar(36);not null;uniqueIndex:idx_broadcast_recipient"`
	RecipientID  int64  `gorm:"not null;uniqueIndex:idx_broadcast_recipient"`
	Status       string `gorm:"type:varchar(50);not null"`
	MessageID    string `gorm:"type:varchar(255)"`
	ErrorCode    int
	ErrorMessage string `gorm:"type:text"`
	SentAt       *time.Time
	CreatedAt    time.Time `gorm:"autoCreateTime"`
	UpdatedAt    time.Time `gorm:"autoUpdateTime"`
}
