package dto

import (
	"encoding/json"
	"time"
)

type BroadcastCreateDTO struct {
	Content    map[string]string `json:"content" validate:"required,min=1"`
	TargetSpec json.RawMessage   `json:"target_spec"`
	MediaRef   string            `json:"media_ref"`
}

type BroadcastResponseDTO struct {
	ID         string            `json:"id"`
	Content    map[string]string `json:"content"`
	TargetSpec json.RawMessage   `json:"target_spec,omitempty"`
	MediaRef   string            `json:"media_ref,omitempty"`
	Status     string            `json:"status"`

	TotalRecipients  int `json:"total_recipients"`
	SentCount        int `json:"sent_count"`
	FailedCount      int `json:"failed_count"`
	BlockedCount     int `json:"blocked_count"`
	DeactivatedCount int `json:"deactivated_count"`
	ErrorCount       int `json:"error_count"`
	Progress         int `json:"progress_percentage"`

	StartedAt   *time.Time `json:"started_at,omitempty"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
}

type RecipientResponseDTO struct {
	RecipientID  int64      `json:"recipient_id"`
	Status       string     `json:"status"`
	MessageID    string     `json:"message_id,omitempty"`
	ErrorCode    int        `json:"error_code,omitempty"`
	ErrorMessage string     `json:"error_message,omitempty"`
	SentAt       *time.Time `json:"sent_at,omitempty"`
}
