package dto

import (
	"encoding/json"
	"time"
)

type JobCreateDTO struct {
	Queue       string          `json:"queue" validate:"required"`
	Type        string          `json:"type" validate:"required"`
	Payload     json.RawMessage `json:"payload" validate:"required"`
	MaxAttempts int             `json:"max_attempts" validate:"gte=0,lte=20"`
	DelayMs     int             `json:"delay_ms" validate:"gte=0"`
}

type JobResponseDTO struct {
	ID          uint            `json:"id"`
	Queue       string          `json:"queue"`
	Type        string          `json:"type"`
	Payload     json.RawMessage `json:"payload"`
	Status      string          `json:"status"`
	Attempts    int             `json:"attempts"`
	MaxAttempts int             `json:"max_attempts"`
	ScheduledAt time.Time       `json:"scheduled_at"`
	NextRetryAt *time.Time      `json:"next_retry_at,omitempty"`
	Result      json.RawMessage `json:"result,omitempty"`
	Error       string          `json:"error,omitempty"`
	StartedAt   *time.Time      `json:"started_at,omitempty"`
	CompletedAt *time.Time      `json:"completed_at,omitempty"`
	CreatedAt   time.Time       `json:"created_at"`
	UpdatedAt   time.Time       `json:"updated_at"`
}

type QueueStatsDTO struct {
	Queue  string           `json:"queue"`
	Counts map[string]int64 `json:"counts"`
}
