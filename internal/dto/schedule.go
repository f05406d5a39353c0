package dto

import (
	"encoding/json"
	"time"
)

type ScheduleCreateDTO struct {
	Content        map[string]string `json:"content" validate:"required,min=1"`
	TargetSpec     json.RawMessage   `json:"target_spec"`
	MediaRef       string            `json:"media_ref"`
	Pattern        string            `json:"pattern" validate:"required,oneof=daily weekly monthly custom"`
	CronExpr       string            `json:"cron_expression" validate:"required_if=Pattern custom"`
	FirstRunAt     time.Time         `json:"first_run_at" validate:"required"`
	EndDate        *time.Time        `json:"end_date,omitempty"`
	MaxOccurrences int               `json:"max_occurrences" validate:"gte=0"`
}

type ScheduleResponseDTO struct {
	ID                uint              `json:"id"`
	Content           map[string]string `json:"content"`
	Pattern           string            `json:"pattern"`
	CronExpr          string            `json:"cron_expression,omitempty"`
	EndDate           *time.Time        `json:"end_date,omitempty"`
	MaxOccurrences    int               `json:"max_occurrences"`
	CurrentOccurrence int               `json:"current_occurrence"`
	NextExecutionAt   time.Time         `json:"next_execution_at"`
	Status            string            `json:"status"`
	CreatedAt         time.Time         `json:"created_at"`
}
