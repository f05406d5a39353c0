// Package schedule computes recurring broadcast executions and enqueues
// the due ones.
package schedule

import (
	"fmt"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/announcehq/broadcastq/internal/config"
	"github.com/announcehq/broadcastq/internal/models"
)

// NextExecution computes when a schedule fires next, or nil when the series
// is over: occurrences exhausted, or the candidate time past the end date.
// Daily/weekly/monthly step in calendar units from the current execution
// time; custom patterns evaluate the schedule's cron expression.
func NextExecution(s *models.Schedule) (*time.Time, error) {
	if s.MaxOccurrences > 0 && s.CurrentOccurrence >= s.MaxOccurrences {
		return nil, nil
	}

	var candidate time.Time
	switch s.Pattern {
	case config.RecurrenceDaily:
		candidate = s.NextExecutionAt.AddDate(0, 0, 1)
	case config.RecurrenceWeekly:
		candidate = s.NextExecutionAt.AddDate(0, 0, 7)
	case config.RecurrenceMonthly:
		candidate = s.NextExecutionAt.AddDate(0, 1, 0)
	case config.RecurrenceCustom:
		spec, err := cron.ParseStandard(s.CronExpr)
		if err != nil {
			return nil, fmt.Errorf("parse cron expression %q: %w", s.CronExpr, err)
		}
		candidate = spec.Next(s.NextExecutionAt)
	default:
		return nil, fmt.Errorf("unknown recurrence pattern %q", s.Pattern)
	}

	if s.EndDate != nil && candidate.After(*s.EndDate) {
		return nil, nil
	}
	return &candidate, nil
}

// ValidatePattern checks a pattern/cron pair without needing a schedule row.
func ValidatePattern(pattern, cronExpr string) error {
	switch pattern {
	case config.RecurrenceDaily, config.RecurrenceWeekly, config.RecurrenceMonthly:
		return nil
	case config.RecurrenceCustom:
		if _, err := cron.ParseStandard(cronExpr); err != nil {
			return fmt.Errorf("parse cron expression %q: %w", cronExpr, err)
		}
		return nil
	default:
		return fmt.Errorf("unknown recurrence pattern %q", pattern)
	}
}
