package queue

import (
	"context"
	"encoding/json"
	"time"

	"gorm.io/datatypes"

	"github.com/announcehq/broadcastq/internal/models"
)

// backoffDelay is the exponential schedule for the k-th retry:
// base, 2*base, 4*base, ...
func backoffDelay(base time.Duration, nextAttempt int) time.Duration {
	if nextAttempt < 1 {
		nextAttempt = 1
	}
	return base << (nextAttempt - 1)
}

// settle routes a finished attempt: success stores the result and completes
// the job; failure either schedules the next attempt with backoff or, once
// attempts are exhausted, fails the job terminally.
func (d *Dispatcher) settle(ctx context.Context, job models.Job, result any, procErr error) {
	if procErr == nil {
		var encoded datatypes.JSON
		if result != nil {
			if b, err := json.Marshal(result); err == nil {
				encoded = datatypes.JSON(b)
			} else {
				d.log.Warn().Err(err).Uint("job", job.ID).Msg("job result not serializable")
			}
		}
		if err := d.store.MarkCompleted(ctx, job.ID, encoded); err != nil {
			d.log.Error().Err(err).Uint("job", job.ID).Msg("mark completed failed")
		}
		return
	}

	nextAttempt := job.Attempts + 1
	if nextAttempt < job.MaxAttempts {
		delay := backoffDelay(d.cfg.RetryBaseDelay, nextAttempt)
		nextRetryAt := time.Now().Add(delay)
		d.log.Warn().
			Err(procErr).
			Uint("job", job.ID).
			Str("type", job.Type).
			Int("attempt", nextAttempt).
			Dur("retry_in", delay).
			Msg("job failed, retry scheduled")
		if err := d.store.RetryLater(ctx, job.ID, nextAttempt, nextRetryAt, procErr.Error()); err != nil {
			d.log.Error().Err(err).Uint("job", job.ID).Msg("retry scheduling failed")
		}
		return
	}

	d.log.Error().
		Err(procErr).
		Uint("job", job.ID).
		Str("type", job.Type).
		Int("attempts", nextAttempt).
		Msg("job failed terminally")
	if err := d.store.MarkFailed(ctx, job.ID, nextAttempt, procErr.Error()); err != nil {
		d.log.Error().Err(err).Uint("job", job.ID).Msg("mark failed failed")
	}
}
