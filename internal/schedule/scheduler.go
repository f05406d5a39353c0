package schedule

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/announcehq/broadcastq/internal/config"
	"github.com/announcehq/broadcastq/internal/models"
)

type SchedulerConfig struct {
	ScanInterval time.Duration `env:"SCHEDULER_SCAN_INTERVAL,default=1m"`
}

// ScheduleStore is the persistence surface of the scheduler, which
// exclusively owns schedule rows.
type ScheduleStore interface {
	ListDue(ctx context.Context, now time.Time) ([]models.Schedule, error)
	Advance(ctx context.Context, id uint, occurrence int, next time.Time) error
	Complete(ctx context.Context, id uint, occurrence int) error
}

type BroadcastCreator interface {
	Create(ctx context.Context, b *models.Broadcast) error
}

type JobEnqueuer interface {
	Create(ctx context.Context, job *models.Job) error
}

// Scheduler periodically materializes due schedules: each firing becomes a
// fresh broadcast row plus a queued broadcast job, then the schedule either
// advances to its next execution or completes.
type Scheduler struct {
	cfg        SchedulerConfig
	schedules  ScheduleStore
	broadcasts BroadcastCreator
	jobs       JobEnqueuer
	log        zerolog.Logger
}

func NewScheduler(cfg SchedulerConfig, schedules ScheduleStore, broadcasts BroadcastCreator, jobs JobEnqueuer, log zerolog.Logger) *Scheduler {
	if cfg.ScanInterval <= 0 {
		cfg.ScanInterval = time.Minute
	}
	return &Scheduler{
		cfg:        cfg,
		schedules:  schedules,
		broadcasts: broadcasts,
		jobs:       jobs,
		log:        log.With().Str("component", "scheduler").Logger(),
	}
}

func (s *Scheduler) Start(ctx context.Context) {
	go func() {
		ticker := time.NewTicker(s.cfg.ScanInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if err := s.RunOnce(ctx); err != nil && ctx.Err() == nil {
					s.log.Error().Err(err).Msg("schedule scan failed")
				}
			}
		}
	}()
	s.log.Info().Dur("scan_interval", s.cfg.ScanInterval).Msg("scheduler started")
}

// RunOnce fires every due schedule exactly once.
func (s *Scheduler) RunOnce(ctx context.Context) error {
	due, err := s.schedules.ListDue(ctx, time.Now())
	if err != nil {
		return err
	}

	for i := range due {
		if err := s.fire(ctx, &due[i]); err != nil {
			s.log.Error().Err(err).Uint("schedule", due[i].ID).Msg("schedule firing failed")
		}
	}
	return nil
}

func (s *Scheduler) fire(ctx context.Context, sched *models.Schedule) error {
	b := &models.Broadcast{
		ID:         uuid.NewString(),
		Content:    sched.Content,
		TargetSpec: sched.TargetSpec,
		MediaRef:   sched.MediaRef,
		Status:     config.BroadcastStatusPending,
	}
	if err := s.broadcasts.Create(ctx, b); err != nil {
		return fmt.Errorf("create broadcast from schedule: %w", err)
	}

	payload, err := json.Marshal(map[string]string{"broadcast_id": b.ID})
	if err != nil {
		return fmt.Errorf("encode broadcast payload: %w", err)
	}
	job := &models.Job{
		Queue:   config.QueueBroadcasts,
		Type:    config.JobTypeBroadcastSend,
		Payload: payload,
	}
	if err := s.jobs.Create(ctx, job); err != nil {
		return fmt.Errorf("enqueue broadcast job: %w", err)
	}

	occurrence := sched.CurrentOccurrence + 1
	sched.CurrentOccurrence = occurrence
	next, err := NextExecution(sched)
	if err != nil {
		return err
	}
	if next == nil {
		s.log.Info().Uint("schedule", sched.ID).Int("occurrence", occurrence).Msg("schedule series completed")
		return s.schedules.Complete(ctx, sched.ID, occurrence)
	}

	s.log.Info().
		Uint("schedule", sched.ID).
		Int("occurrence", occurrence).
		Time("next", *next).
		Str("broadcast", b.ID).
		Msg("schedule fired")
	return s.schedules.Advance(ctx, sched.ID, occurrence, *next)
}
