package schedule

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/datatypes"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/announcehq/broadcastq/internal/config"
	"github.com/announcehq/broadcastq/internal/models"
	"github.com/announcehq/broadcastq/internal/storage/postgres"
)

type schedulerFixture struct {
	db         *gorm.DB
	schedules  *postgres.ScheduleRepository
	broadcasts *postgres.BroadcastRepository
	jobs       *postgres.JobRepository
	scheduler  *Scheduler
}

func setupScheduler(t *testing.T) *schedulerFixture {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&models.Job{}, &models.Broadcast{}, &models.Schedule{}))

	f := &schedulerFixture{
		db:         db,
		schedules:  postgres.NewScheduleRepository(db),
		broadcasts: postgres.NewBroadcastRepository(db),
		jobs:       postgres.NewJobRepository(db),
	}
	f.scheduler = NewScheduler(SchedulerConfig{}, f.schedules, f.broadcasts, f.jobs, zerolog.Nop())
	return f
}

func TestScheduler_RunOnce_FiresDueSchedule(t *testing.T) {
	f := setupScheduler(t)
	ctx := context.Background()

	sched := &models.Schedule{
		Content:         datatypes.JSON(`{"en":"weekly digest"}`),
		TargetSpec:      datatypes.JSON(`{"tiers":["pro"]}`),
		Pattern:         config.RecurrenceWeekly,
		NextExecutionAt: time.Now().Add(-time.Minute),
	}
	require.NoError(t, f.schedules.Create(ctx, sched))

	require.NoError(t, f.scheduler.RunOnce(ctx))

	// One broadcast materialized from the template.
	var broadcasts []models.Broadcast
	require.NoError(t, f.db.Find(&broadcasts).Error)
	require.Len(t, broadcasts, 1)
	assert.JSONEq(t, `{"en":"weekly digest"}`, string(broadcasts[0].Content))
	assert.JSONEq(t, `{"tiers":["pro"]}`, string(broadcasts[0].TargetSpec))
	assert.Equal(t, config.BroadcastStatusPending, broadcasts[0].Status)

	// One dispatch job pointing at it.
	var jobs []models.Job
	require.NoError(t, f.db.Find(&jobs).Error)
	require.Len(t, jobs, 1)
	assert.Equal(t, config.QueueBroadcasts, jobs[0].Queue)
	assert.Equal(t, config.JobTypeBroadcastSend, jobs[0].Type)
	assert.JSONEq(t, `{"broadcast_id":"`+broadcasts[0].ID+`"}`, string(jobs[0].Payload))

	// The schedule advanced one occurrence, one week out.
	saved, err := f.schedules.Get(ctx, sched.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, saved.CurrentOccurrence)
	assert.Equal(t, config.ScheduleStatusScheduled, saved.Status)
	assert.WithinDuration(t, sched.NextExecutionAt.AddDate(0, 0, 7), saved.NextExecutionAt, time.Second)
}

func TestScheduler_RunOnce_IgnoresNotDue(t *testing.T) {
	f := setupScheduler(t)
	ctx := context.Background()

	sched := &models.Schedule{
		Content:         datatypes.JSON(`{"en":"later"}`),
		Pattern:         config.RecurrenceDaily,
		NextExecutionAt: time.Now().Add(time.Hour),
	}
	require.NoError(t, f.schedules.Create(ctx, sched))

	require.NoError(t, f.scheduler.RunOnce(ctx))

	var count int64
	require.NoError(t, f.db.Model(&models.Broadcast{}).Count(&count).Error)
	assert.Zero(t, count)
}

func TestScheduler_RunOnce_CompletesExhaustedSeries(t *testing.T) {
	f := setupScheduler(t)
	ctx := context.Background()

	// Final occurrence: 2 of 3 already fired.
	sched := &models.Schedule{
		Content:           datatypes.JSON(`{"en":"last one"}`),
		Pattern:           config.RecurrenceDaily,
		MaxOccurrences:    3,
		CurrentOccurrence: 2,
		NextExecutionAt:   time.Now().Add(-time.Minute),
	}
	require.NoError(t, f.schedules.Create(ctx, sched))

	require.NoError(t, f.scheduler.RunOnce(ctx))

	// The final broadcast still goes out before the series completes.
	var count int64
	require.NoError(t, f.db.Model(&models.Broadcast{}).Count(&count).Error)
	assert.Equal(t, int64(1), count)

	saved, err := f.schedules.Get(ctx, sched.ID)
	require.NoError(t, err)
	assert.Equal(t, config.ScheduleStatusCompleted, saved.Status)
	assert.Equal(t, 3, saved.CurrentOccurrence)

	// A later scan finds nothing due.
	require.NoError(t, f.scheduler.RunOnce(ctx))
	require.NoError(t, f.db.Model(&models.Broadcast{}).Count(&count).Error)
	assert.Equal(t, int64(1), count)
}

func TestScheduler_RunOnce_EndDateCompletesSeries(t *testing.T) {
	f := setupScheduler(t)
	ctx := context.Background()

	end := time.Now().Add(time.Hour)
	sched := &models.Schedule{
		Content:         datatypes.JSON(`{"en":"expiring"}`),
		Pattern:         config.RecurrenceDaily,
		EndDate:         &end,
		NextExecutionAt: time.Now().Add(-time.Minute),
	}
	require.NoError(t, f.schedules.Create(ctx, sched))

	require.NoError(t, f.scheduler.RunOnce(ctx))

	// Tomorrow's candidate falls past the end date, so the series is done
	// after this firing.
	saved, err := f.schedules.Get(ctx, sched.ID)
	require.NoError(t, err)
	assert.Equal(t, config.ScheduleStatusCompleted, saved.Status)
	assert.Equal(t, 1, saved.CurrentOccurrence)
}
