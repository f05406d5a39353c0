// Package queue drives the durable job queue: a polling dispatcher that
// claims persisted jobs under a concurrency budget, runs the processor
// registered for each job type, and applies exponential-backoff retries.
package queue

import (
	"context"
	"fmt"
	"runtime/debug"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"gorm.io/datatypes"

	"github.com/announcehq/broadcastq/internal/models"
)

// ProcessorFunc handles one job payload. A non-nil error counts as a
// failed attempt and goes through the backoff controller.
type ProcessorFunc func(ctx context.Context, payload datatypes.JSON) (any, error)

type Config struct {
	PollInterval   time.Duration `env:"QUEUE_POLL_INTERVAL,default=1s"`
	Concurrency    int           `env:"QUEUE_CONCURRENCY,default=2"`
	RetryBaseDelay time.Duration `env:"QUEUE_RETRY_BASE_DELAY,default=60s"`
	StuckTimeout   time.Duration `env:"QUEUE_STUCK_TIMEOUT,default=10m"`
	ReapInterval   time.Duration `env:"QUEUE_REAP_INTERVAL,default=30s"`
}

func (c *Config) normalize() {
	if c.PollInterval <= 0 {
		c.PollInterval = time.Second
	}
	if c.Concurrency <= 0 {
		c.Concurrency = 2
	}
	if c.StuckTimeout <= 0 {
		c.StuckTimeout = 10 * time.Minute
	}
	if c.ReapInterval <= 0 {
		c.ReapInterval = 30 * time.Second
	}
}

// JobStore is the persistence surface the dispatcher needs. The atomic
// Claim is what makes multiple dispatcher processes safe.
type JobStore interface {
	Claim(ctx context.Context, limit int) ([]models.Job, error)
	MarkCompleted(ctx context.Context, id uint, result datatypes.JSON) error
	RetryLater(ctx context.Context, id uint, attempts int, nextRetryAt time.Time, errMsg string) error
	MarkFailed(ctx context.Context, id uint, attempts int, errMsg string) error
	RequeueStuck(ctx context.Context, olderThan time.Duration) (int64, error)
}

type Dispatcher struct {
	cfg   Config
	store JobStore
	log   zerolog.Logger

	mu         sync.Mutex
	processors map[string]ProcessorFunc
	active     int

	wg sync.WaitGroup
}

func NewDispatcher(cfg Config, store JobStore, log zerolog.Logger) *Dispatcher {
	cfg.normalize()
	return &Dispatcher{
		cfg:        cfg,
		store:      store,
		log:        log.With().Str("component", "queue.dispatcher").Logger(),
		processors: map[string]ProcessorFunc{},
	}
}

// Register associates a job type with its processor. Claimed jobs of an
// unregistered type fail their attempt and retry like any other failure.
func (d *Dispatcher) Register(jobType string, fn ProcessorFunc) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.processors[jobType] = fn
}

// Start runs the poll loop and the stuck-job reaper until ctx is done.
func (d *Dispatcher) Start(ctx context.Context) {
	d.wg.Add(2)
	go func() {
		defer d.wg.Done()
		ticker := time.NewTicker(d.cfg.PollInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if err := d.RunOnce(ctx); err != nil && ctx.Err() == nil {
					d.log.Error().Err(err).Msg("poll cycle failed")
				}
			}
		}
	}()
	go func() {
		defer d.wg.Done()
		d.runReaper(ctx)
	}()
	d.log.Info().
		Dur("poll_interval", d.cfg.PollInterval).
		Int("concurrency", d.cfg.Concurrency).
		Msg("dispatcher started")
}

// Stop waits for the loops and all in-flight jobs to finish. Cancel the
// Start context first.
func (d *Dispatcher) Stop() {
	d.wg.Wait()
}

// RunOnce performs a single poll cycle: claim up to the free slots of the
// concurrency budget and launch each claimed job without blocking.
func (d *Dispatcher) RunOnce(ctx context.Context) error {
	d.mu.Lock()
	budget := d.cfg.Concurrency - d.active
	d.mu.Unlock()
	if budget <= 0 {
		return nil
	}

	jobs, err := d.store.Claim(ctx, budget)
	if err != nil {
		return fmt.Errorf("claim jobs: %w", err)
	}

	for _, job := range jobs {
		d.mu.Lock()
		d.active++
		d.mu.Unlock()
		d.wg.Add(1)
		go func(job models.Job) {
			defer d.wg.Done()
			defer func() {
				d.mu.Lock()
				d.active--
				d.mu.Unlock()
			}()
			d.runJob(ctx, job)
		}(job)
	}
	return nil
}

// ActiveJobs reports how many claimed jobs are currently executing.
func (d *Dispatcher) ActiveJobs() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.active
}

func (d *Dispatcher) runJob(ctx context.Context, job models.Job) {
	result, err := d.execute(ctx, job)
	d.settle(ctx, job, result, err)
}

func (d *Dispatcher) execute(ctx context.Context, job models.Job) (result any, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("processor panic: %v", r)
			d.log.Error().
				Uint("job", job.ID).
				Str("type", job.Type).
				Any("panic", r).
				Str("stack", string(debug.Stack())).
				Msg("panic in processor")
		}
	}()

	d.mu.Lock()
	fn, ok := d.processors[job.Type]
	d.mu.Unlock()
	if !ok {
		return nil, fmt.Errorf("no processor registered for job type %q", job.Type)
	}
	return fn(ctx, job.Payload)
}
