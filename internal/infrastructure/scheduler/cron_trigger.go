package scheduler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/ams/backend/internal/domain/processing"
	"github.com/ams/backend/internal/domain/shared"
	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

// TriggerSchedule is the trigger label recorded on cron-started runs
const TriggerSchedule = "schedule"

// CronTriggerConfig holds the cron expressions of the daily jobs
type CronTriggerConfig struct {
	// Location is the business time zone; as-of dates are taken in it
	Location *time.Location
	// Specs maps each job type to a standard 5-field cron expression
	Specs map[processing.JobType]string
	// MaxRetries is copied onto every submitted job
	MaxRetries int
}

// DefaultCronTriggerConfig returns default cron trigger configuration:
// lifecycle at 01:00, renewals at 01:30, recognition at 02:00
func DefaultCronTriggerConfig() CronTriggerConfig {
	return CronTriggerConfig{
		Location: time.UTC,
		Specs: map[processing.JobType]string{
			processing.JobLifecycle:   "0 1 * * *",
			processing.JobRenewal:     "30 1 * * *",
			processing.JobRecognition: "0 2 * * *",
		},
		MaxRetries: 3,
	}
}

// EntryStatus describes one registered cron entry
type EntryStatus struct {
	JobType processing.JobType `json:"job_type"`
	Spec    string             `json:"spec"`
	NextRun time.Time          `json:"next_run"`
	PrevRun time.Time          `json:"prev_run,omitempty"`
}

// CronTrigger submits the daily jobs to the scheduler on their cron specs
type CronTrigger struct {
	config    CronTriggerConfig
	scheduler *Scheduler
	clock     shared.Clock
	logger    *zap.Logger

	cron      *cron.Cron
	entries   map[processing.JobType]cron.EntryID
	mu        sync.Mutex
	isRunning bool
}

// NewCronTrigger creates a new cron trigger. Specs are parsed eagerly so
// a bad expression fails at startup.
func NewCronTrigger(config CronTriggerConfig, scheduler *Scheduler, clock shared.Clock, logger *zap.Logger) (*CronTrigger, error) {
	if config.Location == nil {
		config.Location = time.UTC
	}
	c := &CronTrigger{
		config:    config,
		scheduler: scheduler,
		clock:     clock,
		logger:    logger,
		cron:      cron.New(cron.WithLocation(config.Location)),
		entries:   make(map[processing.JobType]cron.EntryID, len(config.Specs)),
	}
	for _, jobType := range processing.AllJobTypes {
		spec, ok := config.Specs[jobType]
		if !ok || spec == "" {
			continue
		}
		jt := jobType
		id, err := c.cron.AddFunc(spec, func() { c.fire(jt) })
		if err != nil {
			return nil, fmt.Errorf("%w: %s cron %q: %v", ErrInvalidConfig, jobType, spec, err)
		}
		c.entries[jobType] = id
	}
	return c, nil
}

// Start starts the cron trigger
func (c *CronTrigger) Start(_ context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.isRunning {
		return nil
	}
	c.isRunning = true
	c.cron.Start()

	for jobType, spec := range c.config.Specs {
		c.logger.Info("Cron trigger registered",
			zap.String("job_type", jobType.String()),
			zap.String("spec", spec),
			zap.String("location", c.config.Location.String()),
		)
	}
	return nil
}

// Stop stops the cron trigger and waits for a firing callback to return
func (c *CronTrigger) Stop(ctx context.Context) error {
	c.mu.Lock()
	if !c.isRunning {
		c.mu.Unlock()
		return nil
	}
	c.isRunning = false
	c.mu.Unlock()

	stopped := c.cron.Stop()
	select {
	case <-stopped.Done():
		c.logger.Info("Cron trigger stopped")
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// fire submits a job for the current business date
func (c *CronTrigger) fire(jobType processing.JobType) {
	asOf := shared.TruncateDay(c.clock.Now().In(c.config.Location))
	if err := c.TriggerNow(jobType, asOf, TriggerSchedule); err != nil {
		c.logger.Error("Failed to submit scheduled job",
			zap.String("job_type", jobType.String()),
			zap.String("as_of", shared.FormatDate(asOf)),
			zap.Error(err),
		)
	}
}

// TriggerNow queues a run of jobType for asOf outside the schedule
func (c *CronTrigger) TriggerNow(jobType processing.JobType, asOf time.Time, trigger string) error {
	job := NewJob(jobType, shared.TruncateDay(asOf), trigger, c.config.MaxRetries)
	if err := c.scheduler.SubmitJob(job); err != nil {
		return err
	}
	c.logger.Info("Job queued",
		zap.String("job_id", job.ID.String()),
		zap.String("job_type", jobType.String()),
		zap.String("as_of", shared.FormatDate(job.AsOf)),
		zap.String("trigger", trigger),
	)
	return nil
}

// Status returns the registered entries with their next run times
func (c *CronTrigger) Status() []EntryStatus {
	out := make([]EntryStatus, 0, len(c.entries))
	for _, jobType := range processing.AllJobTypes {
		id, ok := c.entries[jobType]
		if !ok {
			continue
		}
		entry := c.cron.Entry(id)
		out = append(out, EntryStatus{
			JobType: jobType,
			Spec:    c.config.Specs[jobType],
			NextRun: entry.Next,
			PrevRun: entry.Prev,
		})
	}
	return out
}
