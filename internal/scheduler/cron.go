package scheduler

import (
	"context"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rafael-agilize/claude-telegram-relay-sub000/internal/channels"
	"github.com/rafael-agilize/claude-telegram-relay-sub000/internal/claude"
	"github.com/rafael-agilize/claude-telegram-relay-sub000/internal/constants"
	"github.com/rafael-agilize/claude-telegram-relay-sub000/internal/intent"
	"github.com/rafael-agilize/claude-telegram-relay-sub000/internal/jobfile"
	"github.com/rafael-agilize/claude-telegram-relay-sub000/internal/logger"
	"github.com/rafael-agilize/claude-telegram-relay-sub000/internal/metrics"
	"github.com/rafael-agilize/claude-telegram-relay-sub000/internal/schedule"
	"github.com/rafael-agilize/claude-telegram-relay-sub000/internal/store"
)

// CronConfig holds cron loop settings.
type CronConfig struct {
	// TickInterval is how often the loop polls for due jobs.
	TickInterval time.Duration
	// DefaultChatID receives job output when the job has no destination.
	DefaultChatID string
}

// Cron is the scheduled-jobs loop. On each tick it reconciles the jobs
// file, backfills missing next-run times and executes every due job
// sequentially in creation order.
type Cron struct {
	cfg     CronConfig
	jobs    store.JobStore
	calc    *schedule.Calculator
	invoker claude.Invoker
	gate    *intent.Gate
	sender  channels.Sender
	events  store.EventLog
	syncer  *jobfile.Syncer
	log     *logger.Logger
	metrics *metrics.Metrics

	busy    atomic.Bool
	now     func() time.Time
	ctx     context.Context
	cancel  context.CancelFunc
	started bool
	mu      sync.Mutex
}

// NewCron creates the cron loop. syncer may be nil when no jobs file is
// configured.
func NewCron(cfg CronConfig, jobs store.JobStore, calc *schedule.Calculator, invoker claude.Invoker, gate *intent.Gate, sender channels.Sender, events store.EventLog, syncer *jobfile.Syncer, log *logger.Logger, m *metrics.Metrics) *Cron {
	if cfg.TickInterval <= 0 {
		cfg.TickInterval = constants.DefaultCronTickInterval
	}
	return &Cron{
		cfg:     cfg,
		jobs:    jobs,
		calc:    calc,
		invoker: invoker,
		gate:    gate,
		sender:  sender,
		events:  events,
		syncer:  syncer,
		log:     log,
		metrics: m,
		now:     time.Now,
	}
}

// Start begins the cron loop. Starting an already started loop is a no-op.
func (c *Cron) Start() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.started {
		return
	}
	c.ctx, c.cancel = context.WithCancel(context.Background())
	c.started = true

	c.log.Info("cron loop started",
		logger.Field{Key: "tick_interval", Value: c.cfg.TickInterval.String()},
	)
	go c.run()
}

// Stop halts the loop. An in-flight tick finishes on its own.
func (c *Cron) Stop() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.started {
		return
	}
	c.cancel()
	c.started = false
	c.log.Info("cron loop stopped")
}

func (c *Cron) run() {
	ticker := time.NewTicker(c.cfg.TickInterval)
	defer ticker.Stop()

	for {
		select {
		case <-c.ctx.Done():
			return
		case <-ticker.C:
			c.Tick(c.ctx)
		}
	}
}

// Tick performs one poll: sync the jobs file, backfill schedules, run due
// jobs.
func (c *Cron) Tick(ctx context.Context) {
	if !c.busy.CompareAndSwap(false, true) {
		c.log.Info("cron tick skipped, previous tick still running")
		c.metrics.RecordTick("cron", "skipped")
		c.record(ctx, store.EventTickSkipped, "cron tick overlapped", nil)
		return
	}
	defer c.busy.Store(false)

	if c.syncer != nil {
		if err := c.syncer.Sync(ctx); err != nil {
			c.log.Error("jobs file sync failed", err)
		}
	}

	jobs, err := c.jobs.ListJobs(ctx, store.JobFilter{EnabledOnly: true})
	if err != nil {
		// No job runs against a store we cannot read.
		c.log.Error("job listing failed, skipping tick", err)
		c.metrics.RecordTick("cron", "error")
		return
	}
	c.metrics.RecordTick("cron", "fired")

	sort.Slice(jobs, func(i, j int) bool { return jobs[i].CreatedAt.Before(jobs[j].CreatedAt) })

	now := c.now()
	for _, job := range jobs {
		if ctx.Err() != nil {
			return
		}

		if job.NextRunAt == nil {
			next := c.calc.NextRun(job, now)
			if next == nil {
				// Malformed schedule: skip this tick, leave the
				// job enabled so a fixed schedule self-heals.
				c.log.Warn("job schedule could not be computed",
					logger.Field{Key: "job_id", Value: job.ID},
					logger.Field{Key: "schedule", Value: job.Schedule},
				)
				c.record(ctx, store.EventJobSkipped, job.Name, map[string]string{
					"job_id": job.ID,
					"reason": "malformed schedule",
				})
				continue
			}
			job.NextRunAt = next
			if err := c.jobs.UpdateJob(ctx, job); err != nil {
				c.log.Error("job schedule backfill failed", err,
					logger.Field{Key: "job_id", Value: job.ID},
				)
				continue
			}
		}

		if job.NextRunAt.After(now) {
			continue
		}
		c.execute(ctx, job, now)
	}
}

// execute runs one due job end to end. Failures are contained: they are
// logged and recorded, and the remaining due jobs still run.
func (c *Cron) execute(ctx context.Context, job store.Job, now time.Time) {
	c.log.Info("job due",
		logger.Field{Key: "job_id", Value: job.ID},
		logger.Field{Key: "name", Value: job.Name},
	)
	c.record(ctx, store.EventJobDue, job.Name, map[string]string{"job_id": job.ID})

	destination := job.ChatID
	if destination == "" {
		destination = c.cfg.DefaultChatID
	}

	started := c.now()
	res, err := c.invoker.Invoke(ctx, claude.Request{Prompt: job.Prompt})
	if err != nil {
		c.log.Error("job invocation failed", err,
			logger.Field{Key: "job_id", Value: job.ID},
		)
		c.metrics.RecordInvocation("error", time.Since(started))
		c.metrics.RecordJobRun("failed")
		c.record(ctx, store.EventJobFailed, job.Name, map[string]string{"job_id": job.ID})
		// Advance the schedule anyway so a persistently failing job
		// does not retry on every tick.
		c.reschedule(ctx, job, now)
		return
	}
	c.metrics.RecordInvocation("ok", time.Since(started))
	if res.Retried {
		c.record(ctx, store.EventInvocationRetried, "", map[string]string{"job_id": job.ID})
	}

	text := strings.TrimSpace(res.Text)
	if text == "" {
		text = constants.MsgNoResponse
	}

	out := c.gate.Process(ctx, text, intent.ContextCron, destination)
	if out.CleanedText != "" {
		if err := c.sender.Send(ctx, destination, out.CleanedText); err != nil {
			c.log.Error("job delivery failed", err,
				logger.Field{Key: "job_id", Value: job.ID},
			)
		}
	}

	c.metrics.RecordJobRun("ok")
	c.record(ctx, store.EventJobExecuted, job.Name, map[string]string{"job_id": job.ID})
	c.reschedule(ctx, job, now)
}

// reschedule stamps the run and computes the next one. One-shot jobs are
// disabled instead.
func (c *Cron) reschedule(ctx context.Context, job store.Job, ranAt time.Time) {
	job.LastRunAt = &ranAt

	if job.Type == store.ScheduleOnce {
		job.Enabled = false
		job.NextRunAt = nil
	} else {
		job.NextRunAt = c.calc.NextRun(job, ranAt)
	}

	if err := c.jobs.UpdateJob(ctx, job); err != nil {
		c.log.Error("job state update failed", err,
			logger.Field{Key: "job_id", Value: job.ID},
		)
	}
}

func (c *Cron) record(ctx context.Context, eventType store.EventType, content string, metadata map[string]string) {
	event := store.Event{
		Type:      eventType,
		Content:   content,
		Metadata:  metadata,
		CreatedAt: c.now().UTC(),
	}
	if err := c.events.Append(ctx, event); err != nil {
		c.log.Warn("event append failed", logger.Field{Key: "event", Value: string(eventType)})
	}
}
