package intent

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/rafael-agilize/claude-telegram-relay-sub000/internal/channels"
	"github.com/rafael-agilize/claude-telegram-relay-sub000/internal/constants"
	"github.com/rafael-agilize/claude-telegram-relay-sub000/internal/logger"
	"github.com/rafael-agilize/claude-telegram-relay-sub000/internal/schedule"
	"github.com/rafael-agilize/claude-telegram-relay-sub000/internal/store"
)

// ApprovalFlow handles agent-proposed scheduled jobs. A proposal is stored
// disabled and stays inert until a human approves it; rejection deletes it.
// Pending proposals never expire on their own.
type ApprovalFlow struct {
	jobs   store.JobStore
	events store.EventLog
	calc   *schedule.Calculator
	sender channels.Sender
	log    *logger.Logger
}

// NewApprovalFlow creates an approval flow. sender may be nil, in which case
// confirmation requests are only logged.
func NewApprovalFlow(jobs store.JobStore, events store.EventLog, calc *schedule.Calculator, sender channels.Sender, log *logger.Logger) *ApprovalFlow {
	return &ApprovalFlow{
		jobs:   jobs,
		events: events,
		calc:   calc,
		sender: sender,
		log:    log,
	}
}

// Propose stores a disabled agent-sourced job and asks the human at
// destination to confirm it. The schedule must classify as cron, interval
// or once.
func (a *ApprovalFlow) Propose(ctx context.Context, sched, prompt, destination string) (store.Job, error) {
	schedType, ok := schedule.Classify(sched)
	if !ok {
		return store.Job{}, fmt.Errorf("unrecognized schedule %q", sched)
	}

	job := store.Job{
		ID:        uuid.NewString(),
		Name:      truncate(prompt, 48),
		Schedule:  sched,
		Type:      schedType,
		Prompt:    prompt,
		ChatID:    destination,
		Enabled:   false,
		Source:    store.SourceAgent,
		CreatedAt: time.Now().UTC(),
	}
	if err := a.jobs.CreateJob(ctx, job); err != nil {
		return store.Job{}, fmt.Errorf("create proposed job: %w", err)
	}

	a.log.Info("agent proposed a scheduled job, awaiting approval",
		logger.Field{Key: "job_id", Value: job.ID},
		logger.Field{Key: "schedule", Value: sched},
	)
	a.record(ctx, store.EventApprovalRequested, job)

	msg := fmt.Sprintf(constants.MsgApprovalRequest, sched, truncate(prompt, 120), job.ID, job.ID)
	if a.sender != nil {
		if err := a.sender.Send(ctx, destination, msg); err != nil {
			a.log.Error("approval request delivery failed", err, logger.Field{Key: "job_id", Value: job.ID})
		}
	}

	return job, nil
}

// Approve enables a pending agent-proposed job and computes its first run.
func (a *ApprovalFlow) Approve(ctx context.Context, jobID string) (store.Job, error) {
	job, err := a.jobs.GetJob(ctx, jobID)
	if err != nil {
		return store.Job{}, fmt.Errorf("load job %s: %w", jobID, err)
	}
	if job.Source != store.SourceAgent {
		return store.Job{}, fmt.Errorf("job %s is not an agent proposal", jobID)
	}
	if job.Enabled {
		return store.Job{}, fmt.Errorf("job %s is already approved", jobID)
	}

	job.Enabled = true
	job.NextRunAt = a.calc.NextRun(job, time.Now())
	if err := a.jobs.UpdateJob(ctx, job); err != nil {
		return store.Job{}, fmt.Errorf("enable job %s: %w", jobID, err)
	}

	a.log.Info("job approved",
		logger.Field{Key: "job_id", Value: job.ID},
		logger.Field{Key: "schedule", Value: job.Schedule},
	)
	a.record(ctx, store.EventApprovalApproved, job)
	return job, nil
}

// Reject deletes a pending agent-proposed job.
func (a *ApprovalFlow) Reject(ctx context.Context, jobID string) error {
	job, err := a.jobs.GetJob(ctx, jobID)
	if err != nil {
		return fmt.Errorf("load job %s: %w", jobID, err)
	}
	if job.Source != store.SourceAgent {
		return fmt.Errorf("job %s is not an agent proposal", jobID)
	}

	if err := a.jobs.DeleteJob(ctx, job.ID); err != nil {
		return fmt.Errorf("delete job %s: %w", jobID, err)
	}

	a.log.Info("job rejected", logger.Field{Key: "job_id", Value: job.ID})
	a.record(ctx, store.EventApprovalRejected, job)
	return nil
}

func (a *ApprovalFlow) record(ctx context.Context, eventType store.EventType, job store.Job) {
	event := store.Event{
		Type:    eventType,
		Content: truncate(job.Prompt, 80),
		Metadata: map[string]string{
			"job_id":   job.ID,
			"schedule": job.Schedule,
		},
		CreatedAt: time.Now().UTC(),
	}
	if err := a.events.Append(ctx, event); err != nil {
		a.log.Warn("approval event append failed", logger.Field{Key: "event", Value: string(eventType)})
	}
}
