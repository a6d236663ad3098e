package scheduler

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rafael-agilize/claude-telegram-relay-sub000/internal/claude"
	"github.com/rafael-agilize/claude-telegram-relay-sub000/internal/schedule"
	"github.com/rafael-agilize/claude-telegram-relay-sub000/internal/store"
)

type cronFixture struct {
	cron    *Cron
	jobs    *mockJobs
	invoker *mockInvoker
	sender  *mockSender
	events  *mockEvents
}

func newCronFixture(t *testing.T) *cronFixture {
	t.Helper()
	jobs := newMockJobs()
	invoker := &mockInvoker{}
	sender := &mockSender{}
	events := &mockEvents{}

	c := NewCron(CronConfig{TickInterval: time.Minute, DefaultChatID: "42"},
		jobs, schedule.NewCalculator(time.UTC), invoker, newTestGate(t, events),
		sender, events, nil, testLogger(t), nil)

	return &cronFixture{cron: c, jobs: jobs, invoker: invoker, sender: sender, events: events}
}

func (f *cronFixture) addJob(t *testing.T, job store.Job) store.Job {
	t.Helper()
	require.NoError(t, f.jobs.CreateJob(context.Background(), job))
	return job
}

func TestCronTickBackfillsNextRun(t *testing.T) {
	f := newCronFixture(t)
	now := time.Date(2026, 3, 10, 14, 30, 0, 0, time.UTC)
	f.cron.now = func() time.Time { return now }

	f.addJob(t, store.Job{
		ID:        "j1",
		Name:      "briefing",
		Schedule:  "0 9 * * *",
		Type:      store.ScheduleCron,
		Prompt:    "brief me",
		Enabled:   true,
		Source:    store.SourceUser,
		CreatedAt: now.Add(-time.Hour),
	})

	f.cron.Tick(context.Background())

	job := f.jobs.get(t, "j1")
	require.NotNil(t, job.NextRunAt)
	assert.Equal(t, time.Date(2026, 3, 11, 9, 0, 0, 0, time.UTC), job.NextRunAt.UTC())
	assert.Empty(t, f.invoker.calls(t), "not yet due")
}

func TestCronTwoTickSingleExecution(t *testing.T) {
	f := newCronFixture(t)
	now := time.Date(2026, 3, 10, 14, 30, 0, 0, time.UTC)
	f.cron.now = func() time.Time { return now }
	f.invoker.results = []*claude.Result{{Text: "briefing done"}}

	due := now.Add(-time.Second)
	f.addJob(t, store.Job{
		ID:        "j1",
		Name:      "hourly",
		Schedule:  "every 2h",
		Type:      store.ScheduleInterval,
		Prompt:    "check things",
		ChatID:    "77",
		Enabled:   true,
		Source:    store.SourceUser,
		CreatedAt: now.Add(-3 * time.Hour),
		NextRunAt: &due,
	})

	f.cron.Tick(context.Background())

	require.Len(t, f.invoker.calls(t), 1)
	job := f.jobs.get(t, "j1")
	require.NotNil(t, job.LastRunAt)
	assert.True(t, job.LastRunAt.Equal(now))
	require.NotNil(t, job.NextRunAt)
	assert.True(t, job.NextRunAt.Equal(now.Add(2*time.Hour)))

	// Second tick 60s later: the job must not be due again.
	f.cron.now = func() time.Time { return now.Add(time.Minute) }
	f.cron.Tick(context.Background())

	assert.Len(t, f.invoker.calls(t), 1, "job must execute exactly once")
	assert.Equal(t, 1, f.events.countByType(store.EventJobExecuted))

	msgs := f.sender.messages()
	require.Len(t, msgs, 1)
	assert.Equal(t, "77", msgs[0].destination)
	assert.Equal(t, "briefing done", msgs[0].text)
}

func TestCronDueJobsRunInCreationOrder(t *testing.T) {
	f := newCronFixture(t)
	now := time.Date(2026, 3, 10, 14, 30, 0, 0, time.UTC)
	f.cron.now = func() time.Time { return now }

	due := now.Add(-time.Second)
	f.addJob(t, store.Job{
		ID: "newer", Name: "newer", Schedule: "every 1h", Type: store.ScheduleInterval,
		Prompt: "newer prompt", Enabled: true, CreatedAt: now.Add(-time.Hour), NextRunAt: &due,
	})
	f.addJob(t, store.Job{
		ID: "older", Name: "older", Schedule: "every 1h", Type: store.ScheduleInterval,
		Prompt: "older prompt", Enabled: true, CreatedAt: now.Add(-2 * time.Hour), NextRunAt: &due,
	})

	f.cron.Tick(context.Background())

	calls := f.invoker.calls(t)
	require.Len(t, calls, 2)
	assert.Equal(t, "older prompt", calls[0].Prompt)
	assert.Equal(t, "newer prompt", calls[1].Prompt)
}

func TestCronOnceJobDisabledAfterRun(t *testing.T) {
	f := newCronFixture(t)
	now := time.Date(2026, 3, 10, 14, 30, 0, 0, time.UTC)
	f.cron.now = func() time.Time { return now }

	f.addJob(t, store.Job{
		ID:        "once",
		Name:      "reminder",
		Schedule:  "in 10m",
		Type:      store.ScheduleOnce,
		Prompt:    "remind me",
		Enabled:   true,
		CreatedAt: now.Add(-time.Hour),
	})

	// First tick backfills the due time, which is already in the past.
	f.cron.Tick(context.Background())

	require.Len(t, f.invoker.calls(t), 1, "past-due once job runs immediately")
	job := f.jobs.get(t, "once")
	assert.False(t, job.Enabled, "one-shot jobs are disabled after running")
	assert.Nil(t, job.NextRunAt)

	f.cron.Tick(context.Background())
	assert.Len(t, f.invoker.calls(t), 1, "a finished once job never re-triggers")
}

func TestCronMalformedScheduleSkipsButKeepsJob(t *testing.T) {
	f := newCronFixture(t)
	f.addJob(t, store.Job{
		ID: "bad", Name: "bad", Schedule: "99 99 * * *", Type: store.ScheduleCron,
		Prompt: "p", Enabled: true, CreatedAt: time.Now(),
	})

	f.cron.Tick(context.Background())

	assert.Empty(t, f.invoker.calls(t))
	job := f.jobs.get(t, "bad")
	assert.True(t, job.Enabled, "malformed schedules self-heal, jobs stay enabled")
	assert.Equal(t, 1, f.events.countByType(store.EventJobSkipped))
}

func TestCronInvocationFailureDoesNotAbortTick(t *testing.T) {
	f := newCronFixture(t)
	now := time.Date(2026, 3, 10, 14, 30, 0, 0, time.UTC)
	f.cron.now = func() time.Time { return now }
	f.invoker.errs = []error{errors.New("agent exploded"), nil}
	f.invoker.results = []*claude.Result{nil, {Text: "second ok"}}

	due := now.Add(-time.Second)
	f.addJob(t, store.Job{
		ID: "first", Name: "first", Schedule: "every 1h", Type: store.ScheduleInterval,
		Prompt: "first", Enabled: true, CreatedAt: now.Add(-2 * time.Hour), NextRunAt: &due,
	})
	f.addJob(t, store.Job{
		ID: "second", Name: "second", Schedule: "every 1h", Type: store.ScheduleInterval,
		Prompt: "second", Enabled: true, CreatedAt: now.Add(-time.Hour), NextRunAt: &due,
	})

	f.cron.Tick(context.Background())

	assert.Len(t, f.invoker.calls(t), 2, "remaining jobs run after a failure")
	assert.Equal(t, 1, f.events.countByType(store.EventJobFailed))
	assert.Equal(t, 1, f.events.countByType(store.EventJobExecuted))

	failed := f.jobs.get(t, "first")
	require.NotNil(t, failed.NextRunAt)
	assert.True(t, failed.NextRunAt.After(now), "a failing job is rescheduled, not hot-looped")
}

func TestCronListFailureFailsClosed(t *testing.T) {
	f := newCronFixture(t)
	f.jobs.listErr = errors.New("store down")

	f.cron.Tick(context.Background())
	assert.Empty(t, f.invoker.calls(t))
}

func TestCronBusyGuardSkipsOverlap(t *testing.T) {
	f := newCronFixture(t)
	now := time.Date(2026, 3, 10, 14, 30, 0, 0, time.UTC)
	f.cron.now = func() time.Time { return now }
	f.invoker.block = make(chan struct{})

	due := now.Add(-time.Second)
	f.addJob(t, store.Job{
		ID: "slow", Name: "slow", Schedule: "every 1h", Type: store.ScheduleInterval,
		Prompt: "slow", Enabled: true, CreatedAt: now.Add(-time.Hour), NextRunAt: &due,
	})

	done := make(chan struct{})
	go func() {
		f.cron.Tick(context.Background())
		close(done)
	}()

	require.Eventually(t, func() bool {
		return len(f.invoker.calls(t)) == 1
	}, 2*time.Second, 10*time.Millisecond)

	f.cron.Tick(context.Background())
	assert.Len(t, f.invoker.calls(t), 1, "overlapping tick must not run jobs")
	assert.Equal(t, 1, f.events.countByType(store.EventTickSkipped))

	close(f.invoker.block)
	<-done
}

func TestCronEmptyResponseDeliversFallback(t *testing.T) {
	f := newCronFixture(t)
	now := time.Date(2026, 3, 10, 14, 30, 0, 0, time.UTC)
	f.cron.now = func() time.Time { return now }
	f.invoker.results = []*claude.Result{{Text: ""}}

	due := now.Add(-time.Second)
	f.addJob(t, store.Job{
		ID: "j1", Name: "j1", Schedule: "every 1h", Type: store.ScheduleInterval,
		Prompt: "p", Enabled: true, CreatedAt: now.Add(-time.Hour), NextRunAt: &due,
	})

	f.cron.Tick(context.Background())

	msgs := f.sender.messages()
	require.Len(t, msgs, 1)
	assert.Equal(t, "42", msgs[0].destination, "empty job chat falls back to the default")
	assert.NotEmpty(t, msgs[0].text)
}
