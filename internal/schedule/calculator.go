// Package schedule computes the next run time for scheduled jobs. It is a
// pure calculation layer: given a job and a reference time it returns the
// next due timestamp, or nil when the schedule is malformed. Callers log and
// skip malformed schedules; jobs are never removed for them.
package schedule

import (
	"strconv"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/wasilibs/go-re2"

	"github.com/rafael-agilize/claude-telegram-relay-sub000/internal/store"
)

// cronParser accepts standard 5-field expressions (minute through day of week).
var cronParser = cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)

// durationPattern matches combined hour/minute durations like "every 2h30m",
// "in 45m" or "2h". At least one component must be present.
var durationPattern = re2.MustCompile(`(?i)^(?:every\s+|in\s+)?(?:(\d+)h)?(?:(\d+)m)?$`)

// Calculator computes next run times in a fixed timezone.
type Calculator struct {
	loc *time.Location
}

// NewCalculator creates a calculator for the given timezone.
// A nil location means UTC.
func NewCalculator(loc *time.Location) *Calculator {
	if loc == nil {
		loc = time.UTC
	}
	return &Calculator{loc: loc}
}

// NextRun returns the next time the job is due, strictly determined by the
// job and now. It returns nil when the schedule cannot be parsed or, for a
// once job, when it has already run.
func (c *Calculator) NextRun(job store.Job, now time.Time) *time.Time {
	switch job.Type {
	case store.ScheduleCron:
		return c.nextCron(job.Schedule, now)
	case store.ScheduleInterval:
		return c.nextInterval(job, now)
	case store.ScheduleOnce:
		return c.nextOnce(job, now)
	default:
		return nil
	}
}

// nextCron returns the next cron match strictly after now.
func (c *Calculator) nextCron(expr string, now time.Time) *time.Time {
	sched, err := cronParser.Parse(expr)
	if err != nil {
		return nil
	}
	next := sched.Next(now.In(c.loc))
	if next.IsZero() {
		return nil
	}
	return &next
}

// nextInterval bases the next run on the last run when present, else on now.
func (c *Calculator) nextInterval(job store.Job, now time.Time) *time.Time {
	d, ok := ParseDuration(job.Schedule)
	if !ok || d <= 0 {
		return nil
	}

	base := now
	if job.LastRunAt != nil {
		base = *job.LastRunAt
	}
	next := base.Add(d)
	return &next
}

// nextOnce computes the single due time relative to the job's creation.
// A due time already in the past is returned as-is when the job has never
// run, making it immediately due; once the job has run it never fires again.
func (c *Calculator) nextOnce(job store.Job, now time.Time) *time.Time {
	if job.LastRunAt != nil {
		return nil
	}

	d, ok := ParseDuration(job.Schedule)
	if !ok || d <= 0 {
		return nil
	}

	due := job.CreatedAt.Add(d)
	return &due
}

// ParseDuration parses a combined hour/minute duration ("every 2h30m",
// "45m", "in 2h"). It returns false for anything else, including a duration
// of zero length.
func ParseDuration(s string) (time.Duration, bool) {
	matches := durationPattern.FindStringSubmatch(strings.TrimSpace(s))
	if matches == nil {
		return 0, false
	}
	if matches[1] == "" && matches[2] == "" {
		return 0, false
	}

	var d time.Duration
	if matches[1] != "" {
		hours, err := strconv.Atoi(matches[1])
		if err != nil {
			return 0, false
		}
		d += time.Duration(hours) * time.Hour
	}
	if matches[2] != "" {
		minutes, err := strconv.Atoi(matches[2])
		if err != nil {
			return 0, false
		}
		d += time.Duration(minutes) * time.Minute
	}

	if d <= 0 {
		return 0, false
	}
	return d, true
}

// ValidateCron reports whether expr is a valid 5-field cron expression.
// Used by the intent gate and job commands before persisting a schedule.
func ValidateCron(expr string) error {
	_, err := cronParser.Parse(expr)
	return err
}

// Classify determines the schedule type of a raw schedule string: a leading
// "in" marks a one-shot delay, a parseable duration is a repeating interval,
// and anything validating as cron is a cron job.
func Classify(sched string) (store.ScheduleType, bool) {
	trimmed := strings.TrimSpace(sched)
	if _, ok := ParseDuration(trimmed); ok {
		lower := strings.ToLower(trimmed)
		if strings.HasPrefix(lower, "in ") {
			return store.ScheduleOnce, true
		}
		return store.ScheduleInterval, true
	}
	if ValidateCron(trimmed) == nil {
		return store.ScheduleCron, true
	}
	return "", false
}
