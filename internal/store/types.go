// Package store defines the record types and collaborator interfaces for the
// remote relay store: scheduled jobs, memory entries, the append-only event
// log and session continuation tokens. The relay core depends only on these
// interfaces; the concrete remote client lives in store/rest.
package store

import "time"

// ScheduleType classifies how a job's next run time is computed.
type ScheduleType string

const (
	ScheduleCron     ScheduleType = "cron"     // 5-field cron expression
	ScheduleInterval ScheduleType = "interval" // repeating "every NhMm" duration
	ScheduleOnce     ScheduleType = "once"     // one-shot delay from creation
)

// JobSource records who created a job. Agent-sourced jobs start disabled
// and require human approval before they run.
type JobSource string

const (
	SourceUser  JobSource = "user"
	SourceAgent JobSource = "agent"
	SourceFile  JobSource = "file"
)

// Job is a schedulable unit of agent work.
type Job struct {
	ID        string       `json:"id"`
	Name      string       `json:"name"`
	Schedule  string       `json:"schedule"`
	Type      ScheduleType `json:"type"`
	Prompt    string       `json:"prompt"`
	ChatID    string       `json:"chat_id,omitempty"` // delivery destination; empty means default
	Enabled   bool         `json:"enabled"`
	Source    JobSource    `json:"source"`
	CreatedAt time.Time    `json:"created_at"`
	LastRunAt *time.Time   `json:"last_run_at,omitempty"`
	NextRunAt *time.Time   `json:"next_run_at,omitempty"`
}

// EntryType classifies a memory entry.
type EntryType string

const (
	EntryFact      EntryType = "fact"
	EntryGoal      EntryType = "goal"
	EntryDone      EntryType = "done"
	EntryMilestone EntryType = "milestone"
)

// MemoryEntry is a typed fact/goal record. The relay only inserts, counts,
// searches and evicts entries; the schema beyond this is owned by the store.
type MemoryEntry struct {
	ID        string    `json:"id"`
	Type      EntryType `json:"type"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"created_at"`
}

// EventType names a canonical relay decision event. Consumers of the event
// log rely on this vocabulary staying stable.
type EventType string

const (
	EventTickSkipped         EventType = "tick_skipped"
	EventJobDue              EventType = "job_due"
	EventJobExecuted         EventType = "job_executed"
	EventJobFailed           EventType = "job_failed"
	EventJobSkipped          EventType = "job_skipped"
	EventInvocationTimeout   EventType = "invocation_timeout"
	EventInvocationRetried   EventType = "invocation_retried"
	EventInvocationOK        EventType = "invocation_ok"
	EventDirectiveAccepted   EventType = "directive_accepted"
	EventDirectiveBlocked    EventType = "directive_blocked"
	EventDirectiveCapped     EventType = "directive_capped"
	EventDirectiveDeduped    EventType = "directive_deduped"
	EventDirectiveRejected   EventType = "directive_rejected"
	EventApprovalRequested   EventType = "approval_requested"
	EventApprovalApproved    EventType = "approval_approved"
	EventApprovalRejected    EventType = "approval_rejected"
	EventHeartbeatDelivered  EventType = "heartbeat_delivered"
	EventHeartbeatSuppressed EventType = "heartbeat_suppressed"
)

// Event is one append-only log record.
type Event struct {
	ID        string            `json:"id,omitempty"`
	Type      EventType         `json:"type"`
	Content   string            `json:"content,omitempty"`
	Metadata  map[string]string `json:"metadata,omitempty"`
	CreatedAt time.Time         `json:"created_at"`
}
