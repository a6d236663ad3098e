package store

import (
	"context"
	"time"
)

// JobStore provides CRUD over scheduled jobs.
type JobStore interface {
	// CreateJob persists a new job.
	CreateJob(ctx context.Context, job Job) error
	// GetJob returns a job by ID.
	GetJob(ctx context.Context, id string) (Job, error)
	// ListJobs returns jobs, optionally filtered to enabled ones or by source.
	ListJobs(ctx context.Context, filter JobFilter) ([]Job, error)
	// UpdateJob replaces a job record.
	UpdateJob(ctx context.Context, job Job) error
	// SetJobEnabled atomically flips a job's enabled flag.
	SetJobEnabled(ctx context.Context, id string, enabled bool) error
	// DeleteJob removes a job.
	DeleteJob(ctx context.Context, id string) error
}

// JobFilter scopes a ListJobs call. Zero value means no filtering.
type JobFilter struct {
	EnabledOnly bool
	Source      JobSource
}

// MemoryStore provides the minimal memory operations the intent gate needs.
type MemoryStore interface {
	// InsertEntry stores a new entry.
	InsertEntry(ctx context.Context, entry MemoryEntry) error
	// CountByType returns the number of stored entries of a type.
	CountByType(ctx context.Context, entryType EntryType) (int, error)
	// DeleteOldest removes the n oldest entries of a type.
	DeleteOldest(ctx context.Context, entryType EntryType, n int) error
	// Search returns entries of a type whose content contains the substring,
	// case-insensitively.
	Search(ctx context.Context, entryType EntryType, substring string) ([]MemoryEntry, error)
	// DeleteEntry removes a single entry by ID.
	DeleteEntry(ctx context.Context, id string) error
}

// EventLog is an append-only decision log, also used for the heartbeat
// deduplication lookback.
type EventLog interface {
	// Append records an event. Implementations should be cheap; callers
	// treat failures as log-only.
	Append(ctx context.Context, event Event) error
	// Query returns events of a type newer than since.
	Query(ctx context.Context, eventType EventType, since time.Time) ([]Event, error)
}

// SessionStore persists continuation tokens between invocations.
type SessionStore interface {
	// SaveSession stores the token for a scope (e.g. "heartbeat").
	SaveSession(ctx context.Context, scope, token string) error
	// LoadSession returns the stored token for a scope, empty if none.
	LoadSession(ctx context.Context, scope string) (string, error)
}
