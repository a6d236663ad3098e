package constants

import "time"

// Agent invocation defaults
const (
	// DefaultAgentBinary is the external CLI agent executable.
	DefaultAgentBinary = "claude"

	// DefaultInactivityTimeout bounds how long the agent may go without
	// emitting a parseable stream event before it is considered stuck.
	DefaultInactivityTimeout = 15 * time.Minute

	// DefaultMaxOutputBytes caps accumulated stream output per invocation.
	DefaultMaxOutputBytes = 10 * 1024 * 1024
)

// Scheduler defaults
const (
	// DefaultCronTickInterval is how often the cron loop polls for due jobs.
	DefaultCronTickInterval = 60 * time.Second

	// DefaultHeartbeatInterval is how often the heartbeat loop fires.
	DefaultHeartbeatInterval = 30 * time.Minute

	// DefaultDedupWindow is the lookback window for suppressing a repeated
	// heartbeat message.
	DefaultDedupWindow = 24 * time.Hour
)

// Intent gate defaults
const (
	// DefaultRememberCap limits stored facts per response.
	DefaultRememberCap = 5

	// DefaultGoalCap limits stored goals per response.
	DefaultGoalCap = 3

	// DefaultDoneCap limits completion records per response.
	DefaultDoneCap = 3

	// DefaultMilestoneCap limits milestone records per response.
	DefaultMilestoneCap = 1

	// DefaultForgetCap limits deletions per response.
	DefaultForgetCap = 2

	// DefaultCronCap limits schedule proposals per response.
	DefaultCronCap = 1

	// DefaultMaxFacts is the stored-fact capacity before oldest-first eviction.
	DefaultMaxFacts = 200

	// DefaultMaxGoals is the stored-goal capacity before oldest-first eviction.
	DefaultMaxGoals = 50

	// ForgetMinLength is the minimum FORGET search text length; anything
	// shorter collides with too many records to delete safely.
	ForgetMinLength = 4
)
