package constants

// User-visible text. Internal detail (stderr, stack traces, raw storage
// errors) stays in logs; only these short generic strings ever reach a chat.

// Agent invocation messages
const (
	// MsgAgentStuck is returned when an invocation is killed by the inactivity timer.
	MsgAgentStuck = "The assistant appears to be stuck and was stopped. Please try again."

	// MsgAgentFailed is the generic failure message for a failed invocation.
	MsgAgentFailed = "Sorry, something went wrong while processing that. Please try again."

	// MsgNoResponse is used when the agent stream ended without a result event.
	MsgNoResponse = "Sorry, I could not parse a response from the assistant."
)

// Heartbeat messages
const (
	// HeartbeatOKToken is the literal token the agent replies with when
	// a heartbeat check finds nothing worth reporting.
	HeartbeatOKToken = "HEARTBEAT_OK"

	// HeartbeatPrompt is the standing prompt sent on every heartbeat tick.
	HeartbeatPrompt = "Run your periodic check: review open goals, stored facts and any pending follow-ups. " +
		"If something needs the user's attention, write a short message about it. " +
		"If nothing needs attention, reply with exactly HEARTBEAT_OK."
)

// Approval messages
const (
	// MsgApprovalRequest asks the user to confirm an agent-proposed scheduled job.
	MsgApprovalRequest = "The assistant wants to schedule a job:\n  %s: %s\nApprove with 'relay job approve %s' or reject with 'relay job reject %s'."

	// MsgJobApproved confirms that a pending job was enabled.
	MsgJobApproved = "Scheduled job %s approved and enabled."

	// MsgJobRejected confirms that a pending job was deleted.
	MsgJobRejected = "Scheduled job %s rejected and removed."
)
