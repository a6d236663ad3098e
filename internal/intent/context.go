package intent

// ExecutionContext is the trust level a response was produced under. It
// determines which directive types may be honored: interactive responses are
// human-supervised and permit everything, while heartbeat and cron responses
// arrive through automated channels where injected content could smuggle
// directives, so schedule creation and deletion stay human-gated there.
type ExecutionContext string

const (
	ContextInteractive ExecutionContext = "interactive"
	ContextHeartbeat   ExecutionContext = "heartbeat"
	ContextCron        ExecutionContext = "cron"
)

var contextAllowlists = map[ExecutionContext]map[DirectiveType]bool{
	ContextInteractive: {
		DirectiveRemember:   true,
		DirectiveGoal:       true,
		DirectiveDone:       true,
		DirectiveForget:     true,
		DirectiveCron:       true,
		DirectiveVoiceReply: true,
		DirectiveMilestone:  true,
	},
	ContextHeartbeat: {
		DirectiveRemember:   true,
		DirectiveGoal:       true,
		DirectiveDone:       true,
		DirectiveVoiceReply: true,
		DirectiveMilestone:  true,
	},
	ContextCron: {
		DirectiveRemember:   true,
		DirectiveGoal:       true,
		DirectiveDone:       true,
		DirectiveVoiceReply: true,
		DirectiveMilestone:  true,
	},
}

// Allows reports whether directives of the given type may be honored in
// this context. Unknown contexts allow nothing.
func (c ExecutionContext) Allows(t DirectiveType) bool {
	return contextAllowlists[c][t]
}
